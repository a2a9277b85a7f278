package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"bookmail/internal/catalog"
	"bookmail/internal/schedule"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type UsersHandler struct {
	DB *gorm.DB
}

type createUserReq struct {
	Email    string  `json:"email"`
	Timezone *string `json:"timezone"`
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		http.Error(w, "valid email required", http.StatusBadRequest)
		return
	}
	if req.Timezone != nil && *req.Timezone != "" {
		if _, err := schedule.LoadZone(*req.Timezone); err != nil {
			http.Error(w, "invalid timezone", http.StatusBadRequest)
			return
		}
	}

	u := catalog.User{Email: req.Email, Timezone: req.Timezone}
	if err := h.DB.WithContext(r.Context()).Create(&u).Error; err != nil {
		http.Error(w, "email already exists", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	var users []catalog.User
	if err := h.DB.WithContext(r.Context()).Order("created_at desc").Find(&users).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "total": len(users)})
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var u catalog.User
	if err := h.DB.WithContext(r.Context()).First(&u, id).Error; err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var assignments []catalog.UserBook
	if err := h.DB.WithContext(r.Context()).
		Where("user_id = ?", id).Order("order_index").Find(&assignments).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u, "assignments": assignments})
}

type updateUserReq struct {
	Timezone *string `json:"timezone"`
}

// Update edits the user's timezone. An explicit null clears it, which makes
// the user ineligible for time-based matching.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req updateUserReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Timezone != nil && *req.Timezone != "" {
		if _, err := schedule.LoadZone(*req.Timezone); err != nil {
			http.Error(w, "invalid timezone", http.StatusBadRequest)
			return
		}
	}

	res := h.DB.WithContext(r.Context()).Model(&catalog.User{}).
		Where("id = ?", id).Update("timezone", req.Timezone)
	if res.Error != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if res.RowsAffected == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&catalog.UserBook{}).Error; err != nil {
			return err
		}
		return tx.Delete(&catalog.User{}, id).Error
	})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignBookReq struct {
	BookID        uint64   `json:"book_id"`
	OrderIndex    *int     `json:"order_index"`
	DeliveryTimes []string `json:"delivery_times"`
}

// AssignBook subscribes the user to a book with fresh progress.
func (h *UsersHandler) AssignBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req assignBookReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.BookID == 0 {
		http.Error(w, "book_id required", http.StatusBadRequest)
		return
	}
	for _, dt := range req.DeliveryTimes {
		if _, _, err := schedule.ParseClock(dt); err != nil {
			http.Error(w, "invalid delivery time: "+dt, http.StatusBadRequest)
			return
		}
	}

	var book catalog.Book
	if err := h.DB.WithContext(r.Context()).First(&book, req.BookID).Error; err != nil {
		http.Error(w, "book not found", http.StatusNotFound)
		return
	}

	orderIndex := 0
	if req.OrderIndex != nil {
		orderIndex = *req.OrderIndex
	}
	ub := catalog.UserBook{
		UserID:        id,
		BookID:        req.BookID,
		OrderIndex:    orderIndex,
		Status:        catalog.StatusQueued,
		DeliveryTimes: pq.StringArray(req.DeliveryTimes),
	}
	if ub.DeliveryTimes == nil {
		ub.DeliveryTimes = pq.StringArray{}
	}
	if err := h.DB.WithContext(r.Context()).Create(&ub).Error; err != nil {
		http.Error(w, "already assigned", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusCreated, ub)
}

type deliveryTimesReq struct {
	DeliveryTimes []string `json:"delivery_times"`
}

// SetDeliveryTimes replaces the delivery times of one assignment.
func (h *UsersHandler) SetDeliveryTimes(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := strconv.ParseUint(chi.URLParam(r, "assignmentID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req deliveryTimesReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	for _, dt := range req.DeliveryTimes {
		if _, _, err := schedule.ParseClock(dt); err != nil {
			http.Error(w, "invalid delivery time: "+dt, http.StatusBadRequest)
			return
		}
	}

	times := pq.StringArray(req.DeliveryTimes)
	if times == nil {
		times = pq.StringArray{}
	}
	res := h.DB.WithContext(r.Context()).Model(&catalog.UserBook{}).
		Where("id = ?", assignmentID).Update("delivery_times", times)
	if res.Error != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if res.RowsAffected == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type orderReq struct {
	OrderIndex int `json:"order_index"`
}

// SetOrder moves one assignment within the user's reading order.
func (h *UsersHandler) SetOrder(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := strconv.ParseUint(chi.URLParam(r, "assignmentID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req orderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.OrderIndex < 0 {
		http.Error(w, "order_index must be >= 0", http.StatusBadRequest)
		return
	}

	res := h.DB.WithContext(r.Context()).Model(&catalog.UserBook{}).
		Where("id = ?", assignmentID).Update("order_index", req.OrderIndex)
	if res.Error != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if res.RowsAffected == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
