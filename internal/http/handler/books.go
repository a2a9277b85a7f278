package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"bookmail/internal/catalog"

	"gorm.io/gorm"
)

type BooksHandler struct {
	DB *gorm.DB
}

type createBookReq struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
}

func (h *BooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		http.Error(w, "title required", http.StatusBadRequest)
		return
	}

	b := catalog.Book{Title: req.Title, Author: strings.TrimSpace(req.Author), Description: req.Description}
	if err := h.DB.WithContext(r.Context()).Create(&b).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *BooksHandler) List(w http.ResponseWriter, r *http.Request) {
	var books []catalog.Book
	if err := h.DB.WithContext(r.Context()).Order("title").Find(&books).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books, "total": len(books)})
}

func (h *BooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var b catalog.Book
	if err := h.DB.WithContext(r.Context()).First(&b, id).Error; err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var lessonCount int64
	if err := h.DB.WithContext(r.Context()).Model(&catalog.Lesson{}).
		Where("book_id = ?", id).Count(&lessonCount).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"book": b, "lesson_count": lessonCount})
}

type createLessonReq struct {
	DayNumber int    `json:"day_number"`
	Subject   string `json:"subject"`
	BodyHTML  string `json:"body_html"`
}

// CreateLesson appends a lesson to a book. Day numbers must stay dense and
// strictly increasing; the unique index rejects duplicates.
func (h *BooksHandler) CreateLesson(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req createLessonReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.DayNumber < 1 {
		http.Error(w, "day_number must be >= 1", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.BodyHTML) == "" {
		http.Error(w, "body_html required", http.StatusBadRequest)
		return
	}

	var b catalog.Book
	if err := h.DB.WithContext(r.Context()).First(&b, id).Error; err != nil {
		http.Error(w, "book not found", http.StatusNotFound)
		return
	}

	l := catalog.Lesson{
		BookID:    id,
		DayNumber: req.DayNumber,
		Subject:   strings.TrimSpace(req.Subject),
		BodyHTML:  req.BodyHTML,
	}
	if err := h.DB.WithContext(r.Context()).Create(&l).Error; err != nil {
		http.Error(w, "day_number already exists for this book", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *BooksHandler) Lessons(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var lessons []catalog.Lesson
	if err := h.DB.WithContext(r.Context()).
		Select("id", "book_id", "day_number", "subject", "created_at").
		Where("book_id = ?", id).Order("day_number").Find(&lessons).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lessons": lessons, "total": len(lessons)})
}
