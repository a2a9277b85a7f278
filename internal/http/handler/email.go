package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bookmail/internal/catalog"
	"bookmail/internal/schedule"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EmailHandler struct {
	DB   *gorm.DB
	Mail schedule.Mailer
}

type testSendReq struct {
	To       string `json:"to"`
	LessonID uint64 `json:"lesson_id"`
}

// TestSend delivers one specific lesson to an arbitrary address with
// delivery reason "test". It logs like a normal send but never touches
// progress, so operators can verify provider config safely.
func (h *EmailHandler) TestSend(w http.ResponseWriter, r *http.Request) {
	var req testSendReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.To = strings.ToLower(strings.TrimSpace(req.To))
	if req.To == "" || req.LessonID == 0 {
		http.Error(w, "to and lesson_id required", http.StatusBadRequest)
		return
	}

	var lesson catalog.Lesson
	if err := h.DB.WithContext(r.Context()).First(&lesson, req.LessonID).Error; err != nil {
		http.Error(w, "lesson not found", http.StatusNotFound)
		return
	}
	var book catalog.Book
	if err := h.DB.WithContext(r.Context()).First(&book, lesson.BookID).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	// When the recipient is a known user, stamp their id on the log row so
	// the audit trail joins cleanly. Arbitrary addresses log with id 0.
	var userID uint64
	var u catalog.User
	if err := h.DB.WithContext(r.Context()).Where("email = ?", req.To).First(&u).Error; err == nil {
		userID = u.ID
	}

	runID := uuid.NewString()
	now := time.Now().UTC()
	msgID, err := h.Mail.Send(r.Context(), schedule.Message{
		To:      req.To,
		Subject: lesson.Subject,
		HTML:    lesson.BodyHTML,
		Headers: map[string]string{
			"X-BookMail-Test":       "true",
			"X-BookMail-Run-ID":     runID,
			"X-BookMail-Lesson-Day": strconv.Itoa(lesson.DayNumber),
			"X-BookMail-Book":       book.Title,
		},
	})

	lessonID := lesson.ID
	entry := schedule.DeliveryLog{
		UserID:         userID,
		BookID:         book.ID,
		LessonID:       &lessonID,
		ScheduleRunID:  runID,
		ScheduledFor:   now,
		DeliveryReason: schedule.ReasonTest,
		SentAt:         now,
	}
	if err != nil {
		msg := err.Error()
		entry.Status = schedule.LogStatusFailed
		entry.Error = &msg
	} else {
		entry.Status = schedule.LogStatusSent
		entry.ProviderMessageID = msgID
	}
	if dbErr := h.DB.WithContext(r.Context()).Create(&entry).Error; dbErr != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"status": "failed", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "sent", "email_id": msgID, "log_id": entry.ID})
}
