package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"bookmail/internal/catalog"
	"bookmail/internal/schedule"

	"gorm.io/gorm"
)

type LogsHandler struct {
	DB      *gorm.DB
	Retrier *schedule.Retrier
	Store   schedule.Store
}

// Recent lists delivery log rows, newest first, optionally filtered by
// status.
func (h *LogsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	q := h.DB.WithContext(r.Context()).Order("sent_at desc").Limit(limit)
	if status := r.URL.Query().Get("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var logs []schedule.DeliveryLog
	if err := q.Find(&logs).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "total": len(logs)})
}

type statusCountRow struct {
	Status string `gorm:"column:status" json:"status"`
	Count  int    `gorm:"column:count" json:"count"`
}

type runSummaryRow struct {
	RunID     string    `gorm:"column:schedule_run_id" json:"run_id"`
	Timestamp time.Time `gorm:"column:timestamp" json:"timestamp"`
	Sent      int       `gorm:"column:sent" json:"sent"`
	Failed    int       `gorm:"column:failed" json:"failed"`
	Total     int       `gorm:"column:total" json:"total"`
}

// Stats aggregates delivery outcomes over the last N hours.
func (h *LogsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	if hours < 1 || hours > 24*30 {
		hours = 24
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	var byStatus []statusCountRow
	err := h.DB.WithContext(r.Context()).Raw(`
select status, count(*) as count
from delivery_logs
where sent_at >= ?
group by status
`, since).Scan(&byStatus).Error
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	total := 0
	sent := 0
	for _, row := range byStatus {
		total += row.Count
		if row.Status == schedule.LogStatusSent {
			sent = row.Count
		}
	}
	successRate := 0.0
	if total > 0 {
		successRate = float64(sent) / float64(total) * 100
	}

	var byRun []runSummaryRow
	err = h.DB.WithContext(r.Context()).Raw(`
select schedule_run_id,
       min(scheduled_for) as timestamp,
       count(*) filter (where status = 'sent') as sent,
       count(*) filter (where status = 'failed') as failed,
       count(*) as total
from delivery_logs
where sent_at >= ?
group by schedule_run_id
order by min(scheduled_for) desc
limit 10
`, since).Scan(&byRun).Error
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"hours":        hours,
		"by_status":    byStatus,
		"total":        total,
		"success_rate": successRate,
		"recent_runs":  byRun,
	})
}

type retryReq struct {
	LogID  *uint64  `json:"log_id"`
	LogIDs []uint64 `json:"log_ids"`
}

// Retry re-attempts failed deliveries by log id. Entries no longer in failed
// status are excluded from the batch, not errors.
func (h *LogsHandler) Retry(w http.ResponseWriter, r *http.Request) {
	var req retryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	ids := req.LogIDs
	if req.LogID != nil {
		ids = append(ids, *req.LogID)
	}
	if len(ids) == 0 {
		http.Error(w, "log_id or log_ids required", http.StatusBadRequest)
		return
	}

	summary, err := h.Retrier.Retry(r.Context(), ids)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type upcomingEntry struct {
	UserEmail    string    `json:"user_email"`
	BookTitle    string    `json:"book_title"`
	LessonDay    int       `json:"lesson_day"`
	Subject      string    `json:"subject"`
	DeliveryTime string    `json:"delivery_time"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// Upcoming projects which lessons would go out over the next N hours, based
// on configured delivery times and current progress.
func (h *LogsHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	if hours < 1 || hours > 72 {
		hours = 24
	}
	now := time.Now().UTC()
	until := now.Add(time.Duration(hours) * time.Hour)

	candidates, err := h.Store.ListCandidates(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	var upcoming []upcomingEntry
	for _, c := range candidates {
		if c.Timezone == nil || *c.Timezone == "" {
			continue
		}
		times := c.DeliveryTimes
		if len(times) == 0 {
			times = []string{catalog.DefaultDeliveryTime}
		}

		type slot struct {
			local string
			at    time.Time
		}
		var slots []slot
		for _, dt := range times {
			// Today's occurrence in the user's zone, then tomorrow's and the
			// day after, keeping those inside the window.
			for day := 0; day <= 2; day++ {
				at, err := schedule.ToUTC(dt, *c.Timezone, now.AddDate(0, 0, day))
				if err != nil {
					break
				}
				if at.After(now) && !at.After(until) {
					slots = append(slots, slot{local: dt, at: at})
				}
			}
		}
		if len(slots) == 0 {
			continue
		}

		next, err := h.Store.NextLessonFor(r.Context(), c.AssignmentID)
		if err != nil || !next.ShouldSend {
			continue
		}
		for _, s := range slots {
			upcoming = append(upcoming, upcomingEntry{
				UserEmail:    c.UserEmail,
				BookTitle:    c.BookTitle,
				LessonDay:    next.DayNumber,
				Subject:      next.Subject,
				DeliveryTime: s.local,
				ScheduledFor: s.at,
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"upcoming": upcoming,
		"total":    len(upcoming),
		"from":     now,
		"to":       until,
	})
}
