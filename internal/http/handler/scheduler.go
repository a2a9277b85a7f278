package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bookmail/internal/schedule"

	"gorm.io/gorm"
)

type SchedulerHandler struct {
	Runner     *schedule.Runner
	DB         *gorm.DB
	CronSecret string
}

// Run triggers one scheduler cycle immediately. When CRON_SECRET is
// configured the caller must present it as a bearer token; external cron
// services hit this same endpoint.
func (h *SchedulerHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.CronSecret != "" {
		if r.Header.Get("Authorization") != "Bearer "+h.CronSecret {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	summary, err := h.Runner.Run(r.Context(), "manual")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type simulateReq struct {
	TestTime string `json:"test_time"`
	Timezone string `json:"timezone"`
}

// Simulate runs eligibility and lesson selection for an arbitrary local time
// without sending or persisting anything.
func (h *SchedulerHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.TestTime) == "" || strings.TrimSpace(req.Timezone) == "" {
		http.Error(w, "test_time and timezone required", http.StatusBadRequest)
		return
	}

	instant, err := schedule.ToUTC(req.TestTime, req.Timezone, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := h.Runner.Simulate(r.Context(), instant)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"simulation":     true,
		"simulated_time": instant,
		"input_time":     req.TestTime,
		"input_timezone": req.Timezone,
		"summary":        summary,
	})
}

// Runs lists recent run records, newest first.
func (h *SchedulerHandler) Runs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 200 {
		limit = 20
	}

	var runs []schedule.RunRecord
	if err := h.DB.WithContext(r.Context()).
		Order("started_at desc").Limit(limit).Find(&runs).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "total": len(runs)})
}

// Status returns the most recent run record.
func (h *SchedulerHandler) Status(w http.ResponseWriter, r *http.Request) {
	var rec schedule.RunRecord
	err := h.DB.WithContext(r.Context()).Order("started_at desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"last_run": nil})
		return
	}
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"last_run": rec})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
