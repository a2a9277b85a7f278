package schedule

import (
	"encoding/json"
	"time"
)

// Delivery log status values.
const (
	LogStatusSent      = "sent"
	LogStatusFailed    = "failed"
	LogStatusScheduled = "scheduled"
)

// Delivery reasons, kept on every log row for audit.
const (
	ReasonScheduled = "scheduled"
	ReasonRetry     = "retry"
	ReasonTest      = "test"
)

// Run record status values: running -> completed | failed.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Per-assignment outcomes within a run.
const (
	ActionSent      = "SENT"
	ActionCompleted = "COMPLETED"
	ActionNoContent = "NO_CONTENT"
	ActionError     = "ERROR"
	ActionWouldSend = "WOULD_SEND" // dry-run only
)

// DeliveryLog is one attempted send (or skip/failure). Rows are append-only:
// retries insert new rows instead of mutating old ones, so the full history
// of every attempt survives.
type DeliveryLog struct {
	ID       uint64  `gorm:"primaryKey" json:"id"`
	UserID   uint64  `gorm:"index;not null" json:"user_id"`
	BookID   uint64  `gorm:"index;not null" json:"book_id"`
	LessonID *uint64 `gorm:"index" json:"lesson_id"` // nil when no lesson was resolved

	Status string  `gorm:"index;not null" json:"status"`
	Error  *string `gorm:"type:text" json:"error"`

	ScheduleRunID     string    `gorm:"index;not null" json:"schedule_run_id"`
	ScheduledFor      time.Time `gorm:"not null" json:"scheduled_for"`
	DeliveryReason    string    `gorm:"not null;default:'scheduled'" json:"delivery_reason"`
	ProviderMessageID string    `gorm:"not null;default:''" json:"provider_message_id"`

	SentAt time.Time `gorm:"index;not null;default:now()" json:"sent_at"`
}

// RunRecord is the flat audit record for one orchestrator cycle. It is the
// one row the core updates in place: it must always reach a terminal status,
// even when the run itself blows up.
type RunRecord struct {
	ID            uint64 `gorm:"primaryKey" json:"-"`
	RunID         string `gorm:"uniqueIndex;not null" json:"run_id"`
	TriggerSource string `gorm:"not null" json:"trigger_source"`
	Status        string `gorm:"index;not null" json:"status"`

	EligibleCount  int `gorm:"not null;default:0" json:"eligible_count"`
	SentCount      int `gorm:"not null;default:0" json:"sent_count"`
	FailedCount    int `gorm:"not null;default:0" json:"failed_count"`
	CompletedCount int `gorm:"not null;default:0" json:"completed_count"`
	NoContentCount int `gorm:"not null;default:0" json:"no_content_count"`

	ExecutionTimeMs int64           `gorm:"not null;default:0" json:"execution_time_ms"`
	Error           *string         `gorm:"type:text" json:"error"`
	Results         json.RawMessage `gorm:"type:jsonb;not null;default:'[]'::jsonb" json:"results"`

	StartedAt time.Time `gorm:"index;not null;default:now()" json:"started_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (RunRecord) TableName() string { return "scheduler_runs" }

// Result is the per-assignment outcome included in run summaries. The JSON
// shape is the wire contract with the dashboard.
type Result struct {
	UserEmail     string `json:"user_email"`
	BookTitle     string `json:"book_title,omitempty"`
	LessonDay     int    `json:"lesson_day,omitempty"`
	Progress      string `json:"progress,omitempty"`
	Action        string `json:"action"`
	Error         string `json:"error,omitempty"`
	EmailID       string `json:"email_id,omitempty"`
	OriginalLogID uint64 `json:"original_log_id,omitempty"`
}

// RunSummary is the structured outcome returned to whoever triggered a run.
type RunSummary struct {
	RunID           string    `json:"run_id"`
	Timestamp       time.Time `json:"timestamp"`
	TriggerSource   string    `json:"trigger_source"`
	TotalEligible   int       `json:"total_eligible"`
	Sent            int       `json:"sent"`
	Errors          int       `json:"errors"`
	Completed       int       `json:"completed"`
	NoContent       int       `json:"no_content"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	Results         []Result  `json:"results"`
}

// RetrySummary aggregates one retry batch.
type RetrySummary struct {
	RetryRunID string    `json:"retry_run_id"`
	Timestamp  time.Time `json:"timestamp"`
	Attempted  int       `json:"attempted"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Results    []Result  `json:"results"`
}
