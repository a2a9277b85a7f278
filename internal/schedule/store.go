package schedule

import "context"

// Candidate is one active assignment with everything eligibility matching
// needs: the user's timezone and the configured delivery times.
type Candidate struct {
	AssignmentID  uint64
	UserID        uint64
	UserEmail     string
	Timezone      *string
	BookID        uint64
	BookTitle     string
	Status        string
	DeliveryTimes []string
}

// Eligible is a candidate whose local clock matched the check instant.
type Eligible struct {
	Candidate
	MatchedTime string // "HH:MM" local delivery time that matched
	LocalTime   string // check instant rendered in the user's timezone
}

// NextLesson is LessonSelector's answer for one assignment.
type NextLesson struct {
	LessonID        uint64
	DayNumber       int
	Subject         string
	CurrentProgress int
	TotalLessons    int
	ShouldSend      bool
}

// FailedLog is a failed delivery log joined with what a retry needs.
type FailedLog struct {
	LogID        uint64
	UserID       uint64
	UserEmail    string
	BookID       uint64
	BookTitle    string
	AssignmentID uint64
	LessonID     uint64
	DayNumber    int
	Subject      string
	BodyHTML     string
}

// Store is the data capability the engine runs against. The gorm
// implementation lives in repo.go; tests substitute an in-memory fake.
type Store interface {
	// ListCandidates returns assignments not yet completed, regardless of
	// delivery time. The resolver applies the time match.
	ListCandidates(ctx context.Context) ([]Candidate, error)

	// NextLessonFor looks up progress and lesson count for one assignment.
	// Returns ErrNoContent when the book has zero lessons.
	NextLessonFor(ctx context.Context, assignmentID uint64) (NextLesson, error)

	// LessonContent returns the stored HTML body of a lesson.
	LessonContent(ctx context.Context, lessonID uint64) (string, error)

	// InsertLog appends one delivery log row.
	InsertLog(ctx context.Context, entry *DeliveryLog) error

	// AdvanceProgress sets last_lesson_sent = dayNumber only if the current
	// value still equals dayNumber-1. Returns ErrProgressConflict otherwise;
	// that is the double-send guard for overlapping runs.
	AdvanceProgress(ctx context.Context, assignmentID uint64, dayNumber int) error

	// MarkCompleted flips an assignment to completed status.
	MarkCompleted(ctx context.Context, assignmentID uint64) error

	// InsertRun persists a new run record in running status.
	InsertRun(ctx context.Context, rec *RunRecord) error

	// UpdateRun writes terminal status, counts and results for a run.
	UpdateRun(ctx context.Context, rec *RunRecord) error

	// FailedLogs loads log entries from the given set that are currently in
	// failed status, joined with user and lesson data. IDs in any other
	// status are simply absent from the result.
	FailedLogs(ctx context.Context, ids []uint64) ([]FailedLog, error)
}
