package catalog

import (
	"time"

	"github.com/lib/pq"
)

// Assignment status values. A book moves queued -> currently_reading when the
// first lesson goes out, and -> completed when the last one has been sent.
const (
	StatusQueued           = "queued"
	StatusCurrentlyReading = "currently_reading"
	StatusCompleted        = "completed"
)

// DefaultDeliveryTime applies when an assignment has no delivery times set.
const DefaultDeliveryTime = "09:00"

// User is an email recipient. Timezone is a nullable IANA identifier;
// without one the user never matches time-based eligibility.
type User struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Timezone  *string   `gorm:"type:text" json:"timezone"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

// Book is a static content grouping. The core never mutates it.
type Book struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"not null" json:"title"`
	Author      string    `gorm:"not null;default:''" json:"author"`
	Description string    `gorm:"type:text;not null;default:''" json:"description"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
}

// Lesson belongs to exactly one book. DayNumber is 1-based and dense per
// book; renumbering lessons while deliveries are in flight desynchronizes
// assignment progress counters.
type Lesson struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	BookID    uint64    `gorm:"index;not null" json:"book_id"`
	DayNumber int       `gorm:"not null" json:"day_number"`
	Subject   string    `gorm:"not null;default:''" json:"subject"`
	BodyHTML  string    `gorm:"type:text;not null" json:"body_html"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

// UserBook is a user's subscription to one book, carrying the progress
// counter. LastLessonSent is monotonically non-decreasing and never exceeds
// the book's lesson count; all advancement goes through the conditional
// update in the schedule store.
type UserBook struct {
	ID     uint64 `gorm:"primaryKey" json:"id"`
	UserID uint64 `gorm:"index;not null" json:"user_id"`
	BookID uint64 `gorm:"index;not null" json:"book_id"`

	OrderIndex int    `gorm:"not null;default:0" json:"order_index"`
	Status     string `gorm:"not null;default:'queued'" json:"status"`

	LastLessonSent    int       `gorm:"not null;default:0" json:"last_lesson_sent"`
	ProgressUpdatedAt time.Time `gorm:"not null;default:now()" json:"progress_updated_at"`

	// Local times of day ("HH:MM") at which the next lesson is delivered.
	// Empty means the 09:00 default.
	DeliveryTimes pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"delivery_times"`

	AssignedAt time.Time `gorm:"not null;default:now()" json:"assigned_at"`
}
