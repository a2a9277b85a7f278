package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"bookmail/internal/catalog"
)

// Repo is the Postgres-backed Store.
type Repo struct {
	DB *gorm.DB
}

type candidateRow struct {
	AssignmentID  uint64         `gorm:"column:assignment_id"`
	UserID        uint64         `gorm:"column:user_id"`
	UserEmail     string         `gorm:"column:user_email"`
	Timezone      *string        `gorm:"column:timezone"`
	BookID        uint64         `gorm:"column:book_id"`
	BookTitle     string         `gorm:"column:book_title"`
	Status        string         `gorm:"column:status"`
	DeliveryTimes pq.StringArray `gorm:"column:delivery_times;type:text[]"`
}

func (r *Repo) ListCandidates(ctx context.Context) ([]Candidate, error) {
	var rows []candidateRow
	err := r.DB.WithContext(ctx).Raw(`
select ub.id as assignment_id,
       u.id as user_id,
       u.email as user_email,
       u.timezone,
       b.id as book_id,
       b.title as book_title,
       ub.status,
       ub.delivery_times
from user_books ub
join users u on u.id = ub.user_id
join books b on b.id = ub.book_id
where ub.status <> 'completed'
order by u.id, ub.order_index
`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, Candidate{
			AssignmentID:  row.AssignmentID,
			UserID:        row.UserID,
			UserEmail:     row.UserEmail,
			Timezone:      row.Timezone,
			BookID:        row.BookID,
			BookTitle:     row.BookTitle,
			Status:        row.Status,
			DeliveryTimes: row.DeliveryTimes,
		})
	}
	return out, nil
}

func (r *Repo) NextLessonFor(ctx context.Context, assignmentID uint64) (NextLesson, error) {
	var ub catalog.UserBook
	if err := r.DB.WithContext(ctx).First(&ub, assignmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NextLesson{}, ErrNotFound
		}
		return NextLesson{}, err
	}

	var total int64
	if err := r.DB.WithContext(ctx).Model(&catalog.Lesson{}).
		Where("book_id = ?", ub.BookID).Count(&total).Error; err != nil {
		return NextLesson{}, err
	}
	if total == 0 {
		return NextLesson{}, ErrNoContent
	}

	if ub.LastLessonSent >= int(total) {
		return NextLesson{
			CurrentProgress: ub.LastLessonSent,
			TotalLessons:    int(total),
			ShouldSend:      false,
		}, nil
	}

	var lesson catalog.Lesson
	err := r.DB.WithContext(ctx).
		Where("book_id = ? AND day_number = ?", ub.BookID, ub.LastLessonSent+1).
		First(&lesson).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Day numbers should be dense; a gap is a data integrity issue.
			return NextLesson{}, ErrContentUnavailable
		}
		return NextLesson{}, err
	}

	return NextLesson{
		LessonID:        lesson.ID,
		DayNumber:       lesson.DayNumber,
		Subject:         lesson.Subject,
		CurrentProgress: ub.LastLessonSent,
		TotalLessons:    int(total),
		ShouldSend:      true,
	}, nil
}

func (r *Repo) LessonContent(ctx context.Context, lessonID uint64) (string, error) {
	var lesson catalog.Lesson
	err := r.DB.WithContext(ctx).Select("body_html").First(&lesson, lessonID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrContentUnavailable
		}
		return "", err
	}
	if lesson.BodyHTML == "" {
		return "", ErrContentUnavailable
	}
	return lesson.BodyHTML, nil
}

func (r *Repo) InsertLog(ctx context.Context, entry *DeliveryLog) error {
	return r.DB.WithContext(ctx).Create(entry).Error
}

// AdvanceProgress is the compare-and-swap that keeps last_lesson_sent
// monotonic under overlapping runs. It also flips a queued assignment into
// currently_reading on its first send.
func (r *Repo) AdvanceProgress(ctx context.Context, assignmentID uint64, dayNumber int) error {
	res := r.DB.WithContext(ctx).Exec(`
update user_books
set last_lesson_sent = ?,
    progress_updated_at = now(),
    status = case when status = 'queued' then 'currently_reading' else status end
where id = ? and last_lesson_sent = ?
`, dayNumber, assignmentID, dayNumber-1)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProgressConflict
	}
	return nil
}

func (r *Repo) MarkCompleted(ctx context.Context, assignmentID uint64) error {
	return r.DB.WithContext(ctx).Exec(`
update user_books set status = 'completed', progress_updated_at = now() where id = ?
`, assignmentID).Error
}

func (r *Repo) InsertRun(ctx context.Context, rec *RunRecord) error {
	return r.DB.WithContext(ctx).Create(rec).Error
}

func (r *Repo) UpdateRun(ctx context.Context, rec *RunRecord) error {
	res := r.DB.WithContext(ctx).Model(&RunRecord{}).
		Where("run_id = ?", rec.RunID).
		Updates(map[string]any{
			"status":            rec.Status,
			"eligible_count":    rec.EligibleCount,
			"sent_count":        rec.SentCount,
			"failed_count":      rec.FailedCount,
			"completed_count":   rec.CompletedCount,
			"no_content_count":  rec.NoContentCount,
			"execution_time_ms": rec.ExecutionTimeMs,
			"error":             rec.Error,
			"results":           rec.Results,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type failedLogRow struct {
	LogID        uint64 `gorm:"column:log_id"`
	UserID       uint64 `gorm:"column:user_id"`
	UserEmail    string `gorm:"column:user_email"`
	BookID       uint64 `gorm:"column:book_id"`
	BookTitle    string `gorm:"column:book_title"`
	AssignmentID uint64 `gorm:"column:assignment_id"`
	LessonID     uint64 `gorm:"column:lesson_id"`
	DayNumber    int    `gorm:"column:day_number"`
	Subject      string `gorm:"column:subject"`
	BodyHTML     string `gorm:"column:body_html"`
}

func (r *Repo) FailedLogs(ctx context.Context, ids []uint64) ([]FailedLog, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []failedLogRow
	err := r.DB.WithContext(ctx).Raw(`
select dl.id as log_id,
       u.id as user_id,
       u.email as user_email,
       b.id as book_id,
       b.title as book_title,
       ub.id as assignment_id,
       l.id as lesson_id,
       l.day_number,
       l.subject,
       l.body_html
from delivery_logs dl
join users u on u.id = dl.user_id
join lessons l on l.id = dl.lesson_id
join books b on b.id = l.book_id
join user_books ub on ub.user_id = dl.user_id and ub.book_id = l.book_id
where dl.id in ? and dl.status = 'failed'
`, ids).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]FailedLog, 0, len(rows))
	for _, row := range rows {
		out = append(out, FailedLog(row))
	}
	return out, nil
}
