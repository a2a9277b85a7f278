package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Retrier re-attempts previously failed deliveries. Original log rows are
// never touched; every attempt inserts a fresh row under a new run id, so
// the audit trail keeps every attempt.
type Retrier struct {
	Store Store
	Mail  Mailer
	Log   zerolog.Logger

	Now func() time.Time
}

func (r *Retrier) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Retry re-sends the lessons referenced by the given failed log entries.
// IDs that are not currently in failed status are silently excluded rather
// than failing the batch.
func (r *Retrier) Retry(ctx context.Context, logIDs []uint64) (*RetrySummary, error) {
	failed, err := r.Store.FailedLogs(ctx, logIDs)
	if err != nil {
		return nil, fmt.Errorf("load failed logs: %w", err)
	}

	retryRunID := uuid.NewString()
	now := r.now().UTC()
	log := r.Log.With().Str("retry_run_id", retryRunID).Logger()
	log.Info().Int("requested", len(logIDs)).Int("eligible", len(failed)).Msg("retry batch started")

	summary := &RetrySummary{
		RetryRunID: retryRunID,
		Timestamp:  now,
		Results:    []Result{},
	}

	exec := &Executor{Store: r.Store, Mail: r.Mail, Log: log}
	for _, f := range failed {
		summary.Attempted++
		res := Result{
			UserEmail:     f.UserEmail,
			BookTitle:     f.BookTitle,
			LessonDay:     f.DayNumber,
			OriginalLogID: f.LogID,
		}

		msgID, err := exec.Deliver(ctx, Delivery{
			AssignmentID: f.AssignmentID,
			UserID:       f.UserID,
			UserEmail:    f.UserEmail,
			BookID:       f.BookID,
			BookTitle:    f.BookTitle,
			LessonID:     f.LessonID,
			DayNumber:    f.DayNumber,
			Subject:      f.Subject,
			BodyHTML:     f.BodyHTML,
			RunID:        retryRunID,
			ScheduledFor: now,
			Reason:       ReasonRetry,
		})
		if err != nil {
			// A progress conflict means the send itself succeeded and only
			// the counter was already past this lesson.
			if msgID == "" {
				res.Action = ActionError
				res.Error = err.Error()
				summary.Failed++
				summary.Results = append(summary.Results, res)
				continue
			}
			log.Warn().Err(err).Uint64("log_id", f.LogID).Msg("retry sent but progress unchanged")
		}

		res.Action = ActionSent
		res.EmailID = msgID
		summary.Successful++
		summary.Results = append(summary.Results, res)
	}

	log.Info().Int("attempted", summary.Attempted).Int("successful", summary.Successful).
		Int("failed", summary.Failed).Msg("retry batch finished")
	return summary, nil
}
