package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Runner orchestrates one full scheduler cycle: resolve eligibility once,
// walk the eligible assignments through selection and delivery, aggregate,
// and persist run statistics. Assignments are processed sequentially; each
// one's read-modify-write is serialized by the conditional progress update,
// so overlapping trigger invocations cannot double-advance.
type Runner struct {
	Store Store
	Mail  Mailer
	Log   zerolog.Logger

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes one cycle at the current instant.
func (r *Runner) Run(ctx context.Context, trigger string) (*RunSummary, error) {
	return r.RunAt(ctx, trigger, r.now().UTC())
}

// RunAt executes one cycle as of checkInstant. Per-assignment failures are
// recorded and never abort the loop; only an orchestrator-level failure (the
// eligibility query itself) aborts, and even then the run record is driven to
// a terminal status best-effort.
func (r *Runner) RunAt(ctx context.Context, trigger string, checkInstant time.Time) (*RunSummary, error) {
	runID := uuid.NewString()
	started := r.now()
	log := r.Log.With().Str("run_id", runID).Str("trigger", trigger).Logger()
	log.Info().Time("check_instant", checkInstant).Msg("scheduler run started")

	rec := &RunRecord{
		RunID:         runID,
		TriggerSource: trigger,
		Status:        RunStatusRunning,
		Results:       json.RawMessage("[]"),
		StartedAt:     checkInstant,
		UpdatedAt:     started,
	}
	if err := r.Store.InsertRun(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert run record: %w", err)
	}

	eligible, err := (&Resolver{Store: r.Store, Log: log}).FindEligible(ctx, checkInstant)
	if err != nil {
		r.finishFailed(rec, started, fmt.Errorf("resolve eligibility: %w", err), log)
		return nil, fmt.Errorf("resolve eligibility: %w", err)
	}
	log.Info().Int("eligible", len(eligible)).Msg("eligibility resolved")

	summary := &RunSummary{
		RunID:         runID,
		Timestamp:     checkInstant,
		TriggerSource: trigger,
		TotalEligible: len(eligible),
		Results:       []Result{},
	}

	exec := &Executor{Store: r.Store, Mail: r.Mail, Log: log}
	sel := &Selector{Store: r.Store}

	var canceled error
	for _, el := range eligible {
		if err := ctx.Err(); err != nil {
			// Stop picking up new assignments; in-flight work already
			// finished and logged.
			canceled = err
			break
		}
		res := r.processOne(ctx, sel, exec, el, runID, checkInstant, log)
		summary.Results = append(summary.Results, res)
		switch res.Action {
		case ActionSent:
			summary.Sent++
		case ActionCompleted:
			summary.Completed++
		case ActionNoContent:
			summary.NoContent++
		case ActionError:
			summary.Errors++
		}
	}

	summary.ExecutionTimeMs = r.now().Sub(started).Milliseconds()

	rec.Status = RunStatusCompleted
	if canceled != nil {
		rec.Status = RunStatusFailed
		msg := "run canceled: " + canceled.Error()
		rec.Error = &msg
	}
	rec.EligibleCount = summary.TotalEligible
	rec.SentCount = summary.Sent
	rec.FailedCount = summary.Errors
	rec.CompletedCount = summary.Completed
	rec.NoContentCount = summary.NoContent
	rec.ExecutionTimeMs = summary.ExecutionTimeMs
	rec.UpdatedAt = r.now()
	if b, err := json.Marshal(summary.Results); err == nil {
		rec.Results = b
	}
	// A canceled run still has to reach a terminal status; the caller's
	// context is already dead, so the write gets a fresh one.
	writeCtx := ctx
	if canceled != nil {
		var done context.CancelFunc
		writeCtx, done = context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
	}
	if err := r.Store.UpdateRun(writeCtx, rec); err != nil {
		log.Error().Err(err).Msg("failed to persist run stats")
	}

	log.Info().Int("sent", summary.Sent).Int("errors", summary.Errors).
		Int("completed", summary.Completed).Int("no_content", summary.NoContent).
		Int64("execution_time_ms", summary.ExecutionTimeMs).
		Msg("scheduler run finished")
	return summary, nil
}

func (r *Runner) processOne(ctx context.Context, sel *Selector, exec *Executor, el Eligible, runID string, checkInstant time.Time, log zerolog.Logger) Result {
	res := Result{UserEmail: el.UserEmail, BookTitle: el.BookTitle}

	next, err := sel.Next(ctx, el.AssignmentID)
	if errors.Is(err, ErrNoContent) {
		res.Action = ActionNoContent
		res.Error = "no lesson data available"
		return res
	}
	if err != nil {
		res.Action = ActionError
		res.Error = "select next lesson: " + err.Error()
		return res
	}

	if !next.ShouldSend {
		if err := r.Store.MarkCompleted(ctx, el.AssignmentID); err != nil {
			log.Error().Err(err).Str("email", el.UserEmail).Msg("failed to mark assignment completed")
		}
		res.Action = ActionCompleted
		res.LessonDay = next.CurrentProgress
		res.Progress = fmt.Sprintf("%d/%d", next.CurrentProgress, next.TotalLessons)
		return res
	}

	body, err := r.Store.LessonContent(ctx, next.LessonID)
	if err != nil {
		res.Action = ActionError
		res.LessonDay = next.DayNumber
		res.Error = ErrContentUnavailable.Error()
		return res
	}

	msgID, err := exec.Deliver(ctx, Delivery{
		AssignmentID: el.AssignmentID,
		UserID:       el.UserID,
		UserEmail:    el.UserEmail,
		BookID:       el.BookID,
		BookTitle:    el.BookTitle,
		LessonID:     next.LessonID,
		DayNumber:    next.DayNumber,
		Subject:      next.Subject,
		BodyHTML:     body,
		RunID:        runID,
		ScheduledFor: checkInstant,
		Reason:       ReasonScheduled,
	})
	if err != nil && msgID == "" {
		res.Action = ActionError
		res.LessonDay = next.DayNumber
		res.Error = err.Error()
		return res
	}

	res.Action = ActionSent
	res.LessonDay = next.DayNumber
	res.Progress = fmt.Sprintf("%d/%d", next.DayNumber, next.TotalLessons)
	res.EmailID = msgID
	if err != nil {
		// Sent, but the counter was already advanced by an overlapping run.
		res.Error = err.Error()
	}
	return res
}

// finishFailed drives the run record to failed after an orchestrator-level
// error. Best-effort: a second failure here is logged, never propagated.
func (r *Runner) finishFailed(rec *RunRecord, started time.Time, cause error, log zerolog.Logger) {
	msg := cause.Error()
	rec.Status = RunStatusFailed
	rec.Error = &msg
	rec.ExecutionTimeMs = r.now().Sub(started).Milliseconds()
	rec.UpdatedAt = r.now()

	// Fresh context: the original one may already be dead.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Store.UpdateRun(ctx, rec); err != nil {
		log.Error().Err(err).Msg("failed to record run failure")
	}
}

// Simulate resolves eligibility and next lessons as of checkInstant without
// sending or persisting anything. WOULD_SEND marks assignments that a real
// run would deliver to.
func (r *Runner) Simulate(ctx context.Context, checkInstant time.Time) (*RunSummary, error) {
	eligible, err := (&Resolver{Store: r.Store, Log: r.Log}).FindEligible(ctx, checkInstant)
	if err != nil {
		return nil, fmt.Errorf("resolve eligibility: %w", err)
	}

	summary := &RunSummary{
		RunID:         uuid.NewString(),
		Timestamp:     checkInstant,
		TriggerSource: "simulation",
		TotalEligible: len(eligible),
		Results:       []Result{},
	}
	sel := &Selector{Store: r.Store}
	for _, el := range eligible {
		res := Result{UserEmail: el.UserEmail, BookTitle: el.BookTitle}
		next, err := sel.Next(ctx, el.AssignmentID)
		switch {
		case errors.Is(err, ErrNoContent):
			res.Action = ActionNoContent
			summary.NoContent++
		case err != nil:
			res.Action = ActionError
			res.Error = err.Error()
			summary.Errors++
		case !next.ShouldSend:
			res.Action = ActionCompleted
			res.Progress = fmt.Sprintf("%d/%d", next.CurrentProgress, next.TotalLessons)
			summary.Completed++
		default:
			res.Action = ActionWouldSend
			res.LessonDay = next.DayNumber
			res.Progress = fmt.Sprintf("%d/%d", next.DayNumber, next.TotalLessons)
		}
		summary.Results = append(summary.Results, res)
	}
	return summary, nil
}
