package schedule

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Message is what the email capability sends.
type Message struct {
	To      string
	Subject string
	HTML    string
	Headers map[string]string
}

// Mailer is the transactional email capability. Send returns the provider's
// message id on success. Implementations must bound their own timeout; a
// timeout counts as a retryable failure.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Delivery is one send request handed to the executor.
type Delivery struct {
	AssignmentID uint64
	UserID       uint64
	UserEmail    string
	BookID       uint64
	BookTitle    string
	LessonID     uint64
	DayNumber    int
	Subject      string
	BodyHTML     string

	RunID        string
	ScheduledFor time.Time
	Reason       string
}

// Executor sends one lesson and records the outcome. Ordering is deliberate:
// the provider must confirm the send before progress advances, so a lesson
// the user never received is never skipped. A failed send logs a failed row
// and leaves the counter alone, which is what makes retry-from-the-same-
// lesson work.
type Executor struct {
	Store Store
	Mail  Mailer
	Log   zerolog.Logger
}

// Deliver sends d and writes the log row. On success it conditionally
// advances last_lesson_sent to d.DayNumber; if another run got there first
// the send already happened once, so the conflict is logged and surfaced as
// ErrProgressConflict without undoing anything.
func (e *Executor) Deliver(ctx context.Context, d Delivery) (string, error) {
	headers := map[string]string{
		"X-BookMail-Run-ID":     d.RunID,
		"X-BookMail-Lesson-Day": strconv.Itoa(d.DayNumber),
		"X-BookMail-Book":       d.BookTitle,
	}
	if d.Reason == ReasonRetry {
		headers["X-BookMail-Retry"] = "true"
	} else {
		headers["X-BookMail-Scheduler"] = "true"
	}

	msgID, sendErr := e.Mail.Send(ctx, Message{
		To:      d.UserEmail,
		Subject: d.Subject,
		HTML:    d.BodyHTML,
		Headers: headers,
	})
	if sendErr != nil {
		e.logOutcome(ctx, d, LogStatusFailed, "", sendErr)
		return "", fmt.Errorf("send to %s: %w", d.UserEmail, sendErr)
	}

	e.logOutcome(ctx, d, LogStatusSent, msgID, nil)

	if err := e.Store.AdvanceProgress(ctx, d.AssignmentID, d.DayNumber); err != nil {
		e.Log.Warn().Err(err).Str("email", d.UserEmail).Int("day", d.DayNumber).
			Msg("progress not advanced after send")
		return msgID, err
	}
	return msgID, nil
}

func (e *Executor) logOutcome(ctx context.Context, d Delivery, status, msgID string, sendErr error) {
	entry := DeliveryLog{
		UserID:            d.UserID,
		BookID:            d.BookID,
		Status:            status,
		ScheduleRunID:     d.RunID,
		ScheduledFor:      d.ScheduledFor,
		DeliveryReason:    d.Reason,
		ProviderMessageID: msgID,
		SentAt:            time.Now().UTC(),
	}
	if d.LessonID != 0 {
		id := d.LessonID
		entry.LessonID = &id
	}
	if sendErr != nil {
		msg := sendErr.Error()
		entry.Error = &msg
	}
	// A lost log row must not fail the delivery itself.
	if err := e.Store.InsertLog(ctx, &entry); err != nil {
		e.Log.Error().Err(err).Str("email", d.UserEmail).Msg("failed to write delivery log")
	}
}
