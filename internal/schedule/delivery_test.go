package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testDelivery(assignmentID uint64) Delivery {
	return Delivery{
		AssignmentID: assignmentID,
		UserID:       1,
		UserEmail:    "alice@example.com",
		BookID:       1,
		BookTitle:    "Meditations",
		LessonID:     101,
		DayNumber:    1,
		Subject:      "Day 1",
		BodyHTML:     "<p>lesson 1</p>",
		RunID:        "run-1",
		ScheduledFor: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		Reason:       ReasonScheduled,
	}
}

func TestDeliverSuccessAdvancesProgress(t *testing.T) {
	store := newFakeStore()
	store.addAssignment(fakeAssignment{
		id: 1, userID: 1, email: "alice@example.com", tz: strPtr("UTC"),
		bookID: 1, bookTitle: "Meditations", status: "queued",
	})
	store.addLessons(1, 5)
	mail := &fakeMailer{}
	exec := &Executor{Store: store, Mail: mail, Log: zerolog.Nop()}

	msgID, err := exec.Deliver(context.Background(), testDelivery(1))
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if msgID == "" {
		t.Fatal("expected provider message id")
	}
	if got := store.assignments[1].lastSent; got != 1 {
		t.Fatalf("lastSent = %d, want 1", got)
	}
	if got := store.assignments[1].status; got != "currently_reading" {
		t.Fatalf("status = %q, want currently_reading", got)
	}
	sent := store.logsByStatus(LogStatusSent)
	if len(sent) != 1 || sent[0].DeliveryReason != ReasonScheduled || *sent[0].LessonID != 101 {
		t.Fatalf("unexpected sent log: %+v", sent)
	}
	if len(mail.sent) != 1 || mail.sent[0].Headers["X-BookMail-Run-ID"] != "run-1" {
		t.Fatalf("unexpected mail: %+v", mail.sent)
	}
}

// A provider failure must log a failed row and leave the counter alone: the
// same lesson is retried later, never skipped.
func TestDeliverFailureDoesNotAdvance(t *testing.T) {
	store := newFakeStore()
	store.addAssignment(fakeAssignment{
		id: 1, userID: 1, email: "alice@example.com", tz: strPtr("UTC"),
		bookID: 1, bookTitle: "Meditations", status: "currently_reading", lastSent: 2,
	})
	store.addLessons(1, 5)
	mail := &fakeMailer{failFor: map[string]error{"alice@example.com": errors.New("resend: status 500")}}
	exec := &Executor{Store: store, Mail: mail, Log: zerolog.Nop()}

	d := testDelivery(1)
	d.LessonID = 103
	d.DayNumber = 3

	if _, err := exec.Deliver(context.Background(), d); err == nil {
		t.Fatal("expected error")
	}
	if got := store.assignments[1].lastSent; got != 2 {
		t.Fatalf("lastSent = %d, want 2 (unchanged)", got)
	}
	failed := store.logsByStatus(LogStatusFailed)
	if len(failed) != 1 || failed[0].Error == nil {
		t.Fatalf("expected one failed log with error, got %+v", failed)
	}
	if len(store.logsByStatus(LogStatusSent)) != 0 {
		t.Fatal("no sent log expected")
	}
}

// Two overlapping runs that both selected day 1: the second conditional
// update fails and the counter stays monotonic instead of re-advancing.
func TestDeliverConcurrentConflict(t *testing.T) {
	store := newFakeStore()
	store.addAssignment(fakeAssignment{
		id: 1, userID: 1, email: "alice@example.com", tz: strPtr("UTC"),
		bookID: 1, bookTitle: "Meditations", status: "queued",
	})
	store.addLessons(1, 5)
	mail := &fakeMailer{}
	exec := &Executor{Store: store, Mail: mail, Log: zerolog.Nop()}

	if _, err := exec.Deliver(context.Background(), testDelivery(1)); err != nil {
		t.Fatalf("first Deliver: %v", err)
	}
	msgID, err := exec.Deliver(context.Background(), testDelivery(1))
	if !errors.Is(err, ErrProgressConflict) {
		t.Fatalf("want ErrProgressConflict, got %v", err)
	}
	if msgID == "" {
		t.Fatal("conflicting deliver still sent; message id expected")
	}
	if got := store.assignments[1].lastSent; got != 1 {
		t.Fatalf("lastSent = %d, want 1 (monotonic)", got)
	}
}
