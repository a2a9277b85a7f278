package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFindEligibleMatchesLocalClock(t *testing.T) {
	store := newFakeStore()
	store.addAssignment(fakeAssignment{
		id: 1, userID: 1, email: "alice@example.com", tz: strPtr("Europe/London"),
		bookID: 1, bookTitle: "Meditations", status: "queued", times: []string{"09:00"},
	})
	store.addAssignment(fakeAssignment{
		id: 2, userID: 2, email: "bob@example.com", tz: strPtr("America/New_York"),
		bookID: 1, bookTitle: "Meditations", status: "currently_reading", times: []string{"09:00"},
	})
	store.addLessons(1, 5)

	r := &Resolver{Store: store, Log: zerolog.Nop()}

	// 09:00 London in winter is 09:00 UTC; New York is still 04:00 local.
	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	eligible, err := r.FindEligible(context.Background(), at)
	if err != nil {
		t.Fatalf("FindEligible: %v", err)
	}
	if len(eligible) != 1 {
		t.Fatalf("expected 1 eligible, got %d", len(eligible))
	}
	if eligible[0].UserEmail != "alice@example.com" || eligible[0].MatchedTime != "09:00" {
		t.Fatalf("unexpected match: %+v", eligible[0])
	}

	// 14:00 UTC is 09:00 in New York (EST).
	at = time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	eligible, err = r.FindEligible(context.Background(), at)
	if err != nil {
		t.Fatalf("FindEligible: %v", err)
	}
	if len(eligible) != 1 || eligible[0].UserEmail != "bob@example.com" {
		t.Fatalf("expected bob only, got %+v", eligible)
	}
}

func TestFindEligibleDefaultsToNineLocal(t *testing.T) {
	store := newFakeStore()
	store.addAssignment(fakeAssignment{
		id: 1, userID: 1, email: "alice@example.com", tz: strPtr("UTC"),
		bookID: 1, bookTitle: "Meditations", status: "queued", // no delivery times
	})
	store.addLessons(1, 3)

	r := &Resolver{Store: store, Log: zerolog.Nop()}

	eligible, err := r.FindEligible(context.Background(), time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FindEligible: %v", err)
	}
	if len(eligible) != 1 || eligible[0].MatchedTime != "09:00" {
		t.Fatalf("expected default 09:00 match, got %+v", eligible)
	}

	eligible, err = r.FindEligible(context.Background(), time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FindEligible: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("expected no matches at 10:00, got %+v", eligible)
	}
}

func TestFindEligibleMinuteGranularity(t *testing.T) {
	store := newFakeStore()
	store.addAssignment(fakeAssignment{
		id: 1, userID: 1, email: "alice@example.com", tz: strPtr("UTC"),
		bookID: 1, bookTitle: "Meditations", status: "queued", times: []string{"09:30"},
	})
	store.addLessons(1, 3)

	r := &Resolver{Store: store, Log: zerolog.Nop()}

	eligible, err := r.FindEligible(context.Background(), time.Date(2024, 1, 15, 9, 30, 42, 0, time.UTC))
	if err != nil {
		t.Fatalf("FindEligible: %v", err)
	}
	if len(eligible) != 1 {
		t.Fatalf("expected 09:30 match with seconds truncated, got %+v", eligible)
	}

	eligible, _ = r.FindEligible(context.Background(), time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	if len(eligible) != 0 {
		t.Fatalf("09:00 must not match a 09:30 delivery time")
	}
}

func TestFindEligibleSkipsBrokenRows(t *testing.T) {
	store := newFakeStore()
	store.addAssignment(fakeAssignment{
		id: 1, userID: 1, email: "none@example.com", tz: nil,
		bookID: 1, bookTitle: "Meditations", status: "queued", times: []string{"09:00"},
	})
	store.addAssignment(fakeAssignment{
		id: 2, userID: 2, email: "bad@example.com", tz: strPtr("Not/AZone"),
		bookID: 1, bookTitle: "Meditations", status: "queued", times: []string{"09:00"},
	})
	store.addAssignment(fakeAssignment{
		id: 3, userID: 3, email: "weird@example.com", tz: strPtr("UTC"),
		bookID: 1, bookTitle: "Meditations", status: "queued", times: []string{"9am"},
	})
	store.addLessons(1, 3)

	r := &Resolver{Store: store, Log: zerolog.Nop()}
	eligible, err := r.FindEligible(context.Background(), time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("broken rows must be skipped, not errors: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("expected no eligible rows, got %+v", eligible)
	}
}

// A read-only resolve must return the same set when repeated at the same
// instant.
func TestFindEligibleIdempotent(t *testing.T) {
	store := newFakeStore()
	store.addAssignment(fakeAssignment{
		id: 1, userID: 1, email: "alice@example.com", tz: strPtr("UTC"),
		bookID: 1, bookTitle: "Meditations", status: "queued", times: []string{"09:00"},
	})
	store.addLessons(1, 3)

	r := &Resolver{Store: store, Log: zerolog.Nop()}
	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	first, err := r.FindEligible(context.Background(), at)
	if err != nil {
		t.Fatalf("FindEligible: %v", err)
	}
	second, err := r.FindEligible(context.Background(), at)
	if err != nil {
		t.Fatalf("FindEligible: %v", err)
	}
	if len(first) != 1 || len(second) != 1 || first[0].AssignmentID != second[0].AssignmentID {
		t.Fatalf("resolver not idempotent: %+v vs %+v", first, second)
	}
}
