package schedule

import "errors"

var (
	// ErrInvalidTimezone — the identifier is not in the tz database.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrInvalidTimeFormat — not "HH:MM" with hours 0-23 / minutes 0-59.
	ErrInvalidTimeFormat = errors.New("invalid time format")

	// ErrNoContent — the assignment's book has no lessons at all.
	ErrNoContent = errors.New("no lesson content")

	// ErrContentUnavailable — a lesson row exists but its body could not be
	// loaded. Data integrity problem: logged as ERROR, never retried
	// automatically, progress untouched.
	ErrContentUnavailable = errors.New("lesson content unavailable")

	// ErrProgressConflict — the conditional progress update matched no row,
	// meaning another run advanced this assignment first.
	ErrProgressConflict = errors.New("progress advanced concurrently")

	ErrNotFound = errors.New("not found")
)
