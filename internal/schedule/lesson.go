package schedule

import "context"

// Selector picks the next lesson for one assignment based on recorded
// progress.
type Selector struct {
	Store Store
}

// Next returns the lesson that should go out for the assignment. When the
// book is already fully sent, ShouldSend is false and the caller marks the
// assignment completed. ErrNoContent propagates from the store when the book
// has no lessons.
func (s *Selector) Next(ctx context.Context, assignmentID uint64) (NextLesson, error) {
	return s.Store.NextLessonFor(ctx, assignmentID)
}
