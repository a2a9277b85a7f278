package schedule

import (
	"context"
	"fmt"
	"sync"
)

// In-memory Store and Mailer used across the engine tests.

type fakeLesson struct {
	id      uint64
	day     int
	subject string
	body    string
}

type fakeAssignment struct {
	id        uint64
	userID    uint64
	email     string
	tz        *string
	bookID    uint64
	bookTitle string
	status    string
	lastSent  int
	times     []string
}

type fakeStore struct {
	mu          sync.Mutex
	assignments map[uint64]*fakeAssignment
	lessons     map[uint64][]fakeLesson // keyed by book id
	logs        []DeliveryLog
	runs        map[string]*RunRecord

	nextLogID uint64

	listErr      error
	updateRunErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assignments: map[uint64]*fakeAssignment{},
		lessons:     map[uint64][]fakeLesson{},
		runs:        map[string]*RunRecord{},
	}
}

func (s *fakeStore) addAssignment(a fakeAssignment) {
	s.assignments[a.id] = &a
}

func (s *fakeStore) addLessons(bookID uint64, n int) {
	for i := 1; i <= n; i++ {
		s.lessons[bookID] = append(s.lessons[bookID], fakeLesson{
			id:      bookID*100 + uint64(i),
			day:     i,
			subject: fmt.Sprintf("Day %d", i),
			body:    fmt.Sprintf("<p>lesson %d</p>", i),
		})
	}
}

func (s *fakeStore) ListCandidates(ctx context.Context) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []Candidate
	for _, a := range s.assignments {
		if a.status == "completed" {
			continue
		}
		out = append(out, Candidate{
			AssignmentID:  a.id,
			UserID:        a.userID,
			UserEmail:     a.email,
			Timezone:      a.tz,
			BookID:        a.bookID,
			BookTitle:     a.bookTitle,
			Status:        a.status,
			DeliveryTimes: a.times,
		})
	}
	return out, nil
}

func (s *fakeStore) NextLessonFor(ctx context.Context, assignmentID uint64) (NextLesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentID]
	if !ok {
		return NextLesson{}, ErrNotFound
	}
	lessons := s.lessons[a.bookID]
	if len(lessons) == 0 {
		return NextLesson{}, ErrNoContent
	}
	if a.lastSent >= len(lessons) {
		return NextLesson{CurrentProgress: a.lastSent, TotalLessons: len(lessons), ShouldSend: false}, nil
	}
	l := lessons[a.lastSent]
	return NextLesson{
		LessonID:        l.id,
		DayNumber:       l.day,
		Subject:         l.subject,
		CurrentProgress: a.lastSent,
		TotalLessons:    len(lessons),
		ShouldSend:      true,
	}, nil
}

func (s *fakeStore) LessonContent(ctx context.Context, lessonID uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lessons := range s.lessons {
		for _, l := range lessons {
			if l.id == lessonID {
				if l.body == "" {
					return "", ErrContentUnavailable
				}
				return l.body, nil
			}
		}
	}
	return "", ErrContentUnavailable
}

func (s *fakeStore) InsertLog(ctx context.Context, entry *DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	entry.ID = s.nextLogID
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *fakeStore) AdvanceProgress(ctx context.Context, assignmentID uint64, dayNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentID]
	if !ok {
		return ErrNotFound
	}
	if a.lastSent != dayNumber-1 {
		return ErrProgressConflict
	}
	a.lastSent = dayNumber
	if a.status == "queued" {
		a.status = "currently_reading"
	}
	return nil
}

func (s *fakeStore) MarkCompleted(ctx context.Context, assignmentID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentID]
	if !ok {
		return ErrNotFound
	}
	a.status = "completed"
	return nil
}

func (s *fakeStore) InsertRun(ctx context.Context, rec *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.runs[rec.RunID] = &cp
	return nil
}

func (s *fakeStore) UpdateRun(ctx context.Context, rec *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateRunErr != nil {
		return s.updateRunErr
	}
	if _, ok := s.runs[rec.RunID]; !ok {
		return ErrNotFound
	}
	cp := *rec
	s.runs[rec.RunID] = &cp
	return nil
}

func (s *fakeStore) FailedLogs(ctx context.Context, ids []uint64) ([]FailedLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[uint64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []FailedLog
	for _, entry := range s.logs {
		if !want[entry.ID] || entry.Status != LogStatusFailed || entry.LessonID == nil {
			continue
		}
		var assignment *fakeAssignment
		for _, a := range s.assignments {
			if a.userID == entry.UserID && a.bookID == entry.BookID {
				assignment = a
				break
			}
		}
		if assignment == nil {
			continue
		}
		for _, l := range s.lessons[entry.BookID] {
			if l.id == *entry.LessonID {
				out = append(out, FailedLog{
					LogID:        entry.ID,
					UserID:       entry.UserID,
					UserEmail:    assignment.email,
					BookID:       entry.BookID,
					BookTitle:    assignment.bookTitle,
					AssignmentID: assignment.id,
					LessonID:     l.id,
					DayNumber:    l.day,
					Subject:      l.subject,
					BodyHTML:     l.body,
				})
			}
		}
	}
	return out, nil
}

func (s *fakeStore) logsByStatus(status string) []DeliveryLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []DeliveryLog
	for _, l := range s.logs {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []Message
	failFor map[string]error // recipient -> forced error
	seq     int
}

func (m *fakeMailer) Send(ctx context.Context, msg Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[msg.To]; ok {
		return "", err
	}
	m.sent = append(m.sent, msg)
	m.seq++
	return fmt.Sprintf("msg-%d", m.seq), nil
}

func strPtr(s string) *string { return &s }
