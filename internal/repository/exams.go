package repository

import (
	"classroom/pkg/domain"
	"context"
	"strings"
	"time"
)

// Exams is the exam repository with date and relationship queries.
type Exams struct {
	*Repository[domain.Exam]
}

// NewExams constructs the exam repository over store.
func NewExams(store domain.PersistentStore, opts ...Option) *Exams {
	return &Exams{Repository: New[domain.Exam](store, domain.EntityExam, opts...)}
}

// ExamsByDate orders exams by scheduled time, then title.
func ExamsByDate(a, b domain.Exam) int {
	if c := a.ScheduledAt.Compare(b.ScheduledAt); c != 0 {
		return c
	}
	return strings.Compare(a.Title, b.Title)
}

// ByDateRange returns exams scheduled within [from, to], sorted by date.
func (e *Exams) ByDateRange(ctx context.Context, from, to time.Time) ([]domain.Exam, error) {
	return e.FetchAll(ctx, func(ex domain.Exam) bool {
		return !ex.ScheduledAt.Before(from) && !ex.ScheduledAt.After(to)
	}, ExamsByDate)
}

// ForClass returns the exams of classID, sorted by date.
func (e *Exams) ForClass(ctx context.Context, classID string) ([]domain.Exam, error) {
	return e.FetchAll(ctx, func(ex domain.Exam) bool { return ex.ClassID == classID }, ExamsByDate)
}

// ForStudent walks student → classes → exams and returns the result sorted by date.
func (e *Exams) ForStudent(ctx context.Context, studentID string) ([]domain.Exam, error) {
	if e.isClosed() {
		return nil, e.fail("for_student", studentID, domain.ErrClosed)
	}
	rec, ok, err := e.store.Find(ctx, domain.EntityStudent, studentID)
	if err != nil {
		return nil, e.fail("for_student", studentID, err)
	}
	if !ok {
		return nil, e.fail("for_student", studentID, domain.NotFoundError{Entity: domain.EntityStudent, ID: studentID})
	}
	classIDs := rec.(domain.Student).ClassIDs
	return e.FetchAll(ctx, func(ex domain.Exam) bool { return containsID(classIDs, ex.ClassID) }, ExamsByDate)
}

// Upcoming returns at most limit exams scheduled at or after now, soonest
// first. A non-positive limit returns all of them.
func (e *Exams) Upcoming(ctx context.Context, now time.Time, limit int) ([]domain.Exam, error) {
	out, err := e.fetch(ctx, e.query(func(ex domain.Exam) bool {
		return !ex.ScheduledAt.Before(now)
	}, ExamsByDate, max(limit, 0)))
	if err != nil {
		return nil, e.fail("upcoming", "", err)
	}
	return out, nil
}
