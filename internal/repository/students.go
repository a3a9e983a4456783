package repository

import (
	"classroom/pkg/domain"
	"context"
	"strings"
)

// Students is the student repository with its read-only query extensions.
type Students struct {
	*Repository[domain.Student]
}

// NewStudents constructs the student repository over store.
func NewStudents(store domain.PersistentStore, opts ...Option) *Students {
	return &Students{Repository: New[domain.Student](store, domain.EntityStudent, opts...)}
}

// StudentsByName orders students by name.
func StudentsByName(a, b domain.Student) int {
	return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
}

// ByName returns students whose name contains query, ignoring case, sorted by name.
func (s *Students) ByName(ctx context.Context, query string) ([]domain.Student, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	return s.FetchAll(ctx, func(st domain.Student) bool {
		return strings.Contains(strings.ToLower(st.Name), needle)
	}, StudentsByName)
}

// ByGrade returns students in grade, sorted by name.
func (s *Students) ByGrade(ctx context.Context, grade int) ([]domain.Student, error) {
	return s.FetchAll(ctx, func(st domain.Student) bool { return st.Grade == grade }, StudentsByName)
}

// InClass returns the students enrolled in classID, sorted by name.
func (s *Students) InClass(ctx context.Context, classID string) ([]domain.Student, error) {
	return s.FetchAll(ctx, func(st domain.Student) bool {
		return containsID(st.ClassIDs, classID)
	}, StudentsByName)
}

// EnrollmentCount returns how many classes the student is enrolled in.
func (s *Students) EnrollmentCount(ctx context.Context, studentID string) (int, error) {
	st, ok, err := s.Find(ctx, studentID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, s.fail("enrollment_count", studentID, domain.NotFoundError{Entity: domain.EntityStudent, ID: studentID})
	}
	return len(st.ClassIDs), nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
