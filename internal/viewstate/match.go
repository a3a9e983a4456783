package viewstate

import (
	"classroom/pkg/domain"
	"strings"
)

func contains(field, query string) bool {
	return strings.Contains(strings.ToLower(field), query)
}

// MatchStudent searches name and email.
func MatchStudent(st domain.Student, query string) bool {
	return contains(st.Name, query) || contains(st.Email, query)
}

// MatchClass searches name, subject, teacher and room.
func MatchClass(c domain.Class, query string) bool {
	return contains(c.Name, query) || contains(c.Subject, query) || contains(c.Teacher, query) || contains(c.Room, query)
}

// MatchExam searches title and subject.
func MatchExam(e domain.Exam, query string) bool {
	return contains(e.Title, query) || contains(e.Subject, query)
}
