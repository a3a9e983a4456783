// Package seed loads a deterministic sample classroom into an empty store.
package seed

import (
	"classroom/internal/core"
	"classroom/pkg/domain"
	"context"
	"fmt"
	"log/slog"
	"time"
)

type classFixture struct {
	Name, Subject, Teacher, Room string
	Capacity                     int
}

type studentFixture struct {
	Name    string
	Grade   int
	Classes []int // indexes into classFixtures
}

type examFixture struct {
	Title    string
	Class    int
	InDays   int
	MaxScore int
}

var classFixtures = []classFixture{
	{Name: "Algebra I", Subject: "Mathematics", Teacher: "E. Noether", Room: "101", Capacity: 24},
	{Name: "World History", Subject: "History", Teacher: "H. Zinn", Room: "204"},
	{Name: "Biology", Subject: "Science", Teacher: "R. Franklin", Room: "Lab 2", Capacity: 18},
	{Name: "Creative Writing", Subject: "English", Teacher: "T. Morrison", Room: "112", Capacity: 15},
}

var studentFixtures = []studentFixture{
	{Name: "Ada Lovelace", Grade: 10, Classes: []int{0, 2}},
	{Name: "Alan Turing", Grade: 11, Classes: []int{0, 1}},
	{Name: "Grace Hopper", Grade: 12, Classes: []int{0, 2, 3}},
	{Name: "Katherine Johnson", Grade: 10, Classes: []int{0}},
	{Name: "Marie Curie", Grade: 11, Classes: []int{2}},
	{Name: "Rosalind Franklin", Grade: 12, Classes: []int{1, 2}},
	{Name: "Claude Shannon", Grade: 9, Classes: []int{3}},
	{Name: "Hedy Lamarr", Grade: 9, Classes: []int{1, 3}},
}

var examFixtures = []examFixture{
	{Title: "Linear equations quiz", Class: 0, InDays: 3, MaxScore: 20},
	{Title: "Algebra midterm", Class: 0, InDays: 21, MaxScore: 100},
	{Title: "Industrial revolution essay", Class: 1, InDays: 10, MaxScore: 50},
	{Title: "Cell structure lab", Class: 2, InDays: 5, MaxScore: 30},
	{Title: "Short story portfolio", Class: 3, InDays: 28, MaxScore: 100},
}

// Summary counts the records written by Run.
type Summary struct {
	Students, Classes, Enrollments, Exams int
	Skipped                               bool
}

// Run writes the sample data through the container repositories so live
// observers see it arrive. It does nothing when any student already exists.
// Exam dates are relative to now.
func Run(ctx context.Context, c *core.Container, now time.Time, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "seed")

	existing, err := c.Students.Count(ctx, nil)
	if err != nil {
		return Summary{}, err
	}
	if existing > 0 {
		logger.Info("store already populated, skipping seed", "students", existing)
		return Summary{Skipped: true}, nil
	}

	var sum Summary
	classIDs := make([]string, len(classFixtures))
	for i, f := range classFixtures {
		class, err := c.Classes.Create(ctx, domain.Class{Name: f.Name, Subject: f.Subject, Teacher: f.Teacher, Room: f.Room, Capacity: f.Capacity})
		if err != nil {
			return sum, fmt.Errorf("seed class %q: %w", f.Name, err)
		}
		classIDs[i] = class.ID
		sum.Classes++
	}
	for _, f := range studentFixtures {
		st, err := c.Students.Create(ctx, domain.Student{Name: f.Name, Email: emailFor(f.Name), Grade: f.Grade})
		if err != nil {
			return sum, fmt.Errorf("seed student %q: %w", f.Name, err)
		}
		sum.Students++
		for _, idx := range f.Classes {
			if _, err := c.Classes.Enroll(ctx, classIDs[idx], st.ID); err != nil {
				return sum, fmt.Errorf("enroll %q in %q: %w", f.Name, classFixtures[idx].Name, err)
			}
			sum.Enrollments++
		}
	}
	day := now.UTC().Truncate(24 * time.Hour).Add(9 * time.Hour)
	for _, f := range examFixtures {
		_, err := c.Exams.Create(ctx, domain.Exam{
			Title:       f.Title,
			Subject:     classFixtures[f.Class].Subject,
			ClassID:     classIDs[f.Class],
			ScheduledAt: day.AddDate(0, 0, f.InDays),
			MaxScore:    f.MaxScore,
		})
		if err != nil {
			return sum, fmt.Errorf("seed exam %q: %w", f.Title, err)
		}
		sum.Exams++
	}
	logger.Info("seeded sample classroom", "students", sum.Students, "classes", sum.Classes, "enrollments", sum.Enrollments, "exams", sum.Exams)
	return sum, nil
}

func emailFor(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r == ' ':
			out = append(out, '.')
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r >= 'a' && r <= 'z', r == '-':
			out = append(out, r)
		}
	}
	return string(out) + "@school.example"
}
