package seed

import (
	"classroom/internal/core"
	"classroom/internal/infra/persistence/memory"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newContainer(t *testing.T) *core.Container {
	t.Helper()
	c := core.NewContainer(memory.NewStore(core.NewDefaultRulesEngine()), core.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRunSeedsAndIsIdempotent(t *testing.T) {
	c := newContainer(t)
	ctx := context.Background()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	sum, err := Run(ctx, c, now, nil)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if sum.Students != len(studentFixtures) || sum.Classes != len(classFixtures) || sum.Exams != len(examFixtures) {
		t.Fatalf("unexpected summary %+v", sum)
	}
	want := 0
	for _, f := range studentFixtures {
		want += len(f.Classes)
	}
	if sum.Enrollments != want {
		t.Fatalf("expected %d enrollments, got %d", want, sum.Enrollments)
	}

	again, err := Run(ctx, c, now, nil)
	if err != nil || !again.Skipped {
		t.Fatalf("second run must skip, got %+v (%v)", again, err)
	}
	if n, _ := c.Students.Count(ctx, nil); n != len(studentFixtures) {
		t.Fatalf("duplicate students after second run: %d", n)
	}
}

func TestSeededRelationshipsAreConsistent(t *testing.T) {
	c := newContainer(t)
	ctx := context.Background()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	if _, err := Run(ctx, c, now, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	grace, err := c.Students.ByName(ctx, "grace")
	if err != nil || len(grace) != 1 {
		t.Fatalf("expected Grace, got %v (%v)", grace, err)
	}
	if len(grace[0].ClassIDs) != 3 {
		t.Fatalf("expected three classes for Grace, got %v", grace[0].ClassIDs)
	}
	if grace[0].Email != "grace.hopper@school.example" {
		t.Fatalf("unexpected email %s", grace[0].Email)
	}
	exams, err := c.Exams.ForStudent(ctx, grace[0].ID)
	if err != nil {
		t.Fatalf("exams for student: %v", err)
	}
	if len(exams) != 4 {
		t.Fatalf("expected four exams across Grace's classes, got %d", len(exams))
	}
	upcoming, _ := c.Exams.Upcoming(ctx, now, 1)
	if len(upcoming) != 1 || upcoming[0].Title != "Linear equations quiz" {
		t.Fatalf("unexpected first upcoming exam %+v", upcoming)
	}
}
