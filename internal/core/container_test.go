package core

import (
	"classroom/internal/infra/persistence/memory"
	"classroom/pkg/domain"
	"context"
	"errors"
	"slices"
	"testing"
)

func TestEnrollmentReachesStudentObservers(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()
	class := seedClass(t, c, "Algebra", 0)
	ada := seedStudent(t, c, "Ada")

	sub := c.Students.ObserveAll(ctx)
	defer sub.Close()
	recvWhere(t, sub, func([]domain.Student) bool { return true })

	if _, err := c.Classes.Enroll(ctx, class.ID, ada.ID); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	recvWhere(t, sub, func(v []domain.Student) bool {
		return len(v) == 1 && slices.Equal(v[0].ClassIDs, []string{class.ID})
	})
}

func TestDeletingStudentUpdatesClassObservers(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()
	class := seedClass(t, c, "C", 0)
	s := seedStudent(t, c, "S")
	if _, err := c.Classes.Enroll(ctx, class.ID, s.ID); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	sub := c.Classes.ObserveAll(ctx)
	defer sub.Close()
	recvWhere(t, sub, func(v []domain.Class) bool { return len(v) == 1 && v[0].Enrolled(s.ID) })

	if err := c.Students.Delete(ctx, s); err != nil {
		t.Fatalf("delete: %v", err)
	}
	recvWhere(t, sub, func(v []domain.Class) bool { return len(v) == 1 && len(v[0].StudentIDs) == 0 })
}

func TestDeleteAllClassesRefreshesStudents(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()
	class := seedClass(t, c, "C", 0)
	s := seedStudent(t, c, "S")
	if _, err := c.Classes.Enroll(ctx, class.ID, s.ID); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	sub := c.Students.ObserveAll(ctx)
	defer sub.Close()
	recvWhere(t, sub, func(v []domain.Student) bool { return len(v) == 1 && len(v[0].ClassIDs) == 1 })

	if _, err := c.Classes.DeleteAll(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	recvWhere(t, sub, func(v []domain.Student) bool { return len(v) == 1 && len(v[0].ClassIDs) == 0 })
}

func TestClassCapacityRuleBlocksOversizedRoster(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()
	a := seedStudent(t, c, "A")
	b := seedStudent(t, c, "B")

	_, err := c.Classes.Create(ctx, domain.Class{Name: "Tiny", Capacity: 1, StudentIDs: []string{a.ID, b.ID}})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if violation.Result.Violations[0].Rule != "class_capacity" {
		t.Fatalf("unexpected violation %+v", violation.Result.Violations)
	}
	if n, _ := c.Classes.Count(ctx, nil); n != 0 {
		t.Fatalf("blocked commit must not persist, found %d classes", n)
	}
}

func TestCloseDisposesRepositoriesThenStore(t *testing.T) {
	store := memory.NewStore(nil)
	c := NewContainer(store, WithLogger(quietLogger()))
	sub := c.Exams.ObserveAll(context.Background())
	<-sub.Values()

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, ok := <-sub.Values(); ok {
		t.Fatalf("subscription survived container close")
	}
	if _, err := store.Fetch(context.Background(), domain.All(domain.EntityExam)); !errors.Is(err, domain.ErrClosed) {
		t.Fatalf("expected closed store, got %v", err)
	}
}

func TestOpenBuildsMemoryContainer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = StorageMemory
	c, err := Open(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()
	if _, ok := c.Store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", c.Store)
	}
	if got := c.Store.(*memory.Store).RulesEngine().Rules(); !slices.Equal(got, []string{"class_capacity", "exam_schedule"}) {
		t.Fatalf("unexpected rules %v", got)
	}
	if c.Blobs.Driver() != "memory" {
		t.Fatalf("expected memory blob driver, got %s", c.Blobs.Driver())
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "oracle"
	if _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
