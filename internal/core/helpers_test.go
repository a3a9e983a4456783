package core

import (
	"classroom/internal/infra/persistence/memory"
	"classroom/internal/repository"
	"classroom/pkg/domain"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestContainer(t *testing.T, opts ...ContainerOption) *Container {
	t.Helper()
	opts = append([]ContainerOption{
		WithLogger(quietLogger()),
		WithRepositoryOptions(repository.WithDebounce(10 * time.Millisecond)),
	}, opts...)
	c := NewContainer(memory.NewStore(NewDefaultRulesEngine()), opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func recvWhere[T domain.Record](t *testing.T, sub *repository.Subscription[T], match func([]T) bool) []T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-sub.Values():
			if !ok {
				t.Fatalf("subscription closed unexpectedly")
			}
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatalf("timed out waiting for matching value")
		}
	}
}

func seedClass(t *testing.T, c *Container, name string, capacity int) domain.Class {
	t.Helper()
	class, err := c.Classes.Create(context.Background(), domain.Class{Name: name, Subject: "math", Capacity: capacity})
	if err != nil {
		t.Fatalf("create class: %v", err)
	}
	return class
}

func seedStudent(t *testing.T, c *Container, name string) domain.Student {
	t.Helper()
	st, err := c.Students.Create(context.Background(), domain.Student{Name: name, Grade: 10})
	if err != nil {
		t.Fatalf("create student: %v", err)
	}
	return st
}
