package repository

import (
	"classroom/internal/infra/persistence/memory"
	"classroom/pkg/domain"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

const testDebounce = 20 * time.Millisecond

// flakyStore lets tests inject failures into an otherwise working store.
type flakyStore struct {
	domain.PersistentStore
	mu       sync.Mutex
	fetchErr error
	txErr    error
}

func (f *flakyStore) setFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *flakyStore) setTxErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txErr = err
}

func (f *flakyStore) Fetch(ctx context.Context, q domain.Query) ([]domain.Record, error) {
	f.mu.Lock()
	err := f.fetchErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.PersistentStore.Fetch(ctx, q)
}

func (f *flakyStore) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	f.mu.Lock()
	err := f.txErr
	f.mu.Unlock()
	if err != nil {
		return domain.Result{}, err
	}
	return f.PersistentStore.RunInTransaction(ctx, fn)
}

func newFlaky() *flakyStore {
	return &flakyStore{PersistentStore: memory.NewStore(nil)}
}

// repoName derives a metric label unique to the running test.
func repoName(t *testing.T) string {
	t.Helper()
	return strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
}

func newStudentRepo(t *testing.T, store domain.PersistentStore, opts ...Option) *Students {
	t.Helper()
	opts = append([]Option{WithName(repoName(t)), WithDebounce(testDebounce)}, opts...)
	repo := NewStudents(store, opts...)
	t.Cleanup(repo.Close)
	return repo
}

func mustCreateStudent(t *testing.T, repo *Students, name string) domain.Student {
	t.Helper()
	st, err := repo.Create(context.Background(), domain.Student{Name: name})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return st
}

func recv[T domain.Record](t *testing.T, sub *Subscription[T]) []T {
	t.Helper()
	select {
	case v, ok := <-sub.Values():
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for value")
	}
	return nil
}

func expectQuiet[T domain.Record](t *testing.T, sub *Subscription[T], wait time.Duration) {
	t.Helper()
	select {
	case v, ok := <-sub.Values():
		if ok {
			t.Fatalf("expected no value, got %d records", len(v))
		}
	case <-time.After(wait):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func counter(vec *prometheus.CounterVec, name string) float64 {
	return promtest.ToFloat64(vec.WithLabelValues(name))
}

func ids[T domain.Record](records []T) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec.Identity()
	}
	return out
}

type eventLog[T domain.Record] struct {
	mu     sync.Mutex
	events []Event[T]
}

func recordEvents[T domain.Record](t *testing.T, bus *Bus[T]) *eventLog[T] {
	t.Helper()
	log := &eventLog[T]{}
	cancel := bus.Subscribe(func(e Event[T]) {
		log.mu.Lock()
		defer log.mu.Unlock()
		log.events = append(log.events, e)
	})
	t.Cleanup(cancel)
	return log
}

func (l *eventLog[T]) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, len(l.events))
	for i, e := range l.events {
		out[i] = e.Kind
	}
	return out
}

func (l *eventLog[T]) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}
