package repository

import (
	"classroom/pkg/domain"
	"context"
	"slices"
	"sync"
	"time"
)

// Subscription is one live ObserveAll stream. Values delivers ordered record
// lists; the first value is the full fetch taken at subscription time. The
// channel is closed once the subscription is disposed.
type Subscription[T domain.Record] struct {
	values  chan []T
	dirty   chan struct{}
	updates chan T
	done    chan struct{}
	exited  chan struct{}

	closeOnce   sync.Once
	unsubscribe func()
	label       string

	// Owned by the run goroutine. Cleared on exit so a disposed subscription
	// keeps no path back to the repository or its store.
	repo *Repository[T]
}

type fingerprintEntry struct {
	id       string
	revision int64
}

// fingerprint identifies a delivered list by its ordered identities and
// their revisions, so in-place content updates are not mistaken for repeats.
func fingerprint[T domain.Record](records []T) []fingerprintEntry {
	out := make([]fingerprintEntry, len(records))
	for i, rec := range records {
		out[i] = fingerprintEntry{id: rec.Identity(), revision: rec.Revision().UnixNano()}
	}
	return out
}

// ObserveAll returns a live, deduplicated view of every record of the type.
// It never fails: an initial fetch error yields an empty first value and
// later fetch errors withhold the value. The subscription ends when ctx is
// done, when Close is called, or when the repository closes.
func (r *Repository[T]) ObserveAll(ctx context.Context) *Subscription[T] {
	s := &Subscription[T]{
		values:  make(chan []T),
		dirty:   make(chan struct{}, 1),
		updates: make(chan T, r.cfg.updateBuffer),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		label:   r.cfg.name,
		repo:    r,
	}
	if !r.track(s) {
		close(s.values)
		close(s.exited)
		s.closeOnce.Do(func() { close(s.done) })
		s.repo = nil
		return s
	}
	// Register before the initial fetch so no event between the two is lost.
	s.unsubscribe = r.bus.Subscribe(s.handle)
	go s.run(ctx)
	return s
}

// Values returns the delivery channel.
func (s *Subscription[T]) Values() <-chan []T { return s.values }

// Close disposes the subscription. When Close returns no further value will
// be delivered and Values is closed. Close is idempotent.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	<-s.exited
}

// Done is closed once the subscription goroutine has exited.
func (s *Subscription[T]) Done() <-chan struct{} { return s.exited }

func (s *Subscription[T]) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// handle runs on the publisher goroutine and never blocks.
func (s *Subscription[T]) handle(e Event[T]) {
	if e.Structural() {
		s.markDirty()
		return
	}
	select {
	case s.updates <- e.Record:
	default:
		// Buffer full: fall back to a re-fetch that will carry the new content.
		updatesDowngraded.WithLabelValues(s.label).Inc()
		s.markDirty()
	}
}

type stream[T domain.Record] struct {
	name      string
	current   []T
	delivered []fingerprintEntry
	hasSent   bool
}

func (s *Subscription[T]) run(ctx context.Context) {
	repo := s.repo
	st := &stream[T]{name: s.label}
	defer func() {
		s.unsubscribe()
		repo.forget(s)
		s.repo = nil
		close(s.values)
		close(s.exited)
	}()

	initial, err := repo.fetch(ctx, domain.All(repo.entity))
	if err != nil {
		streamFetchFailures.WithLabelValues(st.name).Inc()
		repo.logger.Debug("initial observe fetch failed", "error", err)
		initial = nil
	}
	st.current = initial
	if !s.emit(ctx, st) {
		return
	}

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.dirty:
			// Collect-and-coalesce: the window starts at the first signal and
			// later signals within it are absorbed.
			if timerC == nil {
				timer = time.NewTimer(repo.cfg.debounce)
				timerC = timer.C
			}
		case <-timerC:
			timerC = nil
			refetches.WithLabelValues(st.name).Inc()
			fresh, err := repo.fetch(ctx, domain.All(repo.entity))
			if err != nil {
				streamFetchFailures.WithLabelValues(st.name).Inc()
				repo.logger.Debug("observe re-fetch failed, value withheld", "error", err)
				continue
			}
			st.current = fresh
			if !s.emit(ctx, st) {
				return
			}
		case rec := <-s.updates:
			if !st.merge(rec) {
				continue
			}
			if !s.emit(ctx, st) {
				return
			}
		}
	}
}

// merge replaces the held record sharing rec's identity. Unknown identities
// and stale revisions are ignored.
func (st *stream[T]) merge(rec T) bool {
	idx := slices.IndexFunc(st.current, func(held T) bool {
		return held.Identity() == rec.Identity()
	})
	if idx < 0 {
		return false
	}
	if rec.Revision().Before(st.current[idx].Revision()) {
		return false
	}
	next := slices.Clone(st.current)
	next[idx] = rec
	st.current = next
	return true
}

// emit delivers the current list unless it repeats the previous delivery.
// It reports false when the subscription ended while waiting for the consumer.
func (s *Subscription[T]) emit(ctx context.Context, st *stream[T]) bool {
	fp := fingerprint(st.current)
	if st.hasSent && slices.Equal(fp, st.delivered) {
		valuesSuppressed.WithLabelValues(st.name).Inc()
		return true
	}
	out := make([]T, len(st.current))
	for i, rec := range st.current {
		out[i] = rec.Clone().(T)
	}
	select {
	case s.values <- out:
		st.delivered = fp
		st.hasSent = true
		valuesEmitted.WithLabelValues(st.name).Inc()
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}
