// Package viewstate holds read-optimized projections of live repository
// streams for presentation layers.
package viewstate

import (
	"classroom/pkg/domain"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Source is the consumer side of a repository subscription.
type Source[T domain.Record] interface {
	Values() <-chan []T
	Close()
}

// MatchFunc reports whether rec satisfies the normalized search query.
type MatchFunc[T domain.Record] func(rec T, query string) bool

// Holder keeps the latest list delivered by a Source and a filtered
// projection of it. It is Loading until the first list arrives.
type Holder[T domain.Record] struct {
	src    Source[T]
	match  MatchFunc[T]
	logger *slog.Logger

	mu      sync.RWMutex
	all     []T
	visible []T
	query   string
	loading bool
	version uint64

	changed chan struct{}
	done    chan struct{}
}

// New starts consuming src. The holder owns src and closes it in Close.
func New[T domain.Record](src Source[T], match MatchFunc[T], logger *slog.Logger) *Holder[T] {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Holder[T]{
		src:     src,
		match:   match,
		logger:  logger.With("component", "viewstate"),
		loading: true,
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go h.consume()
	return h
}

func (h *Holder[T]) consume() {
	defer close(h.done)
	for list := range h.src.Values() {
		h.mu.Lock()
		h.all = list
		h.visible = h.project(list, h.query)
		h.loading = false
		h.version++
		n, shown := len(list), len(h.visible)
		h.mu.Unlock()
		h.logger.Debug("view state refreshed", "records", n, "visible", shown)
		h.signal()
	}
}

func (h *Holder[T]) project(list []T, query string) []T {
	if query == "" || h.match == nil {
		return list
	}
	out := make([]T, 0, len(list))
	for _, rec := range list {
		if h.match(rec, query) {
			out = append(out, rec)
		}
	}
	return out
}

func (h *Holder[T]) signal() {
	select {
	case h.changed <- struct{}{}:
	default:
	}
}

// NormalizeQuery lowercases and trims a search query the way MatchFunc
// implementations expect it.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// SetQuery changes the search filter and recomputes the projection.
func (h *Holder[T]) SetQuery(query string) {
	query = NormalizeQuery(query)
	h.mu.Lock()
	if query == h.query {
		h.mu.Unlock()
		return
	}
	h.query = query
	h.visible = h.project(h.all, query)
	h.version++
	h.mu.Unlock()
	h.signal()
}

// Query returns the active normalized search filter.
func (h *Holder[T]) Query() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.query
}

// Items returns the filtered projection.
func (h *Holder[T]) Items() []T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.visible)
}

// All returns the unfiltered list.
func (h *Holder[T]) All() []T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.all)
}

// Loading reports whether the first list is still outstanding.
func (h *Holder[T]) Loading() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loading
}

// Version increments on every projection change.
func (h *Holder[T]) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// Changed receives a signal after the projection changed. Signals coalesce.
func (h *Holder[T]) Changed() <-chan struct{} { return h.changed }

// Close releases the source and waits for the consumer to stop.
func (h *Holder[T]) Close() {
	h.src.Close()
	<-h.done
}
