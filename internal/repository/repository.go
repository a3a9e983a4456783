package repository

import (
	"classroom/pkg/domain"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultDebounce is the coalescing window between a structural event and the
// re-fetch it triggers.
const DefaultDebounce = 100 * time.Millisecond

// DefaultUpdateBuffer bounds the per-subscription queue of pending update events.
const DefaultUpdateBuffer = 64

var tracer = otel.Tracer("classroom/repository")

// Predicate filters records of type T. A nil Predicate matches everything.
type Predicate[T domain.Record] func(T) bool

// Order compares two records of type T like strings.Compare. A nil Order
// selects the default order (creation stamp, then identity).
type Order[T domain.Record] func(a, b T) int

// ChangeObserver is told about every change a commit produced, including side
// effects on other entity types.
type ChangeObserver func(origin domain.EntityType, changes []domain.Change)

// Option configures a Repository.
type Option func(*config)

type config struct {
	name         string
	debounce     time.Duration
	updateBuffer int
	logger       *slog.Logger
	observer     ChangeObserver
}

// WithName sets the name used in logs and metric labels. Defaults to the entity type.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithUpdateBuffer overrides DefaultUpdateBuffer.
func WithUpdateBuffer(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.updateBuffer = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithChangeObserver installs a callback that runs after each successful commit.
func WithChangeObserver(fn ChangeObserver) Option {
	return func(c *config) { c.observer = fn }
}

// Repository is a generic data-access facade over one record type. Mutations
// commit through the shared store, then publish exactly one event on the
// repository bus. Callers serialize mutations on one repository; the store
// serializes transactions across repositories.
type Repository[T domain.Record] struct {
	store  domain.PersistentStore
	entity domain.EntityType
	bus    *Bus[T]
	cfg    config
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

// New constructs a repository for entity over store. The store is borrowed:
// closing the repository does not close it.
func New[T domain.Record](store domain.PersistentStore, entity domain.EntityType, opts ...Option) *Repository[T] {
	cfg := config{
		name:         string(entity),
		debounce:     DefaultDebounce,
		updateBuffer: DefaultUpdateBuffer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository[T]{
		store:  store,
		entity: entity,
		bus:    NewBus[T](),
		cfg:    cfg,
		logger: logger.With("component", "repository", "repository", cfg.name),
		subs:   make(map[*Subscription[T]]struct{}),
	}
}

// Name returns the repository name used in logs and metrics.
func (r *Repository[T]) Name() string { return r.cfg.name }

// Entity returns the entity type served by the repository.
func (r *Repository[T]) Entity() domain.EntityType { return r.entity }

// Bus exposes the change bus for consumers that want raw events.
func (r *Repository[T]) Bus() *Bus[T] { return r.bus }

func (r *Repository[T]) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Repository[T]) fail(op, id string, err error) error {
	var perr *domain.PersistenceError
	if errors.As(err, &perr) && perr.Op == op {
		return err
	}
	return &domain.PersistenceError{Op: op, Entity: r.entity, ID: id, Err: err}
}

func (r *Repository[T]) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Repository."+op, trace.WithAttributes(
		attribute.String("repository", r.cfg.name),
		attribute.String("entity", string(r.entity)),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (r *Repository[T]) publish(e Event[T]) {
	eventsPublished.WithLabelValues(r.cfg.name, string(e.Kind)).Inc()
	r.bus.Publish(e)
}

func (r *Repository[T]) afterCommit(res domain.Result) {
	for _, v := range res.Violations {
		r.logger.Warn("rule violation", "rule", v.Rule, "severity", v.Severity, "message", v.Message, "entity_id", v.EntityID)
	}
	if r.cfg.observer != nil && len(res.Changes) > 0 {
		r.cfg.observer(r.entity, res.Changes)
	}
}

// run executes fn in one store transaction and maps failures to PersistenceError.
func (r *Repository[T]) run(ctx context.Context, op, id string, fn func(domain.Transaction) error) (domain.Result, error) {
	if r.isClosed() {
		return domain.Result{}, r.fail(op, id, domain.ErrClosed)
	}
	res, err := r.store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, r.fail(op, id, err)
	}
	return res, nil
}

func cast[T domain.Record](rec domain.Record) (T, error) {
	typed, ok := rec.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected record type %T", rec)
	}
	return typed, nil
}

// Create inserts rec, commits, then publishes Created. The store assigns the
// identity. If the store already tracks rec, Create is a no-op: it returns the
// stored record unchanged and publishes nothing. On failure nothing is
// published and the zero value is returned, so no identity leaks from a
// failed commit.
func (r *Repository[T]) Create(ctx context.Context, rec T) (saved T, err error) {
	ctx, span := r.startSpan(ctx, "Create")
	defer func() { endSpan(span, err) }()

	var (
		out      T
		inserted bool
	)
	res, err := r.run(ctx, "create", rec.Identity(), func(tx domain.Transaction) error {
		if tx.Tracks(rec) {
			current, _ := tx.Find(r.entity, rec.Identity())
			typed, err := cast[T](current)
			out = typed
			return err
		}
		created, err := tx.Insert(rec)
		if err != nil {
			return err
		}
		typed, err := cast[T](created)
		out, inserted = typed, true
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	span.SetAttributes(attribute.Bool("inserted", inserted))
	if !inserted {
		return out, nil
	}
	r.publish(Created(out))
	r.afterCommit(res)
	return out, nil
}

// Update commits the new content of an already-tracked record and publishes Updated.
func (r *Repository[T]) Update(ctx context.Context, rec T) (saved T, err error) {
	ctx, span := r.startSpan(ctx, "Update")
	defer func() { endSpan(span, err) }()

	var out T
	res, err := r.run(ctx, "update", rec.Identity(), func(tx domain.Transaction) error {
		if !tx.Tracks(rec) {
			return domain.NotFoundError{Entity: r.entity, ID: rec.Identity()}
		}
		updated, err := tx.Update(rec)
		if err != nil {
			return err
		}
		typed, err := cast[T](updated)
		out = typed
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	r.publish(Updated(out))
	r.afterCommit(res)
	return out, nil
}

// Delete removes rec and publishes Deleted with its identity.
func (r *Repository[T]) Delete(ctx context.Context, rec T) (err error) {
	ctx, span := r.startSpan(ctx, "Delete")
	defer func() { endSpan(span, err) }()

	id := rec.Identity()
	res, err := r.run(ctx, "delete", id, func(tx domain.Transaction) error {
		return tx.Delete(rec)
	})
	if err != nil {
		return err
	}
	r.publish(Deleted[T](id))
	r.afterCommit(res)
	return nil
}

// DeleteAll removes every record of the type in one commit and publishes a
// single BatchChange regardless of how many records were removed.
func (r *Repository[T]) DeleteAll(ctx context.Context) (n int, err error) {
	ctx, span := r.startSpan(ctx, "DeleteAll")
	defer func() { endSpan(span, err) }()

	res, err := r.run(ctx, "delete_all", "", func(tx domain.Transaction) error {
		n = 0
		for _, rec := range tx.Fetch(domain.All(r.entity)) {
			if err := tx.Delete(rec); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("deleted", n))
	r.publish(BatchChange[T]())
	r.afterCommit(res)
	return n, nil
}

func (r *Repository[T]) query(where Predicate[T], order Order[T], limit int) domain.Query {
	q := domain.Query{Entity: r.entity, Limit: limit}
	if where != nil {
		q.Where = func(rec domain.Record) bool {
			typed, ok := rec.(T)
			return ok && where(typed)
		}
	}
	if order != nil {
		q.OrderBy = func(a, b domain.Record) int {
			return order(a.(T), b.(T))
		}
	}
	return q
}

func (r *Repository[T]) fetch(ctx context.Context, q domain.Query) ([]T, error) {
	if r.isClosed() {
		return nil, domain.ErrClosed
	}
	recs, err := r.store.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		typed, err := cast[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, typed)
	}
	return out, nil
}

// FetchAll returns the records matching where, sorted by order. It has no
// side effects.
func (r *Repository[T]) FetchAll(ctx context.Context, where Predicate[T], order Order[T]) ([]T, error) {
	out, err := r.fetch(ctx, r.query(where, order, 0))
	if err != nil {
		return nil, r.fail("fetch", "", err)
	}
	return out, nil
}

// Count returns the number of records matching where.
func (r *Repository[T]) Count(ctx context.Context, where Predicate[T]) (int, error) {
	if r.isClosed() {
		return 0, r.fail("count", "", domain.ErrClosed)
	}
	n, err := r.store.Count(ctx, r.query(where, nil, 0))
	if err != nil {
		return 0, r.fail("count", "", err)
	}
	return n, nil
}

// Find returns the record with the given identity.
func (r *Repository[T]) Find(ctx context.Context, id string) (T, bool, error) {
	var zero T
	if r.isClosed() {
		return zero, false, r.fail("find", id, domain.ErrClosed)
	}
	rec, ok, err := r.store.Find(ctx, r.entity, id)
	if err != nil {
		return zero, false, r.fail("find", id, err)
	}
	if !ok {
		return zero, false, nil
	}
	typed, err := cast[T](rec)
	if err != nil {
		return zero, false, r.fail("find", id, err)
	}
	return typed, true, nil
}

// Invalidate publishes a BatchChange so every subscription re-fetches. Used
// after the store changed out of band, for example a snapshot restore.
func (r *Repository[T]) Invalidate() {
	if r.isClosed() {
		return
	}
	r.publish(BatchChange[T]())
}

// Notify turns a change committed through another repository into an event
// on this one. Content changes with a new value become Updated; anything else
// becomes BatchChange.
func (r *Repository[T]) Notify(change domain.Change) {
	if change.Entity != r.entity || r.isClosed() {
		return
	}
	if change.Action == domain.ActionUpdate && change.After != nil {
		if typed, ok := change.After.(T); ok {
			r.publish(Updated(typed))
			return
		}
	}
	r.publish(BatchChange[T]())
}

// Close disposes every live subscription and rejects further calls with
// domain.ErrClosed. The underlying store stays open.
func (r *Repository[T]) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	subs := make([]*Subscription[T], 0, len(r.subs))
	for s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

func (r *Repository[T]) track(s *Subscription[T]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.subs[s] = struct{}{}
	subscriptionsActive.WithLabelValues(r.cfg.name).Inc()
	return true
}

func (r *Repository[T]) forget(s *Subscription[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[s]; ok {
		delete(r.subs, s)
		subscriptionsActive.WithLabelValues(r.cfg.name).Dec()
	}
}

// Subscriptions returns the number of live ObserveAll subscriptions.
func (r *Repository[T]) Subscriptions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
