package domain

import (
	"context"
	"slices"
	"strings"
)

// Predicate filters records. Stores evaluate predicates opaquely.
type Predicate func(Record) bool

// Order compares two records, returning a negative number when a sorts first.
type Order func(a, b Record) int

// Query selects records of a single entity type.
type Query struct {
	Entity  EntityType
	Where   Predicate
	OrderBy Order
	Limit   int
}

// All returns a query over every record of the entity type in default order.
func All(entity EntityType) Query {
	return Query{Entity: entity}
}

// Matches reports whether the record satisfies the query filter.
func (q Query) Matches(r Record) bool {
	if r == nil || r.Entity() != q.Entity {
		return false
	}
	return q.Where == nil || q.Where(r)
}

// DefaultOrder sorts by creation stamp, then identity.
func DefaultOrder(a, b Record) int {
	if c := a.Created().Compare(b.Created()); c != 0 {
		return c
	}
	return strings.Compare(a.Identity(), b.Identity())
}

// Apply filters, orders and limits records according to the query. Stores
// share it so every backend produces the same deterministic sequence.
func (q Query) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	order := q.OrderBy
	if order == nil {
		order = DefaultOrder
	}
	slices.SortStableFunc(out, func(a, b Record) int {
		if c := order(a, b); c != 0 {
			return c
		}
		return DefaultOrder(a, b)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	Fetch(q Query) []Record
	Find(entity EntityType, id string) (Record, bool)
}

// Transaction exposes the staged operations a persistence context supports
// within an atomic scope. Committing the transaction is the save step.
type Transaction interface {
	TransactionView
	// Insert stages a new record and returns it carrying its assigned identity.
	Insert(Record) (Record, error)
	// Update stages new content for an already-tracked record.
	Update(Record) (Record, error)
	Delete(Record) error
	// Tracks reports whether this context already holds the record.
	Tracks(Record) bool
}

// PersistentStore is the persistence context wrapped by repositories.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	Fetch(ctx context.Context, q Query) ([]Record, error)
	Count(ctx context.Context, q Query) (int, error)
	Find(ctx context.Context, entity EntityType, id string) (Record, bool, error)
	Close() error
}
