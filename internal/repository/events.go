// Package repository implements observable repositories: generic CRUD over a
// domain.PersistentStore plus live, deduplicated ObserveAll subscriptions fed
// by a per-repository change bus.
package repository

import "classroom/pkg/domain"

// EventKind identifies the lifecycle stage carried by an Event.
type EventKind string

const (
	// KindCreated signals a new record.
	KindCreated EventKind = "created"
	// KindUpdated carries the new content of an existing record.
	KindUpdated EventKind = "updated"
	// KindDeleted signals a removed identity.
	KindDeleted EventKind = "deleted"
	// KindBatch signals that set membership changed in an unspecified way.
	KindBatch EventKind = "batch_change"
)

// Event is published once after a successful commit. It is never persisted or replayed.
type Event[T domain.Record] struct {
	Kind   EventKind
	Record T      // set for KindCreated and KindUpdated
	ID     string // set for KindCreated, KindUpdated and KindDeleted
}

// Created builds a KindCreated event.
func Created[T domain.Record](rec T) Event[T] {
	return Event[T]{Kind: KindCreated, Record: rec, ID: rec.Identity()}
}

// Updated builds a KindUpdated event.
func Updated[T domain.Record](rec T) Event[T] {
	return Event[T]{Kind: KindUpdated, Record: rec, ID: rec.Identity()}
}

// Deleted builds a KindDeleted event.
func Deleted[T domain.Record](id string) Event[T] {
	return Event[T]{Kind: KindDeleted, ID: id}
}

// BatchChange builds a KindBatch event.
func BatchChange[T domain.Record]() Event[T] {
	return Event[T]{Kind: KindBatch}
}

// Structural reports whether the event changes set membership and therefore
// requires a re-fetch rather than an in-place merge.
func (e Event[T]) Structural() bool {
	return e.Kind != KindUpdated
}
