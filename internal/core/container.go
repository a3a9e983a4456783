// Package core wires the classroom application together: configuration,
// storage selection, the built-in rules, the three repositories and the
// snapshot archive. Construction is explicit; there is no global registry.
package core

import (
	"classroom/internal/blob"
	"classroom/internal/repository"
	"classroom/pkg/domain"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Container owns the store and every repository built on it.
type Container struct {
	Store    SnapshotStore
	Students *repository.Students
	Classes  *repository.Classes
	Exams    *repository.Exams
	Blobs    blob.Store

	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// ContainerOption customizes NewContainer.
type ContainerOption func(*containerOptions)

type containerOptions struct {
	logger   *slog.Logger
	blobs    blob.Store
	repoOpts []repository.Option
}

// WithLogger sets the container logger. Repositories derive theirs from it.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(o *containerOptions) { o.logger = logger }
}

// WithBlobStore sets the archive backend. Defaults to an in-memory store.
func WithBlobStore(store blob.Store) ContainerOption {
	return func(o *containerOptions) { o.blobs = store }
}

// WithRepositoryOptions appends options applied to all three repositories.
func WithRepositoryOptions(opts ...repository.Option) ContainerOption {
	return func(o *containerOptions) { o.repoOpts = append(o.repoOpts, opts...) }
}

// NewContainer builds the repositories over store. The container takes
// ownership of store and closes it in Close.
func NewContainer(store SnapshotStore, opts ...ContainerOption) *Container {
	o := containerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.blobs == nil {
		// Opening the memory driver cannot fail.
		o.blobs, _ = blob.Open(context.Background(), string(blob.DriverMemory), "", blob.S3Config{})
	}
	c := &Container{
		Store:  store,
		Blobs:  o.blobs,
		logger: o.logger.With("component", "container"),
	}
	base := append([]repository.Option{
		repository.WithLogger(o.logger),
		repository.WithChangeObserver(c.route),
	}, o.repoOpts...)
	c.Students = repository.NewStudents(store, base...)
	c.Classes = repository.NewClasses(store, base...)
	c.Exams = repository.NewExams(store, base...)
	return c
}

// Open builds the full application graph from cfg: rules engine, persistent
// store, blob store and repositories.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	store, err := OpenPersistentStore(ctx, cfg, NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageDriver, err)
	}
	blobs, err := blob.Open(ctx, cfg.BlobDriver, cfg.BlobRoot, cfg.S3)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open %s blob store: %w", cfg.BlobDriver, err)
	}
	logger.Info("storage ready", "driver", cfg.StorageDriver, "blob_driver", blobs.Driver())
	return NewContainer(store,
		WithLogger(logger),
		WithBlobStore(blobs),
		WithRepositoryOptions(repository.WithDebounce(cfg.Debounce), repository.WithUpdateBuffer(cfg.UpdateBuffer)),
	), nil
}

// route forwards side effects of a commit to the repositories of the other
// entity types. The originating repository already published its own event.
func (c *Container) route(origin domain.EntityType, changes []domain.Change) {
	for _, change := range changes {
		if change.Entity == origin {
			continue
		}
		switch change.Entity {
		case domain.EntityStudent:
			c.Students.Notify(change)
		case domain.EntityClass:
			c.Classes.Notify(change)
		case domain.EntityExam:
			c.Exams.Notify(change)
		default:
			c.logger.Warn("unroutable change", "entity", change.Entity, "id", change.ID)
		}
	}
}

// Invalidate makes every live subscription re-fetch.
func (c *Container) Invalidate() {
	c.Students.Invalidate()
	c.Classes.Invalidate()
	c.Exams.Invalidate()
}

// Close disposes the repositories and their subscriptions, then closes the
// store. It is safe to call more than once.
func (c *Container) Close() error {
	c.closeOnce.Do(func() {
		c.Students.Close()
		c.Classes.Close()
		c.Exams.Close()
		if err := c.Store.Close(); err != nil && !errors.Is(err, domain.ErrClosed) {
			c.closeErr = fmt.Errorf("close store: %w", err)
		}
	})
	return c.closeErr
}
