// Package migrate runs an ordered chain of schema steps against a versioned
// backend. Steps are plain data, so a chain can be exercised against an
// in-memory backend as easily as against a database.
package migrate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// NoVersion is the version of a store that has never been migrated.
const NoVersion = -1

var (
	ErrOutOfOrder   = errors.New("migration step out of order")
	ErrInvalidChain = errors.New("invalid migration chain")
)

// Step moves durable state from version From to version To.
type Step[T any] struct {
	From        int
	To          int
	Description string

	// IsApplied inspects durable state and reports whether the step's
	// transformation is already present.
	IsApplied func(ctx context.Context, tx T) (bool, error)
	Apply     func(ctx context.Context, tx T) error
}

// Backend gives the migrator transactions and a stored version marker.
type Backend[T any] interface {
	Transaction(ctx context.Context, fn func(tx T) error) error
	Version(ctx context.Context, tx T) (int, error)
	SetVersion(ctx context.Context, tx T, version int) error
}

// Status describes where a store stands relative to the chain.
type Status struct {
	Current int      `json:"current"`
	Target  int      `json:"target"`
	Pending []string `json:"pending"`
}

type Migrator[T any] struct {
	backend Backend[T]
	steps   []Step[T]
	logger  *zap.Logger
}

type Option[T any] func(*Migrator[T])

func WithLogger[T any](l *zap.Logger) Option[T] {
	return func(m *Migrator[T]) {
		m.logger = l
	}
}

// New validates that steps form one contiguous chain starting at NoVersion.
func New[T any](backend Backend[T], steps []Step[T], opts ...Option[T]) (*Migrator[T], error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrInvalidChain)
	}

	prev := NoVersion
	for i, s := range steps {
		if s.From != prev {
			return nil, fmt.Errorf("%w: step %d starts at %d, want %d", ErrInvalidChain, i, s.From, prev)
		}
		if s.To != s.From+1 {
			return nil, fmt.Errorf("%w: step %d goes from %d to %d", ErrInvalidChain, i, s.From, s.To)
		}
		if s.IsApplied == nil || s.Apply == nil {
			return nil, fmt.Errorf("%w: step %d has no IsApplied or Apply", ErrInvalidChain, i)
		}
		prev = s.To
	}

	m := &Migrator[T]{
		backend: backend,
		steps:   steps,
		logger:  zap.L(),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

func (m *Migrator[T]) Target() int {
	return m.steps[len(m.steps)-1].To
}

// Run brings the backend to Target. Each step, its precondition check and
// its marker update share one transaction. The first failure stops the run.
func (m *Migrator[T]) Run(ctx context.Context) error {
	for _, step := range m.steps {
		if err := m.runStep(ctx, step); err != nil {
			return fmt.Errorf("migration %d -> %d (%s) -> %w", step.From, step.To, step.Description, err)
		}
	}

	return nil
}

func (m *Migrator[T]) runStep(ctx context.Context, step Step[T]) error {
	return m.backend.Transaction(ctx, func(tx T) error {
		current, err := m.backend.Version(ctx, tx)
		if err != nil {
			return fmt.Errorf("m.backend.Version -> %w", err)
		}
		if current >= step.To {
			return nil
		}
		if current != step.From {
			return fmt.Errorf("%w: stored version is %d", ErrOutOfOrder, current)
		}

		applied, err := step.IsApplied(ctx, tx)
		if err != nil {
			return fmt.Errorf("step.IsApplied -> %w", err)
		}

		if applied {
			m.logger.Info("Migration already present, advancing marker",
				zap.Int("version", step.To),
				zap.String("description", step.Description))
		} else {
			m.logger.Info("Applying migration",
				zap.Int("version", step.To),
				zap.String("description", step.Description))
			if err = step.Apply(ctx, tx); err != nil {
				return fmt.Errorf("step.Apply -> %w", err)
			}
		}

		if err = m.backend.SetVersion(ctx, tx, step.To); err != nil {
			return fmt.Errorf("m.backend.SetVersion -> %w", err)
		}

		return nil
	})
}

func (m *Migrator[T]) Status(ctx context.Context) (Status, error) {
	var current int
	err := m.backend.Transaction(ctx, func(tx T) error {
		var err error
		current, err = m.backend.Version(ctx, tx)
		return err
	})
	if err != nil {
		return Status{}, fmt.Errorf("m.backend.Version -> %w", err)
	}

	st := Status{Current: current, Target: m.Target()}
	for _, step := range m.steps {
		if step.To > current {
			st.Pending = append(st.Pending, fmt.Sprintf("%d: %s", step.To, step.Description))
		}
	}

	return st, nil
}
