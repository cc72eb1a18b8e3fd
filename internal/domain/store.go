package domain

import (
	"context"
	"errors"
	"time"

	platformevents "github.com/qiuhuiming/titan-track/internal/platform/events"
)

var (
	// ErrEntityExists is returned when an insert collides with an id already stored for the kind.
	ErrEntityExists = errors.New("entity already exists")
	// ErrEntityNotFound is returned when an update targets an id the store does not hold for the user.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrConcurrentModification is returned when a version-checked update loses a race with another writer.
	ErrConcurrentModification = errors.New("entity modified concurrently")
)

// Collection is the per-kind view of one user's rows inside a transaction.
type Collection[T any] interface {
	// ChangedSince returns rows with updated_at >= since, or every row when since is nil.
	ChangedSince(ctx context.Context, since *time.Time) ([]T, error)
	Insert(ctx context.Context, entity T) error
	// Update persists entity, expecting the stored row to be at entity.Version-1.
	Update(ctx context.Context, entity T) error
	// All returns every row ordered by created_at then id.
	All(ctx context.Context) ([]T, error)
}

// Tx groups the collections touched by one sync request.
type Tx interface {
	Exercises() Collection[Exercise]
	Plans() Collection[WorkoutPlan]
	Entries() Collection[WorkoutEntry]
	RecordEvents(ctx context.Context, events []platformevents.Envelope) error
}

//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

// Store opens user-scoped transactions. fn's error rolls the transaction back.
type Store interface {
	InTx(ctx context.Context, userID string, fn func(Tx) error) error
}
