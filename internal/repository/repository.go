package repository

import (
	"alcyxob/fitness-share/internal/domain" // Import our defined domain models
	"context"                               // Standard for request-scoped deadlines, cancellation signals, etc.
	"time"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrDuplicateKey = RepositoryError("duplicate key")
	// ErrNotResolvable means the record exists but is inactive or expired.
	ErrNotResolvable = RepositoryError("not resolvable")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// SharedPlanRepository is the plan store behind the share service.
// IDs passed in are already normalized (trimmed, upper-case).
// Each backend owns its own concurrency control; the uniqueness guarantee on the
// share ID lives here, not in the service.
type SharedPlanRepository interface {
	Exists(ctx context.Context, id string) (bool, error)
	// Insert stores a new share. Returns ErrDuplicateKey if the ID is already taken.
	Insert(ctx context.Context, plan *domain.SharedPlan) error
	// FindByID returns ErrNotFound when no share has this ID.
	FindByID(ctx context.Context, id string) (*domain.SharedPlan, error)
	// Update applies the non-empty patch fields and sets updatedAt to at.
	Update(ctx context.Context, id string, patch domain.SharePatch, at time.Time) error
	// RecordAccess adds exactly one to accessCount, sets lastAccessedAt to at and
	// returns the count after the increment. The check and the increment are one
	// atomic step: a record that is inactive or expired at `at` is left untouched
	// and ErrNotResolvable is returned.
	RecordAccess(ctx context.Context, id string, at time.Time) (int64, error)
	// Delete removes the share permanently.
	Delete(ctx context.Context, id string) error
}
