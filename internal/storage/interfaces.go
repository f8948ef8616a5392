package storage

import (
	"context"

	"solana-token-console/internal/domain"
)

// ActivityStore provides access to token_activity storage.
type ActivityStore interface {
	// Insert adds a new activity. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, a *domain.Activity) error

	// GetByID retrieves an activity by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Activity, error)

	// ListByIdentity returns up to limit activities of identity, newest first.
	// limit <= 0 means no limit.
	ListByIdentity(ctx context.Context, identity string, limit int) ([]*domain.Activity, error)

	// ListByMint returns all activities for a mint, oldest first.
	ListByMint(ctx context.Context, mint string) ([]*domain.Activity, error)
}

// ValidateActivity checks the fields every store requires.
func ValidateActivity(a *domain.Activity) error {
	if a == nil || a.ID == "" || a.Identity == "" || a.Kind == "" || a.Status == "" {
		return ErrInvalidInput
	}
	return nil
}
