package board

import (
	"context"

	"github.com/cedadev/ceda-status-bot/internal/domain"
)

// Repository defines the interface to the backing status store. Every
// successful Commit creates a new persisted revision; this is the sole
// persistence mechanism.
type Repository interface {
	// Fetch retrieves and parses the current dataset, including the
	// revision token of the content that was read.
	Fetch(ctx context.Context) (*domain.Dataset, error)

	// Commit writes the dataset back conditioned on ds.Revision matching
	// the store's current state, and returns the new revision token.
	// Returns ErrConflict when the revision is stale and
	// ErrStoreUnavailable on transport or auth failure.
	Commit(ctx context.Context, ds *domain.Dataset, author string) (string, error)
}
