package inventory

import (
	"context"

	"github.com/google/uuid"
)

type AssetRepository interface {
	Create(ctx context.Context, a *Asset) error
	GetByID(ctx context.Context, id uuid.UUID) (*Asset, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Asset, error)
	List(ctx context.Context) ([]*Asset, error)
	Update(ctx context.Context, id uuid.UUID, patch AssetPatch) (*Asset, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Decrement applies max(0, quantity - amount) in one statement and
	// appends the movement. It returns ErrNotFound for an unknown asset.
	Decrement(ctx context.Context, d Decrement) (*DecrementResult, error)
	ListMovements(ctx context.Context, assetID uuid.UUID, limit, offset int) ([]*Movement, int, error)
}
