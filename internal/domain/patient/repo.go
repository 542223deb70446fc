package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, f ListFilter) ([]*Patient, error)
	Update(ctx context.Context, id uuid.UUID, p Patch) (*Patient, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
