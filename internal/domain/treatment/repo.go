package treatment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Treatment) error
	// CreateItems inserts every item in one statement and assigns their ids.
	CreateItems(ctx context.Context, items []*Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Treatment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Treatment, error)
	ListItems(ctx context.Context, treatmentIDs []uuid.UUID) ([]*Item, error)
	ListUpcoming(ctx context.Context, patientID uuid.UUID) ([]*Upcoming, error)
}
