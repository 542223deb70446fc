package patient

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

type Patient struct {
	ID        uuid.UUID   `json:"id"`
	FullName  string      `json:"full_name"`
	Age       *int        `json:"age"`
	BirthDate *civil.Date `json:"birth_date"`
	Contact   *string     `json:"contact"`
	Email     *string     `json:"email"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Patch lists the fields to change; nil leaves a field as it is.
type Patch struct {
	FullName  *string
	Age       *int
	BirthDate *civil.Date
	Contact   *string
	Email     *string
}

func (p Patch) IsEmpty() bool {
	return p.FullName == nil && p.Age == nil && p.BirthDate == nil && p.Contact == nil && p.Email == nil
}

// ListFilter narrows ListPatients. Query matches full_name case-insensitively.
type ListFilter struct {
	Query  string
	Limit  int
	Offset int
}

type CreateRequest struct {
	FullName  string  `json:"full_name" validate:"required"`
	Age       *int    `json:"age" validate:"omitempty,gte=0,lte=150"`
	BirthDate *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Contact   *string `json:"contact"`
	Email     *string `json:"email" validate:"omitempty,email"`
}

type UpdateRequest struct {
	FullName  *string `json:"full_name"`
	Age       *int    `json:"age" validate:"omitempty,gte=0,lte=150"`
	BirthDate *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Contact   *string `json:"contact"`
	Email     *string `json:"email" validate:"omitempty,email"`
}
