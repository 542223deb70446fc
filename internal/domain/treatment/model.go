package treatment

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Treatment is a dated encounter for a patient. It is never mutated after
// creation.
type Treatment struct {
	ID        uuid.UUID           `json:"id"`
	PatientID uuid.UUID           `json:"patient_id"`
	Date      civil.Date          `json:"date"`
	ValuePaid decimal.NullDecimal `json:"value_paid"`
	NextDate  *civil.Date         `json:"next_date"`
	CreatedAt time.Time           `json:"created_at"`
}

// Item is one application: an asset and the quantity consumed, in submission
// order.
type Item struct {
	ID          uuid.UUID
	TreatmentID uuid.UUID
	AssetID     uuid.UUID
	Quantity    decimal.Decimal
	Position    int
	CreatedAt   time.Time
}

// ItemView is an item joined with the current name and unit of its asset.
// Both are empty when the asset no longer exists.
type ItemView struct {
	ID        uuid.UUID       `json:"id"`
	AssetID   uuid.UUID       `json:"asset_id"`
	AssetName string          `json:"asset_name"`
	Unit      string          `json:"unit"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// View is a treatment composed with its items.
type View struct {
	Treatment
	Items []ItemView `json:"items"`
}

// Upcoming is a scheduled follow-up application.
type Upcoming struct {
	ID       uuid.UUID  `json:"id"`
	NextDate civil.Date `json:"next_date"`
}

// CreateRequest is the canonical treatment submission, after aliases have
// been resolved by NormalizeRequest.
type CreateRequest struct {
	PatientID string        `json:"patient_id" validate:"required"`
	Date      string        `json:"date" validate:"required,datetime=2006-01-02"`
	ValuePaid interface{}   `json:"value_paid"`
	NextDate  string        `json:"next_date" validate:"omitempty,datetime=2006-01-02"`
	Items     []ItemRequest `json:"items" validate:"dive"`
}

type ItemRequest struct {
	AssetID  string      `json:"asset_id" validate:"required"`
	Quantity interface{} `json:"quantity"`
}

// input is a CreateRequest that passed validation.
type input struct {
	patientID uuid.UUID
	date      civil.Date
	valuePaid decimal.NullDecimal
	nextDate  *civil.Date
	items     []itemInput
}

type itemInput struct {
	assetID  uuid.UUID
	quantity decimal.Decimal
}
