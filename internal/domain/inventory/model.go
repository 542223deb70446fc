package inventory

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Quantities travel as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Unit is the measure an asset is stocked in.
type Unit string

const (
	UnitML    Unit = "ml"
	UnitMG    Unit = "mg"
	UnitCount Unit = "un"
)

var countSpellings = []string{"un", "uni", "und", "unid", "unidade", "unidades"}

// NormalizeUnit maps free-form unit text onto ml, mg or un. Unknown input
// falls back to ml.
func NormalizeUnit(raw string) Unit {
	s := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	switch {
	case strings.Contains(s, "ml"):
		return UnitML
	case strings.Contains(s, "mg"):
		return UnitMG
	}
	for _, k := range countSpellings {
		if strings.Contains(s, k) {
			return UnitCount
		}
	}
	return UnitML
}

type Asset struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Laboratory string          `json:"laboratory"`
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       Unit            `json:"unit"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// AssetPatch carries the fields of a partial update; nil means unchanged.
type AssetPatch struct {
	Name       *string
	Laboratory *string
	Quantity   *decimal.Decimal
	Unit       *Unit
}

func (p AssetPatch) IsEmpty() bool {
	return p.Name == nil && p.Laboratory == nil && p.Quantity == nil && p.Unit == nil
}

// Movement is one row of the stock ledger: a single decrement and its effect.
type Movement struct {
	ID                uuid.UUID       `json:"id"`
	AssetID           uuid.UUID       `json:"asset_id"`
	TreatmentID       *uuid.UUID      `json:"treatment_id"`
	TreatmentItemID   *uuid.UUID      `json:"treatment_item_id"`
	Requested         decimal.Decimal `json:"requested"`
	Applied           decimal.Decimal `json:"applied"`
	ResultingQuantity decimal.Decimal `json:"resulting_quantity"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Decrement asks the ledger to remove Amount from an asset. The treatment
// references are recorded on the movement when set.
type Decrement struct {
	AssetID         uuid.UUID
	Amount          decimal.Decimal
	TreatmentID     *uuid.UUID
	TreatmentItemID *uuid.UUID
}

// DecrementResult reports what a decrement did. Applied is smaller than
// Requested when the floor at zero was hit.
type DecrementResult struct {
	AssetID   uuid.UUID       `json:"asset_id"`
	Requested decimal.Decimal `json:"requested"`
	Applied   decimal.Decimal `json:"applied"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// Depleted reports whether the asset is out of stock after the decrement.
func (r *DecrementResult) Depleted() bool {
	return r.Quantity.IsZero()
}

// CreateAssetRequest is the body of POST /api/assets. Quantity accepts a
// JSON number or a numeric string.
type CreateAssetRequest struct {
	Name       string      `json:"name" validate:"required"`
	Laboratory string      `json:"laboratory" validate:"required"`
	Quantity   interface{} `json:"quantity"`
	Unit       string      `json:"unit"`
}

// UpdateAssetRequest is the body of PATCH /api/assets/:id.
type UpdateAssetRequest struct {
	Name       *string     `json:"name"`
	Laboratory *string     `json:"laboratory"`
	Quantity   interface{} `json:"quantity"`
	Unit       *string     `json:"unit"`
}
