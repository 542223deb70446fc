package treatment

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinic/clinic/internal/domain/inventory"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/telemetry"
	"github.com/clinic/clinic/pkg/numeric"
	"github.com/clinic/clinic/pkg/validation"
)

var tracer = otel.Tracer("github.com/clinic/clinic/internal/domain/treatment")

// Ledger is the part of the inventory the recorder depends on.
type Ledger interface {
	DecrementStock(ctx context.Context, d inventory.Decrement) (*inventory.DecrementResult, error)
	GetAssets(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*inventory.Asset, error)
	InvalidateCatalog(ctx context.Context)
}

// TxRunner runs fn in a transaction carried by the context passed to fn.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	repo   Repository
	ledger Ledger
	tx     TxRunner
	pub    events.Publisher
	val    *validation.Validator
}

func NewService(repo Repository, ledger Ledger, tx TxRunner) *Service {
	return &Service{repo: repo, ledger: ledger, tx: tx, pub: events.Nop{}, val: validation.New()}
}

// SetPublisher sets where domain events go after a treatment is recorded.
func (s *Service) SetPublisher(p events.Publisher) {
	if p == nil {
		p = events.Nop{}
	}
	s.pub = p
}

// CreateTreatment records a treatment with its items and decrements stock
// for every item, all in one transaction. Nothing is written when any step
// fails.
func (s *Service) CreateTreatment(ctx context.Context, req CreateRequest) (*View, error) {
	in, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "treatment.CreateTreatment", trace.WithAttributes(
		attribute.String("patient.id", in.patientID.String()),
		attribute.Int("items", len(in.items)),
	))
	defer span.End()

	t := &Treatment{
		PatientID: in.patientID,
		Date:      in.date,
		ValuePaid: in.valuePaid,
		NextDate:  in.nextDate,
	}
	var results []*inventory.DecrementResult

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		results = results[:0]
		if err := s.repo.Create(ctx, t); err != nil {
			if db.IsForeignKeyViolation(err) {
				return invalid("patient not found")
			}
			return storageWrite("insert treatment", err)
		}

		items := make([]*Item, len(in.items))
		for i, li := range in.items {
			items[i] = &Item{TreatmentID: t.ID, AssetID: li.assetID, Quantity: li.quantity, Position: i}
		}
		if err := s.repo.CreateItems(ctx, items); err != nil {
			return storageWrite("insert items", err)
		}

		for _, it := range items {
			treatmentID, itemID := t.ID, it.ID
			res, err := s.ledger.DecrementStock(ctx, inventory.Decrement{
				AssetID:         it.AssetID,
				Amount:          it.Quantity,
				TreatmentID:     &treatmentID,
				TreatmentItemID: &itemID,
			})
			if errors.Is(err, inventory.ErrNotFound) {
				return invalid("asset not found: %s", it.AssetID)
			}
			if err != nil {
				return storageWrite("decrement stock", err)
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrValidation) && !errors.Is(err, ErrStorageWrite) {
		err = storageWrite("transaction", err)
	}
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("treatment.id", t.ID.String()))

	s.ledger.InvalidateCatalog(ctx)

	view, err := s.GetTreatment(ctx, t.ID)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	s.publish(ctx, view, results)
	return view, nil
}

func (s *Service) publish(ctx context.Context, view *View, results []*inventory.DecrementResult) {
	log := zerolog.Ctx(ctx)
	if err := s.pub.Publish(ctx, events.New(events.TreatmentRecorded, view)); err != nil {
		log.Warn().Err(err).Str("treatment_id", view.ID.String()).Msg("publish treatment.recorded failed")
	}

	// The last decrement per asset carries its final quantity.
	last := make(map[uuid.UUID]*inventory.DecrementResult, len(results))
	var order []uuid.UUID
	for _, r := range results {
		if _, ok := last[r.AssetID]; !ok {
			order = append(order, r.AssetID)
		}
		last[r.AssetID] = r
	}
	for _, id := range order {
		if !last[id].Depleted() {
			continue
		}
		evt := events.New(events.StockDepleted, map[string]interface{}{
			"asset_id":     id,
			"treatment_id": view.ID,
		})
		if err := s.pub.Publish(ctx, evt); err != nil {
			log.Warn().Err(err).Str("asset_id", id.String()).Msg("publish stock.depleted failed")
		}
	}
}

func (s *Service) validate(req CreateRequest) (*input, error) {
	if len(req.Items) == 0 {
		return nil, invalid("at least one item required")
	}
	if err := s.val.Struct(req); err != nil {
		return nil, invalid("%s", err.Error())
	}

	in := &input{}
	pid, err := uuid.Parse(req.PatientID)
	if err != nil {
		return nil, invalid("patient_id must be a valid UUID")
	}
	in.patientID = pid
	date, err := civil.ParseDate(req.Date)
	if err != nil {
		return nil, invalid("date must be a date in YYYY-MM-DD format")
	}
	in.date = date
	if req.NextDate != "" {
		next, err := civil.ParseDate(req.NextDate)
		if err != nil {
			return nil, invalid("next_date must be a date in YYYY-MM-DD format")
		}
		in.nextDate = &next
	}

	// value_paid is optional and lenient: anything that is not a number is
	// stored as NULL.
	if v, err := numeric.Parse(req.ValuePaid); err == nil {
		if v.IsNegative() {
			return nil, invalid("value_paid must not be negative")
		}
		if err := numeric.Money.Check(v); err != nil {
			return nil, invalid("value_paid %s", rangeMessage(err))
		}
		in.valuePaid = decimal.NewNullDecimal(v)
	}

	in.items = make([]itemInput, len(req.Items))
	for i, it := range req.Items {
		assetID, err := uuid.Parse(it.AssetID)
		if err != nil {
			return nil, invalid("items[%d].asset_id must be a valid UUID", i)
		}
		qty, err := numeric.Positive(it.Quantity)
		if err != nil {
			return nil, invalid("items[%d].quantity must be a number greater than zero", i)
		}
		if err := numeric.Quantity.Check(qty); err != nil {
			return nil, invalid("items[%d].quantity %s", i, rangeMessage(err))
		}
		in.items[i] = itemInput{assetID: assetID, quantity: qty}
	}
	return in, nil
}

// ListTreatments returns the patient's treatments newest first, each with
// its items. A patient without treatments yields an empty list.
func (s *Service) ListTreatments(ctx context.Context, patientID uuid.UUID) ([]*View, error) {
	ts, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, storageRead("list treatments", err)
	}
	return s.compose(ctx, ts)
}

func (s *Service) GetTreatment(ctx context.Context, id uuid.UUID) (*View, error) {
	t, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, storageRead("get treatment", err)
	}
	views, err := s.compose(ctx, []*Treatment{t})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

func (s *Service) ListUpcoming(ctx context.Context, patientID uuid.UUID) ([]*Upcoming, error) {
	out, err := s.repo.ListUpcoming(ctx, patientID)
	if err != nil {
		return nil, storageRead("list upcoming applications", err)
	}
	if out == nil {
		out = []*Upcoming{}
	}
	return out, nil
}

// compose attaches items and asset details with one query for all items and
// one for all distinct assets.
func (s *Service) compose(ctx context.Context, ts []*Treatment) ([]*View, error) {
	views := make([]*View, 0, len(ts))
	if len(ts) == 0 {
		return views, nil
	}

	ids := make([]uuid.UUID, len(ts))
	for i, t := range ts {
		ids[i] = t.ID
	}
	items, err := s.repo.ListItems(ctx, ids)
	if err != nil {
		return nil, storageRead("list items", err)
	}

	assetIDs := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		assetIDs = append(assetIDs, it.AssetID)
	}
	assets, err := s.ledger.GetAssets(ctx, assetIDs)
	if err != nil {
		return nil, storageRead("load assets", err)
	}

	byTreatment := make(map[uuid.UUID][]ItemView, len(ts))
	for _, it := range items {
		iv := ItemView{ID: it.ID, AssetID: it.AssetID, Quantity: it.Quantity}
		if a, ok := assets[it.AssetID]; ok {
			iv.AssetName = a.Name
			iv.Unit = string(a.Unit)
		}
		byTreatment[it.TreatmentID] = append(byTreatment[it.TreatmentID], iv)
	}

	for _, t := range ts {
		lines := byTreatment[t.ID]
		if lines == nil {
			lines = []ItemView{}
		}
		views = append(views, &View{Treatment: *t, Items: lines})
	}
	return views, nil
}

// rangeMessage strips the sentinel prefix from a numeric.Bounds error.
func rangeMessage(err error) string {
	return strings.TrimPrefix(err.Error(), numeric.ErrOutOfRange.Error()+": ")
}
