package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/telemetry"
	"github.com/clinic/clinic/pkg/numeric"
	"github.com/clinic/clinic/pkg/validation"
)

var tracer = otel.Tracer("github.com/clinic/clinic/internal/domain/inventory")

const catalogKey = "assets:list"

// Cache is the subset of the Redis cache the service needs.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type Service struct {
	assets   AssetRepository
	cache    Cache
	cacheTTL time.Duration
	val      *validation.Validator
}

func NewService(assets AssetRepository) *Service {
	return &Service{assets: assets, val: validation.New()}
}

// SetCache enables cache-aside reads of the asset catalog.
func (s *Service) SetCache(c Cache, ttl time.Duration) {
	s.cache = c
	s.cacheTTL = ttl
}

// DecrementStock removes amount from the asset, flooring at zero. It joins the
// transaction carried by ctx when there is one.
func (s *Service) DecrementStock(ctx context.Context, d Decrement) (*DecrementResult, error) {
	if d.Amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if err := numeric.Quantity.Check(d.Amount); err != nil {
		return nil, invalid("amount %s", rangeMessage(err))
	}

	ctx, span := tracer.Start(ctx, "inventory.DecrementStock", trace.WithAttributes(
		attribute.String("asset.id", d.AssetID.String()),
		attribute.String("amount", d.Amount.String()),
	))
	defer span.End()

	res, err := s.assets.Decrement(ctx, d)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("applied", res.Applied.String()),
		attribute.String("quantity", res.Quantity.String()),
	)

	if db.TxFromContext(ctx) == nil {
		s.InvalidateCatalog(ctx)
	}
	return res, nil
}

// InvalidateCatalog drops the cached asset list. Failures are logged only.
func (s *Service) InvalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, catalogKey); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("asset catalog cache invalidation failed")
	}
}

func (s *Service) ListAssets(ctx context.Context) ([]*Asset, error) {
	if s.cache != nil {
		var cached []*Asset
		hit, err := s.cache.GetJSON(ctx, catalogKey, &cached)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("asset catalog cache read failed")
		}
		if hit {
			return cached, nil
		}
	}

	items, err := s.assets.List(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Asset{}
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, catalogKey, items, s.cacheTTL); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("asset catalog cache write failed")
		}
	}
	return items, nil
}

func (s *Service) GetAsset(ctx context.Context, id uuid.UUID) (*Asset, error) {
	return s.assets.GetByID(ctx, id)
}

// GetAssets loads the distinct assets among ids in one query, keyed by id.
// Unknown ids are absent from the map.
func (s *Service) GetAssets(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Asset, error) {
	seen := make(map[uuid.UUID]bool, len(ids))
	distinct := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			distinct = append(distinct, id)
		}
	}

	out := make(map[uuid.UUID]*Asset, len(distinct))
	if len(distinct) == 0 {
		return out, nil
	}
	items, err := s.assets.GetByIDs(ctx, distinct)
	if err != nil {
		return nil, err
	}
	for _, a := range items {
		out[a.ID] = a
	}
	return out, nil
}

func (s *Service) CreateAsset(ctx context.Context, req CreateAssetRequest) (*Asset, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Laboratory = strings.TrimSpace(req.Laboratory)
	if err := s.val.Struct(req); err != nil {
		return nil, invalid("%s", err.Error())
	}
	qty, err := positiveQuantity(req.Quantity)
	if err != nil {
		return nil, err
	}

	a := &Asset{
		Name:       req.Name,
		Laboratory: req.Laboratory,
		Quantity:   qty,
		Unit:       NormalizeUnit(req.Unit),
	}
	if err := s.assets.Create(ctx, a); err != nil {
		return nil, err
	}
	s.InvalidateCatalog(ctx)
	return a, nil
}

func (s *Service) UpdateAsset(ctx context.Context, id uuid.UUID, req UpdateAssetRequest) (*Asset, error) {
	var p AssetPatch
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, invalid("name must not be empty")
		}
		p.Name = &name
	}
	if req.Laboratory != nil {
		lab := strings.TrimSpace(*req.Laboratory)
		if lab == "" {
			return nil, invalid("laboratory must not be empty")
		}
		p.Laboratory = &lab
	}
	if req.Quantity != nil {
		qty, err := positiveQuantity(req.Quantity)
		if err != nil {
			return nil, err
		}
		p.Quantity = &qty
	}
	if req.Unit != nil {
		u := NormalizeUnit(*req.Unit)
		p.Unit = &u
	}
	if p.IsEmpty() {
		return nil, invalid("nothing to update")
	}

	a, err := s.assets.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.InvalidateCatalog(ctx)
	return a, nil
}

func (s *Service) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	if err := s.assets.Delete(ctx, id); err != nil {
		return err
	}
	s.InvalidateCatalog(ctx)
	return nil
}

func (s *Service) ListMovements(ctx context.Context, assetID uuid.UUID, limit, offset int) ([]*Movement, int, error) {
	if _, err := s.assets.GetByID(ctx, assetID); err != nil {
		return nil, 0, err
	}
	items, total, err := s.assets.ListMovements(ctx, assetID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*Movement{}
	}
	return items, total, nil
}

func positiveQuantity(v interface{}) (decimal.Decimal, error) {
	qty, err := numeric.Positive(v)
	if errors.Is(err, numeric.ErrMissing) {
		return decimal.Zero, invalid("quantity is required")
	}
	if err != nil {
		return decimal.Zero, invalid("quantity must be a number greater than zero")
	}
	if err := numeric.Quantity.Check(qty); err != nil {
		return decimal.Zero, invalid("quantity %s", rangeMessage(err))
	}
	return qty, nil
}

// rangeMessage strips the sentinel prefix from a numeric.Bounds error.
func rangeMessage(err error) string {
	return strings.TrimPrefix(err.Error(), numeric.ErrOutOfRange.Error()+": ")
}
