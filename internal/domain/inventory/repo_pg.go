package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type assetRepoPG struct {
	pool *pgxpool.Pool
	tx   *db.TxManager
}

func NewAssetRepoPG(pool *pgxpool.Pool) AssetRepository {
	return &assetRepoPG{pool: pool, tx: db.NewTxManager(pool)}
}

func (r *assetRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const assetCols = `id, name, laboratory, quantity, unit, created_at, updated_at`

func scanAsset(row pgx.Row) (*Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.Name, &a.Laboratory, &a.Quantity, &a.Unit, &a.CreatedAt, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return &a, err
}

func (r *assetRepoPG) Create(ctx context.Context, a *Asset) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO assets (id, name, laboratory, quantity, unit)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		a.ID, a.Name, a.Laboratory, a.Quantity.String(), string(a.Unit),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *assetRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Asset, error) {
	return scanAsset(r.conn(ctx).QueryRow(ctx, `SELECT `+assetCols+` FROM assets WHERE id = $1`, id))
}

func (r *assetRepoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.queryAssets(ctx, `SELECT `+assetCols+` FROM assets WHERE id = ANY($1)`, ids)
}

func (r *assetRepoPG) List(ctx context.Context) ([]*Asset, error) {
	return r.queryAssets(ctx, `SELECT `+assetCols+` FROM assets ORDER BY created_at DESC, id DESC`)
}

func (r *assetRepoPG) queryAssets(ctx context.Context, sql string, args ...interface{}) ([]*Asset, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *assetRepoPG) Update(ctx context.Context, id uuid.UUID, p AssetPatch) (*Asset, error) {
	var qty, unit *string
	if p.Quantity != nil {
		s := p.Quantity.String()
		qty = &s
	}
	if p.Unit != nil {
		s := string(*p.Unit)
		unit = &s
	}
	return scanAsset(r.conn(ctx).QueryRow(ctx, `
		UPDATE assets SET
			name = COALESCE($2, name),
			laboratory = COALESCE($3, laboratory),
			quantity = COALESCE($4::numeric, quantity),
			unit = COALESCE($5, unit),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+assetCols,
		id, p.Name, p.Laboratory, qty, unit))
}

func (r *assetRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// decrementSQL locks the row, floors the new quantity at zero and returns
// both the previous and the resulting quantity.
const decrementSQL = `
	UPDATE assets a
	SET quantity = GREATEST(0, COALESCE(prev.quantity, 0) - $2::numeric),
		updated_at = NOW()
	FROM (SELECT id, quantity FROM assets WHERE id = $1 FOR UPDATE) prev
	WHERE a.id = prev.id
	RETURNING COALESCE(prev.quantity, 0), a.quantity`

func (r *assetRepoPG) Decrement(ctx context.Context, d Decrement) (*DecrementResult, error) {
	res := &DecrementResult{AssetID: d.AssetID, Requested: d.Amount}

	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		var before decimal.Decimal
		err := r.conn(ctx).QueryRow(ctx, decrementSQL, d.AssetID, d.Amount.String()).Scan(&before, &res.Quantity)
		if db.IsNoRows(err) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("decrement asset %s: %w", d.AssetID, err)
		}
		res.Applied = before.Sub(res.Quantity)

		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO stock_movements (id, asset_id, treatment_id, treatment_item_id, requested, applied, resulting_quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), d.AssetID, d.TreatmentID, d.TreatmentItemID,
			res.Requested.String(), res.Applied.String(), res.Quantity.String())
		if err != nil {
			return fmt.Errorf("record stock movement for %s: %w", d.AssetID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *assetRepoPG) ListMovements(ctx context.Context, assetID uuid.UUID, limit, offset int) ([]*Movement, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE asset_id = $1`, assetID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, asset_id, treatment_id, treatment_item_id, requested, applied, resulting_quantity, created_at
		FROM stock_movements
		WHERE asset_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, assetID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.AssetID, &m.TreatmentID, &m.TreatmentItemID,
			&m.Requested, &m.Applied, &m.ResultingQuantity, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &m)
	}
	return items, total, rows.Err()
}
