package treatment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
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

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const treatmentCols = `id, patient_id, date, value_paid, next_date, created_at`

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var (
		t        Treatment
		date     time.Time
		nextDate *time.Time
	)
	if err := row.Scan(&t.ID, &t.PatientID, &date, &t.ValuePaid, &nextDate, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Date = civil.DateOf(date)
	if nextDate != nil {
		d := civil.DateOf(*nextDate)
		t.NextDate = &d
	}
	return &t, nil
}

func dateParam(d *civil.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.In(time.UTC)
	return &t
}

func numericParam(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func (r *repoPG) Create(ctx context.Context, t *Treatment) error {
	t.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO treatments (id, patient_id, date, value_paid, next_date)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING created_at`,
		t.ID, t.PatientID, t.Date.In(time.UTC), numericParam(t.ValuePaid), dateParam(t.NextDate),
	).Scan(&t.CreatedAt)
}

func (r *repoPG) CreateItems(ctx context.Context, items []*Item) error {
	if len(items) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO treatment_items (id, treatment_id, asset_id, quantity, position) VALUES `)
	args := make([]interface{}, 0, len(items)*5)
	byID := make(map[uuid.UUID]*Item, len(items))
	for i, it := range items {
		it.ID = uuid.New()
		byID[it.ID] = it
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d::numeric, $%d)", n+1, n+2, n+3, n+4, n+5)
		args = append(args, it.ID, it.TreatmentID, it.AssetID, it.Quantity.String(), it.Position)
	}
	sb.WriteString(` RETURNING id, created_at`)

	rows, err := r.conn(ctx).Query(ctx, sb.String(), args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id      uuid.UUID
			created time.Time
		)
		if err := rows.Scan(&id, &created); err != nil {
			return err
		}
		if it, ok := byID[id]; ok {
			it.CreatedAt = created
		}
	}
	return rows.Err()
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	t, err := scanTreatment(r.conn(ctx).QueryRow(ctx, `SELECT `+treatmentCols+` FROM treatments WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return t, err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Treatment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+treatmentCols+`
		FROM treatments
		WHERE patient_id = $1
		ORDER BY date DESC, created_at DESC, id DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Treatment
	for rows.Next() {
		t, err := scanTreatment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repoPG) ListItems(ctx context.Context, treatmentIDs []uuid.UUID) ([]*Item, error) {
	if len(treatmentIDs) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, treatment_id, asset_id, quantity, position, created_at
		FROM treatment_items
		WHERE treatment_id = ANY($1)
		ORDER BY treatment_id, position`, treatmentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.TreatmentID, &it.AssetID, &it.Quantity, &it.Position, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}

func (r *repoPG) ListUpcoming(ctx context.Context, patientID uuid.UUID) ([]*Upcoming, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, next_date
		FROM treatments
		WHERE patient_id = $1 AND next_date IS NOT NULL
		ORDER BY next_date ASC, id ASC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Upcoming
	for rows.Next() {
		var (
			u    Upcoming
			next time.Time
		)
		if err := rows.Scan(&u.ID, &next); err != nil {
			return nil, err
		}
		u.NextDate = civil.DateOf(next)
		out = append(out, &u)
	}
	return out, rows.Err()
}
