package patient

import (
	"context"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

const patientCols = `id, full_name, age, birth_date, contact, email, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p     Patient
		birth *time.Time
	)
	err := row.Scan(&p.ID, &p.FullName, &p.Age, &birth, &p.Contact, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if birth != nil {
		d := civil.DateOf(*birth)
		p.BirthDate = &d
	}
	return &p, nil
}

func dateParam(d *civil.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.In(time.UTC)
	return &t
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, full_name, age, birth_date, contact, email)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		p.ID, p.FullName, p.Age, dateParam(p.BirthDate), p.Contact, p.Email,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Patient, error) {
	query := `SELECT ` + patientCols + ` FROM patients`
	args := []interface{}{}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		query += ` WHERE full_name ILIKE $1`
	}
	args = append(args, f.Limit, f.Offset)
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, id uuid.UUID, p Patch) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET
			full_name = COALESCE($2, full_name),
			age = COALESCE($3, age),
			birth_date = COALESCE($4, birth_date),
			contact = COALESCE($5, contact),
			email = COALESCE($6, email),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+patientCols,
		id, p.FullName, p.Age, dateParam(p.BirthDate), p.Contact, p.Email))
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
