package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/tracker/internal/platform/db"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `p.id, p.created_at`

func (r *patientRepoPG) scanRow(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.CreatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patients (id) VALUES ($1) RETURNING created_at`, p.ID).Scan(&p.CreatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanRow(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patients p WHERE p.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *patientRepoPG) FindByHospitalNumber(ctx context.Context, hospitalNumber string) (*Patient, error) {
	p, err := r.scanRow(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+patientCols+` FROM patients p
		JOIN records d ON d.patient_id = p.id AND d.kind = $1
		WHERE LOWER(d.data->>'hospital_number') = LOWER($2)
		ORDER BY p.created_at
		LIMIT 1`, Demographics, hospitalNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *patientRepoPG) Search(ctx context.Context, q Query) ([]*Patient, error) {
	where := []string{"d.kind = $1"}
	args := []interface{}{Demographics}
	argIdx := 2

	if q.HospitalNumber != nil {
		where = append(where, fmt.Sprintf("LOWER(d.data->>'hospital_number') = LOWER($%d)", argIdx))
		args = append(args, *q.HospitalNumber)
		argIdx++
	}
	if q.Name != nil {
		where = append(where, fmt.Sprintf("d.data->>'name' ILIKE $%d", argIdx))
		args = append(args, "%"+escapeLike(*q.Name)+"%")
	}

	query := `SELECT ` + patientCols + ` FROM patients p
		JOIN records d ON d.patient_id = p.id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY d.data->>'date_of_birth' NULLS LAST, p.created_at`

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
