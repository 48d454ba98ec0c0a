package team

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/tracker/internal/platform/db"
)

type teamRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &teamRepoPG{pool: pool}
}

const teamCols = `id, name, title, active, restricted, sort_order`

func (r *teamRepoPG) scanRow(row pgx.Row) (*Team, error) {
	var t Team
	err := row.Scan(&t.ID, &t.Name, &t.Title, &t.Active, &t.Restricted, &t.Order)
	return &t, err
}

func (r *teamRepoPG) Create(ctx context.Context, t *Team) error {
	t.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO teams (id, name, title, active, restricted, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Title, t.Active, t.Restricted, t.Order)
	return err
}

func (r *teamRepoPG) GetByName(ctx context.Context, name string) (*Team, error) {
	t, err := r.scanRow(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+teamCols+` FROM teams WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (r *teamRepoPG) ListVisible(ctx context.Context, userID uuid.UUID) ([]*Team, error) {
	return r.list(ctx, `
		SELECT `+teamCols+` FROM teams t
		WHERE t.active
		  AND (NOT t.restricted OR EXISTS (
			SELECT 1 FROM team_members m WHERE m.team_id = t.id AND m.user_id = $1))
		ORDER BY t.sort_order, t.title`, userID)
}

func (r *teamRepoPG) AddMember(ctx context.Context, teamID, userID uuid.UUID) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO team_members (team_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, teamID, userID)
	return err
}

func (r *teamRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Team, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Team
	for rows.Next() {
		t, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}
