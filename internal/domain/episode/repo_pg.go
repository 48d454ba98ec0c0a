package episode

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/tracker/internal/domain/record"
	"github.com/ehr/tracker/internal/platform/db"
)

type episodeRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &episodeRepoPG{pool: pool}
}

const episodeCols = `e.id, e.patient_id, e.category, e.active, e.date_of_admission, e.discharge_date,
	e.consistency_token, e.created_at, e.updated_at`

func (r *episodeRepoPG) scanRow(row pgx.Row) (*Episode, error) {
	var e Episode
	err := row.Scan(&e.ID, &e.PatientID, &e.Category, &e.Active, &e.DateOfAdmission, &e.DischargeDate,
		&e.ConsistencyToken, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

func (r *episodeRepoPG) Create(ctx context.Context, e *Episode) error {
	e.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO episodes (id, patient_id, category, active, date_of_admission, discharge_date, consistency_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		e.ID, e.PatientID, e.Category, e.Active, e.DateOfAdmission, e.DischargeDate, e.ConsistencyToken,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *episodeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Episode, error) {
	e, err := r.scanRow(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+episodeCols+` FROM episodes e WHERE e.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (r *episodeRepoPG) Update(ctx context.Context, e *Episode, oldToken string) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE episodes SET category = $2, active = $3, date_of_admission = $4, discharge_date = $5,
			consistency_token = $6, updated_at = NOW()
		WHERE id = $1 AND consistency_token = $7
		RETURNING updated_at`,
		e.ID, e.Category, e.Active, e.DateOfAdmission, e.DischargeDate, e.ConsistencyToken, oldToken,
	).Scan(&e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return record.ErrConsistency
	}
	return err
}

func (r *episodeRepoPG) ListActive(ctx context.Context, f Filter) ([]*Episode, error) {
	return r.list(ctx, `
		SELECT `+episodeCols+` FROM episodes e
		WHERE e.active
		  AND ($1 = '' OR EXISTS (
			SELECT 1 FROM taggings t JOIN teams tm ON tm.id = t.team_id
			WHERE t.episode_id = e.id AND tm.name = $1
			  AND ($2::uuid IS NULL OR t.user_id = $2)))
		ORDER BY e.created_at`, f.Team, f.UserID)
}

func (r *episodeRepoPG) HasActive(ctx context.Context, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM episodes WHERE patient_id = $1 AND active)`, patientID).Scan(&exists)
	return exists, err
}

func (r *episodeRepoPG) ListByPatients(ctx context.Context, patientIDs []uuid.UUID) ([]*Episode, error) {
	if len(patientIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+episodeCols+` FROM episodes e WHERE e.patient_id = ANY($1) ORDER BY e.created_at`, patientIDs)
}

func (r *episodeRepoPG) Taggings(ctx context.Context, episodeIDs []uuid.UUID) ([]Tagging, error) {
	if len(episodeIDs) == 0 {
		return nil, nil
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT t.episode_id, t.team_id, tm.name, t.user_id
		FROM taggings t JOIN teams tm ON tm.id = t.team_id
		WHERE t.episode_id = ANY($1)
		ORDER BY t.created_at`, episodeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Tagging
	for rows.Next() {
		var t Tagging
		if err := rows.Scan(&t.EpisodeID, &t.TeamID, &t.TeamName, &t.UserID); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *episodeRepoPG) AddTagging(ctx context.Context, t Tagging) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO taggings (id, episode_id, team_id, user_id) VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`, uuid.New(), t.EpisodeID, t.TeamID, t.UserID)
	return err
}

func (r *episodeRepoPG) RemoveTagging(ctx context.Context, t Tagging) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM taggings
		WHERE episode_id = $1 AND team_id = $2 AND user_id IS NOT DISTINCT FROM $3`,
		t.EpisodeID, t.TeamID, t.UserID)
	return err
}

func (r *episodeRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Episode, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Episode
	for rows.Next() {
		e, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
