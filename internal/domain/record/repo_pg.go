package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/tracker/internal/platform/db"
)

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &recordRepoPG{pool: pool}
}

const recordCols = `id, kind, patient_id, episode_id, data, consistency_token, created_at, updated_at`

func (r *recordRepoPG) scanRow(row pgx.Row) (*Record, error) {
	var rec Record
	var raw []byte
	err := row.Scan(&rec.ID, &rec.Kind, &rec.PatientID, &rec.EpisodeID, &raw,
		&rec.ConsistencyToken, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &rec.Data); err != nil {
		return nil, fmt.Errorf("decode record %s data: %w", rec.ID, err)
	}
	if rec.Data == nil {
		rec.Data = map[string]interface{}{}
	}
	return &rec, nil
}

func (r *recordRepoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	if rec.Data == nil {
		rec.Data = map[string]interface{}{}
	}
	raw, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("encode record data: %w", err)
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO records (id, kind, patient_id, episode_id, data, consistency_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		rec.ID, rec.Kind, rec.PatientID, rec.EpisodeID, raw, rec.ConsistencyToken,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := r.scanRow(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+recordCols+` FROM records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (r *recordRepoPG) Update(ctx context.Context, rec *Record, oldToken string) error {
	raw, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("encode record data: %w", err)
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE records SET data = $2, consistency_token = $3, updated_at = NOW()
		WHERE id = $1 AND consistency_token = $4
		RETURNING updated_at`,
		rec.ID, raw, rec.ConsistencyToken, oldToken,
	).Scan(&rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrConsistency
	}
	return err
}

func (r *recordRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *recordRepoPG) ListByEpisodes(ctx context.Context, episodeIDs []uuid.UUID) ([]*Record, error) {
	if len(episodeIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+recordCols+` FROM records WHERE episode_id = ANY($1) ORDER BY created_at, id`, episodeIDs)
}

func (r *recordRepoPG) ListByPatients(ctx context.Context, patientIDs []uuid.UUID) ([]*Record, error) {
	if len(patientIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+recordCols+` FROM records WHERE patient_id = ANY($1) ORDER BY created_at, id`, patientIDs)
}

func (r *recordRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Record, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}
