package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/tracker/internal/platform/db"
)

type accountRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &accountRepoPG{pool: pool}
}

const userCols = `id, username, password_hash, is_active, created_at`

func (r *accountRepoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &u, err
}

func (r *accountRepoPG) CreateUser(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO users (id, username, password_hash, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		u.ID, u.Username, u.PasswordHash, u.IsActive).Scan(&u.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUsernameTaken
	}
	return err
}

func (r *accountRepoPG) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *accountRepoPG) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return r.scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username))
}

func (r *accountRepoPG) SetPassword(ctx context.Context, userID uuid.UUID, hash string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepoPG) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	p := &Profile{UserID: userID}
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT force_password_change FROM user_profiles WHERE user_id = $1`, userID).Scan(&p.ForcePasswordChange)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *accountRepoPG) SaveProfile(ctx context.Context, p *Profile) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO user_profiles (user_id, force_password_change) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET force_password_change = EXCLUDED.force_password_change`,
		p.UserID, p.ForcePasswordChange)
	return err
}
