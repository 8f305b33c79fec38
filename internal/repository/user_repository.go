package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/indiehoy/discount-supervision/internal/model"
)

// UserRepo reads community members from the `users` table. Members are
// owned by the external membership system, so this repository is
// strictly read-only; subscription and payment flags arrive already
// computed.
type UserRepo struct{ db *sql.DB }

// NewUserRepo returns a UserRepo bound to the given database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, name, email, city, favorite_genre, subscription_active, monthly_fee_current, created_at, updated_at`

// GetByEmail fetches a member by normalized email. It returns
// ErrUserNotFound when no member exists.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? LIMIT 1`, email)
	return scanUser(row)
}

// GetByID fetches a member by id. It returns ErrUserNotFound when no
// member exists.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? LIMIT 1`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u     model.User
		city  sql.NullString
		genre sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &city, &genre,
		&u.SubscriptionActive, &u.MonthlyFeeCurrent, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if city.Valid {
		c := city.String
		u.City = &c
	}
	if genre.Valid {
		g := genre.String
		u.FavoriteGenre = &g
	}
	return &u, nil
}
