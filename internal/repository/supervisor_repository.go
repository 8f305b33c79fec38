package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/indiehoy/discount-supervision/internal/utils"
)

// Supervisor mirrors the 'supervisors' table. Supervisors are the
// humans who review queue items; their email becomes the reviewed_by
// value on the items they act on.
type Supervisor struct {
	ID           uint64
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type SupervisorRepo struct{ DB *sql.DB }

func NewSupervisorRepo(db *sql.DB) *SupervisorRepo { return &SupervisorRepo{DB: db} }

// Create inserts a supervisor and returns its ID.
func (r *SupervisorRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO supervisors (email, password_hash, role) VALUES (?,?,?)",
		email, hash, role)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return 0, ErrConflict
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a supervisor by normalized email.
func (r *SupervisorRepo) GetByEmail(ctx context.Context, email string) (Supervisor, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var s Supervisor
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,role,is_active,created_at,updated_at FROM supervisors WHERE email=? LIMIT 1",
		email).Scan(&s.ID, &s.Email, &s.PasswordHash, &s.Role, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// GetByID fetches a supervisor by id.
func (r *SupervisorRepo) GetByID(ctx context.Context, id uint64) (Supervisor, error) {
	var s Supervisor
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,role,is_active,created_at,updated_at FROM supervisors WHERE id=? LIMIT 1",
		id).Scan(&s.ID, &s.Email, &s.PasswordHash, &s.Role, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
