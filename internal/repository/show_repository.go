package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/indiehoy/discount-supervision/internal/model"
)

// ShowRepo provides access to the show catalog and owns the quota
// ledger. The ledger is the granted_count column on each shows row;
// reserve and release are single guarded UPDATE statements so the
// check and the increment happen as one indivisible unit under the
// row lock. There is deliberately no read-then-write path.
type ShowRepo struct{ db *sql.DB }

// NewShowRepo returns a ShowRepo bound to the given database.
func NewShowRepo(db *sql.DB) *ShowRepo { return &ShowRepo{db: db} }

// DB exposes the underlying handle so services can open transactions
// spanning the ledger and the supervision queue.
func (r *ShowRepo) DB() *sql.DB { return r.db }

const showColumns = `id, code, title, artist, venue, show_date, max_discounts, granted_count, active, ticketing_link, discount_details, price_cents, genre, other_data, created_at`

// ListActive returns all shows that are open for discount requests,
// ordered by show date so the matcher's tie-break is deterministic.
// An optional free-text filter restricts by title, artist or venue
// (case-insensitive LIKE, same shape as the public search endpoint).
func (r *ShowRepo) ListActive(ctx context.Context, q string) ([]model.Show, error) {
	query := `SELECT ` + showColumns + ` FROM shows WHERE active = 1`
	args := []any{}
	if q != "" {
		needle := "%" + strings.ToLower(q) + "%"
		query += ` AND (LOWER(title) LIKE ? OR LOWER(artist) LIKE ? OR LOWER(venue) LIKE ?)`
		args = append(args, needle, needle, needle)
	}
	query += ` ORDER BY show_date ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Show, 0)
	for rows.Next() {
		s, err := scanShow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID fetches a single show. Returns ErrShowNotFound when absent.
func (r *ShowRepo) GetByID(ctx context.Context, id uint64) (*model.Show, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+showColumns+` FROM shows WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrShowNotFound
	}
	return scanShow(rows)
}

// GetByIDTx fetches a show inside the caller's transaction, so a read
// following TryReserveTx or ReleaseTx observes the ledger state that
// transaction just wrote.
func (r *ShowRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Show, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+showColumns+` FROM shows WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrShowNotFound
	}
	return scanShow(rows)
}

// Remaining returns max_discounts - granted_count for a show. The
// value is computed in SQL so it is consistent with whatever the
// ledger holds at read time; it never goes below zero because the
// reserve statement cannot push granted_count past max_discounts.
func (r *ShowRepo) Remaining(ctx context.Context, id uint64) (uint32, error) {
	var remaining int64
	err := r.db.QueryRowContext(ctx,
		`SELECT max_discounts - granted_count FROM shows WHERE id = ?`, id).Scan(&remaining)
	if err == sql.ErrNoRows {
		return 0, ErrShowNotFound
	}
	if err != nil {
		return 0, err
	}
	if remaining < 0 {
		remaining = 0
	}
	return uint32(remaining), nil
}

// TryReserveTx consumes one discount slot for the show inside the
// caller's transaction. The guard `granted_count < max_discounts` in
// the UPDATE itself is the exclusion primitive: when two transactions
// race for the last slot, the second one blocks on the row lock and
// then matches zero rows, yielding ErrQuotaExhausted. The caller must
// commit or roll back the transaction; a rollback returns the slot.
func (r *ShowRepo) TryReserveTx(ctx context.Context, tx *sql.Tx, showID uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE shows SET granted_count = granted_count + 1
		 WHERE id = ? AND active = 1 AND granted_count < max_discounts`, showID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrQuotaExhausted
	}
	return nil
}

// ReleaseTx gives one slot back, guarded so the ledger can never go
// negative. Matching zero rows means the caller tried to release a
// slot that was never reserved, which indicates a bookkeeping bug in
// the caller and is surfaced loudly instead of being ignored.
func (r *ShowRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, showID uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE shows SET granted_count = granted_count - 1
		 WHERE id = ? AND granted_count > 0`, showID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("release without reservation")
	}
	return nil
}

// scanShow reads one shows row from either a *sql.Rows positioned on a
// row. other_data is stored as JSON and decoded into a string map;
// NULL and empty payloads both yield a nil map.
func scanShow(rows *sql.Rows) (*model.Show, error) {
	var (
		s          model.Show
		link       sql.NullString
		details    sql.NullString
		priceCents sql.NullInt64
		genre      sql.NullString
		otherData  sql.NullString
	)
	if err := rows.Scan(&s.ID, &s.Code, &s.Title, &s.Artist, &s.Venue, &s.ShowDate,
		&s.MaxDiscounts, &s.GrantedCount, &s.Active,
		&link, &details, &priceCents, &genre, &otherData, &s.CreatedAt); err != nil {
		return nil, err
	}
	if link.Valid {
		v := link.String
		s.TicketingLink = &v
	}
	if details.Valid {
		v := details.String
		s.DiscountDetails = &v
	}
	if priceCents.Valid {
		v := uint32(priceCents.Int64)
		s.PriceCents = &v
	}
	if genre.Valid {
		v := genre.String
		s.Genre = &v
	}
	if otherData.Valid && otherData.String != "" {
		m := map[string]string{}
		if err := json.Unmarshal([]byte(otherData.String), &m); err == nil {
			s.OtherData = m
		}
	}
	return &s, nil
}
