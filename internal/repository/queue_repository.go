package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/indiehoy/discount-supervision/internal/model"
)

// QueueRepo persists supervision queue items. Each discount request
// produces exactly one row keyed by its request_id; the unique index
// on that column is what makes client retries idempotent. Reviewer
// mutations go through *Tx methods so the service layer can lock the
// row (SELECT ... FOR UPDATE) and serialize concurrent actions on the
// same item while leaving distinct items fully independent.
type QueueRepo struct{ db *sql.DB }

// NewQueueRepo returns a QueueRepo bound to the given database.
func NewQueueRepo(db *sql.DB) *QueueRepo { return &QueueRepo{db: db} }

// DB exposes the underlying handle for transaction control.
func (r *QueueRepo) DB() *sql.DB { return r.db }

const queueColumns = `id, request_id, user_email, user_name, show_id, show_query,
	decision_type, decision_source, confidence_score, reasoning,
	email_subject, email_content, status, email_delivery_status, reserved_slot,
	supervisor_notes, reviewed_at, reviewed_by, processing_ms, created_at, updated_at`

const queueInsert = `INSERT INTO supervision_queue
	(request_id, user_email, user_name, show_id, show_query,
	 decision_type, decision_source, confidence_score, reasoning,
	 email_subject, email_content, status, email_delivery_status, reserved_slot,
	 processing_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Insert stores a new queue item outside of any transaction. A unique
// key violation on request_id maps to ErrDuplicateRequest so callers
// can fall back to the stored item.
func (r *QueueRepo) Insert(ctx context.Context, item *model.SupervisionQueueItem) error {
	res, err := r.db.ExecContext(ctx, queueInsert, insertArgs(item)...)
	if err != nil {
		return mapDuplicate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = uint64(id)
	return nil
}

// InsertTx is Insert inside an existing transaction. It is used by the
// decision engine to make the quota reservation and the queue insert a
// single atomic unit: if the insert hits a duplicate request_id the
// whole transaction rolls back and the reservation is returned.
func (r *QueueRepo) InsertTx(ctx context.Context, tx *sql.Tx, item *model.SupervisionQueueItem) error {
	res, err := tx.ExecContext(ctx, queueInsert, insertArgs(item)...)
	if err != nil {
		return mapDuplicate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = uint64(id)
	return nil
}

func insertArgs(item *model.SupervisionQueueItem) []any {
	return []any{
		item.RequestID, item.UserEmail, item.UserName, item.ShowID, item.ShowQuery,
		string(item.DecisionType), string(item.DecisionSource), item.ConfidenceScore, item.Reasoning,
		item.EmailSubject, item.EmailContent, string(item.Status), string(item.DeliveryStatus), item.ReservedSlot,
		item.ProcessingMS, item.CreatedAt,
	}
}

// mapDuplicate translates a MySQL duplicate-key error (1062) on the
// request_id unique index into ErrDuplicateRequest.
func mapDuplicate(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return ErrDuplicateRequest
	}
	return err
}

// GetByRequestID fetches the item created for an idempotency key.
func (r *QueueRepo) GetByRequestID(ctx context.Context, requestID string) (*model.SupervisionQueueItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM supervision_queue WHERE request_id = ? LIMIT 1`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return oneItem(rows)
}

// GetByID fetches a queue item by primary key.
func (r *QueueRepo) GetByID(ctx context.Context, id uint64) (*model.SupervisionQueueItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM supervision_queue WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return oneItem(rows)
}

// GetByIDForUpdateTx fetches a queue item inside a transaction holding
// an exclusive row lock. Every reviewer action starts here, so two
// concurrent actions on the same item execute strictly one after the
// other and the second observes the first's committed state.
func (r *QueueRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.SupervisionQueueItem, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM supervision_queue WHERE id = ? FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return oneItem(rows)
}

// CountRecentNonRejected counts queue items for a member created at or
// after the cutoff whose decision is not rejected. The prefilter uses
// this for its duplicate gate: a member with a live recent request
// must wait for the answer before submitting again.
func (r *QueueRepo) CountRecentNonRejected(ctx context.Context, email string, since time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM supervision_queue
		 WHERE user_email = ? AND created_at >= ? AND decision_type <> 'rejected'`,
		email, since).Scan(&n)
	return n, err
}

// ListByStatus returns queue items newest first, optionally filtered
// by status. A zero limit falls back to 50, matching the review UI's
// default page size.
func (r *QueueRepo) ListByStatus(ctx context.Context, status string, limit int) ([]model.SupervisionQueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + queueColumns + ` FROM supervision_queue`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.SupervisionQueueItem, 0, limit)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// QueueStats aggregates the queue by workflow bucket for the review
// dashboard.
type QueueStats struct {
	ApprovedPending      int64 `json:"approved_pending"`
	RejectedPending      int64 `json:"rejected_pending"`
	ClarificationPending int64 `json:"clarification_pending"`
	Sent                 int64 `json:"sent"`
	Total                int64 `json:"total"`
}

// Stats counts items per (decision_type, status) bucket.
func (r *QueueRepo) Stats(ctx context.Context) (QueueStats, error) {
	var st QueueStats
	rows, err := r.db.QueryContext(ctx,
		`SELECT decision_type, status, COUNT(1) FROM supervision_queue GROUP BY decision_type, status`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var decision, status string
		var n int64
		if err := rows.Scan(&decision, &status, &n); err != nil {
			return st, err
		}
		st.Total += n
		if status == string(model.StatusSent) {
			st.Sent += n
			continue
		}
		switch model.DecisionType(decision) {
		case model.DecisionApproved:
			st.ApprovedPending += n
		case model.DecisionRejected:
			st.RejectedPending += n
		case model.DecisionNeedsClarification:
			st.ClarificationPending += n
		}
	}
	return st, rows.Err()
}

// UpdateReviewTx writes back the mutable review fields of an item the
// caller already holds locked via GetByIDForUpdateTx. The lock makes a
// plain update by id safe; there is no window for a lost update.
func (r *QueueRepo) UpdateReviewTx(ctx context.Context, tx *sql.Tx, item *model.SupervisionQueueItem) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE supervision_queue SET
			decision_type = ?, status = ?, email_delivery_status = ?, reserved_slot = ?,
			email_subject = ?, email_content = ?, supervisor_notes = ?,
			reviewed_at = ?, reviewed_by = ?, updated_at = NOW()
		 WHERE id = ?`,
		string(item.DecisionType), string(item.Status), string(item.DeliveryStatus), item.ReservedSlot,
		item.EmailSubject, item.EmailContent, item.SupervisorNotes,
		item.ReviewedAt, item.ReviewedBy, item.ID)
	return err
}

// AppendNoteTx appends a supervisor note. Notes remain writable after
// an item is sent, which is the one mutation the terminal state
// allows.
func (r *QueueRepo) AppendNoteTx(ctx context.Context, tx *sql.Tx, id uint64, note string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE supervision_queue
		 SET supervisor_notes = CONCAT(COALESCE(supervisor_notes, ''), ?), updated_at = NOW()
		 WHERE id = ?`, note, id)
	return err
}

func oneItem(rows *sql.Rows) (*model.SupervisionQueueItem, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrItemNotFound
	}
	return scanItem(rows)
}

func scanItem(rows *sql.Rows) (*model.SupervisionQueueItem, error) {
	var (
		it         model.SupervisionQueueItem
		showID     sql.NullInt64
		decision   string
		source     string
		status     string
		delivery   string
		notes      sql.NullString
		reviewedAt sql.NullTime
		reviewedBy sql.NullString
		procMS     sql.NullInt64
	)
	if err := rows.Scan(&it.ID, &it.RequestID, &it.UserEmail, &it.UserName, &showID, &it.ShowQuery,
		&decision, &source, &it.ConfidenceScore, &it.Reasoning,
		&it.EmailSubject, &it.EmailContent, &status, &delivery, &it.ReservedSlot,
		&notes, &reviewedAt, &reviewedBy, &procMS, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.DecisionType = model.DecisionType(decision)
	it.DecisionSource = model.DecisionSource(source)
	it.Status = model.Status(status)
	it.DeliveryStatus = model.DeliveryStatus(delivery)
	if showID.Valid {
		v := uint64(showID.Int64)
		it.ShowID = &v
	}
	if notes.Valid {
		v := notes.String
		it.SupervisorNotes = &v
	}
	if reviewedAt.Valid {
		v := reviewedAt.Time
		it.ReviewedAt = &v
	}
	if reviewedBy.Valid {
		v := reviewedBy.String
		it.ReviewedBy = &v
	}
	if procMS.Valid {
		v := procMS.Int64
		it.ProcessingMS = &v
	}
	return &it, nil
}
