package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/indiehoy/discount-supervision/internal/model"
)

func pendingItem(t *testing.T, requestID string) *model.SupervisionQueueItem {
	t.Helper()
	item, err := model.NewQueueItem(requestID, "clara@example.com", "Clara", "tini",
		model.DecisionApproved, model.SourceTemplate, 0.95)
	if err != nil {
		t.Fatalf("NewQueueItem: %v", err)
	}
	item.EmailSubject = "subject"
	item.EmailContent = "body"
	return item
}

func TestInsertAssignsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewQueueRepo(db)

	mock.ExpectExec("INSERT INTO supervision_queue").
		WillReturnResult(sqlmock.NewResult(42, 1))

	item := pendingItem(t, "req-1")
	if err := repo.Insert(context.Background(), item); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if item.ID != 42 {
		t.Errorf("item.ID = %d, want 42", item.ID)
	}
}

func TestInsertMapsDuplicateKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewQueueRepo(db)

	mock.ExpectExec("INSERT INTO supervision_queue").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'req-1'"})

	err = repo.Insert(context.Background(), pendingItem(t, "req-1"))
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("Insert() = %v, want ErrDuplicateRequest", err)
	}
}

func TestInsertPassesThroughOtherErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewQueueRepo(db)

	boom := &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}
	mock.ExpectExec("INSERT INTO supervision_queue").WillReturnError(boom)

	err = repo.Insert(context.Background(), pendingItem(t, "req-1"))
	if errors.Is(err, ErrDuplicateRequest) {
		t.Fatal("non-1062 error must not map to ErrDuplicateRequest")
	}
	if err == nil {
		t.Fatal("Insert() should propagate the error")
	}
}

func TestCountRecentNonRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewQueueRepo(db)

	since := time.Now().UTC().Add(-24 * time.Hour)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("clara@example.com", since).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(2))

	n, err := repo.CountRecentNonRejected(context.Background(), "clara@example.com", since)
	if err != nil {
		t.Fatalf("CountRecentNonRejected() error: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestGetByRequestIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewQueueRepo(db)

	mock.ExpectQuery("SELECT (.+) FROM supervision_queue WHERE request_id").
		WithArgs("req-missing").
		WillReturnRows(sqlmock.NewRows(queueTestColumns()))

	_, err = repo.GetByRequestID(context.Background(), "req-missing")
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("GetByRequestID() = %v, want ErrItemNotFound", err)
	}
}

func queueTestColumns() []string {
	return []string{
		"id", "request_id", "user_email", "user_name", "show_id", "show_query",
		"decision_type", "decision_source", "confidence_score", "reasoning",
		"email_subject", "email_content", "status", "email_delivery_status", "reserved_slot",
		"supervisor_notes", "reviewed_at", "reviewed_by", "processing_ms", "created_at", "updated_at",
	}
}
