package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/indiehoy/discount-supervision/internal/mailer"
	"github.com/indiehoy/discount-supervision/internal/model"
	"github.com/indiehoy/discount-supervision/internal/repository"
)

// fakeSender records the last message and returns a canned status.
type fakeSender struct {
	to      string
	subject string
	status  model.DeliveryStatus
	err     error
	calls   int
}

func (f *fakeSender) Send(_ context.Context, to, subject, _ string) (model.DeliveryStatus, error) {
	f.calls++
	f.to = to
	f.subject = subject
	return f.status, f.err
}

func newSupervision(t *testing.T, sender mailer.Sender) (*SupervisionService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	svc := NewSupervisionService(
		repository.NewShowRepo(db),
		repository.NewQueueRepo(db),
		repository.NewUserRepo(db),
		mailer.NewRenderer(),
		sender,
	)
	return svc, mock, func() { db.Close() }
}

func queueCols() []string {
	return []string{
		"id", "request_id", "user_email", "user_name", "show_id", "show_query",
		"decision_type", "decision_source", "confidence_score", "reasoning",
		"email_subject", "email_content", "status", "email_delivery_status", "reserved_slot",
		"supervisor_notes", "reviewed_at", "reviewed_by", "processing_ms", "created_at", "updated_at",
	}
}

// itemRow builds one supervision_queue row for mocked selects.
func itemRow(decision, status string, showID interface{}, reserved bool) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(queueCols()).
		AddRow(7, "req-7", "clara@example.com", "Clara", showID, "tini",
			decision, "template", 0.95, "reasoning", "subject", "body",
			status, "unsent", reserved, nil, nil, nil, 12, now, now)
}

func expectLockedItem(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT (.+) FROM supervision_queue WHERE id = (.+) FOR UPDATE").
		WithArgs(uint64(7)).
		WillReturnRows(rows)
}

func expectReload(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT (.+) FROM supervision_queue WHERE id").
		WithArgs(uint64(7)).
		WillReturnRows(rows)
}

func expectShowByID(mock sqlmock.Sqlmock, id uint64) {
	mock.ExpectQuery("SELECT (.+) FROM shows WHERE id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(showColumns()).
			AddRow(id, "TINI26", "Tini en vivo", "Tini", "Luna Park", showDate,
				30, 13, true, nil, "2x1 en boletería", nil, "pop", nil, showDate))
}

func expectMember(mock sqlmock.Sqlmock) {
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("clara@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(5, "Clara", "clara@example.com", nil, nil, true, true, now, now))
}

func TestApproveClarificationReservesSlot(t *testing.T) {
	svc, mock, cleanup := newSupervision(t, &fakeSender{status: model.DeliverySent})
	defer cleanup()

	mock.ExpectBegin()
	expectLockedItem(mock, itemRow("needs_clarification", "pending", nil, false))
	mock.ExpectExec("UPDATE shows SET granted_count").
		WithArgs(uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectShowByID(mock, 9)
	expectMember(mock)
	mock.ExpectExec("UPDATE supervision_queue SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectReload(mock, itemRow("approved", "pending", 9, true))

	showID := uint64(9)
	item, err := svc.Approve(context.Background(), 7, &showID, "ana@indiehoy.com")
	if err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	if item.DecisionType != model.DecisionApproved {
		t.Errorf("decision = %s, want approved", item.DecisionType)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestApproveSwapsSlotBetweenShows(t *testing.T) {
	svc, mock, cleanup := newSupervision(t, &fakeSender{status: model.DeliverySent})
	defer cleanup()

	// The item already holds a slot against show 9; moving the approval
	// to show 10 must release the old slot and reserve the new one in
	// the same transaction, so the ledger never double-counts.
	mock.ExpectBegin()
	expectLockedItem(mock, itemRow("approved", "pending", 9, true))
	mock.ExpectExec("SET granted_count = granted_count - 1").
		WithArgs(uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1)) // release show 9
	mock.ExpectExec(`SET granted_count = granted_count \+ 1`).
		WithArgs(uint64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1)) // reserve show 10
	expectShowByID(mock, 10)
	expectMember(mock)
	mock.ExpectExec("UPDATE supervision_queue SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectReload(mock, itemRow("approved", "pending", 10, true))

	showID := uint64(10)
	item, err := svc.Approve(context.Background(), 7, &showID, "ana@indiehoy.com")
	if err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	if item.ShowID == nil || *item.ShowID != 10 {
		t.Errorf("show_id = %v, want 10", item.ShowID)
	}
	if !item.ReservedSlot {
		t.Error("moved approval must still hold a reservation")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestApproveWithoutShowFails(t *testing.T) {
	svc, mock, cleanup := newSupervision(t, &fakeSender{status: model.DeliverySent})
	defer cleanup()

	mock.ExpectBegin()
	expectLockedItem(mock, itemRow("needs_clarification", "pending", nil, false))
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), 7, nil, "ana@indiehoy.com")
	if !errors.Is(err, ErrNoShowResolved) {
		t.Fatalf("Approve() = %v, want ErrNoShowResolved", err)
	}
}

func TestApprovePropagatesQuotaExhaustion(t *testing.T) {
	svc, mock, cleanup := newSupervision(t, &fakeSender{status: model.DeliverySent})
	defer cleanup()

	mock.ExpectBegin()
	expectLockedItem(mock, itemRow("needs_clarification", "pending", nil, false))
	mock.ExpectExec("UPDATE shows SET granted_count").
		WithArgs(uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	showID := uint64(9)
	_, err := svc.Approve(context.Background(), 7, &showID, "ana@indiehoy.com")
	if !errors.Is(err, repository.ErrQuotaExhausted) {
		t.Fatalf("Approve() = %v, want ErrQuotaExhausted", err)
	}
}

func TestRejectReleasesHeldSlot(t *testing.T) {
	svc, mock, cleanup := newSupervision(t, &fakeSender{status: model.DeliverySent})
	defer cleanup()

	mock.ExpectBegin()
	expectLockedItem(mock, itemRow("approved", "pending", 9, true))
	mock.ExpectExec("UPDATE shows SET granted_count").
		WithArgs(uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1)) // the release
	mock.ExpectExec("UPDATE supervision_queue SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectReload(mock, itemRow("rejected", "pending", 9, false))

	item, err := svc.Reject(context.Background(), 7, "ana@indiehoy.com")
	if err != nil {
		t.Fatalf("Reject() error: %v", err)
	}
	if item.DecisionType != model.DecisionRejected {
		t.Errorf("decision = %s, want rejected", item.DecisionType)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRejectWithoutReservationSkipsLedger(t *testing.T) {
	svc, mock, cleanup := newSupervision(t, &fakeSender{status: model.DeliverySent})
	defer cleanup()

	// No ledger statement is expected between lock and update.
	mock.ExpectBegin()
	expectLockedItem(mock, itemRow("needs_clarification", "pending", nil, false))
	mock.ExpectExec("UPDATE supervision_queue SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectReload(mock, itemRow("rejected", "pending", nil, false))

	if _, err := svc.Reject(context.Background(), 7, "ana@indiehoy.com"); err != nil {
		t.Fatalf("Reject() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSendDeliversAndCloses(t *testing.T) {
	sender := &fakeSender{status: model.DeliverySent}
	svc, mock, cleanup := newSupervision(t, sender)
	defer cleanup()

	mock.ExpectBegin()
	expectLockedItem(mock, itemRow("approved", "pending", 9, true))
	mock.ExpectExec("UPDATE supervision_queue SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectReload(mock, itemRow("approved", "sent", 9, true))

	item, err := svc.Send(context.Background(), 7, "ana@indiehoy.com")
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if sender.calls != 1 {
		t.Errorf("sender called %d times, want 1", sender.calls)
	}
	if sender.to != "clara@example.com" {
		t.Errorf("sent to %q", sender.to)
	}
	if item.Status != model.StatusSent {
		t.Errorf("status = %s, want sent", item.Status)
	}
}

func TestSendOnSentItemConflicts(t *testing.T) {
	sender := &fakeSender{status: model.DeliverySent}
	svc, mock, cleanup := newSupervision(t, sender)
	defer cleanup()

	mock.ExpectBegin()
	expectLockedItem(mock, itemRow("approved", "sent", 9, true))
	mock.ExpectRollback()

	_, err := svc.Send(context.Background(), 7, "ana@indiehoy.com")
	if !errors.Is(err, model.ErrTerminalState) {
		t.Fatalf("Send() = %v, want ErrTerminalState", err)
	}
	if sender.calls != 0 {
		t.Error("no email may go out for a sent item")
	}
}

func TestSendStoresTransportFailureVerbatim(t *testing.T) {
	sender := &fakeSender{status: model.DeliveryFailed, err: errors.New("smtp 550")}
	svc, mock, cleanup := newSupervision(t, sender)
	defer cleanup()

	mock.ExpectBegin()
	expectLockedItem(mock, itemRow("approved", "pending", 9, true))
	mock.ExpectExec("UPDATE supervision_queue SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectReload(mock, itemRow("approved", "sent", 9, true))

	// A failed transport still closes the item; the failure lives in
	// email_delivery_status, not in a reopened workflow.
	if _, err := svc.Send(context.Background(), 7, "ana@indiehoy.com"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
}

func TestEditRejectsSentItem(t *testing.T) {
	svc, mock, cleanup := newSupervision(t, &fakeSender{status: model.DeliverySent})
	defer cleanup()

	mock.ExpectBegin()
	expectLockedItem(mock, itemRow("approved", "sent", 9, true))
	mock.ExpectRollback()

	subject := "nuevo asunto"
	_, err := svc.Edit(context.Background(), 7, EditRequest{Subject: &subject}, "ana@indiehoy.com")
	if !errors.Is(err, model.ErrTerminalState) {
		t.Fatalf("Edit() = %v, want ErrTerminalState", err)
	}
}

func TestEditReplacesSubjectAndContent(t *testing.T) {
	svc, mock, cleanup := newSupervision(t, &fakeSender{status: model.DeliverySent})
	defer cleanup()

	mock.ExpectBegin()
	expectLockedItem(mock, itemRow("approved", "pending", 9, true))
	mock.ExpectExec("UPDATE supervision_queue SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectReload(mock, itemRow("approved", "pending", 9, true))

	subject, content := "nuevo asunto", "nuevo cuerpo"
	if _, err := svc.Edit(context.Background(), 7, EditRequest{Subject: &subject, Content: &content}, "ana@indiehoy.com"); err != nil {
		t.Fatalf("Edit() error: %v", err)
	}
}

func TestAppendNoteAllowedAfterSent(t *testing.T) {
	svc, mock, cleanup := newSupervision(t, &fakeSender{status: model.DeliverySent})
	defer cleanup()

	mock.ExpectBegin()
	expectLockedItem(mock, itemRow("approved", "sent", 9, true))
	mock.ExpectExec("UPDATE supervision_queue").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectReload(mock, itemRow("approved", "sent", 9, true))

	if _, err := svc.AppendNote(context.Background(), 7, "verificado por telefono", "ana@indiehoy.com"); err != nil {
		t.Fatalf("AppendNote() error: %v", err)
	}
}

func TestActionOnMissingItem(t *testing.T) {
	svc, mock, cleanup := newSupervision(t, &fakeSender{status: model.DeliverySent})
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM supervision_queue WHERE id = (.+) FOR UPDATE").
		WithArgs(uint64(99)).
		WillReturnRows(sqlmock.NewRows(queueCols()))
	mock.ExpectRollback()

	_, err := svc.Reject(context.Background(), 99, "ana@indiehoy.com")
	if !errors.Is(err, repository.ErrItemNotFound) {
		t.Fatalf("Reject() = %v, want ErrItemNotFound", err)
	}
}
