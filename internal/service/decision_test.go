package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/indiehoy/discount-supervision/internal/mailer"
	"github.com/indiehoy/discount-supervision/internal/matcher"
	"github.com/indiehoy/discount-supervision/internal/model"
	"github.com/indiehoy/discount-supervision/internal/repository"
)

var showDate = time.Date(2026, 9, 15, 21, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) (*DecisionEngine, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	users := repository.NewUserRepo(db)
	shows := repository.NewShowRepo(db)
	queueRepo := repository.NewQueueRepo(db)
	pre := NewPrefilter(users, queueRepo, 24*time.Hour)
	engine := NewDecisionEngine(shows, queueRepo, pre, mailer.NewRenderer(), matcher.DefaultConfig())
	return engine, mock, func() { db.Close() }
}

func userColumns() []string {
	return []string{"id", "name", "email", "city", "favorite_genre",
		"subscription_active", "monthly_fee_current", "created_at", "updated_at"}
}

func showColumns() []string {
	return []string{"id", "code", "title", "artist", "venue", "show_date",
		"max_discounts", "granted_count", "active",
		"ticketing_link", "discount_details", "price_cents", "genre", "other_data", "created_at"}
}

func expectNoExistingItem(mock sqlmock.Sqlmock, requestID string) {
	mock.ExpectQuery("SELECT (.+) FROM supervision_queue WHERE request_id").
		WithArgs(requestID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
}

func expectMemberInGoodStanding(mock sqlmock.Sqlmock, email string) {
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs(email).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(5, "Clara", email, "Buenos Aires", "pop", true, true, now, now))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
}

func expectCatalog(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT (.+) FROM shows WHERE active = 1").
		WillReturnRows(rows)
}

func tiniCatalog() *sqlmock.Rows {
	return sqlmock.NewRows(showColumns()).
		AddRow(9, "TINI26", "Tini en vivo", "Tini", "Luna Park", showDate,
			30, 12, true, nil, "2x1 en boletería", nil, "pop", nil, showDate).
		AddRow(10, "PALM26", "Cumbia total", "Los Palmeras", "Teatro Vorterix", showDate.AddDate(0, 0, 3),
			20, 0, true, nil, nil, nil, "cumbia", nil, showDate)
}

func TestSubmitApprovesUniqueMatch(t *testing.T) {
	engine, mock, cleanup := newEngine(t)
	defer cleanup()

	expectNoExistingItem(mock, "req-a")
	expectMemberInGoodStanding(mock, "clara@example.com")
	expectCatalog(mock, tiniCatalog())

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE shows SET granted_count").
		WithArgs(uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO supervision_queue").
		WillReturnResult(sqlmock.NewResult(77, 1))
	mock.ExpectCommit()

	item, err := engine.Submit(context.Background(), DiscountRequest{
		RequestID: "req-a",
		UserEmail: "clara@example.com",
		ShowQuery: "quiero ir a ver a Tini",
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	if item.DecisionType != model.DecisionApproved {
		t.Errorf("decision = %s, want approved", item.DecisionType)
	}
	if item.ShowID == nil || *item.ShowID != 9 {
		t.Errorf("show_id = %v, want 9", item.ShowID)
	}
	if !item.ReservedSlot {
		t.Error("approved item must hold a reservation")
	}
	if item.Status != model.StatusPending {
		t.Errorf("status = %s, want pending; approval still needs review", item.Status)
	}
	if !strings.Contains(item.EmailContent, "DESC-TINI26-") {
		t.Errorf("email lacks discount code: %q", item.EmailContent)
	}
	if item.ID != 77 {
		t.Errorf("item.ID = %d, want 77", item.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSubmitRejectsInactiveSubscription(t *testing.T) {
	engine, mock, cleanup := newEngine(t)
	defer cleanup()

	now := time.Now().UTC()
	expectNoExistingItem(mock, "req-b")
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("moroso@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(6, "Martina", "moroso@example.com", nil, nil, false, true, now, now))
	mock.ExpectExec("INSERT INTO supervision_queue").
		WillReturnResult(sqlmock.NewResult(78, 1))

	item, err := engine.Submit(context.Background(), DiscountRequest{
		RequestID: "req-b",
		UserEmail: "moroso@example.com",
		ShowQuery: "tini",
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	if item.DecisionType != model.DecisionRejected {
		t.Errorf("decision = %s, want rejected", item.DecisionType)
	}
	if item.DecisionSource != model.SourcePrefilter {
		t.Errorf("source = %s, want prefilter", item.DecisionSource)
	}
	if item.ReservedSlot {
		t.Error("prefilter rejection must not reserve a slot")
	}
	if !strings.Contains(item.EmailContent, "suscripción") {
		t.Errorf("email should mention the inactive subscription: %q", item.EmailContent)
	}
}

func TestSubmitRejectsUnknownMember(t *testing.T) {
	engine, mock, cleanup := newEngine(t)
	defer cleanup()

	expectNoExistingItem(mock, "req-c")
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("nadie@example.com").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO supervision_queue").
		WillReturnResult(sqlmock.NewResult(79, 1))

	item, err := engine.Submit(context.Background(), DiscountRequest{
		RequestID: "req-c",
		UserEmail: "nadie@example.com",
		ShowQuery: "tini",
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	if item.DecisionType != model.DecisionRejected {
		t.Errorf("decision = %s, want rejected", item.DecisionType)
	}
	// No member record exists, so the item addresses the raw email.
	if item.UserName != "nadie@example.com" {
		t.Errorf("user_name = %q", item.UserName)
	}
}

func TestSubmitDuplicateGate(t *testing.T) {
	engine, mock, cleanup := newEngine(t)
	defer cleanup()

	now := time.Now().UTC()
	expectNoExistingItem(mock, "req-d")
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("clara@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(5, "Clara", "clara@example.com", nil, nil, true, true, now, now))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectExec("INSERT INTO supervision_queue").
		WillReturnResult(sqlmock.NewResult(80, 1))

	item, err := engine.Submit(context.Background(), DiscountRequest{
		RequestID: "req-d",
		UserEmail: "clara@example.com",
		ShowQuery: "tini",
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if item.DecisionType != model.DecisionRejected {
		t.Errorf("decision = %s, want rejected", item.DecisionType)
	}
	if item.Reasoning != "rejected: duplicate_recent_request" {
		t.Errorf("reasoning = %q", item.Reasoning)
	}
}

func TestSubmitNoMatchRejectsWithFullConfidence(t *testing.T) {
	engine, mock, cleanup := newEngine(t)
	defer cleanup()

	expectNoExistingItem(mock, "req-g")
	expectMemberInGoodStanding(mock, "clara@example.com")
	expectCatalog(mock, tiniCatalog())
	mock.ExpectExec("INSERT INTO supervision_queue").
		WillReturnResult(sqlmock.NewResult(83, 1))

	item, err := engine.Submit(context.Background(), DiscountRequest{
		RequestID: "req-g",
		UserEmail: "clara@example.com",
		ShowQuery: "zzz qqq",
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	if item.DecisionType != model.DecisionRejected {
		t.Errorf("decision = %s, want rejected", item.DecisionType)
	}
	if item.Reasoning != "rejected: show_not_found" {
		t.Errorf("reasoning = %q", item.Reasoning)
	}
	// A no-candidate outcome is as certain as a prefilter rejection.
	if item.ConfidenceScore != 1.0 {
		t.Errorf("confidence = %v, want 1.0", item.ConfidenceScore)
	}
	if item.ReservedSlot {
		t.Error("no-match rejection must not reserve a slot")
	}
}

func TestSubmitAmbiguousMatchAsksForClarification(t *testing.T) {
	engine, mock, cleanup := newEngine(t)
	defer cleanup()

	catalog := sqlmock.NewRows(showColumns()).
		AddRow(1, "DIL1", "Dillom en Cordoba", "Dillom", "Quality Arena", showDate,
			10, 0, true, nil, nil, nil, nil, nil, showDate).
		AddRow(2, "DIL2", "Dillom en Buenos Aires", "Dillom", "Movistar Arena", showDate.AddDate(0, 0, 5),
			10, 0, true, nil, nil, nil, nil, nil, showDate)

	expectNoExistingItem(mock, "req-e")
	expectMemberInGoodStanding(mock, "clara@example.com")
	expectCatalog(mock, catalog)
	mock.ExpectExec("INSERT INTO supervision_queue").
		WillReturnResult(sqlmock.NewResult(81, 1))

	item, err := engine.Submit(context.Background(), DiscountRequest{
		RequestID: "req-e",
		UserEmail: "clara@example.com",
		ShowQuery: "dillom",
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	if item.DecisionType != model.DecisionNeedsClarification {
		t.Errorf("decision = %s, want needs_clarification", item.DecisionType)
	}
	if item.ShowID != nil {
		t.Error("ambiguous match must not resolve a show")
	}
	if item.ReservedSlot {
		t.Error("ambiguous match must not reserve a slot")
	}
	if !strings.Contains(item.EmailContent, "Quality Arena") ||
		!strings.Contains(item.EmailContent, "Movistar Arena") {
		t.Errorf("clarification email should list both venues: %q", item.EmailContent)
	}
}

func TestSubmitQuotaExhaustedDegradesToRejection(t *testing.T) {
	engine, mock, cleanup := newEngine(t)
	defer cleanup()

	expectNoExistingItem(mock, "req-f")
	expectMemberInGoodStanding(mock, "clara@example.com")
	expectCatalog(mock, tiniCatalog())

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE shows SET granted_count").
		WithArgs(uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0)) // guard fails: quota full
	mock.ExpectRollback()
	mock.ExpectExec("INSERT INTO supervision_queue").
		WillReturnResult(sqlmock.NewResult(82, 1))

	item, err := engine.Submit(context.Background(), DiscountRequest{
		RequestID: "req-f",
		UserEmail: "clara@example.com",
		ShowQuery: "tini",
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	if item.DecisionType != model.DecisionRejected {
		t.Errorf("decision = %s, want rejected", item.DecisionType)
	}
	if item.ReservedSlot {
		t.Error("exhausted quota must leave no reservation")
	}
	if !strings.Contains(item.Reasoning, "quota_exhausted") {
		t.Errorf("reasoning = %q", item.Reasoning)
	}
}

func TestSubmitIdempotentRetryReturnsStoredItem(t *testing.T) {
	engine, mock, cleanup := newEngine(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM supervision_queue WHERE request_id").
		WithArgs("req-a").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "request_id", "user_email", "user_name", "show_id", "show_query",
			"decision_type", "decision_source", "confidence_score", "reasoning",
			"email_subject", "email_content", "status", "email_delivery_status", "reserved_slot",
			"supervisor_notes", "reviewed_at", "reviewed_by", "processing_ms", "created_at", "updated_at",
		}).AddRow(77, "req-a", "clara@example.com", "Clara", 9, "tini",
			"approved", "template", 0.97, "matched", "subject", "body",
			"pending", "unsent", true, nil, nil, nil, 12, now, now))

	item, err := engine.Submit(context.Background(), DiscountRequest{
		RequestID: "req-a",
		UserEmail: "clara@example.com",
		ShowQuery: "tini",
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if item.ID != 77 {
		t.Errorf("item.ID = %d, want the stored item", item.ID)
	}
	// No ledger statements were expected; a retry must never touch the quota.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSubmitValidatesInput(t *testing.T) {
	engine, _, cleanup := newEngine(t)
	defer cleanup()

	_, err := engine.Submit(context.Background(), DiscountRequest{UserEmail: "not-an-email", ShowQuery: "tini"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("bad email: err = %v, want ErrInvalidRequest", err)
	}

	_, err = engine.Submit(context.Background(), DiscountRequest{UserEmail: "a@b.com", ShowQuery: "x"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("short query: err = %v, want ErrInvalidRequest", err)
	}
}
