package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/indiehoy/discount-supervision/internal/mailer"
	"github.com/indiehoy/discount-supervision/internal/model"
	"github.com/indiehoy/discount-supervision/internal/queue"
	"github.com/indiehoy/discount-supervision/internal/repository"
)

// ErrNoShowResolved is returned when a reviewer approves an item that
// has no show attached and supplies none; there is nothing to reserve
// a slot against.
var ErrNoShowResolved = errors.New("item has no resolved show")

// SupervisionService implements the reviewer workflow over queue
// items. Every mutating method opens a transaction, locks the item row
// and validates the action against the item's state, so concurrent
// reviewer actions on one item run strictly one after another and a
// sent item can never be altered again.
type SupervisionService struct {
	shows    *repository.ShowRepo
	queue    *repository.QueueRepo
	users    *repository.UserRepo
	renderer *mailer.Renderer
	sender   mailer.Sender
}

// NewSupervisionService wires the workflow's collaborators.
func NewSupervisionService(shows *repository.ShowRepo, queueRepo *repository.QueueRepo, users *repository.UserRepo, renderer *mailer.Renderer, sender mailer.Sender) *SupervisionService {
	return &SupervisionService{shows: shows, queue: queueRepo, users: users, renderer: renderer, sender: sender}
}

// List returns queue items for the review UI, newest first.
func (s *SupervisionService) List(ctx context.Context, status string, limit int) ([]model.SupervisionQueueItem, error) {
	return s.queue.ListByStatus(ctx, status, limit)
}

// Get fetches one queue item.
func (s *SupervisionService) Get(ctx context.Context, id uint64) (*model.SupervisionQueueItem, error) {
	return s.queue.GetByID(ctx, id)
}

// Stats returns the dashboard aggregates.
func (s *SupervisionService) Stats(ctx context.Context) (repository.QueueStats, error) {
	return s.queue.Stats(ctx)
}

// Approve marks an item approved, reserving a quota slot if the item
// does not already hold one. showID optionally overrides the resolved
// show, which is how a reviewer turns a needs_clarification item into
// an approval once the member answers. Moving an approval to a
// different show releases the old slot and reserves the new one in the
// same transaction, so the ledger never double-counts.
func (s *SupervisionService) Approve(ctx context.Context, id uint64, showID *uint64, reviewer string) (*model.SupervisionQueueItem, error) {
	return s.mutate(ctx, id, func(tx *sql.Tx, item *model.SupervisionQueueItem) error {
		if err := item.CanApply(model.ActionApprove); err != nil {
			return err
		}
		target := item.ShowID
		if showID != nil {
			target = showID
		}
		if target == nil {
			return ErrNoShowResolved
		}

		switch {
		case item.ReservedSlot && item.ShowID != nil && *item.ShowID == *target:
			// Slot already held against the right show.
		case item.ReservedSlot && item.ShowID != nil:
			if err := s.shows.ReleaseTx(ctx, tx, *item.ShowID); err != nil {
				return err
			}
			if err := s.shows.TryReserveTx(ctx, tx, *target); err != nil {
				return err
			}
		default:
			if err := s.shows.TryReserveTx(ctx, tx, *target); err != nil {
				return err
			}
		}

		show, err := s.showTx(ctx, tx, *target)
		if err != nil {
			return err
		}
		user, err := s.users.GetByEmail(ctx, item.UserEmail)
		if err != nil {
			return err
		}
		subject, body, err := s.renderer.Render(mailer.TemplateApproval,
			ApprovalContext(user, show, NewDiscountCode(show.Code)))
		if err != nil {
			return err
		}

		item.DecisionType = model.DecisionApproved
		item.ShowID = target
		item.ReservedSlot = true
		item.EmailSubject = subject
		item.EmailContent = body
		review(item, reviewer)
		return s.queue.UpdateReviewTx(ctx, tx, item)
	})
}

// Reject marks an item rejected and, when the item holds a quota
// slot, releases exactly that slot. The stored email content is left
// as-is for the reviewer to rewrite via Edit before sending.
func (s *SupervisionService) Reject(ctx context.Context, id uint64, reviewer string) (*model.SupervisionQueueItem, error) {
	return s.mutate(ctx, id, func(tx *sql.Tx, item *model.SupervisionQueueItem) error {
		if err := item.CanApply(model.ActionReject); err != nil {
			return err
		}
		if item.ReservedSlot && item.ShowID != nil {
			if err := s.shows.ReleaseTx(ctx, tx, *item.ShowID); err != nil {
				return err
			}
		}
		item.DecisionType = model.DecisionRejected
		item.ReservedSlot = false
		review(item, reviewer)
		return s.queue.UpdateReviewTx(ctx, tx, item)
	})
}

// EditRequest carries a reviewer's changes to an item's email. Subject
// and Content replace the stored message verbatim when set. Overrides
// re-render an approved item's email from its template with the given
// bindings replacing the defaults; an absent discount_code override
// regenerates the code.
type EditRequest struct {
	Subject   *string        `json:"subject"`
	Content   *string        `json:"content"`
	Overrides map[string]any `json:"overrides"`
}

// Edit updates the email of a pending item.
func (s *SupervisionService) Edit(ctx context.Context, id uint64, req EditRequest, reviewer string) (*model.SupervisionQueueItem, error) {
	return s.mutate(ctx, id, func(tx *sql.Tx, item *model.SupervisionQueueItem) error {
		if err := item.CanApply(model.ActionEdit); err != nil {
			return err
		}
		if len(req.Overrides) > 0 {
			if item.DecisionType != model.DecisionApproved || item.ShowID == nil {
				return fmt.Errorf("%w: template overrides require an approved item", model.ErrIllegalState)
			}
			show, err := s.showTx(ctx, tx, *item.ShowID)
			if err != nil {
				return err
			}
			user, err := s.users.GetByEmail(ctx, item.UserEmail)
			if err != nil {
				return err
			}
			tctx := ApprovalContext(user, show, NewDiscountCode(show.Code))
			for k, v := range req.Overrides {
				tctx[k] = v
			}
			subject, body, err := s.renderer.Render(mailer.TemplateApproval, tctx)
			if err != nil {
				return err
			}
			item.EmailSubject = subject
			item.EmailContent = body
		}
		if req.Subject != nil {
			item.EmailSubject = *req.Subject
		}
		if req.Content != nil {
			item.EmailContent = *req.Content
		}
		review(item, reviewer)
		return s.queue.UpdateReviewTx(ctx, tx, item)
	})
}

// Send delivers the item's email and moves it to the terminal sent
// status. The transport's delivery status is stored verbatim, so a
// failed send still closes the item; the reviewer sees the failure in
// email_delivery_status rather than a reopened workflow. Sending runs
// under the row lock, which is what guarantees a racing second Send
// observes sent and gets a conflict instead of mailing twice.
func (s *SupervisionService) Send(ctx context.Context, id uint64, reviewer string) (*model.SupervisionQueueItem, error) {
	item, err := s.mutate(ctx, id, func(tx *sql.Tx, item *model.SupervisionQueueItem) error {
		if err := item.CanApply(model.ActionSend); err != nil {
			return err
		}
		status, sendErr := s.sender.Send(ctx, item.UserEmail, item.EmailSubject, item.EmailContent)
		if status == "" {
			status = model.DeliveryFailed
		}
		_ = sendErr // reflected in the stored delivery status
		item.Status = model.StatusSent
		item.DeliveryStatus = status
		review(item, reviewer)
		return s.queue.UpdateReviewTx(ctx, tx, item)
	})
	if err != nil {
		return nil, err
	}

	_ = PublishEmailSent(ctx, queue.EmailSentEvent{
		QueueItemID:    item.ID,
		RequestID:      item.RequestID,
		UserEmail:      item.UserEmail,
		DecisionType:   string(item.DecisionType),
		DeliveryStatus: string(item.DeliveryStatus),
		ReviewedBy:     reviewer,
		SentAt:         time.Now().UTC().Format(time.RFC3339),
	})
	return item, nil
}

// AppendNote appends a timestamped reviewer note. This is the one
// mutation allowed on sent items.
func (s *SupervisionService) AppendNote(ctx context.Context, id uint64, note, reviewer string) (*model.SupervisionQueueItem, error) {
	return s.mutate(ctx, id, func(tx *sql.Tx, item *model.SupervisionQueueItem) error {
		line := fmt.Sprintf("\n[%s %s] %s", time.Now().UTC().Format("2006-01-02 15:04"), reviewer, note)
		return s.queue.AppendNoteTx(ctx, tx, item.ID, line)
	})
}

// mutate runs fn against the locked queue item inside a transaction
// and returns the item reloaded after commit.
func (s *SupervisionService) mutate(ctx context.Context, id uint64, fn func(tx *sql.Tx, item *model.SupervisionQueueItem) error) (*model.SupervisionQueueItem, error) {
	tx, err := s.queue.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	item, err := s.queue.GetByIDForUpdateTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(tx, item); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	return s.queue.GetByID(ctx, id)
}

// showTx reads a show inside the caller's transaction so the data seen
// matches the ledger state just mutated.
func (s *SupervisionService) showTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Show, error) {
	return s.shows.GetByIDTx(ctx, tx, id)
}

func review(item *model.SupervisionQueueItem, reviewer string) {
	now := time.Now().UTC()
	item.ReviewedAt = &now
	item.ReviewedBy = &reviewer
}
