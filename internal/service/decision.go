package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/indiehoy/discount-supervision/internal/mailer"
	"github.com/indiehoy/discount-supervision/internal/matcher"
	"github.com/indiehoy/discount-supervision/internal/model"
	"github.com/indiehoy/discount-supervision/internal/queue"
	"github.com/indiehoy/discount-supervision/internal/repository"
)

// ErrInvalidRequest is returned for requests that fail basic shape
// validation (missing email, query too short). These never produce a
// queue item.
var ErrInvalidRequest = errors.New("invalid discount request")

// DiscountRequest is one incoming discount request. RequestID is the
// idempotency key; when the client supplies none the engine generates
// one, which makes the request safe to store but not safe to retry.
type DiscountRequest struct {
	RequestID string `json:"request_id"`
	UserEmail string `json:"user_email"`
	ShowQuery string `json:"show_query"`
}

// DecisionEngine turns a discount request into exactly one pending
// supervision queue item. It never sends email and never auto-approves
// anything past the queue: every outcome, approval included, waits for
// a human reviewer.
type DecisionEngine struct {
	shows     *repository.ShowRepo
	queueRepo *repository.QueueRepo
	pre       *Prefilter
	renderer  *mailer.Renderer
	match     matcher.Config
}

// NewDecisionEngine wires the engine's collaborators.
func NewDecisionEngine(shows *repository.ShowRepo, queueRepo *repository.QueueRepo, pre *Prefilter, renderer *mailer.Renderer, match matcher.Config) *DecisionEngine {
	return &DecisionEngine{shows: shows, queueRepo: queueRepo, pre: pre, renderer: renderer, match: match}
}

// Submit processes one discount request end to end: validation, the
// membership prefilter, catalog matching, quota reservation and queue
// insertion. It always returns the queue item that now represents the
// request, whether that item was created by this call or by an earlier
// one carrying the same request id.
func (e *DecisionEngine) Submit(ctx context.Context, req DiscountRequest) (*model.SupervisionQueueItem, error) {
	req.UserEmail = strings.ToLower(strings.TrimSpace(req.UserEmail))
	req.ShowQuery = strings.TrimSpace(req.ShowQuery)
	if req.UserEmail == "" || !strings.Contains(req.UserEmail, "@") {
		return nil, fmt.Errorf("%w: user_email", ErrInvalidRequest)
	}
	if len([]rune(req.ShowQuery)) < 2 {
		return nil, fmt.Errorf("%w: show_query must be at least 2 characters", ErrInvalidRequest)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	// Fast idempotency path. The unique index on request_id is the
	// real guarantee; this read only avoids doing the full pipeline
	// for obvious retries.
	if existing, err := e.queueRepo.GetByRequestID(ctx, req.RequestID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrItemNotFound) {
		return nil, err
	}

	started := time.Now()

	user, reason, err := e.pre.Check(ctx, req.UserEmail)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return e.storeRejection(ctx, req, user, reason, model.SourcePrefilter, 1.0, started, nil)
	}

	shows, err := e.shows.ListActive(ctx, "")
	if err != nil {
		return nil, err
	}
	result, err := matcher.Match(req.ShowQuery, shows, e.match)
	if errors.Is(err, matcher.ErrQueryTooShort) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err != nil {
		return nil, err
	}

	switch result.Outcome {
	case matcher.NoMatch:
		// Deterministic rejection, same certainty as a prefilter failure:
		// no candidate cleared the minimum score, so there is nothing to
		// second-guess.
		return e.storeRejection(ctx, req, user, ReasonShowNotFound, model.SourceTemplate, 1.0, started, nil)
	case matcher.Ambiguous:
		return e.storeClarification(ctx, req, user, result, started)
	default:
		return e.storeApproval(ctx, req, user, result, started)
	}
}

// storeApproval reserves a quota slot and inserts the approved item as
// one transaction. Losing the race for the last slot degrades to a
// quota_exhausted rejection; a duplicate request id rolls the
// reservation back and returns the stored item.
func (e *DecisionEngine) storeApproval(ctx context.Context, req DiscountRequest, user *model.User, result matcher.Result, started time.Time) (*model.SupervisionQueueItem, error) {
	best := result.Best()
	show := best.Show

	item, err := model.NewQueueItem(req.RequestID, req.UserEmail, user.Name, req.ShowQuery,
		model.DecisionApproved, model.SourceTemplate, best.Score/100)
	if err != nil {
		return nil, err
	}
	item.ShowID = &show.ID
	item.ReservedSlot = true
	item.Reasoning = fmt.Sprintf("matched %q to show %d (%s) with score %.1f", req.ShowQuery, show.ID, show.Title, best.Score)

	subject, body, err := e.renderer.Render(mailer.TemplateApproval, ApprovalContext(user, &show, NewDiscountCode(show.Code)))
	if err != nil {
		return nil, err
	}
	item.EmailSubject = subject
	item.EmailContent = body
	setProcessing(item, started)

	tx, err := e.shows.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := e.shows.TryReserveTx(ctx, tx, show.ID); err != nil {
		if errors.Is(err, repository.ErrQuotaExhausted) {
			_ = tx.Rollback()
			committed = true
			extra := map[string]any{
				"show_title":  show.Title,
				"show_artist": show.Artist,
				"show_venue":  show.Venue,
			}
			return e.storeRejection(ctx, req, user, ReasonQuotaExhausted, model.SourceTemplate, best.Score/100, started, extra)
		}
		return nil, err
	}
	if err := e.queueRepo.InsertTx(ctx, tx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicateRequest) {
			_ = tx.Rollback()
			committed = true
			return e.queueRepo.GetByRequestID(ctx, req.RequestID)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	e.announce(ctx, item, show.Title)
	return item, nil
}

func (e *DecisionEngine) storeClarification(ctx context.Context, req DiscountRequest, user *model.User, result matcher.Result, started time.Time) (*model.SupervisionQueueItem, error) {
	item, err := model.NewQueueItem(req.RequestID, req.UserEmail, user.Name, req.ShowQuery,
		model.DecisionNeedsClarification, model.SourceTemplate, result.Best().Score/100)
	if err != nil {
		return nil, err
	}
	item.Reasoning = fmt.Sprintf("query %q matched %d candidate shows without a clear winner", req.ShowQuery, len(result.Candidates))

	subject, body, err := e.renderer.Render(mailer.TemplateClarification, map[string]any{
		"user_name":  user.Name,
		"show_query": req.ShowQuery,
		"candidates": FormatCandidates(result.Candidates),
	})
	if err != nil {
		return nil, err
	}
	item.EmailSubject = subject
	item.EmailContent = body
	setProcessing(item, started)

	return e.insert(ctx, item, "")
}

// storeRejection persists a rejection item. user may be nil when the
// email is unknown; the template then addresses the raw email address.
// extra carries template bindings beyond the standard member fields.
func (e *DecisionEngine) storeRejection(ctx context.Context, req DiscountRequest, user *model.User, reason string, source model.DecisionSource, confidence float64, started time.Time, extra map[string]any) (*model.SupervisionQueueItem, error) {
	name := req.UserEmail
	if user != nil {
		name = user.Name
	}
	item, err := model.NewQueueItem(req.RequestID, req.UserEmail, name, req.ShowQuery,
		model.DecisionRejected, source, confidence)
	if err != nil {
		return nil, err
	}
	item.Reasoning = "rejected: " + reason

	tctx := map[string]any{
		"user_name":  name,
		"user_email": req.UserEmail,
		"show_query": req.ShowQuery,
	}
	for k, v := range extra {
		tctx[k] = v
	}
	subject, body, err := e.renderer.Render(mailer.TemplateRejection+reason, tctx)
	if err != nil {
		return nil, err
	}
	item.EmailSubject = subject
	item.EmailContent = body
	setProcessing(item, started)

	return e.insert(ctx, item, "")
}

// insert stores an item that holds no reservation, falling back to the
// stored item on a request id collision.
func (e *DecisionEngine) insert(ctx context.Context, item *model.SupervisionQueueItem, showTitle string) (*model.SupervisionQueueItem, error) {
	if err := e.queueRepo.Insert(ctx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicateRequest) {
			return e.queueRepo.GetByRequestID(ctx, item.RequestID)
		}
		return nil, err
	}
	e.announce(ctx, item, showTitle)
	return item, nil
}

// announce publishes the queued-decision event. Failures are ignored:
// the queue item is already durable and the broker feed is advisory.
func (e *DecisionEngine) announce(ctx context.Context, item *model.SupervisionQueueItem, showTitle string) {
	_ = PublishDecisionQueued(ctx, queue.DecisionQueuedEvent{
		QueueItemID:  item.ID,
		RequestID:    item.RequestID,
		UserEmail:    item.UserEmail,
		UserName:     item.UserName,
		DecisionType: string(item.DecisionType),
		Source:       string(item.DecisionSource),
		ShowID:       item.ShowID,
		ShowTitle:    showTitle,
		Confidence:   item.ConfidenceScore,
		Reasoning:    item.Reasoning,
		QueuedAt:     item.CreatedAt.Format(time.RFC3339),
	})
}

func setProcessing(item *model.SupervisionQueueItem, started time.Time) {
	ms := time.Since(started).Milliseconds()
	item.ProcessingMS = &ms
}

// NewDiscountCode builds a redemption code for a show. The uuid tail
// makes codes unguessable while the show code keeps them legible at
// the box office.
func NewDiscountCode(showCode string) string {
	return fmt.Sprintf("DESC-%s-%s", strings.ToUpper(showCode), strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8]))
}

// ApprovalContext builds the template bindings for an approval email.
// It is shared with the supervision edit flow, which re-renders the
// email after a reviewer changes the resolved show.
func ApprovalContext(user *model.User, show *model.Show, code string) map[string]any {
	details := "Presentá tu código en la boletería del venue."
	if show.DiscountDetails != nil && *show.DiscountDetails != "" {
		details = *show.DiscountDetails
	}
	return map[string]any{
		"user_name":        user.Name,
		"show_title":       show.Title,
		"show_artist":      show.Artist,
		"show_venue":       show.Venue,
		"show_date":        show.ShowDate.Format("02/01/2006"),
		"discount_details": details,
		"discount_code":    code,
		"expiry_date":      show.ShowDate.Format("02/01/2006"),
	}
}

// FormatCandidates renders the ambiguous-match candidate list for the
// clarification email, capped at five entries.
func FormatCandidates(cands []matcher.Candidate) string {
	var b strings.Builder
	for i, c := range cands {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "• %s - %s en %s (%s)\n",
			c.Show.Title, c.Show.Artist, c.Show.Venue, c.Show.ShowDate.Format("02/01/2006"))
	}
	return strings.TrimRight(b.String(), "\n")
}
