package service

import (
	"context"
	"errors"
	"time"

	"github.com/indiehoy/discount-supervision/internal/model"
	"github.com/indiehoy/discount-supervision/internal/repository"
)

// Rejection reason codes produced by the prefilter. They double as the
// suffix of the rejection email template, so every code here must have
// a matching template registered in the mailer package.
const (
	ReasonUserNotFound     = "user_not_found"
	ReasonSubscriptionOff  = "subscription_inactive"
	ReasonPaymentOverdue   = "payment_overdue"
	ReasonDuplicateRequest = "duplicate_recent_request"
	ReasonShowNotFound     = "show_not_found"
	ReasonQuotaExhausted   = "quota_exhausted"
)

// Prefilter runs the cheap membership checks before any catalog
// matching happens. The checks run in a fixed order and the first
// failure wins, so a non-member never learns whether a show exists and
// the duplicate gate is only consulted for members in good standing.
type Prefilter struct {
	users    *repository.UserRepo
	queue    *repository.QueueRepo
	lookback time.Duration // duplicate gate window
}

// NewPrefilter builds a Prefilter. A non-positive lookback falls back
// to 24 hours.
func NewPrefilter(users *repository.UserRepo, queue *repository.QueueRepo, lookback time.Duration) *Prefilter {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &Prefilter{users: users, queue: queue, lookback: lookback}
}

// Check validates the requesting member. On success it returns the
// member and an empty reason. On a policy failure it returns the
// member when one exists (nil for unknown emails) plus the rejection
// reason code. A non-nil error means the check itself could not run
// and the request should fail rather than be rejected.
func (p *Prefilter) Check(ctx context.Context, email string) (*model.User, string, error) {
	user, err := p.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ReasonUserNotFound, nil
	}
	if err != nil {
		return nil, "", err
	}
	if !user.SubscriptionActive {
		return user, ReasonSubscriptionOff, nil
	}
	if !user.MonthlyFeeCurrent {
		return user, ReasonPaymentOverdue, nil
	}
	n, err := p.queue.CountRecentNonRejected(ctx, user.Email, time.Now().UTC().Add(-p.lookback))
	if err != nil {
		return nil, "", err
	}
	if n > 0 {
		return user, ReasonDuplicateRequest, nil
	}
	return user, "", nil
}
