package model

import (
	"errors"
	"fmt"
	"time"
)

// DecisionType classifies the engine's (or a reviewer's) verdict on a
// discount request.
type DecisionType string

const (
	DecisionApproved           DecisionType = "approved"
	DecisionRejected           DecisionType = "rejected"
	DecisionNeedsClarification DecisionType = "needs_clarification"
)

// DecisionSource records which stage produced the decision.  Prefilter
// rejections never reach the matcher; template decisions come from the
// matching/quota stage and carry a rendered template email.
type DecisionSource string

const (
	SourcePrefilter DecisionSource = "prefilter"
	SourceTemplate  DecisionSource = "template"
)

// Status is the workflow position of a queue item.  Pending items are
// waiting for human review; sent is terminal.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
)

// DeliveryStatus mirrors whatever the email transport reported for the
// outgoing message.  It is stored verbatim and never interpreted here.
type DeliveryStatus string

const (
	DeliveryUnsent    DeliveryStatus = "unsent"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryBounced   DeliveryStatus = "bounced"
)

// Action enumerates the reviewer operations on a queue item.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionEdit    Action = "edit"
	ActionSend    Action = "send"
)

// ErrTerminalState is returned when an action targets an item whose
// status is sent.  Sent freezes decision type and email content;
// only supervisor notes may still be appended.
var ErrTerminalState = errors.New("queue item already sent")

// ErrIllegalState is returned by NewQueueItem when the decision/status
// combination is not one of the four legal workflow buckets.
var ErrIllegalState = errors.New("illegal decision/status combination")

// SupervisionQueueItem is one durable record per discount request.  It
// is created exactly once by the decision engine with StatusPending and
// then mutated only through reviewer actions.  RequestID is the
// client-supplied (or engine-generated) idempotency key: resubmitting
// it returns this item unchanged and never touches the quota ledger.
//
// ReservedSlot tracks whether the item currently holds a ledger
// reservation, so a later reject releases exactly what was reserved
// and nothing else.
type SupervisionQueueItem struct {
	ID              uint64         // supervision_queue.id
	RequestID       string         // supervision_queue.request_id (unique)
	UserEmail       string         // supervision_queue.user_email
	UserName        string         // supervision_queue.user_name
	ShowID          *uint64        // supervision_queue.show_id (nullable)
	ShowQuery       string         // supervision_queue.show_query (free text as submitted)
	DecisionType    DecisionType   // supervision_queue.decision_type
	DecisionSource  DecisionSource // supervision_queue.decision_source
	ConfidenceScore float64        // supervision_queue.confidence_score in [0,1]
	Reasoning       string         // supervision_queue.reasoning
	EmailSubject    string         // supervision_queue.email_subject
	EmailContent    string         // supervision_queue.email_content
	Status          Status         // supervision_queue.status
	DeliveryStatus  DeliveryStatus // supervision_queue.email_delivery_status
	ReservedSlot    bool           // supervision_queue.reserved_slot
	SupervisorNotes *string        // supervision_queue.supervisor_notes (nullable)
	ReviewedAt      *time.Time     // supervision_queue.reviewed_at (nullable)
	ReviewedBy      *string        // supervision_queue.reviewed_by (nullable)
	ProcessingMS    *int64         // supervision_queue.processing_ms (observability only)
	CreatedAt       time.Time      // supervision_queue.created_at
	UpdatedAt       time.Time      // supervision_queue.updated_at
}

// NewQueueItem constructs a pending queue item and rejects illegal
// field combinations up front, so an invalid state can never be
// persisted.  Approved items must reference a show and hold a
// reservation; the other decision types must not.
func NewQueueItem(requestID, userEmail, userName, showQuery string, decision DecisionType, source DecisionSource, confidence float64) (*SupervisionQueueItem, error) {
	switch decision {
	case DecisionApproved, DecisionRejected, DecisionNeedsClarification:
	default:
		return nil, fmt.Errorf("%w: decision %q", ErrIllegalState, decision)
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v outside [0,1]", ErrIllegalState, confidence)
	}
	return &SupervisionQueueItem{
		RequestID:       requestID,
		UserEmail:       userEmail,
		UserName:        userName,
		ShowQuery:       showQuery,
		DecisionType:    decision,
		DecisionSource:  source,
		ConfidenceScore: confidence,
		Status:          StatusPending,
		DeliveryStatus:  DeliveryUnsent,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// Terminal reports whether the item can no longer change decision or
// content.
func (i *SupervisionQueueItem) Terminal() bool { return i.Status == StatusSent }

// CanApply validates an action against the closed transition table.
// Every reviewer action except note-keeping is legal only while the
// item is pending; anything against a sent item yields
// ErrTerminalState so callers surface an explicit conflict instead of
// silently overwriting reviewed state.
func (i *SupervisionQueueItem) CanApply(a Action) error {
	if i.Terminal() {
		return fmt.Errorf("%s: %w", a, ErrTerminalState)
	}
	switch a {
	case ActionApprove, ActionReject, ActionEdit, ActionSend:
		return nil
	default:
		return fmt.Errorf("unknown action %q", a)
	}
}
