// Package queue defines message payloads exchanged over the message broker.
package queue

// DecisionQueuedName is the durable queue carrying one event per
// decision the engine persists.
const DecisionQueuedName = "discount.decision.queued"

// EmailSentName is the durable queue carrying one event per email a
// reviewer sends.
const EmailSentName = "discount.email.sent"

// DecisionQueuedEvent is published when the decision engine persists a
// supervision queue item. It carries enough information for downstream
// consumers to log, notify, or feed analytics without querying the
// primary database.
type DecisionQueuedEvent struct {
	QueueItemID  uint64  `json:"queue_item_id"`
	RequestID    string  `json:"request_id"`
	UserEmail    string  `json:"user_email"`
	UserName     string  `json:"user_name"`
	DecisionType string  `json:"decision_type"`
	Source       string  `json:"decision_source"`
	ShowID       *uint64 `json:"show_id,omitempty"`
	ShowTitle    string  `json:"show_title,omitempty"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
	QueuedAt     string  `json:"queued_at"`
}

// EmailSentEvent is published when a reviewer sends a queue item's
// email. DeliveryStatus is whatever the transport reported.
type EmailSentEvent struct {
	QueueItemID    uint64 `json:"queue_item_id"`
	RequestID      string `json:"request_id"`
	UserEmail      string `json:"user_email"`
	DecisionType   string `json:"decision_type"`
	DeliveryStatus string `json:"delivery_status"`
	ReviewedBy     string `json:"reviewed_by"`
	SentAt         string `json:"sent_at"`
}
