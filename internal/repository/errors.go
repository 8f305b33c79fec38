// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios. For example, ErrQuotaExhausted indicates that a show has
// no discount slots left, while ErrDuplicateRequest signals that a
// request with the same idempotency key already exists.
package repository

import "errors"

// ErrConflict is returned when an update cannot be performed because
// of conflicting state, such as a reviewer action losing a race
// against another reviewer. Handlers should translate this into an
// HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrShowNotFound is returned when a show lookup by id yields no row.
var ErrShowNotFound = errors.New("show not found")

// ErrUserNotFound is returned when a member lookup by email yields no
// row. The prefilter records this as a rejection reason rather than
// surfacing it as an HTTP error.
var ErrUserNotFound = errors.New("user not found")

// ErrItemNotFound is returned when a supervision queue item lookup
// yields no row.
var ErrItemNotFound = errors.New("queue item not found")

// ErrQuotaExhausted is returned by TryReserveTx when the show's
// granted_count has reached max_discounts. The guarded UPDATE makes
// this check-and-increment atomic, so two concurrent requests can
// never both take the last slot.
var ErrQuotaExhausted = errors.New("quota exhausted")

// ErrDuplicateRequest is returned when inserting a queue item whose
// request_id already exists. Callers treat it as an idempotent retry
// and return the stored item.
var ErrDuplicateRequest = errors.New("duplicate request id")
