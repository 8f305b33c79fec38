package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueueItemDefaults(t *testing.T) {
	item, err := NewQueueItem("req-1", "clara@example.com", "Clara", "tini",
		DecisionApproved, SourceTemplate, 0.95)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, DeliveryUnsent, item.DeliveryStatus)
	assert.False(t, item.ReservedSlot)
	assert.False(t, item.Terminal())
	assert.False(t, item.CreatedAt.IsZero())
}

func TestNewQueueItemRejectsBadDecision(t *testing.T) {
	_, err := NewQueueItem("req-1", "clara@example.com", "Clara", "tini",
		DecisionType("maybe"), SourceTemplate, 0.5)
	assert.ErrorIs(t, err, ErrIllegalState)
}

func TestNewQueueItemRejectsConfidenceOutOfRange(t *testing.T) {
	for _, c := range []float64{-0.1, 1.01} {
		_, err := NewQueueItem("req-1", "clara@example.com", "Clara", "tini",
			DecisionRejected, SourcePrefilter, c)
		assert.ErrorIs(t, err, ErrIllegalState, "confidence %v", c)
	}
}

func TestCanApplyWhilePending(t *testing.T) {
	item, err := NewQueueItem("req-1", "clara@example.com", "Clara", "tini",
		DecisionNeedsClarification, SourceTemplate, 0.6)
	require.NoError(t, err)

	for _, a := range []Action{ActionApprove, ActionReject, ActionEdit, ActionSend} {
		assert.NoError(t, item.CanApply(a))
	}
	assert.Error(t, item.CanApply(Action("archive")))
}

func TestCanApplyAfterSent(t *testing.T) {
	item, err := NewQueueItem("req-1", "clara@example.com", "Clara", "tini",
		DecisionApproved, SourceTemplate, 0.95)
	require.NoError(t, err)
	item.Status = StatusSent

	assert.True(t, item.Terminal())
	for _, a := range []Action{ActionApprove, ActionReject, ActionEdit, ActionSend} {
		assert.ErrorIs(t, item.CanApply(a), ErrTerminalState, "action %s", a)
	}
}
