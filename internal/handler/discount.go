// This file defines the public discount request endpoint. A member
// submits their email and a free-text show query; the decision engine
// answers with the supervision queue item that now represents the
// request. Nothing is emailed at this point: a human reviews first.

package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/indiehoy/discount-supervision/internal/model"
	"github.com/indiehoy/discount-supervision/internal/service"
)

// DiscountHandler exposes discount request submission.
type DiscountHandler struct {
	Engine *service.DecisionEngine
}

func NewDiscountHandler(engine *service.DecisionEngine) *DiscountHandler {
	return &DiscountHandler{Engine: engine}
}

// queueItemResp is the wire shape of a queue item. Email content is
// included so the requester-facing tooling can preview what a reviewer
// will see; delivery state says whether it went out.
type queueItemResp struct {
	ID             uint64  `json:"id"`
	RequestID      string  `json:"request_id"`
	UserEmail      string  `json:"user_email"`
	UserName       string  `json:"user_name"`
	ShowID         *uint64 `json:"show_id,omitempty"`
	ShowQuery      string  `json:"show_query"`
	DecisionType   string  `json:"decision_type"`
	DecisionSource string  `json:"decision_source"`
	Confidence     float64 `json:"confidence_score"`
	Reasoning      string  `json:"reasoning"`
	EmailSubject   string  `json:"email_subject"`
	EmailContent   string  `json:"email_content"`
	Status         string  `json:"status"`
	DeliveryStatus string  `json:"email_delivery_status"`
	SupervisorNote *string `json:"supervisor_notes,omitempty"`
	ReviewedBy     *string `json:"reviewed_by,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func itemResp(it *model.SupervisionQueueItem) queueItemResp {
	return queueItemResp{
		ID:             it.ID,
		RequestID:      it.RequestID,
		UserEmail:      it.UserEmail,
		UserName:       it.UserName,
		ShowID:         it.ShowID,
		ShowQuery:      it.ShowQuery,
		DecisionType:   string(it.DecisionType),
		DecisionSource: string(it.DecisionSource),
		Confidence:     it.ConfidenceScore,
		Reasoning:      it.Reasoning,
		EmailSubject:   it.EmailSubject,
		EmailContent:   it.EmailContent,
		Status:         string(it.Status),
		DeliveryStatus: string(it.DeliveryStatus),
		SupervisorNote: it.SupervisorNotes,
		ReviewedBy:     it.ReviewedBy,
		CreatedAt:      it.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// SubmitDiscount handles POST /v1/discounts. The same request_id always
// yields the same queue item, so clients may retry freely.
func (h *DiscountHandler) SubmitDiscount(c echo.Context) error {
	var req service.DiscountRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	item, err := h.Engine.Submit(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "processing failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"item": itemResp(item)})
}
