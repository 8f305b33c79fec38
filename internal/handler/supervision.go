// This file defines the supervisor review endpoints. All routes here
// sit behind JWT auth plus a role check; the acting supervisor's email
// is taken from the token and recorded on every mutation.

package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/indiehoy/discount-supervision/internal/model"
	"github.com/indiehoy/discount-supervision/internal/repository"
	"github.com/indiehoy/discount-supervision/internal/service"
)

// SupervisionHandler exposes the review queue workflow.
type SupervisionHandler struct {
	Svc *service.SupervisionService
}

func NewSupervisionHandler(svc *service.SupervisionService) *SupervisionHandler {
	return &SupervisionHandler{Svc: svc}
}

// ListQueue handles GET /v1/supervision/queue?status=&limit=.
func (h *SupervisionHandler) ListQueue(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	status := c.QueryParam("status")
	if status != "" && status != string(model.StatusPending) && status != string(model.StatusSent) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status filter"})
	}
	items, err := h.Svc.List(c.Request().Context(), status, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]queueItemResp, 0, len(items))
	for i := range items {
		out = append(out, itemResp(&items[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// GetQueueItem handles GET /v1/supervision/queue/:id.
func (h *SupervisionHandler) GetQueueItem(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	item, err := h.Svc.Get(c.Request().Context(), id)
	if err != nil {
		return mapItemError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": itemResp(item)})
}

// Stats handles GET /v1/supervision/stats.
func (h *SupervisionHandler) Stats(c echo.Context) error {
	st, err := h.Svc.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, st)
}

type approveReq struct {
	ShowID *uint64 `json:"show_id"`
}

// Approve handles POST /v1/supervision/queue/:id/approve.
func (h *SupervisionHandler) Approve(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	var req approveReq
	_ = c.Bind(&req) // empty body means keep the resolved show

	item, err := h.Svc.Approve(c.Request().Context(), id, req.ShowID, reviewer(c))
	if err != nil {
		if errors.Is(err, service.ErrNoShowResolved) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "item has no resolved show; supply show_id"})
		}
		return mapItemError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": itemResp(item)})
}

// Reject handles POST /v1/supervision/queue/:id/reject.
func (h *SupervisionHandler) Reject(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	item, err := h.Svc.Reject(c.Request().Context(), id, reviewer(c))
	if err != nil {
		return mapItemError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": itemResp(item)})
}

// EditEmail handles PUT /v1/supervision/queue/:id/email.
func (h *SupervisionHandler) EditEmail(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	var req service.EditRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Subject == nil && req.Content == nil && len(req.Overrides) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "nothing to edit"})
	}
	item, err := h.Svc.Edit(c.Request().Context(), id, req, reviewer(c))
	if err != nil {
		return mapItemError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": itemResp(item)})
}

// Send handles POST /v1/supervision/queue/:id/send.
func (h *SupervisionHandler) Send(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	item, err := h.Svc.Send(c.Request().Context(), id, reviewer(c))
	if err != nil {
		return mapItemError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": itemResp(item)})
}

type noteReq struct {
	Note string `json:"note"`
}

// AddNote handles POST /v1/supervision/queue/:id/notes. Notes stay
// writable after an item is sent.
func (h *SupervisionHandler) AddNote(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	var req noteReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Note) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "note required"})
	}
	item, err := h.Svc.AppendNote(c.Request().Context(), id, strings.TrimSpace(req.Note), reviewer(c))
	if err != nil {
		return mapItemError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": itemResp(item)})
}

func parseID(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

// reviewer extracts the acting supervisor's email from the JWT claims
// placed in context by the auth middleware.
func reviewer(c echo.Context) string {
	if email, ok := c.Get("email").(string); ok && email != "" {
		return email
	}
	return "unknown"
}

// mapItemError translates service and repository errors to HTTP
// statuses. State violations are conflicts, not server errors: the
// item exists, the action just is not legal against it right now.
func mapItemError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrItemNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "queue item not found"})
	case errors.Is(err, repository.ErrShowNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
	case errors.Is(err, repository.ErrUserNotFound):
		return c.JSON(http.StatusConflict, echo.Map{"error": "member no longer exists"})
	case errors.Is(err, model.ErrTerminalState):
		return c.JSON(http.StatusConflict, echo.Map{"error": "item already sent"})
	case errors.Is(err, repository.ErrQuotaExhausted):
		return c.JSON(http.StatusConflict, echo.Map{"error": "no discount slots remaining"})
	case errors.Is(err, model.ErrIllegalState), errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "operation failed"})
	}
}
