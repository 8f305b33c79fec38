// This file defines handlers for the public show catalog. These routes
// let members browse upcoming shows and see how many discount slots
// remain before submitting a request. The quota ledger itself is never
// exposed; only the derived remaining count is.

package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/indiehoy/discount-supervision/internal/model"
	"github.com/indiehoy/discount-supervision/internal/repository"
)

// ShowHandler aggregates the repositories needed for public catalog
// browsing. It produces sanitized responses suitable for unauthenticated
// consumption.
type ShowHandler struct {
	Shows *repository.ShowRepo // provides access to show data
}

func NewShowHandler(shows *repository.ShowRepo) *ShowHandler {
	return &ShowHandler{Shows: shows}
}

// PublicShow represents a show in list responses. It contains only safe
// fields; the raw ledger counters stay internal.
type PublicShow struct {
	ID        uint64    `json:"id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Venue     string    `json:"venue"`
	ShowDate  time.Time `json:"show_date"`
	Genre     *string   `json:"genre,omitempty"`
	Remaining uint32    `json:"remaining_discounts"`
}

// ListShows returns active shows, optionally filtered by a free-text
// q parameter matching title, artist or venue. Response JSON contains
// an "items" array of PublicShow.
func (h *ShowHandler) ListShows(c echo.Context) error {
	ctx := c.Request().Context()
	shows, err := h.Shows.ListActive(ctx, c.QueryParam("q"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]PublicShow, 0, len(shows))
	for _, s := range shows {
		out = append(out, publicShow(s))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// GetShowRemaining returns the remaining discount slots for one show.
func (h *ShowHandler) GetShowRemaining(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	remaining, err := h.Shows.Remaining(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrShowNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"show_id": id, "remaining_discounts": remaining})
}

func publicShow(s model.Show) PublicShow {
	return PublicShow{
		ID:        s.ID,
		Title:     s.Title,
		Artist:    s.Artist,
		Venue:     s.Venue,
		ShowDate:  s.ShowDate,
		Genre:     s.Genre,
		Remaining: s.Remaining(),
	}
}
