package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fudly/marketplace-api/internal/model"
	"github.com/fudly/marketplace-api/internal/repository"
	"github.com/fudly/marketplace-api/internal/service"
)

// CustomerHandler exposes the booking lifecycle to authenticated customers.
// All quantity handling is delegated to the reservation engine; the handler
// only parses, authorizes and maps errors.
type CustomerHandler struct {
	Engine   *service.Engine
	Bookings *repository.BookingRepo
}

func NewCustomerHandler(engine *service.Engine, bookings *repository.BookingRepo) *CustomerHandler {
	if engine == nil || bookings == nil {
		panic("nil dependency passed to NewCustomerHandler")
	}
	return &CustomerHandler{Engine: engine, Bookings: bookings}
}

// CreateBooking handles POST /v1/bookings.  The body names the offer and the
// number of units; on success the response carries the pending booking with
// its pickup code.
func (h *CustomerHandler) CreateBooking(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		OfferID  uint64 `json:"offer_id"`
		Quantity uint32 `json:"quantity"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.OfferID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "offer_id is required"})
	}

	b, err := h.Engine.Reserve(c.Request().Context(), userID, body.OfferID, body.Quantity)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, bookingResp(b))
}

// CancelBooking handles DELETE /v1/bookings/:id.  Only the booking's owner
// may cancel, and only while it is still pending.
func (h *CustomerHandler) CancelBooking(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}

	b, err := h.Engine.Cancel(c.Request().Context(), userID, id)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, bookingResp(b))
}

// GetBooking handles GET /v1/bookings/:id for the booking's owner.
func (h *CustomerHandler) GetBooking(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	b, err := h.Bookings.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeDomainError(c, err)
	}
	if b.UserID != userID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, bookingResp(b))
}

// ListBookings handles GET /v1/bookings and returns the caller's bookings,
// newest first.
func (h *CustomerHandler) ListBookings(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	views, err := h.Bookings.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": views})
}

func bookingResp(b *model.Booking) echo.Map {
	return echo.Map{
		"id":       b.ID,
		"offer_id": b.OfferID,
		"quantity": b.Quantity,
		"code":     b.Code,
		"status":   b.Status,
	}
}
