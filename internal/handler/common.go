package handler // handler defines http handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fudly/marketplace-api/internal/repository"
	"github.com/fudly/marketplace-api/internal/service"
)

// getUserID extracts the user_id from echo.Context and converts it to uint64
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// writeDomainError maps engine and repository failures onto HTTP responses.
// Every handler that calls into the lifecycle goes through this one mapping
// so clients see consistent statuses.
func writeDomainError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidQuantity):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid quantity"})
	case errors.Is(err, repository.ErrOfferNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "offer not found"})
	case errors.Is(err, service.ErrExhausted):
		return c.JSON(http.StatusConflict, echo.Map{"error": "not enough units left"})
	case errors.Is(err, service.ErrOfferUnavailable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "offer is not available"})
	case errors.Is(err, service.ErrAlreadyCancelled):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking already cancelled"})
	case errors.Is(err, service.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking is already finalized"})
	case errors.Is(err, repository.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	case errors.Is(err, repository.ErrStoreNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "store not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflicting state"})
	case errors.Is(err, repository.ErrStoreBusy):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily busy, retry"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
