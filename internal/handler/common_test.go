package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fudly/marketplace-api/internal/repository"
	"github.com/fudly/marketplace-api/internal/service"
)

func TestGetUserIDAcceptsJWTNumericTypes(t *testing.T) {
	e := echo.New()
	for _, v := range []interface{}{uint64(7), int(7), int64(7), float64(7), "7"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.Set("user_id", v)
		id, err := getUserID(c)
		require.NoError(t, err, "%T", v)
		assert.Equal(t, uint64(7), id)
	}

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, err := getUserID(c)
	assert.Error(t, err, "missing user_id must not default to zero")
}

func TestWriteDomainErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{service.ErrInvalidQuantity, http.StatusBadRequest},
		{repository.ErrOfferNotFound, http.StatusNotFound},
		{errors.Join(service.ErrOfferUnavailable, repository.ErrOfferNotFound), http.StatusNotFound},
		{service.ErrOfferUnavailable, http.StatusConflict},
		{service.ErrExhausted, http.StatusConflict},
		{service.ErrAlreadyCancelled, http.StatusConflict},
		{service.ErrInvalidTransition, http.StatusConflict},
		{repository.ErrBookingNotFound, http.StatusNotFound},
		{repository.ErrStoreNotFound, http.StatusNotFound},
		{repository.ErrForbidden, http.StatusForbidden},
		{repository.ErrConflict, http.StatusConflict},
		{errors.Join(repository.ErrStoreBusy, errors.New("deadlock")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	e := echo.New()
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		require.NoError(t, writeDomainError(c, tc.err))
		assert.Equal(t, tc.code, rec.Code, "error %v", tc.err)
	}
}
