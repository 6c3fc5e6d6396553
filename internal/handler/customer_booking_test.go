package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fudly/marketplace-api/internal/model"
	"github.com/fudly/marketplace-api/internal/repository"
	"github.com/fudly/marketplace-api/internal/service"
)

// Minimal in-memory implementations of the engine's storage interfaces, just
// enough to drive the HTTP layer end to end without a database.

type memInventory struct {
	mu     sync.Mutex
	offers map[uint64]*model.Offer
}

func (m *memInventory) GetByID(ctx context.Context, id uint64) (*model.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, repository.ErrOfferNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memInventory) GetByIDUncached(ctx context.Context, id uint64) (*model.Offer, error) {
	return m.GetByID(ctx, id)
}

func (m *memInventory) TryReserve(ctx context.Context, id uint64, n uint32, asOf time.Time) (uint32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok || o.Status != model.OfferStatusActive || o.RemainingQuantity < n || o.Expired(asOf) {
		return 0, false, nil
	}
	o.RemainingQuantity -= n
	if o.RemainingQuantity == 0 {
		o.Status = model.OfferStatusInactive
	}
	return o.RemainingQuantity, true, nil
}

func (m *memInventory) Release(ctx context.Context, id uint64, n uint32, asOf time.Time) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return 0, repository.ErrOfferNotFound
	}
	o.RemainingQuantity += n
	if o.Status == model.OfferStatusInactive && !o.Expired(asOf) {
		o.Status = model.OfferStatusActive
	}
	return o.RemainingQuantity, nil
}

func (m *memInventory) DeactivateExpired(ctx context.Context, asOf time.Time) (int64, error) {
	return 0, nil
}

func (m *memInventory) Invalidate(ctx context.Context, o *model.Offer, city string) {}

type memBookings struct {
	mu       sync.Mutex
	bookings map[uint64]*model.Booking
	nextID   uint64
}

func (m *memBookings) Create(ctx context.Context, b *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	b.ID = m.nextID
	b.Status = model.BookingStatusPending
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *memBookings) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBookings) GetPendingByCode(ctx context.Context, code string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.Code == code && b.Status == model.BookingStatusPending {
			cp := *b
			return &cp, nil
		}
	}
	return nil, repository.ErrBookingNotFound
}

func (m *memBookings) CodeInUse(ctx context.Context, code string) (bool, error) { return false, nil }

func (m *memBookings) TransitionStatus(ctx context.Context, id uint64, fromStatus, toStatus string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != fromStatus {
		return false, nil
	}
	b.Status = toStatus
	return true, nil
}

type memStores struct{ stores map[uint64]*model.Store }

func (m *memStores) GetByID(ctx context.Context, id uint64) (*model.Store, error) {
	s, ok := m.stores[id]
	if !ok {
		return nil, repository.ErrStoreNotFound
	}
	cp := *s
	return &cp, nil
}

func newBookingFixture() (*CustomerHandler, *memInventory) {
	inv := &memInventory{offers: map[uint64]*model.Offer{
		1: {
			ID:                 1,
			StoreID:            1,
			Title:              "end of day box",
			DiscountPriceCents: 500,
			InitialQuantity:    5,
			RemainingQuantity:  5,
			Status:             model.OfferStatusActive,
		},
	}}
	books := &memBookings{bookings: map[uint64]*model.Booking{}}
	stores := &memStores{stores: map[uint64]*model.Store{
		1: {ID: 1, OwnerID: 9, Name: "deli", City: "Hamburg", Status: model.StoreStatusActive},
	}}
	engine := service.NewEngine(inv, books, stores)
	return NewCustomerHandler(engine, repository.NewBookingRepo(nil)), inv
}

func doJSON(t *testing.T, h echo.HandlerFunc, method, target, body string, userID interface{}, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != nil {
		c.Set("user_id", userID)
	}
	for i := 0; i+1 < len(params); i += 2 {
		c.SetParamNames(params[i])
		c.SetParamValues(params[i+1])
	}
	require.NoError(t, h(c))
	return rec
}

func TestCreateBookingHappyPath(t *testing.T) {
	h, inv := newBookingFixture()

	rec := doJSON(t, h.CreateBooking, http.MethodPost, "/v1/bookings", `{"offer_id":1,"quantity":2}`, uint64(7))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ID       uint64 `json:"id"`
		OfferID  uint64 `json:"offer_id"`
		Quantity uint32 `json:"quantity"`
		Code     string `json:"code"`
		Status   string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.OfferID)
	assert.Equal(t, uint32(2), resp.Quantity)
	assert.Len(t, resp.Code, 6)
	assert.Equal(t, model.BookingStatusPending, resp.Status)

	o, _ := inv.GetByID(context.Background(), 1)
	assert.Equal(t, uint32(3), o.RemainingQuantity)
}

func TestCreateBookingRequiresAuth(t *testing.T) {
	h, _ := newBookingFixture()
	rec := doJSON(t, h.CreateBooking, http.MethodPost, "/v1/bookings", `{"offer_id":1,"quantity":1}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBookingValidation(t *testing.T) {
	h, _ := newBookingFixture()

	rec := doJSON(t, h.CreateBooking, http.MethodPost, "/v1/bookings", `{"quantity":1}`, uint64(7))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h.CreateBooking, http.MethodPost, "/v1/bookings", `{"offer_id":1,"quantity":0}`, uint64(7))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBookingUnknownOfferIs404(t *testing.T) {
	h, _ := newBookingFixture()
	rec := doJSON(t, h.CreateBooking, http.MethodPost, "/v1/bookings", `{"offer_id":99,"quantity":1}`, uint64(7))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateBookingExhaustedIs409(t *testing.T) {
	h, _ := newBookingFixture()
	rec := doJSON(t, h.CreateBooking, http.MethodPost, "/v1/bookings", `{"offer_id":1,"quantity":9}`, uint64(7))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelBookingFlow(t *testing.T) {
	h, inv := newBookingFixture()

	rec := doJSON(t, h.CreateBooking, http.MethodPost, "/v1/bookings", `{"offer_id":1,"quantity":2}`, uint64(7))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID uint64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Someone else cannot cancel it.
	rec = doJSON(t, h.CancelBooking, http.MethodDelete, "/v1/bookings/1", "", uint64(8), "id", "1")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h.CancelBooking, http.MethodDelete, "/v1/bookings/1", "", uint64(7), "id", "1")
	require.Equal(t, http.StatusOK, rec.Code)

	o, _ := inv.GetByID(context.Background(), 1)
	assert.Equal(t, uint32(5), o.RemainingQuantity)

	// A second cancel is rejected as already cancelled.
	rec = doJSON(t, h.CancelBooking, http.MethodDelete, "/v1/bookings/1", "", uint64(7), "id", "1")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelBookingBadID(t *testing.T) {
	h, _ := newBookingFixture()
	rec := doJSON(t, h.CancelBooking, http.MethodDelete, "/v1/bookings/abc", "", uint64(7), "id", "abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
