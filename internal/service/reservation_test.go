package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fudly/marketplace-api/internal/model"
	"github.com/fudly/marketplace-api/internal/queue"
	"github.com/fudly/marketplace-api/internal/repository"
)

// The fakes below mirror the SQL primitives exactly: TryReserve is the
// conditional decrement, Release the guarded credit, TransitionStatus the
// compare-on-state flip. Each guards its state with a mutex so the
// concurrency tests exercise real interleavings.

type fakeInventory struct {
	mu     sync.Mutex
	offers map[uint64]*model.Offer
}

func newFakeInventory(offers ...*model.Offer) *fakeInventory {
	f := &fakeInventory{offers: make(map[uint64]*model.Offer)}
	for _, o := range offers {
		cp := *o
		f.offers[o.ID] = &cp
	}
	return f
}

func (f *fakeInventory) snapshot(id uint64) (*model.Offer, bool) {
	o, ok := f.offers[id]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}

func (f *fakeInventory) GetByID(ctx context.Context, id uint64) (*model.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.snapshot(id)
	if !ok {
		return nil, repository.ErrOfferNotFound
	}
	return o, nil
}

func (f *fakeInventory) GetByIDUncached(ctx context.Context, id uint64) (*model.Offer, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeInventory) TryReserve(ctx context.Context, id uint64, n uint32, asOf time.Time) (uint32, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.offers[id]
	if !ok || o.Status != model.OfferStatusActive || o.RemainingQuantity < n || o.Expired(asOf) {
		return 0, false, nil
	}
	o.RemainingQuantity -= n
	if o.RemainingQuantity == 0 {
		o.Status = model.OfferStatusInactive
	}
	o.Version++
	return o.RemainingQuantity, true, nil
}

func (f *fakeInventory) Release(ctx context.Context, id uint64, n uint32, asOf time.Time) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.offers[id]
	if !ok {
		return 0, repository.ErrOfferNotFound
	}
	o.RemainingQuantity += n
	if o.Status == model.OfferStatusInactive && !o.Expired(asOf) {
		o.Status = model.OfferStatusActive
	}
	o.Version++
	return o.RemainingQuantity, nil
}

func (f *fakeInventory) DeactivateExpired(ctx context.Context, asOf time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, o := range f.offers {
		if o.Status == model.OfferStatusActive && o.Expired(asOf) {
			o.Status = model.OfferStatusInactive
			o.Version++
			n++
		}
	}
	return n, nil
}

func (f *fakeInventory) Invalidate(ctx context.Context, o *model.Offer, city string) {}

type fakeBookings struct {
	mu       sync.Mutex
	bookings map[uint64]*model.Booking
	nextID   uint64
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{bookings: make(map[uint64]*model.Booking)}
}

func (f *fakeBookings) Create(ctx context.Context, b *model.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.bookings {
		if existing.Code == b.Code {
			return repository.ErrConflict
		}
	}
	f.nextID++
	b.ID = f.nextID
	b.Status = model.BookingStatusPending
	cp := *b
	f.bookings[b.ID] = &cp
	return nil
}

func (f *fakeBookings) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookings) GetPendingByCode(ctx context.Context, code string) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.Code == code && b.Status == model.BookingStatusPending {
			cp := *b
			return &cp, nil
		}
	}
	return nil, repository.ErrBookingNotFound
}

func (f *fakeBookings) CodeInUse(ctx context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBookings) TransitionStatus(ctx context.Context, id uint64, fromStatus, toStatus string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Status != fromStatus {
		return false, nil
	}
	b.Status = toStatus
	return true, nil
}

type fakeStores struct {
	stores map[uint64]*model.Store
}

func (f *fakeStores) GetByID(ctx context.Context, id uint64) (*model.Store, error) {
	s, ok := f.stores[id]
	if !ok {
		return nil, repository.ErrStoreNotFound
	}
	cp := *s
	return &cp, nil
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func datePtr(t time.Time) *time.Time { return &t }

func activeOffer(id uint64, remaining uint32) *model.Offer {
	return &model.Offer{
		ID:                 id,
		StoreID:            1,
		Title:              "surprise bag",
		DiscountPriceCents: 450,
		InitialQuantity:    remaining,
		RemainingQuantity:  remaining,
		ExpiryDate:         datePtr(testNow.AddDate(0, 0, 7)),
		Status:             model.OfferStatusActive,
	}
}

func newTestEngine(inv *fakeInventory, books *fakeBookings, opts ...Option) *Engine {
	stores := &fakeStores{stores: map[uint64]*model.Store{
		1: {ID: 1, OwnerID: 42, Name: "corner bakery", City: "Berlin", Status: model.StoreStatusActive},
		2: {ID: 2, OwnerID: 43, Name: "waiting deli", City: "Berlin", Status: model.StoreStatusPending},
		3: {ID: 3, OwnerID: 44, Name: "rejected kiosk", City: "Berlin", Status: model.StoreStatusRejected},
	}}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewEngine(inv, books, stores, opts...)
}

func TestReserveCreatesPendingBooking(t *testing.T) {
	inv := newFakeInventory(activeOffer(1, 5))
	books := newFakeBookings()
	eng := newTestEngine(inv, books)

	b, err := eng.Reserve(context.Background(), 7, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, b)

	assert.Equal(t, model.BookingStatusPending, b.Status)
	assert.Equal(t, uint64(7), b.UserID)
	assert.Equal(t, uint32(2), b.Quantity)
	assert.Len(t, b.Code, 6)

	o, _ := inv.GetByID(context.Background(), 1)
	assert.Equal(t, uint32(3), o.RemainingQuantity)
	assert.Equal(t, model.OfferStatusActive, o.Status)
}

func TestReserveRejectsInvalidQuantity(t *testing.T) {
	inv := newFakeInventory(activeOffer(1, 5))
	books := newFakeBookings()
	eng := newTestEngine(inv, books)

	_, err := eng.Reserve(context.Background(), 7, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = eng.Reserve(context.Background(), 7, 1, defaultMaxPerReservation+1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	o, _ := inv.GetByID(context.Background(), 1)
	assert.Equal(t, uint32(5), o.RemainingQuantity)
}

func TestReserveUnknownOffer(t *testing.T) {
	eng := newTestEngine(newFakeInventory(), newFakeBookings())
	_, err := eng.Reserve(context.Background(), 7, 99, 1)
	assert.ErrorIs(t, err, ErrOfferUnavailable)
}

func TestReserveUnavailableOffer(t *testing.T) {
	inactive := activeOffer(1, 5)
	inactive.Status = model.OfferStatusInactive
	deleted := activeOffer(2, 5)
	deleted.Status = model.OfferStatusDeleted
	expired := activeOffer(3, 5)
	expired.ExpiryDate = datePtr(testNow.AddDate(0, 0, -1))

	inv := newFakeInventory(inactive, deleted, expired)
	eng := newTestEngine(inv, newFakeBookings())

	for _, id := range []uint64{1, 2, 3} {
		_, err := eng.Reserve(context.Background(), 7, id, 1)
		assert.ErrorIs(t, err, ErrOfferUnavailable, "offer %d", id)
	}
}

func TestReserveOnExpiryDayStillWorks(t *testing.T) {
	o := activeOffer(1, 3)
	o.ExpiryDate = datePtr(testNow) // expires today, reservable through the day
	inv := newFakeInventory(o)
	eng := newTestEngine(inv, newFakeBookings())

	_, err := eng.Reserve(context.Background(), 7, 1, 1)
	assert.NoError(t, err)
}

func TestReserveRequiresApprovedStore(t *testing.T) {
	onPending := activeOffer(1, 5)
	onPending.StoreID = 2
	onRejected := activeOffer(2, 5)
	onRejected.StoreID = 3
	orphan := activeOffer(3, 5)
	orphan.StoreID = 99

	inv := newFakeInventory(onPending, onRejected, orphan)
	books := newFakeBookings()
	eng := newTestEngine(inv, books)

	for _, id := range []uint64{1, 2, 3} {
		_, err := eng.Reserve(context.Background(), 7, id, 1)
		assert.ErrorIs(t, err, ErrOfferUnavailable, "offer %d", id)

		o, _ := inv.GetByID(context.Background(), id)
		assert.Equal(t, uint32(5), o.RemainingQuantity, "offer %d must be untouched", id)
	}

	books.mu.Lock()
	assert.Empty(t, books.bookings)
	books.mu.Unlock()
}

func TestReserveTransactionIsDeadlineBounded(t *testing.T) {
	inv := newFakeInventory(activeOffer(1, 5))
	books := newFakeBookings()

	stalled := WithTxRunner(func(ctx context.Context, fn func(ctx context.Context) error) error {
		<-ctx.Done()
		return ctx.Err()
	})
	eng := newTestEngine(inv, books, stalled, WithTxTimeout(10*time.Millisecond))

	start := time.Now()
	_, err := eng.Reserve(context.Background(), 7, 1, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second, "the bound must come from the engine, not the caller")
}

func TestReserveInsufficientQuantity(t *testing.T) {
	inv := newFakeInventory(activeOffer(1, 3))
	eng := newTestEngine(inv, newFakeBookings())

	_, err := eng.Reserve(context.Background(), 7, 1, 4)
	assert.ErrorIs(t, err, ErrExhausted)

	o, _ := inv.GetByID(context.Background(), 1)
	assert.Equal(t, uint32(3), o.RemainingQuantity, "failed reserve must not touch quantity")
}

func TestReserveLastUnitsDeactivatesOffer(t *testing.T) {
	inv := newFakeInventory(activeOffer(1, 2))
	eng := newTestEngine(inv, newFakeBookings())

	_, err := eng.Reserve(context.Background(), 7, 1, 2)
	require.NoError(t, err)

	o, _ := inv.GetByID(context.Background(), 1)
	assert.Equal(t, uint32(0), o.RemainingQuantity)
	assert.Equal(t, model.OfferStatusInactive, o.Status)
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	const units = 5
	const contenders = 20

	inv := newFakeInventory(activeOffer(1, units))
	books := newFakeBookings()
	eng := newTestEngine(inv, books)

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Reserve(context.Background(), uint64(i+1), 1, 1)
		}(i)
	}
	wg.Wait()

	var wins, exhausted int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		default:
			// Losers may observe either classification depending on when
			// their pre-check ran relative to the exhausting write.
			assert.True(t, isBusinessRejection(err), "unexpected error: %v", err)
			exhausted++
		}
	}
	assert.Equal(t, units, wins)
	assert.Equal(t, contenders-units, exhausted)

	o, _ := inv.GetByID(context.Background(), 1)
	assert.Equal(t, uint32(0), o.RemainingQuantity)
	assert.Equal(t, model.OfferStatusInactive, o.Status)
}

func isBusinessRejection(err error) bool {
	return errors.Is(err, ErrExhausted) || errors.Is(err, ErrOfferUnavailable)
}

func TestCancelRestoresUnitsAndReactivates(t *testing.T) {
	inv := newFakeInventory(activeOffer(1, 2))
	books := newFakeBookings()
	eng := newTestEngine(inv, books)

	b, err := eng.Reserve(context.Background(), 7, 1, 2)
	require.NoError(t, err)

	o, _ := inv.GetByID(context.Background(), 1)
	require.Equal(t, model.OfferStatusInactive, o.Status)

	cancelled, err := eng.Cancel(context.Background(), 7, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, cancelled.Status)

	o, _ = inv.GetByID(context.Background(), 1)
	assert.Equal(t, uint32(2), o.RemainingQuantity)
	assert.Equal(t, model.OfferStatusActive, o.Status, "exhaustion flip must be undone")
}

func TestCancelDoesNotResurrectDeletedOffer(t *testing.T) {
	inv := newFakeInventory(activeOffer(1, 5))
	books := newFakeBookings()
	eng := newTestEngine(inv, books)

	b, err := eng.Reserve(context.Background(), 7, 1, 3)
	require.NoError(t, err)

	// Seller withdraws the offer while the booking is pending.
	inv.mu.Lock()
	inv.offers[1].Status = model.OfferStatusDeleted
	inv.mu.Unlock()

	_, err = eng.Cancel(context.Background(), 7, b.ID)
	require.NoError(t, err)

	o, _ := inv.GetByID(context.Background(), 1)
	assert.Equal(t, uint32(5), o.RemainingQuantity, "units still come back")
	assert.Equal(t, model.OfferStatusDeleted, o.Status, "withdrawn offers stay withdrawn")
}

func TestCancelAfterExpiryRestoresUnitsButNotStatus(t *testing.T) {
	o := activeOffer(1, 4)
	o.ExpiryDate = datePtr(testNow) // expires end of today
	inv := newFakeInventory(o)
	books := newFakeBookings()

	clock := testNow
	eng := newTestEngine(inv, books, WithClock(func() time.Time { return clock }))

	b, err := eng.Reserve(context.Background(), 7, 1, 4)
	require.NoError(t, err)

	// Next day: the sweeper flips the offer, then the customer cancels.
	clock = testNow.AddDate(0, 0, 1)
	sw := NewSweeper(inv, time.Minute)
	sw.now = func() time.Time { return clock }
	n, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "already inactive from exhaustion")

	_, err = eng.Cancel(context.Background(), 7, b.ID)
	require.NoError(t, err)

	fresh, _ := inv.GetByID(context.Background(), 1)
	assert.Equal(t, uint32(4), fresh.RemainingQuantity)
	assert.Equal(t, model.OfferStatusInactive, fresh.Status, "expired offers must not reactivate")
}

func TestConcurrentCancelsReleaseOnce(t *testing.T) {
	const contenders = 10

	inv := newFakeInventory(activeOffer(1, 5))
	books := newFakeBookings()
	eng := newTestEngine(inv, books)

	b, err := eng.Reserve(context.Background(), 7, 1, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Cancel(context.Background(), 7, b.ID)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyCancelled)
		}
	}
	assert.Equal(t, 1, wins, "exactly one cancel may land")

	o, _ := inv.GetByID(context.Background(), 1)
	assert.Equal(t, uint32(5), o.RemainingQuantity, "units credited exactly once")
}

func TestCancelOwnership(t *testing.T) {
	inv := newFakeInventory(activeOffer(1, 5))
	books := newFakeBookings()
	eng := newTestEngine(inv, books)

	b, err := eng.Reserve(context.Background(), 7, 1, 1)
	require.NoError(t, err)

	_, err = eng.Cancel(context.Background(), 8, b.ID)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	o, _ := inv.GetByID(context.Background(), 1)
	assert.Equal(t, uint32(4), o.RemainingQuantity)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	inv := newFakeInventory(activeOffer(1, 10))
	books := newFakeBookings()
	eng := newTestEngine(inv, books)

	completed, err := eng.Reserve(context.Background(), 7, 1, 1)
	require.NoError(t, err)
	_, err = eng.Complete(context.Background(), completed.ID)
	require.NoError(t, err)

	cancelled, err := eng.Reserve(context.Background(), 7, 1, 1)
	require.NoError(t, err)
	_, err = eng.Cancel(context.Background(), 7, cancelled.ID)
	require.NoError(t, err)

	_, err = eng.Cancel(context.Background(), 7, completed.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "cancel after pickup")

	_, err = eng.Complete(context.Background(), completed.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "double completion")

	_, err = eng.Complete(context.Background(), cancelled.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "completing a void booking")

	_, err = eng.Cancel(context.Background(), 7, cancelled.ID)
	assert.ErrorIs(t, err, ErrAlreadyCancelled, "repeated cancel is its own case")

	o, _ := inv.GetByID(context.Background(), 1)
	assert.Equal(t, uint32(9), o.RemainingQuantity, "one unit held by the completed booking, the cancelled one came back")
}

func TestCompleteByCode(t *testing.T) {
	inv := newFakeInventory(activeOffer(1, 5))
	books := newFakeBookings()
	eng := newTestEngine(inv, books)

	b, err := eng.Reserve(context.Background(), 7, 1, 1)
	require.NoError(t, err)

	_, err = eng.CompleteByCode(context.Background(), 999, b.Code)
	assert.ErrorIs(t, err, repository.ErrForbidden, "only the store owner redeems")

	done, err := eng.CompleteByCode(context.Background(), 42, b.Code)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCompleted, done.Status)

	_, err = eng.CompleteByCode(context.Background(), 42, b.Code)
	assert.ErrorIs(t, err, repository.ErrBookingNotFound, "a code redeems once")

	_, err = eng.CompleteByCode(context.Background(), 42, "ZZZZZZ")
	assert.ErrorIs(t, err, repository.ErrBookingNotFound)
}

func TestQuantityConservationUnderChurn(t *testing.T) {
	const initial = 50
	const workers = 8
	const opsPerWorker = 30

	inv := newFakeInventory(activeOffer(1, initial))
	books := newFakeBookings()
	eng := newTestEngine(inv, books)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			userID := uint64(w + 1)
			for i := 0; i < opsPerWorker; i++ {
				b, err := eng.Reserve(context.Background(), userID, 1, uint32(i%3+1))
				if err != nil {
					continue
				}
				switch i % 3 {
				case 0:
					_, _ = eng.Cancel(context.Background(), userID, b.ID)
				case 1:
					_, _ = eng.Complete(context.Background(), b.ID)
				}
			}
		}(w)
	}
	wg.Wait()

	o, _ := inv.GetByID(context.Background(), 1)

	var held uint32
	books.mu.Lock()
	for _, b := range books.bookings {
		if b.Status != model.BookingStatusCancelled {
			held += b.Quantity
		}
	}
	books.mu.Unlock()

	assert.Equal(t, uint32(initial), o.RemainingQuantity+held,
		"every unit is either in the offer or held by a live booking")
}

func TestReservePublishesLifecycleEvent(t *testing.T) {
	inv := newFakeInventory(activeOffer(1, 5))
	books := newFakeBookings()

	var mu sync.Mutex
	var events []queue.BookingEvent
	eng := newTestEngine(inv, books, WithPublisher(func(ctx context.Context, ev queue.BookingEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))

	b, err := eng.Reserve(context.Background(), 7, 1, 2)
	require.NoError(t, err)
	_, err = eng.Cancel(context.Background(), 7, b.ID)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, queue.StageReserved, events[0].Stage)
	assert.Equal(t, uint32(900), events[0].TotalAmountCents)
	assert.Equal(t, "corner bakery", events[0].StoreName)
	assert.Equal(t, queue.StageCancelled, events[1].Stage)
}
