package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fudly/marketplace-api/internal/model"
	"github.com/fudly/marketplace-api/internal/queue"
	"github.com/fudly/marketplace-api/internal/repository"
)

// Inventory is the offer-side storage the engine drives.  TryReserve and
// Release must be atomic with respect to concurrent callers; everything else
// the engine needs follows from that.
type Inventory interface {
	GetByID(ctx context.Context, id uint64) (*model.Offer, error)
	GetByIDUncached(ctx context.Context, id uint64) (*model.Offer, error)
	TryReserve(ctx context.Context, id uint64, n uint32, asOf time.Time) (uint32, bool, error)
	Release(ctx context.Context, id uint64, n uint32, asOf time.Time) (uint32, error)
	DeactivateExpired(ctx context.Context, asOf time.Time) (int64, error)
	Invalidate(ctx context.Context, o *model.Offer, city string)
}

// Bookings is the booking-side storage.  TransitionStatus must only succeed
// when the row is still in the expected source state.
type Bookings interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	GetPendingByCode(ctx context.Context, code string) (*model.Booking, error)
	CodeInUse(ctx context.Context, code string) (bool, error)
	TransitionStatus(ctx context.Context, id uint64, fromStatus, toStatus string) (bool, error)
}

// StoreDirectory resolves the store an offer belongs to, for ownership
// checks and event enrichment.
type StoreDirectory interface {
	GetByID(ctx context.Context, id uint64) (*model.Store, error)
}

// TxRunner executes fn atomically.  The production runner wraps
// repository.WithTx; tests substitute a passthrough.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

const (
	defaultMaxPerReservation = 10
	defaultCodeAttempts      = 5
	defaultTxTimeout         = 3 * time.Second
)

// Engine implements the booking lifecycle: Reserve, Cancel and Complete.
// All quantity arithmetic is delegated to Inventory's atomic primitives, so
// the engine never holds quantities in memory across steps and two Engines
// pointed at the same database stay correct.
type Engine struct {
	inv     Inventory
	books   Bookings
	stores  StoreDirectory
	runTx   TxRunner
	publish func(ctx context.Context, ev queue.BookingEvent)
	now     func() time.Time

	maxPerReservation uint32
	codeAttempts      int
	txTimeout         time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithTxRunner sets the transaction boundary for Reserve and Cancel.
func WithTxRunner(run TxRunner) Option {
	return func(e *Engine) { e.runTx = run }
}

// WithPublisher sets the lifecycle event sink.  Publishing is best effort
// and runs after commit; a nil publisher disables it.
func WithPublisher(publish func(ctx context.Context, ev queue.BookingEvent)) Option {
	return func(e *Engine) { e.publish = publish }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxPerReservation caps the units a single booking may reserve.
func WithMaxPerReservation(n uint32) Option {
	return func(e *Engine) { e.maxPerReservation = n }
}

// WithTxTimeout bounds how long a Reserve or Cancel transaction may hold
// row locks before it is cut off and surfaced as busy.
func WithTxTimeout(d time.Duration) Option {
	return func(e *Engine) { e.txTimeout = d }
}

// NewEngine wires an Engine over its storage.  Without WithTxRunner the
// steps run on the bare connection, which is only acceptable for tests.
func NewEngine(inv Inventory, books Bookings, stores StoreDirectory, opts ...Option) *Engine {
	e := &Engine{
		inv:               inv,
		books:             books,
		stores:            stores,
		runTx:             func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) },
		now:               time.Now,
		maxPerReservation: defaultMaxPerReservation,
		codeAttempts:      defaultCodeAttempts,
		txTimeout:         defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reserve books qty units of an offer for a user.  On success exactly qty
// units have been moved from the offer to a new pending booking carrying a
// unique pickup code; on any error the offer's quantity is untouched.
//
// The cheap pre-checks run against a possibly cached offer view and only
// ever reject; admission is decided solely by the conditional decrement
// inside the transaction, so a stale cache can cost a customer a retry but
// can never oversell.
func (e *Engine) Reserve(ctx context.Context, userID, offerID uint64, qty uint32) (*model.Booking, error) {
	if qty == 0 || qty > e.maxPerReservation {
		return nil, ErrInvalidQuantity
	}
	now := e.now()

	offer, err := e.inv.GetByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, repository.ErrOfferNotFound) {
			// Joined so transports can tell "no such offer" apart from
			// "exists but closed".
			return nil, errors.Join(ErrOfferUnavailable, repository.ErrOfferNotFound)
		}
		return nil, err
	}
	if offer.Status != model.OfferStatusActive || offer.Expired(now) {
		return nil, ErrOfferUnavailable
	}
	// An offer is only reservable while its store holds approval.  Offer
	// creation already gates on that, but the standing is re-checked per
	// reservation so a store that lost it closes its offers immediately.
	store, err := e.stores.GetByID(ctx, offer.StoreID)
	if err != nil {
		if errors.Is(err, repository.ErrStoreNotFound) {
			return nil, ErrOfferUnavailable
		}
		return nil, err
	}
	if !store.Offerable() {
		return nil, ErrOfferUnavailable
	}
	if offer.RemainingQuantity < qty {
		return nil, ErrExhausted
	}

	booking := &model.Booking{OfferID: offerID, UserID: userID, Quantity: qty}
	txCtx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()
	err = e.runTx(txCtx, func(ctx context.Context) error {
		_, ok, err := e.inv.TryReserve(ctx, offerID, qty, now)
		if err != nil {
			return err
		}
		if !ok {
			return e.reserveFailure(ctx, offerID, qty, now)
		}
		return e.createWithFreshCode(ctx, booking)
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, offer, booking, queue.StageReserved)
	return booking, nil
}

// reserveFailure re-reads the offer inside the failed transaction to tell
// "gone" apart from "not enough left".
func (e *Engine) reserveFailure(ctx context.Context, offerID uint64, qty uint32, now time.Time) error {
	fresh, err := e.inv.GetByIDUncached(ctx, offerID)
	if err != nil {
		if errors.Is(err, repository.ErrOfferNotFound) {
			return errors.Join(ErrOfferUnavailable, repository.ErrOfferNotFound)
		}
		return err
	}
	if fresh.Status != model.OfferStatusActive || fresh.Expired(now) {
		return ErrOfferUnavailable
	}
	if fresh.RemainingQuantity < qty {
		return ErrExhausted
	}
	// The guard refused but the fresh row would admit us: someone else's
	// write landed between the two statements. Surface as retryable.
	return fmt.Errorf("reservation lost a concurrent race: %w", repository.ErrStoreBusy)
}

// createWithFreshCode allocates a pickup code nobody holds yet and inserts
// the booking.  A code that collides between the existence check and the
// insert trips the UNIQUE index and gets retried with a new code.
func (e *Engine) createWithFreshCode(ctx context.Context, b *model.Booking) error {
	for attempt := 0; attempt < e.codeAttempts; attempt++ {
		code, err := GenerateBookingCode()
		if err != nil {
			return err
		}
		used, err := e.books.CodeInUse(ctx, code)
		if err != nil {
			return err
		}
		if used {
			continue
		}
		b.Code = code
		err = e.books.Create(ctx, b)
		if err == nil {
			return nil
		}
		if errors.Is(err, repository.ErrConflict) {
			b.Code = ""
			continue
		}
		return err
	}
	return fmt.Errorf("could not allocate a unique pickup code: %w", repository.ErrStoreBusy)
}

// Cancel voids a pending booking owned by userID and credits its units back
// to the offer.  The status flip and the credit run in one transaction, and
// the flip only succeeds from the pending state, so the units of a booking
// are released at most once no matter how many cancels race.  Pass userID 0
// to skip the ownership check.
func (e *Engine) Cancel(ctx context.Context, userID, bookingID uint64) (*model.Booking, error) {
	b, err := e.books.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if userID != 0 && b.UserID != userID {
		return nil, repository.ErrForbidden
	}
	if err := checkPending(b, model.BookingStatusCancelled); err != nil {
		return nil, err
	}

	now := e.now()
	txCtx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()
	err = e.runTx(txCtx, func(ctx context.Context) error {
		ok, err := e.books.TransitionStatus(ctx, b.ID, model.BookingStatusPending, model.BookingStatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return e.transitionFailure(ctx, b.ID, model.BookingStatusCancelled)
		}
		if _, err := e.inv.Release(ctx, b.OfferID, b.Quantity, now); err != nil {
			// Rolls back the status flip too, keeping booking and offer
			// consistent with each other.
			return fmt.Errorf("credit %d units back to offer %d: %w", b.Quantity, b.OfferID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.Status = model.BookingStatusCancelled
	if offer, oerr := e.inv.GetByIDUncached(ctx, b.OfferID); oerr == nil {
		e.afterCommit(ctx, offer, b, queue.StageCancelled)
	}
	return b, nil
}

// Complete finalizes a pending booking after the buyer picked the goods up.
// Quantities do not move; the units were already taken out of the offer at
// reserve time.
func (e *Engine) Complete(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	b, err := e.books.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := checkPending(b, model.BookingStatusCompleted); err != nil {
		return nil, err
	}

	ok, err := e.books.TransitionStatus(ctx, b.ID, model.BookingStatusPending, model.BookingStatusCompleted)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.transitionFailure(ctx, b.ID, model.BookingStatusCompleted)
	}

	b.Status = model.BookingStatusCompleted
	if offer, oerr := e.inv.GetByIDUncached(ctx, b.OfferID); oerr == nil {
		e.afterCommit(ctx, offer, b, queue.StageCompleted)
	}
	return b, nil
}

// CompleteByCode is the counter flow: a clerk reads the customer's pickup
// code and redeems it.  Only the owner of the store behind the booked offer
// may redeem, and only a pending booking is found, so a code works exactly
// once.
func (e *Engine) CompleteByCode(ctx context.Context, sellerID uint64, code string) (*model.Booking, error) {
	b, err := e.books.GetPendingByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	offer, err := e.inv.GetByID(ctx, b.OfferID)
	if err != nil {
		return nil, err
	}
	store, err := e.stores.GetByID(ctx, offer.StoreID)
	if err != nil {
		return nil, err
	}
	if store.OwnerID != sellerID {
		return nil, repository.ErrForbidden
	}
	return e.Complete(ctx, b.ID)
}

// checkPending pre-classifies a lifecycle change from the already loaded
// booking so obvious rejections skip the transaction.
func checkPending(b *model.Booking, to string) error {
	switch b.Status {
	case model.BookingStatusPending:
		return nil
	case model.BookingStatusCancelled:
		if to == model.BookingStatusCancelled {
			return ErrAlreadyCancelled
		}
		return ErrInvalidTransition
	default:
		return ErrInvalidTransition
	}
}

// transitionFailure re-reads a booking whose conditional status flip did not
// land and names the reason.
func (e *Engine) transitionFailure(ctx context.Context, bookingID uint64, to string) error {
	fresh, err := e.books.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if err := checkPending(fresh, to); err != nil {
		return err
	}
	// Still pending but the flip refused: a competing transaction holds the
	// row. Surface as retryable.
	return fmt.Errorf("booking %d status flip lost a race: %w", bookingID, repository.ErrStoreBusy)
}

// afterCommit invalidates the cache entries the committed change could have
// staled, then emits the lifecycle event.  Both are post-commit duties: the
// invalidation must complete before the caller observes success, while
// publishing is best effort.
func (e *Engine) afterCommit(ctx context.Context, offer *model.Offer, b *model.Booking, stage string) {
	city := ""
	var storeName string
	if store, err := e.stores.GetByID(ctx, offer.StoreID); err == nil {
		city = store.City
		storeName = store.Name
	}
	e.inv.Invalidate(ctx, offer, city)

	if e.publish == nil {
		return
	}
	e.publish(ctx, queue.BookingEvent{
		BookingID:        b.ID,
		UserID:           b.UserID,
		OfferID:          offer.ID,
		OfferTitle:       offer.Title,
		StoreID:          offer.StoreID,
		StoreName:        storeName,
		Quantity:         b.Quantity,
		Code:             b.Code,
		Stage:            stage,
		TotalAmountCents: offer.DiscountPriceCents * b.Quantity,
		OccurredAt:       e.now().UTC().Format(time.RFC3339),
	})
}
