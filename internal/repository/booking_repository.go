package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fudly/marketplace-api/internal/model"
)

// BookingRepo provides data access to the bookings table.  Status changes go
// through TransitionStatus, a compare-on-current-state UPDATE, so that two
// concurrent attempts to finalize the same booking can never both succeed.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo constructs a BookingRepo.
func NewBookingRepo(db *sql.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

const bookingColumns = `id, offer_id, user_id, quantity, code, status, created_at, updated_at`

func scanBooking(row interface{ Scan(...interface{}) error }) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.OfferID, &b.UserID, &b.Quantity, &b.Code, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a pending booking and fills in the generated ID and
// timestamps.  The code column carries a UNIQUE index, so a duplicate code
// surfaces as an error here rather than as silent corruption; callers
// regenerate and retry on ErrConflict.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings (offer_id, user_id, quantity, code, status)
               VALUES (?, ?, ?, ?, 'pending')`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, b.OfferID, b.UserID, b.Quantity, b.Code)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrConflict
		}
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	const sel = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	created, err := scanBooking(conn(ctx, r.db).QueryRowContext(ctx, sel, b.ID))
	if err != nil {
		return classify(err)
	}
	*b = *created
	return nil
}

// GetByID returns one booking or ErrBookingNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(conn(ctx, r.db).QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, classify(err)
	}
	return b, nil
}

// GetPendingByCode looks up the pending booking carrying the given pickup
// code.  Codes of finalized bookings are deliberately invisible here: a code
// can only be redeemed once.
func (r *BookingRepo) GetPendingByCode(ctx context.Context, code string) (*model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE code = ? AND status = 'pending'`
	b, err := scanBooking(conn(ctx, r.db).QueryRowContext(ctx, q, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, classify(err)
	}
	return b, nil
}

// CodeInUse reports whether any booking, in any state, already holds the
// given code.
func (r *BookingRepo) CodeInUse(ctx context.Context, code string) (bool, error) {
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE code = ?`, code).Scan(&n)
	if err != nil {
		return false, classify(err)
	}
	return n > 0, nil
}

// TransitionStatus moves a booking from fromStatus to toStatus in one
// conditional UPDATE.  ok=false means the booking was not in fromStatus at
// the moment of the write; the caller re-reads the row to tell the reason
// apart.  A terminal state therefore can never be overwritten, no matter how
// the callers race.
func (r *BookingRepo) TransitionStatus(ctx context.Context, id uint64, fromStatus, toStatus string) (bool, error) {
	const q = `UPDATE bookings SET status = ? WHERE id = ? AND status = ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, toStatus, id, fromStatus)
	if err != nil {
		return false, classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// BookingView is a booking joined with the offer and store fields shown in
// customer and seller listings.
type BookingView struct {
	ID         uint64 `json:"id"`
	OfferID    uint64 `json:"offer_id"`
	OfferTitle string `json:"offer_title"`
	StoreID    uint64 `json:"store_id"`
	StoreName  string `json:"store_name"`
	Quantity   uint32 `json:"quantity"`
	Code       string `json:"code"`
	Status     string `json:"status"`
	PriceCents uint32 `json:"price_cents"`
	CreatedAt  string `json:"created_at"`
}

const bookingViewQ = `SELECT b.id, b.offer_id, o.title, s.id, s.name, b.quantity, b.code, b.status,
                             o.discount_price_cents * b.quantity, b.created_at
                      FROM bookings b
                      JOIN offers o ON o.id = b.offer_id
                      JOIN stores s ON s.id = o.store_id`

func collectBookingViews(rows *sql.Rows) ([]BookingView, error) {
	defer rows.Close()
	views := make([]BookingView, 0)
	for rows.Next() {
		var (
			v         BookingView
			createdAt sql.NullTime
		)
		if err := rows.Scan(&v.ID, &v.OfferID, &v.OfferTitle, &v.StoreID, &v.StoreName,
			&v.Quantity, &v.Code, &v.Status, &v.PriceCents, &createdAt); err != nil {
			return nil, err
		}
		if createdAt.Valid {
			v.CreatedAt = createdAt.Time.UTC().Format("2006-01-02 15:04:05")
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return views, nil
}

// ListByUser returns a customer's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]BookingView, error) {
	const q = bookingViewQ + ` WHERE b.user_id = ? ORDER BY b.created_at DESC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, classify(err)
	}
	return collectBookingViews(rows)
}

// ListByStore returns the bookings made against a store's offers after
// verifying that ownerID owns the store.
func (r *BookingRepo) ListByStore(ctx context.Context, storeID, ownerID uint64) ([]BookingView, error) {
	var actualOwnerID uint64
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT owner_id FROM stores WHERE id = ?`, storeID).Scan(&actualOwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStoreNotFound
		}
		return nil, classify(err)
	}
	if actualOwnerID != ownerID {
		return nil, ErrForbidden
	}
	const q = bookingViewQ + ` WHERE s.id = ? ORDER BY b.created_at DESC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, storeID)
	if err != nil {
		return nil, classify(err)
	}
	return collectBookingViews(rows)
}
