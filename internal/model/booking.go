package model

import "time"

// Booking statuses.  Completed and cancelled are terminal; no operation may
// transition out of them.
const (
	BookingStatusPending   = "pending"
	BookingStatusCompleted = "completed"
	BookingStatusCancelled = "cancelled"
)

// Booking records a buyer's reservation of units against an offer.  It is
// created only by a successful Reserve call and identified to the store
// clerk at pickup by its short code.
//
// Fields:
//  ID        – primary key identifier.
//  OfferID   – offer the units were reserved from.
//  UserID    – buyer who made the reservation.
//  Quantity  – units reserved (>= 1).
//  Code      – unique pickup code shown at the counter.
//  Status    – pending, completed or cancelled.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last status change.
type Booking struct {
	ID        uint64    // bookings.id
	OfferID   uint64    // bookings.offer_id
	UserID    uint64    // bookings.user_id
	Quantity  uint32    // bookings.quantity
	Code      string    // bookings.code
	Status    string    // bookings.status
	CreatedAt time.Time // bookings.created_at
	UpdatedAt time.Time // bookings.updated_at
}

// Terminal reports whether the booking is in a final state.
func (b *Booking) Terminal() bool {
	return b.Status == BookingStatusCompleted || b.Status == BookingStatusCancelled
}
