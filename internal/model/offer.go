package model

import "time"

// Offer statuses.  An offer is never physically deleted; sellers and the
// expiry sweeper only flip its status.
const (
	OfferStatusActive   = "active"
	OfferStatusInactive = "inactive"
	OfferStatusDeleted  = "deleted"
)

// Offer represents a perishable, quantity-limited discounted item published
// by a store.  It corresponds to a row in the `offers` table.
//
// Two invariants are maintained by every mutator:
//  - RemainingQuantity == 0 implies Status != active (quantity and status
//    move in lockstep, never independently).
//  - An offer whose ExpiryDate has passed is not reservable regardless of
//    the recorded status; the reserve path re-checks expiry itself.
//
// Fields:
//  ID                 – primary key identifier.
//  StoreID            – store that owns the offer.
//  Title              – short item title (opaque to the engine).
//  Description        – optional longer description.
//  OriginalPriceCents – price before discount, in cents (> 0).
//  DiscountPriceCents – discounted price in cents (> 0, < original).
//  InitialQuantity    – quantity the offer was published with.
//  RemainingQuantity  – units still reservable (>= 0).
//  ExpiryDate         – last day the item may be picked up (nil = no expiry).
//  Status             – active, inactive or deleted.
//  Version            – row version bumped by every conditional update.
//  CreatedAt          – creation timestamp.
type Offer struct {
	ID                 uint64     // offers.id
	StoreID            uint64     // offers.store_id
	Title              string     // offers.title
	Description        *string    // offers.description (nullable)
	OriginalPriceCents uint32     // offers.original_price_cents
	DiscountPriceCents uint32     // offers.discount_price_cents
	InitialQuantity    uint32     // offers.initial_quantity
	RemainingQuantity  uint32     // offers.remaining_quantity
	ExpiryDate         *time.Time // offers.expiry_date (DATE, nullable)
	Status             string     // offers.status
	Version            uint64     // offers.version
	CreatedAt          time.Time  // offers.created_at
}

// Expired reports whether the offer's expiry date has passed as of the given
// instant.  Expiry is day-granular: the offer stays reservable through the
// whole expiry day in UTC.
func (o *Offer) Expired(now time.Time) bool {
	if o.ExpiryDate == nil {
		return false
	}
	day := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return o.ExpiryDate.Before(day)
}
