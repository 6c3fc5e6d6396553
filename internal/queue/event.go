// Package queue defines message payloads exchanged over the message broker.
package queue

// Booking lifecycle stages carried in BookingEvent.Stage.
const (
	StageReserved  = "reserved"
	StageCancelled = "cancelled"
	StageCompleted = "completed"
)

// BookingEvent is published on every booking lifecycle change. It contains
// enough information for downstream consumers to log, notify, or trigger
// analytics without querying the primary database.
type BookingEvent struct {
	BookingID        uint64 `json:"booking_id"`
	UserID           uint64 `json:"user_id"`
	OfferID          uint64 `json:"offer_id"`
	OfferTitle       string `json:"offer_title"`
	StoreID          uint64 `json:"store_id"`
	StoreName        string `json:"store_name"`
	Quantity         uint32 `json:"quantity"`
	Code             string `json:"code"`
	Stage            string `json:"stage"`
	TotalAmountCents uint32 `json:"total_amount_cents"`
	OccurredAt       string `json:"occurred_at"`
}
