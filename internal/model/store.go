package model

import "time"

// Store statuses.  A store's offers become publicly reservable only after an
// admin approves the store.
const (
	StoreStatusPending  = "pending"
	StoreStatusActive   = "active"
	StoreStatusRejected = "rejected"
)

// Store represents a seller's shop or restaurant.  Each store belongs to one
// owner and holds any number of offers.  This struct corresponds to a row in
// the `stores` table.
type Store struct {
	ID              uint64    // stores.id
	OwnerID         uint64    // stores.owner_id
	Name            string    // stores.name
	City            string    // stores.city
	Address         *string   // stores.address (nullable)
	Description     *string   // stores.description (nullable)
	Status          string    // stores.status
	RejectionReason *string   // stores.rejection_reason (nullable)
	CreatedAt       time.Time // stores.created_at
}

// Offerable reports whether the store's offers may be reserved by the
// public.  Only approved stores qualify.
func (s *Store) Offerable() bool {
	return s.Status == StoreStatusActive
}
