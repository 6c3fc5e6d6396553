package repository

import (
	"context"
	"database/sql"
)

// PlatformStats aggregates the counters shown on the admin dashboard.
type PlatformStats struct {
	Users             uint64 `json:"users"`
	Sellers           uint64 `json:"sellers"`
	ActiveStores      uint64 `json:"active_stores"`
	PendingStores     uint64 `json:"pending_stores"`
	ActiveOffers      uint64 `json:"active_offers"`
	PendingBookings   uint64 `json:"pending_bookings"`
	CompletedBookings uint64 `json:"completed_bookings"`
	CancelledBookings uint64 `json:"cancelled_bookings"`
}

// StatsRepo computes platform-wide aggregates for administrators.
type StatsRepo struct{ db *sql.DB }

func NewStatsRepo(db *sql.DB) *StatsRepo { return &StatsRepo{db: db} }

// Platform gathers all counters in one round trip.
func (r *StatsRepo) Platform(ctx context.Context) (*PlatformStats, error) {
	const q = `SELECT
        (SELECT COUNT(*) FROM users),
        (SELECT COUNT(*) FROM users WHERE role = 'SELLER'),
        (SELECT COUNT(*) FROM stores WHERE status = 'active'),
        (SELECT COUNT(*) FROM stores WHERE status = 'pending'),
        (SELECT COUNT(*) FROM offers WHERE status = 'active'),
        (SELECT COUNT(*) FROM bookings WHERE status = 'pending'),
        (SELECT COUNT(*) FROM bookings WHERE status = 'completed'),
        (SELECT COUNT(*) FROM bookings WHERE status = 'cancelled')`
	var s PlatformStats
	err := r.db.QueryRowContext(ctx, q).Scan(
		&s.Users, &s.Sellers, &s.ActiveStores, &s.PendingStores,
		&s.ActiveOffers, &s.PendingBookings, &s.CompletedBookings, &s.CancelledBookings,
	)
	if err != nil {
		return nil, classify(err)
	}
	return &s, nil
}
