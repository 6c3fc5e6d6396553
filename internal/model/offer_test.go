package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOfferExpiredIsDayGranular(t *testing.T) {
	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	yesterday := noon.AddDate(0, 0, -1)
	today := noon
	lateToday := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	tomorrow := noon.AddDate(0, 0, 1)

	cases := []struct {
		name    string
		expiry  *time.Time
		expired bool
	}{
		{"no expiry", nil, false},
		{"expired yesterday", &yesterday, true},
		{"expires today at noon", &today, false},
		{"expires today, checked late", &lateToday, false},
		{"expires tomorrow", &tomorrow, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := Offer{ExpiryDate: tc.expiry}
			assert.Equal(t, tc.expired, o.Expired(noon))
		})
	}
}

func TestBookingTerminal(t *testing.T) {
	assert.False(t, (&Booking{Status: BookingStatusPending}).Terminal())
	assert.True(t, (&Booking{Status: BookingStatusCompleted}).Terminal())
	assert.True(t, (&Booking{Status: BookingStatusCancelled}).Terminal())
}

func TestStoreOfferable(t *testing.T) {
	assert.True(t, (&Store{Status: StoreStatusActive}).Offerable())
	assert.False(t, (&Store{Status: StoreStatusPending}).Offerable())
	assert.False(t, (&Store{Status: StoreStatusRejected}).Offerable())
}
