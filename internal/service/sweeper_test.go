package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fudly/marketplace-api/internal/model"
)

func TestSweepDeactivatesOnlyExpiredActiveOffers(t *testing.T) {
	fresh := activeOffer(1, 5)
	expired := activeOffer(2, 3)
	expired.ExpiryDate = datePtr(testNow.AddDate(0, 0, -2))
	expiredInactive := activeOffer(3, 0)
	expiredInactive.Status = model.OfferStatusInactive
	expiredInactive.ExpiryDate = datePtr(testNow.AddDate(0, 0, -2))
	noExpiry := activeOffer(4, 7)
	noExpiry.ExpiryDate = nil

	inv := newFakeInventory(fresh, expired, expiredInactive, noExpiry)
	sw := NewSweeper(inv, time.Minute)
	sw.now = func() time.Time { return testNow }

	n, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	o, _ := inv.GetByID(context.Background(), 2)
	assert.Equal(t, model.OfferStatusInactive, o.Status)
	assert.Equal(t, uint32(3), o.RemainingQuantity, "sweep never touches quantity")

	for _, id := range []uint64{1, 4} {
		o, _ := inv.GetByID(context.Background(), id)
		assert.Equal(t, model.OfferStatusActive, o.Status, "offer %d", id)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	expired := activeOffer(1, 3)
	expired.ExpiryDate = datePtr(testNow.AddDate(0, 0, -1))
	inv := newFakeInventory(expired)
	sw := NewSweeper(inv, time.Minute)
	sw.now = func() time.Time { return testNow }

	n, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "second pass finds nothing to flip")
}

func TestSweepOnExpiryDayLeavesOfferAlone(t *testing.T) {
	o := activeOffer(1, 3)
	o.ExpiryDate = datePtr(testNow)
	inv := newFakeInventory(o)
	sw := NewSweeper(inv, time.Minute)
	sw.now = func() time.Time { return testNow }

	n, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "an offer is good through its expiry day")
}
