package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fudly/marketplace-api/internal/cache"
	"github.com/fudly/marketplace-api/internal/model"
)

// OfferRepo provides data access to the offers table.  It owns the two
// load-bearing primitives of the reservation engine: TryReserve, an atomic
// conditional decrement of remaining_quantity, and Release, its inverse.
// Both are single UPDATE statements so mutual exclusion on quantity is
// delegated entirely to the database's row-level locking; the repository
// never performs a read-then-write pair on the quantity column.
//
// Reads (GetByID, ListActive) go through an optional invalidate-on-write
// Redis cache.  The mutating primitives never consult it.
type OfferRepo struct {
	db    *sql.DB
	cache *cache.Cache
}

// NewOfferRepo constructs an OfferRepo.  The cache may be nil, in which case
// every read hits the database.
func NewOfferRepo(db *sql.DB, c *cache.Cache) *OfferRepo {
	return &OfferRepo{db: db, cache: c}
}

// DB exposes the underlying sql.DB so callers can run transactions spanning
// multiple repositories via WithTx.
func (r *OfferRepo) DB() *sql.DB { return r.db }

const dateLayout = "2006-01-02"

const offerColumns = `id, store_id, title, description, original_price_cents, discount_price_cents,
                      initial_quantity, remaining_quantity, expiry_date, status, version, created_at`

// scanOffer reads one offer row in offerColumns order.
func scanOffer(row interface{ Scan(...interface{}) error }) (*model.Offer, error) {
	var (
		o      model.Offer
		desc   sql.NullString
		expiry sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.StoreID, &o.Title, &desc, &o.OriginalPriceCents, &o.DiscountPriceCents,
		&o.InitialQuantity, &o.RemainingQuantity, &expiry, &o.Status, &o.Version, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		d := desc.String
		o.Description = &d
	}
	if expiry.Valid {
		e := expiry.Time.UTC()
		o.ExpiryDate = &e
	}
	return &o, nil
}

// Create inserts a new offer and populates the generated ID and DB defaults
// on the provided struct.  The offer starts active with
// remaining_quantity == initial_quantity.  Affected listing cache keys are
// invalidated before returning.
func (r *OfferRepo) Create(ctx context.Context, o *model.Offer, city string) error {
	const q = `INSERT INTO offers (store_id, title, description, original_price_cents, discount_price_cents,
                                   initial_quantity, remaining_quantity, expiry_date, status)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'active')`
	var expiry interface{}
	if o.ExpiryDate != nil {
		expiry = o.ExpiryDate.UTC().Format(dateLayout)
	}
	res, err := conn(ctx, r.db).ExecContext(ctx, q,
		o.StoreID, o.Title, o.Description, o.OriginalPriceCents, o.DiscountPriceCents,
		o.InitialQuantity, o.InitialQuantity, expiry,
	)
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	const sel = `SELECT ` + offerColumns + ` FROM offers WHERE id = ?`
	created, err := scanOffer(conn(ctx, r.db).QueryRowContext(ctx, sel, o.ID))
	if err != nil {
		return classify(err)
	}
	*o = *created
	r.cache.Invalidate(ctx, cache.StoreOffersKey(o.StoreID), cache.CityOffersKey(city), cache.AllOffersKey)
	return nil
}

// GetByID returns a single offer.  The read is served from the cache when a
// fresh entry exists; misses are stored with the configured TTL.  Returns
// ErrOfferNotFound when no row exists.
func (r *OfferRepo) GetByID(ctx context.Context, id uint64) (*model.Offer, error) {
	key := cache.OfferKey(id)
	var cached model.Offer
	if r.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}
	o, err := r.GetByIDUncached(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, key, o)
	return o, nil
}

// GetByIDUncached always hits the database, participating in the caller's
// transaction when one is open.  The reservation engine uses it to classify
// a failed conditional decrement from fresh state.
func (r *OfferRepo) GetByIDUncached(ctx context.Context, id uint64) (*model.Offer, error) {
	const q = `SELECT ` + offerColumns + ` FROM offers WHERE id = ?`
	o, err := scanOffer(conn(ctx, r.db).QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, classify(err)
	}
	return o, nil
}

// TryReserve atomically decrements remaining_quantity by n if and only if
// the offer is still active, not past its expiry date as of asOf, and has at
// least n units left.  When the decrement exhausts the offer, status flips
// to inactive in the same statement; the row version is bumped either way.
// ok=false means another reservation intervened or insufficient quantity
// remained — the caller must not retry blindly, because that outcome is the
// business answer "no longer available", not a transient fault.
//
// This is the single load-bearing guard of the engine; it must stay one
// UPDATE statement.
func (r *OfferRepo) TryReserve(ctx context.Context, id uint64, n uint32, asOf time.Time) (uint32, bool, error) {
	const q = `UPDATE offers
               SET remaining_quantity = remaining_quantity - ?,
                   status  = CASE WHEN remaining_quantity = 0 THEN 'inactive' ELSE status END,
                   version = version + 1
               WHERE id = ?
                 AND status = 'active'
                 AND remaining_quantity >= ?
                 AND (expiry_date IS NULL OR expiry_date >= ?)`
	// MySQL evaluates SET left to right, so the CASE sees the already
	// decremented remaining_quantity.
	res, err := conn(ctx, r.db).ExecContext(ctx, q, n, id, n, asOf.UTC().Format(dateLayout))
	if err != nil {
		return 0, false, classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected == 0 {
		return 0, false, nil
	}
	remaining, err := r.remaining(ctx, id)
	if err != nil {
		return 0, false, err
	}
	return remaining, true, nil
}

// Release atomically credits n units back to the offer, as the inverse of a
// successful TryReserve.  An offer that was flipped inactive purely because
// it ran out is reactivated; an offer that is deleted or past its expiry
// date as of asOf gets its quantity back but keeps its status, so a
// cancellation never resurrects a withdrawn or expired offer.  Returns
// ErrOfferNotFound when the offer row no longer exists.
func (r *OfferRepo) Release(ctx context.Context, id uint64, n uint32, asOf time.Time) (uint32, error) {
	const q = `UPDATE offers
               SET remaining_quantity = remaining_quantity + ?,
                   status  = CASE WHEN status = 'inactive' AND (expiry_date IS NULL OR expiry_date >= ?)
                             THEN 'active' ELSE status END,
                   version = version + 1
               WHERE id = ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, n, asOf.UTC().Format(dateLayout), id)
	if err != nil {
		return 0, classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, ErrOfferNotFound
	}
	return r.remaining(ctx, id)
}

// remaining reads back the current remaining_quantity, participating in the
// caller's transaction when one is open.
func (r *OfferRepo) remaining(ctx context.Context, id uint64) (uint32, error) {
	var remaining uint32
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT remaining_quantity FROM offers WHERE id = ?`, id).Scan(&remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrOfferNotFound
		}
		return 0, classify(err)
	}
	return remaining, nil
}

// DeactivateExpired flips every active offer whose expiry date lies strictly
// before asOf's date to inactive.  It is a pure status mutation: quantities
// and bookings are never touched, and running it twice in a row deactivates
// zero additional offers.  Returns the number of offers flipped.
func (r *OfferRepo) DeactivateExpired(ctx context.Context, asOf time.Time) (int64, error) {
	const q = `UPDATE offers
               SET status = 'inactive', version = version + 1
               WHERE status = 'active'
                 AND expiry_date IS NOT NULL
                 AND expiry_date < ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, asOf.UTC().Format(dateLayout))
	if err != nil {
		return 0, classify(err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if count > 0 {
		r.cache.InvalidateAll(ctx)
	}
	return count, nil
}

// SoftDelete marks an offer as deleted after verifying that the caller owns
// the store the offer belongs to.  Deleted offers stay in the table and keep
// their quantity; they are only excluded from listings and reservations.
func (r *OfferRepo) SoftDelete(ctx context.Context, offerID, ownerID uint64) error {
	const checkQ = `SELECT s.owner_id, s.id, s.city
                    FROM offers o
                    JOIN stores s ON s.id = o.store_id
                    WHERE o.id = ?`
	var (
		actualOwnerID uint64
		storeID       uint64
		city          string
	)
	err := conn(ctx, r.db).QueryRowContext(ctx, checkQ, offerID).Scan(&actualOwnerID, &storeID, &city)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOfferNotFound
		}
		return classify(err)
	}
	if actualOwnerID != ownerID {
		return ErrForbidden
	}
	const q = `UPDATE offers SET status = 'deleted', version = version + 1 WHERE id = ?`
	if _, err := conn(ctx, r.db).ExecContext(ctx, q, offerID); err != nil {
		return classify(err)
	}
	r.cache.Invalidate(ctx, cache.OfferKey(offerID), cache.StoreOffersKey(storeID), cache.CityOffersKey(city), cache.AllOffersKey)
	return nil
}

// OfferListing is an offer joined with the public fields of its store, as
// returned by ListActive for browse endpoints.
type OfferListing struct {
	ID                 uint64  `json:"id"`
	StoreID            uint64  `json:"store_id"`
	Title              string  `json:"title"`
	Description        *string `json:"description,omitempty"`
	OriginalPriceCents uint32  `json:"original_price_cents"`
	DiscountPriceCents uint32  `json:"discount_price_cents"`
	RemainingQuantity  uint32  `json:"remaining_quantity"`
	ExpiryDate         *string `json:"expiry_date,omitempty"`
	StoreName          string  `json:"store_name"`
	StoreAddress       *string `json:"store_address,omitempty"`
	City               string  `json:"city"`
}

// ListActive returns reservable offers: active status, quantity above zero,
// expiry not passed as of asOf, and an approved store.  Results are filtered
// by city or store when those arguments are non-zero and ordered newest
// first.  Listing reads are cached per filter key.
func (r *OfferRepo) ListActive(ctx context.Context, city string, storeID uint64, asOf time.Time) ([]OfferListing, error) {
	key := cache.AllOffersKey
	if storeID != 0 {
		key = cache.StoreOffersKey(storeID)
	} else if city != "" {
		key = cache.CityOffersKey(city)
	}
	var cached []OfferListing
	if r.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	q := `SELECT o.id, o.store_id, o.title, o.description, o.original_price_cents, o.discount_price_cents,
                 o.remaining_quantity, o.expiry_date, s.name, s.address, s.city
          FROM offers o
          JOIN stores s ON s.id = o.store_id
          WHERE o.status = 'active' AND o.remaining_quantity > 0 AND s.status = 'active'
            AND (o.expiry_date IS NULL OR o.expiry_date >= ?)`
	args := []interface{}{asOf.UTC().Format(dateLayout)}
	if storeID != 0 {
		q += ` AND o.store_id = ?`
		args = append(args, storeID)
	} else if city != "" {
		q += ` AND s.city = ?`
		args = append(args, city)
	}
	q += ` ORDER BY o.created_at DESC`

	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	listings := make([]OfferListing, 0)
	for rows.Next() {
		var (
			l       OfferListing
			desc    sql.NullString
			expiry  sql.NullTime
			address sql.NullString
		)
		if err := rows.Scan(
			&l.ID, &l.StoreID, &l.Title, &desc, &l.OriginalPriceCents, &l.DiscountPriceCents,
			&l.RemainingQuantity, &expiry, &l.StoreName, &address, &l.City,
		); err != nil {
			return nil, err
		}
		if desc.Valid {
			d := desc.String
			l.Description = &d
		}
		if expiry.Valid {
			e := expiry.Time.UTC().Format(dateLayout)
			l.ExpiryDate = &e
		}
		if address.Valid {
			a := address.String
			l.StoreAddress = &a
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	r.cache.Set(ctx, key, listings)
	return listings, nil
}

// ListByStoreForOwner returns every non-deleted offer of a store after
// verifying ownership.  Unlike ListActive it includes inactive and exhausted
// offers so sellers can see their full inventory.
func (r *OfferRepo) ListByStoreForOwner(ctx context.Context, storeID, ownerID uint64) ([]*model.Offer, error) {
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
	const q = `SELECT ` + offerColumns + ` FROM offers
               WHERE store_id = ? AND status != 'deleted'
               ORDER BY created_at DESC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, storeID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	offers := make([]*model.Offer, 0)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return offers, nil
}

// Invalidate drops the cache entries affected by a committed mutation of the
// given offer: the offer itself plus every listing that could contain it.
// The reservation engine calls this after its transaction commits and before
// reporting success, so no reader can keep observing a stale entry past the
// write.
func (r *OfferRepo) Invalidate(ctx context.Context, o *model.Offer, city string) {
	r.cache.Invalidate(ctx,
		cache.OfferKey(o.ID),
		cache.StoreOffersKey(o.StoreID),
		cache.CityOffersKey(city),
		cache.AllOffersKey,
	)
}
