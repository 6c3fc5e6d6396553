package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fudly/marketplace-api/internal/cache"
	"github.com/fudly/marketplace-api/internal/model"
)

// StoreRepo provides data access to the stores table.  Stores start pending
// and become visible to customers only after an administrator approves them;
// approval also promotes the owner to the seller role in the same
// transaction.
type StoreRepo struct {
	db    *sql.DB
	cache *cache.Cache
}

// NewStoreRepo constructs a StoreRepo.  The cache may be nil.
func NewStoreRepo(db *sql.DB, c *cache.Cache) *StoreRepo {
	return &StoreRepo{db: db, cache: c}
}

const storeColumns = `id, owner_id, name, city, address, description, rejection_reason, status, created_at`

func scanStore(row interface{ Scan(...interface{}) error }) (*model.Store, error) {
	var (
		s       model.Store
		address sql.NullString
		desc    sql.NullString
		reason  sql.NullString
	)
	err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.City, &address, &desc, &reason, &s.Status, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	if address.Valid {
		a := address.String
		s.Address = &a
	}
	if desc.Valid {
		d := desc.String
		s.Description = &d
	}
	if reason.Valid {
		r := reason.String
		s.RejectionReason = &r
	}
	return &s, nil
}

// Create inserts a new pending store and fills in the generated ID.
func (r *StoreRepo) Create(ctx context.Context, s *model.Store) error {
	const q = `INSERT INTO stores (owner_id, name, city, address, description, status)
               VALUES (?, ?, ?, ?, ?, 'pending')`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, s.OwnerID, s.Name, s.City, s.Address, s.Description)
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	s.Status = model.StoreStatusPending
	return nil
}

// GetByID returns one store or ErrStoreNotFound.  Reads are served from the
// cache when possible.
func (r *StoreRepo) GetByID(ctx context.Context, id uint64) (*model.Store, error) {
	key := cache.StoreKey(id)
	var cached model.Store
	if r.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}
	const q = `SELECT ` + storeColumns + ` FROM stores WHERE id = ?`
	s, err := scanStore(conn(ctx, r.db).QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStoreNotFound
		}
		return nil, classify(err)
	}
	r.cache.Set(ctx, key, s)
	return s, nil
}

// ListByCity returns the approved stores in a city, cached per city.
func (r *StoreRepo) ListByCity(ctx context.Context, city string) ([]*model.Store, error) {
	key := cache.CityStoresKey(city)
	var cached []*model.Store
	if r.cache.Get(ctx, key, &cached) {
		return cached, nil
	}
	const q = `SELECT ` + storeColumns + ` FROM stores WHERE city = ? AND status = 'active' ORDER BY name`
	stores, err := r.list(ctx, q, city)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, key, stores)
	return stores, nil
}

// ListByOwner returns every store owned by a user, regardless of status.
func (r *StoreRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]*model.Store, error) {
	const q = `SELECT ` + storeColumns + ` FROM stores WHERE owner_id = ? ORDER BY created_at DESC`
	return r.list(ctx, q, ownerID)
}

// ListPending returns stores awaiting moderation, oldest first so the review
// queue is first-come first-served.
func (r *StoreRepo) ListPending(ctx context.Context) ([]*model.Store, error) {
	const q = `SELECT ` + storeColumns + ` FROM stores WHERE status = 'pending' ORDER BY created_at ASC`
	return r.list(ctx, q)
}

func (r *StoreRepo) list(ctx context.Context, q string, args ...interface{}) ([]*model.Store, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	stores := make([]*model.Store, 0)
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stores, nil
}

// Approve moves a pending store to active and promotes its owner to the
// seller role, both inside one transaction.  Returns ErrConflict when the
// store is not pending, so approving twice or approving a rejected store
// fails cleanly.
func (r *StoreRepo) Approve(ctx context.Context, storeID uint64) error {
	err := WithTx(ctx, r.db, func(ctx context.Context) error {
		const q = `UPDATE stores SET status = 'active' WHERE id = ? AND status = 'pending'`
		res, err := conn(ctx, r.db).ExecContext(ctx, q, storeID)
		if err != nil {
			return classify(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var status string
			err := conn(ctx, r.db).QueryRowContext(ctx,
				`SELECT status FROM stores WHERE id = ?`, storeID).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrStoreNotFound
			}
			if err != nil {
				return classify(err)
			}
			return ErrConflict
		}
		// Admins keep their role; everyone else becomes a seller.
		const promoteQ = `UPDATE users u
                          JOIN stores s ON s.owner_id = u.id
                          SET u.role = ?
                          WHERE s.id = ? AND u.role = ?`
		_, err = conn(ctx, r.db).ExecContext(ctx, promoteQ, model.RoleSeller, storeID, model.RoleCustomer)
		return classify(err)
	})
	if err != nil {
		return err
	}
	r.invalidate(ctx, storeID)
	return nil
}

// Reject moves a pending store to rejected and records the moderation
// reason.  Returns ErrConflict when the store is not pending.
func (r *StoreRepo) Reject(ctx context.Context, storeID uint64, reason string) error {
	const q = `UPDATE stores SET status = 'rejected', rejection_reason = ? WHERE id = ? AND status = 'pending'`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, reason, storeID)
	if err != nil {
		return classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var status string
		err := conn(ctx, r.db).QueryRowContext(ctx,
			`SELECT status FROM stores WHERE id = ?`, storeID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStoreNotFound
		}
		if err != nil {
			return classify(err)
		}
		return ErrConflict
	}
	r.invalidate(ctx, storeID)
	return nil
}

func (r *StoreRepo) invalidate(ctx context.Context, storeID uint64) {
	var city string
	if err := r.db.QueryRowContext(ctx, `SELECT city FROM stores WHERE id = ?`, storeID).Scan(&city); err == nil {
		r.cache.Invalidate(ctx, cache.CityStoresKey(city), cache.CityOffersKey(city))
	}
	r.cache.Invalidate(ctx, cache.StoreKey(storeID), cache.StoreOffersKey(storeID), cache.AllOffersKey)
}
