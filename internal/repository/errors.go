// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// reservation engine and handlers to distinguish between different failure
// scenarios without inspecting SQL error strings.
package repository

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrOfferNotFound indicates that no offer row exists for the given id.
var ErrOfferNotFound = errors.New("offer not found")

// ErrBookingNotFound indicates that no booking row exists for the given id
// or pickup code.
var ErrBookingNotFound = errors.New("booking not found")

// ErrStoreNotFound indicates that no store row exists for the given id.
var ErrStoreNotFound = errors.New("store not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own. Handlers should translate this into an HTTP
// 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be performed because of
// conflicting state, such as approving a store that is not pending.
// Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrStoreBusy marks infrastructure-transient failures: row-lock wait
// timeouts, deadlock victims and exceeded deadlines. Callers may retry a
// fresh attempt; the repositories themselves never retry, because a retried
// reservation is a new attempt rather than a repair of the old one.
var ErrStoreBusy = errors.New("storage busy")

// MySQL server error numbers.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// isDuplicateEntry reports whether err is a unique-constraint violation.
func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}

// classify wraps lock-contention and deadline errors with ErrStoreBusy so
// callers can test with errors.Is without importing the driver. All other
// errors pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(ErrStoreBusy, err)
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		if me.Number == mysqlErrLockWaitTimeout || me.Number == mysqlErrDeadlock {
			return errors.Join(ErrStoreBusy, err)
		}
	}
	return err
}
