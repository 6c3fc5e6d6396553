// Package service implements the reservation engine: the booking lifecycle
// built on top of the repositories' atomic primitives.  The engine owns
// validation, failure classification and the orchestration of decrement,
// code allocation and booking creation inside one transaction; the
// repositories own atomicity.
package service

import "errors"

// ErrInvalidQuantity rejects a reservation request before any storage work:
// zero units, or more units than one booking may hold.
var ErrInvalidQuantity = errors.New("invalid quantity")

// ErrExhausted means the offer exists and is open for business but does not
// have enough remaining units for the requested amount.
var ErrExhausted = errors.New("offer exhausted")

// ErrOfferUnavailable means the offer cannot take reservations at all: it
// does not exist, was withdrawn by the seller, or its expiry date passed.
var ErrOfferUnavailable = errors.New("offer unavailable")

// ErrInvalidTransition rejects a lifecycle change out of a terminal state,
// such as cancelling a completed booking or redeeming a cancelled one.
var ErrInvalidTransition = errors.New("invalid booking transition")

// ErrAlreadyCancelled is the specific case of cancelling a booking twice.
// Distinguished from ErrInvalidTransition so clients can treat a repeated
// cancel as a no-op rather than a fault.
var ErrAlreadyCancelled = errors.New("booking already cancelled")
