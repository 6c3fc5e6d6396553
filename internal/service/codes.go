package service

import (
	"crypto/rand"
	"math/big"
)

// Pickup codes are 6 characters from an uppercase alphanumeric alphabet,
// short enough to read over a counter and large enough (36^6 values) that
// collisions stay rare at realistic volumes.
const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// GenerateBookingCode returns a random pickup code.  Uniqueness is not
// guaranteed here; the caller checks against existing bookings and retries,
// with the UNIQUE index on the code column as the final arbiter.
func GenerateBookingCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
