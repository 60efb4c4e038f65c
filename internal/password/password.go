// Package password implements credential hashing for the identity store.
//
// Hashing uses bcrypt at a fixed cost factor. Verification always runs
// a bcrypt comparison, even when the looked-up account does not exist,
// so that sign-in timing does not reveal account existence.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	// Cost is the bcrypt work factor applied to every hash.
	Cost = 12

	// MinLength is the minimum accepted password length.
	MinLength = 8

	// MaxLength is bcrypt's input ceiling; longer passwords are rejected
	// rather than silently truncated.
	MaxLength = 72
)

// ErrTooShort is returned when a password is below MinLength.
var ErrTooShort = errors.New("password: must be at least 8 characters")

// ErrTooLong is returned when a password exceeds MaxLength.
var ErrTooLong = errors.New("password: must be at most 72 characters")

// dummyHash is compared against on sign-in when no account was found,
// so that the bcrypt cost is paid on both the found and not-found
// paths. It is never used to authenticate a real account.
var dummyHash = mustHash("correct horse battery staple")

func mustHash(s string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(s), Cost)
	if err != nil {
		panic(err)
	}
	return string(h)
}

// Validate checks a candidate password against length constraints
// without hashing it.
func Validate(plain string) error {
	if len(plain) < MinLength {
		return ErrTooShort
	}
	if len(plain) > MaxLength {
		return ErrTooLong
	}
	return nil
}

// Hash validates and hashes a plaintext password.
func Hash(plain string) (string, error) {
	if err := Validate(plain); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether plain matches hash. It runs in constant time
// with respect to the comparison itself (bcrypt's guarantee); callers
// that need enumeration resistance across found/not-found accounts
// should call VerifyOrDummy instead.
func Verify(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// VerifyOrDummy compares plain against hash when ok is true, or against
// a fixed dummy hash when ok is false. Use this on the sign-in path so
// that looking up a nonexistent account costs the same as a failed
// password check on a real one. It always returns false when ok is
// false, regardless of plain.
func VerifyOrDummy(hash string, ok bool, plain string) bool {
	if !ok {
		bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(plain))
		return false
	}
	return Verify(hash, plain)
}
