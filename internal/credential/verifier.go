// Package credential hashes and verifies secrets for accounts and secret posts.
package credential

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxSecretLength bounds the plaintext accepted by Hash and Verify. bcrypt
// ignores everything past 72 bytes, so longer input never matches.
const MaxSecretLength = 72

// MinCost is the lowest bcrypt cost the verifier accepts.
const MinCost = bcrypt.DefaultCost

var (
	// ErrSecretTooLong indicates the plaintext exceeds MaxSecretLength.
	ErrSecretTooLong = errors.New("credential: secret too long")
	// ErrEmptySecret indicates an empty plaintext was passed to Hash.
	ErrEmptySecret = errors.New("credential: secret required")
	// ErrMalformedHash indicates the stored hash is empty or not a bcrypt hash.
	ErrMalformedHash = errors.New("credential: malformed hash")
)

// Verifier wraps bcrypt with a configured cost.
type Verifier struct {
	cost int
	// dummy is compared against when there is no stored hash, so that
	// "missing" and "wrong" cost the same wall-clock time.
	dummy   []byte
	compare func(hash, plaintext []byte) error
}

// NewVerifier constructs a Verifier. Costs below MinCost are raised to MinCost.
func NewVerifier(cost int) *Verifier {
	if cost < MinCost {
		cost = MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("hearth-dummy-secret"), cost)
	if err != nil {
		dummy = nil
	}
	return &Verifier{cost: cost, dummy: dummy, compare: bcrypt.CompareHashAndPassword}
}

// Cost returns the bcrypt cost used for new hashes.
func (v *Verifier) Cost() int {
	return v.cost
}

// Hash produces a new salted hash for plaintext.
func (v *Verifier) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptySecret
	}
	if len(plaintext) > MaxSecretLength {
		return "", ErrSecretTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), v.cost)
	if err != nil {
		return "", fmt.Errorf("credential: hash: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches hash. A wrong secret is not an
// error; only an empty or unparsable hash is. Oversized plaintext is
// refused after a dummy comparison, so it costs as much as a mismatch.
func (v *Verifier) Verify(plaintext, hash string) (bool, error) {
	if hash == "" {
		return false, ErrMalformedHash
	}
	if len(plaintext) > MaxSecretLength {
		return v.CompareDummy(plaintext), nil
	}
	err := v.compare([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}

// CompareDummy spends one comparison against a fixed hash and always
// reports false.
func (v *Verifier) CompareDummy(plaintext string) bool {
	if len(plaintext) > MaxSecretLength {
		plaintext = plaintext[:MaxSecretLength]
	}
	if v.dummy != nil {
		_ = v.compare(v.dummy, []byte(plaintext))
	}
	return false
}
