package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	v := NewVerifier(MinCost)

	hash, err := v.Hash("abc123")
	require.NoError(t, err)
	assert.NotEqual(t, "abc123", hash)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cost, MinCost)

	ok, err := v.Verify("abc123", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify("wrong", hash)
	require.NoError(t, err, "wrong secret is not an error")
	assert.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	v := NewVerifier(MinCost)
	first, err := v.Hash("same-secret")
	require.NoError(t, err)
	second, err := v.Hash("same-secret")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestCostFloor(t *testing.T) {
	assert.Equal(t, MinCost, NewVerifier(4).Cost())
	assert.Equal(t, 12, NewVerifier(12).Cost())
}

func TestHashRejectsBadInput(t *testing.T) {
	v := NewVerifier(MinCost)

	_, err := v.Hash("")
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = v.Hash(strings.Repeat("a", MaxSecretLength+1))
	assert.ErrorIs(t, err, ErrSecretTooLong)
}

func TestVerifyContractViolations(t *testing.T) {
	v := NewVerifier(MinCost)

	_, err := v.Verify("abc", "")
	assert.ErrorIs(t, err, ErrMalformedHash)

	_, err = v.Verify("abc", "not-a-bcrypt-hash")
	assert.ErrorIs(t, err, ErrMalformedHash)
}

func TestVerifyOversizedInputIsFalse(t *testing.T) {
	v := NewVerifier(MinCost)
	hash, err := v.Hash(strings.Repeat("a", MaxSecretLength))
	require.NoError(t, err)

	compares := 0
	v.compare = func(hash, plaintext []byte) error {
		compares++
		return bcrypt.CompareHashAndPassword(hash, plaintext)
	}

	ok, err := v.Verify(strings.Repeat("a", MaxSecretLength+10), hash)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, compares, "oversized input spends one comparison like a mismatch")

	ok, err = v.Verify("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, compares)
}

func TestCompareDummy(t *testing.T) {
	v := NewVerifier(MinCost)
	assert.False(t, v.CompareDummy("anything"))
	assert.False(t, v.CompareDummy(strings.Repeat("x", 200)))
}
