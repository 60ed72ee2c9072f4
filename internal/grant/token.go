package grant

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// signatureSize is the fixed size of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize

// Scope says how far a grant reaches.
type Scope uint8

const (
	// ScopeResource unlocks one individually secret resource.
	ScopeResource Scope = 1
	// ScopeClass is minted for resources without a password and only ever
	// matches resources of the same kind that are not secret.
	ScopeClass Scope = 2
)

func (s Scope) String() string {
	switch s {
	case ScopeResource:
		return "single-resource"
	case ScopeClass:
		return "resource-class"
	default:
		return "unknown"
	}
}

// Claims is the CBOR payload of a grant token.
type Claims struct {
	// ID is a random token identifier, useful for tracing.
	ID string `cbor:"1,keyasint"`

	// Kind is the resource class the grant was minted for.
	Kind string `cbor:"2,keyasint"`

	// ResourceID is the unlocked resource. Zero for class-scoped grants.
	ResourceID int64 `cbor:"3,keyasint,omitempty"`

	Scope Scope `cbor:"4,keyasint"`

	// Client is a keyed digest of the session the grant was issued to.
	Client []byte `cbor:"5,keyasint"`

	// IssuedAt and ExpiresAt are Unix seconds.
	IssuedAt  int64 `cbor:"6,keyasint"`
	ExpiresAt int64 `cbor:"7,keyasint"`

	// Fingerprint is a keyed digest of the resource's secret hash at issue
	// time. A password change yields a different fingerprint.
	Fingerprint []byte `cbor:"8,keyasint,omitempty"`
}

// TTL returns the lifetime the grant was minted with.
func (c Claims) TTL() time.Duration {
	return time.Duration(c.ExpiresAt-c.IssuedAt) * time.Second
}

// Errors returned while verifying tokens.
var (
	ErrMalformed           = errors.New("grant: malformed token")
	ErrInvalidSignature    = errors.New("grant: invalid signature")
	ErrExpired             = errors.New("grant: token expired")
	ErrClientMismatch      = errors.New("grant: token issued to another client")
	ErrResourceMismatch    = errors.New("grant: token issued for another resource")
	ErrFingerprintMismatch = errors.New("grant: resource secret changed since issue")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core Deterministic Encoding keeps the signed bytes stable for equal claims.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("grant: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("grant: CBOR decoder initialization failed: " + err.Error())
	}
}

// sign encodes claims and appends the Ed25519 signature over the payload.
//
//	[CBOR payload bytes] [64-byte Ed25519 signature]
func sign(key ed25519.PrivateKey, claims *Claims) ([]byte, error) {
	payload, err := encMode.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("grant: encoding claims: %w", err)
	}
	signature := ed25519.Sign(key, payload)

	out := make([]byte, len(payload)+signatureSize)
	copy(out, payload)
	copy(out[len(payload):], signature)
	return out, nil
}

// open checks the signature and expiry of raw token bytes.
func open(key ed25519.PublicKey, raw []byte, now time.Time) (*Claims, error) {
	if len(raw) <= signatureSize {
		return nil, ErrMalformed
	}
	split := len(raw) - signatureSize
	payload, signature := raw[:split], raw[split:]

	if !ed25519.Verify(key, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var claims Claims
	if err := decMode.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if now.Unix() >= claims.ExpiresAt {
		return nil, ErrExpired
	}
	return &claims, nil
}

// Encode renders raw token bytes for cookies and headers.
func Encode(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode reverses Encode.
func Decode(token string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrMalformed
	}
	return raw, nil
}
