// Package grant issues and validates secret-access grants: signed,
// client-held tokens proving that a client supplied the password of a secret
// resource. No grant state is kept on the server; validity is re-derived from
// the token, the clock, and the resource's current secret hash.
package grant

import (
	"crypto/ed25519"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/blake3"

	"github.com/hearth-cms/hearth/internal/access"
	"github.com/hearth-cms/hearth/internal/credential"
)

// DefaultTTL is the lifetime of a freshly minted grant.
const DefaultTTL = time.Hour

// fingerprintSize truncates the keyed secret-hash digest embedded in tokens.
const fingerprintSize = 16

// ErrSecretRequired indicates an empty signing secret.
var ErrSecretRequired = errors.New("grant: signing secret required")

// Config configures a Manager.
type Config struct {
	Secret     string
	TTL        time.Duration
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	Now        func() time.Time
}

// Issued is the result of a successful unlock.
type Issued struct {
	Token     string
	Claims    Claims
	ExpiresAt time.Time
}

// Manager mints and validates grant tokens.
type Manager struct {
	verifier   *credential.Verifier
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	clientKey  [32]byte
	printKey   [32]byte
	ttl        time.Duration
	now        func() time.Time
	logger     *slog.Logger
	issued     *prometheus.CounterVec
}

// NewManager derives the signing keys from cfg.Secret.
func NewManager(cfg Config, verifier *credential.Verifier) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, ErrSecretRequired
	}
	if verifier == nil {
		return nil, errors.New("grant: credential verifier required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	root := blake3.Sum256([]byte(cfg.Secret))
	var seed, clientKey, printKey [32]byte
	copy(seed[:], keyed(root, []byte("hearth grant signing key v1")))
	copy(clientKey[:], keyed(root, []byte("hearth grant client key v1")))
	copy(printKey[:], keyed(root, []byte("hearth grant fingerprint key v1")))

	privateKey := ed25519.NewKeyFromSeed(seed[:])

	issued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_grant_issue_total",
		Help: "Secret-access unlock attempts by result.",
	}, []string{"result"})
	if cfg.Registerer != nil {
		if err := cfg.Registerer.Register(issued); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
					issued = existing
				}
			} else {
				return nil, fmt.Errorf("grant: register metrics: %w", err)
			}
		}
	}

	return &Manager{
		verifier:   verifier,
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
		clientKey:  clientKey,
		printKey:   printKey,
		ttl:        ttl,
		now:        now,
		logger:     logger,
		issued:     issued,
	}, nil
}

// TTL returns the configured grant lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue verifies password against r and mints a grant bound to session.
// A zero or soft-deleted r is treated as missing; missing resources and wrong
// passwords produce the same bad_password denial so callers cannot test for
// existence.
func (m *Manager) Issue(r access.Resource, password, session string) (Issued, error) {
	if r.ID == 0 || r.Deleted {
		m.verifier.CompareDummy(password)
		return m.reject(r.Kind)
	}

	if !r.Secret {
		m.issued.WithLabelValues("public").Inc()
		return m.mint(r, ScopeClass, session)
	}

	if r.SecretHash == "" {
		m.verifier.CompareDummy(password)
		return m.reject(r.Kind)
	}

	ok, err := m.verifier.Verify(password, r.SecretHash)
	if err != nil {
		m.issued.WithLabelValues("error").Inc()
		return Issued{}, fmt.Errorf("grant: verify %s %d: %w", r.Kind, r.ID, err)
	}
	if !ok {
		return m.reject(r.Kind)
	}

	m.issued.WithLabelValues("granted").Inc()
	return m.mint(r, ScopeResource, session)
}

// Validate checks token against the current state of r for the client
// identified by session.
func (m *Manager) Validate(token string, r access.Resource, session string) error {
	raw, err := Decode(token)
	if err != nil {
		return err
	}
	claims, err := open(m.publicKey, raw, m.now())
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(claims.Client, m.clientDigest(session)) != 1 {
		return ErrClientMismatch
	}
	if claims.Kind != string(r.Kind) {
		return ErrResourceMismatch
	}
	switch claims.Scope {
	case ScopeResource:
		if claims.ResourceID != r.ID {
			return ErrResourceMismatch
		}
	case ScopeClass:
	default:
		return ErrMalformed
	}
	if subtle.ConstantTimeCompare(claims.Fingerprint, m.fingerprint(r)) != 1 {
		return ErrFingerprintMismatch
	}
	return nil
}

// Valid reports whether Validate succeeds.
func (m *Manager) Valid(token string, r access.Resource, session string) bool {
	return m.Validate(token, r, session) == nil
}

// Inspect returns the claims of a token whose signature and expiry are
// valid, without checking it against a resource.
func (m *Manager) Inspect(token string) (*Claims, error) {
	raw, err := Decode(token)
	if err != nil {
		return nil, err
	}
	return open(m.publicKey, raw, m.now())
}

// Presented wraps the tokens a client sent with a request as access.Grants.
func (m *Manager) Presented(tokens ...string) access.Grants {
	return presented{manager: m, tokens: tokens}
}

type presented struct {
	manager *Manager
	tokens  []string
}

func (p presented) Unlocks(principal access.Principal, r access.Resource) bool {
	if p.manager == nil {
		return false
	}
	for _, token := range p.tokens {
		if p.manager.Valid(token, r, principal.Session) {
			return true
		}
	}
	return false
}

func (m *Manager) mint(r access.Resource, scope Scope, session string) (Issued, error) {
	now := m.now()
	claims := Claims{
		ID:          uuid.NewString(),
		Kind:        string(r.Kind),
		Scope:       scope,
		Client:      m.clientDigest(session),
		IssuedAt:    now.Unix(),
		ExpiresAt:   now.Add(m.ttl).Unix(),
		Fingerprint: m.fingerprint(r),
	}
	if scope == ScopeResource {
		claims.ResourceID = r.ID
	}
	raw, err := sign(m.privateKey, &claims)
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		Token:     Encode(raw),
		Claims:    claims,
		ExpiresAt: time.Unix(claims.ExpiresAt, 0),
	}, nil
}

func (m *Manager) reject(kind access.Kind) (Issued, error) {
	m.issued.WithLabelValues("bad_password").Inc()
	m.logger.Debug("secret unlock rejected", slog.String("resource_kind", string(kind)))
	return Issued{}, access.Denial(access.ReasonBadPassword, kind)
}

func (m *Manager) clientDigest(session string) []byte {
	return keyed(m.clientKey, []byte(session))
}

// fingerprint is empty for resources without a secret hash, so class grants
// can never satisfy a secret resource.
func (m *Manager) fingerprint(r access.Resource) []byte {
	if !r.Secret || r.SecretHash == "" {
		return []byte{}
	}
	return keyed(m.printKey, []byte(r.SecretHash))[:fingerprintSize]
}

func keyed(key [32]byte, data []byte) []byte {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("grant: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(data)
	return hasher.Sum(nil)
}
