// Package access decides who may read, change, or delete board and gallery
// resources. Decisions are pure functions of the principal, the resource
// descriptor, the action, and any secret-access grants the client presents.
package access

// Role is the coarse role carried by a principal.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a stored role string to a Role, defaulting to RoleUser.
func ParseRole(raw string) Role {
	if Role(raw) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Principal is the actor making a request. It is built once per request from
// the verified session and never mutated afterwards.
type Principal struct {
	ID   int64
	Role Role
	// Session identifies the client the principal acts through. Grants are
	// bound to it.
	Session string
}

// Anonymous returns the unauthenticated principal for a client session.
func Anonymous(session string) Principal {
	return Principal{Role: RoleUser, Session: session}
}

// IsAuthenticated reports whether the principal has a verified identity.
func (p Principal) IsAuthenticated() bool {
	return p.ID > 0
}

// IsAdmin reports whether the principal is an authenticated administrator.
func (p Principal) IsAdmin() bool {
	return p.IsAuthenticated() && p.Role == RoleAdmin
}

// Owns reports whether the principal owns the resource.
func (p Principal) Owns(r Resource) bool {
	return p.IsAuthenticated() && p.ID == r.OwnerID
}

// Kind names a resource class.
type Kind string

const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
	KindGallery Kind = "gallery"
)

// Resource is the descriptor the engine evaluates. It generalizes posts,
// comments, and gallery items.
type Resource struct {
	Kind       Kind
	ID         int64
	OwnerID    int64
	Secret     bool
	SecretHash string
	Deleted    bool
}

// Action is the operation a principal attempts.
type Action string

const (
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionComment Action = "comment"
	// ActionAudit is an administrator read that also reaches soft-deleted records.
	ActionAudit Action = "audit"
)

// Outcome is the binary result of an authorization decision.
type Outcome string

const (
	Allow Outcome = "allow"
	Deny  Outcome = "deny"
)

// Reason explains a decision.
type Reason string

const (
	ReasonOK              Reason = "ok"
	ReasonNotFound        Reason = "not_found"
	ReasonForbidden       Reason = "forbidden"
	ReasonLocked          Reason = "locked"
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonBadPassword     Reason = "bad_password"
)

// Decision is computed per call and never stored.
type Decision struct {
	Outcome Outcome
	Reason  Reason
}

// Permit returns an ALLOW decision.
func Permit() Decision {
	return Decision{Outcome: Allow, Reason: ReasonOK}
}

// Refuse returns a DENY decision with the given reason.
func Refuse(reason Reason) Decision {
	return Decision{Outcome: Deny, Reason: reason}
}

// Allowed reports whether the decision permits the action.
func (d Decision) Allowed() bool {
	return d.Outcome == Allow
}

// Grants reports whether the client holds a valid secret-access grant for a
// resource. Implementations must re-derive validity on every call.
type Grants interface {
	Unlocks(p Principal, r Resource) bool
}

// NoGrants is the empty grant set.
type NoGrants struct{}

// Unlocks always reports false.
func (NoGrants) Unlocks(Principal, Resource) bool { return false }
