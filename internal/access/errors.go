package access

import (
	"errors"
	"fmt"
	"net/http"
)

// DenyError carries a DENY decision through service return values so that
// handlers can choose a status without matching on strings.
type DenyError struct {
	Decision Decision
	Kind     Kind
	ID       int64
}

func (e *DenyError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("access: %s denied: %s", e.Kind, e.Decision.Reason)
	}
	return fmt.Sprintf("access: %s %d denied: %s", e.Kind, e.ID, e.Decision.Reason)
}

// Status maps the denial reason to an HTTP status code.
func (e *DenyError) Status() int {
	return StatusFor(e.Decision.Reason)
}

// Err wraps the decision for resource r into an error. It returns nil for
// ALLOW decisions.
func (d Decision) Err(r Resource) error {
	if d.Allowed() {
		return nil
	}
	return &DenyError{Decision: d, Kind: r.Kind, ID: r.ID}
}

// Denial wraps a bare reason, used where no resource descriptor exists yet
// (creation, unknown ids).
func Denial(reason Reason, kind Kind) error {
	return &DenyError{Decision: Refuse(reason), Kind: kind}
}

// ReasonOf extracts the denial reason from err.
func ReasonOf(err error) (Reason, bool) {
	var denied *DenyError
	if errors.As(err, &denied) {
		return denied.Decision.Reason, true
	}
	return "", false
}

// IsDenied reports whether err is a denial with the given reason.
func IsDenied(err error, reason Reason) bool {
	got, ok := ReasonOf(err)
	return ok && got == reason
}

// StatusFor maps reasons to HTTP statuses. bad_password is a validation
// failure rather than an authentication failure so clients do not start a
// re-login flow.
func StatusFor(reason Reason) int {
	switch reason {
	case ReasonUnauthenticated:
		return http.StatusUnauthorized
	case ReasonForbidden, ReasonLocked:
		return http.StatusForbidden
	case ReasonNotFound:
		return http.StatusNotFound
	case ReasonBadPassword:
		return http.StatusBadRequest
	default:
		return http.StatusOK
	}
}
