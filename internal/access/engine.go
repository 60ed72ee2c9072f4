package access

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// rule is one row of the decision table. The first rule whose match returns
// true decides the outcome.
type rule struct {
	name   string
	reason Reason
	match  func(p Principal, r Resource, a Action, g Grants) bool
}

// rules is evaluated in order. Soft-delete comes first so deleted records look
// like missing ones to every role. The ownership row comes before the secrecy
// row because owners and admins bypass the password gate.
var rules = []rule{
	{
		name:   "deleted",
		reason: ReasonNotFound,
		match: func(p Principal, r Resource, a Action, _ Grants) bool {
			return r.Deleted && !(a == ActionAudit && p.IsAdmin())
		},
	},
	{
		name:   "owner_or_admin",
		reason: ReasonForbidden,
		match: func(p Principal, r Resource, a Action, _ Grants) bool {
			if a != ActionUpdate && a != ActionDelete {
				return false
			}
			return !p.Owns(r) && !p.IsAdmin()
		},
	},
	{
		name:   "audit_admin_only",
		reason: ReasonForbidden,
		match: func(p Principal, _ Resource, a Action, _ Grants) bool {
			return a == ActionAudit && !p.IsAdmin()
		},
	},
	{
		name:   "secret_gate",
		reason: ReasonLocked,
		match: func(p Principal, r Resource, a Action, g Grants) bool {
			if a != ActionRead || !r.Secret {
				return false
			}
			if p.Owns(r) || p.IsAdmin() {
				return false
			}
			return g == nil || !g.Unlocks(p, r)
		},
	},
	{
		name:   "comment_requires_identity",
		reason: ReasonUnauthenticated,
		match: func(p Principal, _ Resource, a Action, _ Grants) bool {
			return a == ActionComment && !p.IsAuthenticated()
		},
	},
}

// Engine evaluates the decision table, logging and counting denials.
type Engine struct {
	logger    *slog.Logger
	decisions *prometheus.CounterVec
}

// NewEngine constructs an Engine. reg may be nil to skip metric registration.
func NewEngine(logger *slog.Logger, reg prometheus.Registerer) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_access_decisions_total",
		Help: "Authorization decisions by action, outcome and reason.",
	}, []string{"action", "outcome", "reason"})
	if reg != nil {
		if err := reg.Register(decisions); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
					decisions = existing
				}
			} else {
				logger.Warn("register access metrics", slog.Any("error", err))
			}
		}
	}
	return &Engine{logger: logger, decisions: decisions}
}

// Authorize evaluates action a by principal p on resource r. g holds the
// grants presented by the client and may be nil.
func (e *Engine) Authorize(p Principal, r Resource, a Action, g Grants) Decision {
	for _, row := range rules {
		if row.match(p, r, a, g) {
			return e.record(p, r, a, Refuse(row.reason), row.name)
		}
	}
	return e.record(p, r, a, Permit(), "")
}

// AuthorizeCommentDelete decides comment deletion. Unlike the two-way
// owner-or-admin rule used for posts, the comment author, the parent post
// author, and admins may all delete. A comment under a deleted post is
// itself treated as deleted.
func (e *Engine) AuthorizeCommentDelete(p Principal, comment, parent Resource) Decision {
	if comment.Deleted || parent.Deleted {
		return e.record(p, comment, ActionDelete, Refuse(ReasonNotFound), "deleted")
	}
	if p.Owns(comment) || p.Owns(parent) || p.IsAdmin() {
		return e.record(p, comment, ActionDelete, Permit(), "")
	}
	return e.record(p, comment, ActionDelete, Refuse(ReasonForbidden), "comment_or_post_owner_or_admin")
}

func (e *Engine) record(p Principal, r Resource, a Action, d Decision, ruleName string) Decision {
	if e == nil {
		return d
	}
	e.decisions.WithLabelValues(string(a), string(d.Outcome), string(d.Reason)).Inc()
	if !d.Allowed() {
		e.logger.Debug("access denied",
			slog.Int64("principal_id", p.ID),
			slog.String("resource_kind", string(r.Kind)),
			slog.Int64("resource_id", r.ID),
			slog.String("action", string(a)),
			slog.String("reason", string(d.Reason)),
			slog.String("rule", ruleName),
		)
	}
	return d
}
