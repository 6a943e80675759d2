package auth

import (
	"fmt"
	"strings"

	"gradebook.dev/internal/obs"
)

// Decision is the outcome of evaluating a rule.
type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

func (d Decision) String() string {
	if d {
		return "allow"
	}
	return "deny"
}

// Rule is an access requirement evaluated against a principal. Rules that cannot be
// evaluated deny.
type Rule interface {
	Evaluate(p Principal) Decision
	String() string
}

// Authorize returns nil when rule allows p and ErrForbidden otherwise.
func Authorize(p Principal, rule Rule) error {
	d := Deny
	if rule != nil && !p.IsZero() {
		d = rule.Evaluate(p)
	}
	obs.ObserveDecision(ruleName(rule), d.String())
	if d != Allow {
		return fmt.Errorf("%w: %s", ErrForbidden, ruleName(rule))
	}
	return nil
}

func ruleName(rule Rule) string {
	if rule == nil {
		return "no rule"
	}
	return rule.String()
}

type roleRule struct {
	roles []Role
}

// RequireRoles allows principals whose role is one of roles. ADMIN is not implied:
// list it explicitly where admins may call.
func RequireRoles(roles ...Role) Rule {
	return roleRule{roles: append([]Role(nil), roles...)}
}

func (r roleRule) Evaluate(p Principal) Decision {
	for _, role := range r.roles {
		if role.Valid() && p.role == role {
			return Allow
		}
	}
	return Deny
}

func (r roleRule) String() string {
	names := make([]string, len(r.roles))
	for i, role := range r.roles {
		names[i] = string(role)
	}
	return "roles(" + strings.Join(names, ",") + ")"
}

// Owner is the recorded owner of a resource. The zero value means unknown.
type Owner struct {
	ID int64
}

func (o Owner) known() bool { return o.ID > 0 }

type ownerOrAdminRule struct {
	owner Owner
}

// OwnerOrAdmin allows the resource owner and any ADMIN. An unknown owner denies everyone.
func OwnerOrAdmin(owner Owner) Rule {
	return ownerOrAdminRule{owner: owner}
}

func (r ownerOrAdminRule) Evaluate(p Principal) Decision {
	if !r.owner.known() {
		return Deny
	}
	if p.id == r.owner.ID || p.role == RoleAdmin {
		return Allow
	}
	return Deny
}

func (r ownerOrAdminRule) String() string { return "owner_or_admin" }

type selfRule struct {
	id int64
}

// Self allows the principal whose identity id is id.
func Self(id int64) Rule {
	return selfRule{id: id}
}

func (r selfRule) Evaluate(p Principal) Decision {
	if r.id > 0 && p.id == r.id {
		return Allow
	}
	return Deny
}

func (r selfRule) String() string { return "self" }

type anyOfRule struct {
	rules []Rule
}

// AnyOf allows when at least one of rules allows. With no rules it denies.
func AnyOf(rules ...Rule) Rule {
	return anyOfRule{rules: append([]Rule(nil), rules...)}
}

func (r anyOfRule) Evaluate(p Principal) Decision {
	for _, rule := range r.rules {
		if rule != nil && rule.Evaluate(p) == Allow {
			return Allow
		}
	}
	return Deny
}

func (r anyOfRule) String() string {
	names := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		names = append(names, ruleName(rule))
	}
	return "any_of(" + strings.Join(names, "|") + ")"
}
