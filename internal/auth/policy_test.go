package auth

import (
	"errors"
	"testing"
)

func principal(id int64, role Role) Principal {
	return NewPrincipal(Identity{ID: id, Email: "p@school.test", Role: role, Active: true})
}

func TestRequireRolesDoesNotImplyAdmin(t *testing.T) {
	admin := principal(1, RoleAdmin)
	teacher := principal(2, RoleTeacher)

	if err := Authorize(admin, RequireRoles(RoleTeacher)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin must not pass a teacher-only rule, got %v", err)
	}
	if err := Authorize(teacher, RequireRoles(RoleTeacher)); err != nil {
		t.Fatalf("teacher should pass: %v", err)
	}
	if err := Authorize(admin, RequireRoles(RoleTeacher, RoleAdmin)); err != nil {
		t.Fatalf("admin listed explicitly should pass: %v", err)
	}
	if err := Authorize(teacher, RequireRoles()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("empty role list must deny, got %v", err)
	}
}

func TestOwnerOrAdmin(t *testing.T) {
	owner := principal(10, RoleTeacher)
	other := principal(11, RoleTeacher)
	admin := principal(1, RoleAdmin)
	student := principal(10, RoleStudent)

	rule := OwnerOrAdmin(Owner{ID: 10})
	if rule.Evaluate(owner) != Allow {
		t.Fatal("owner should be allowed")
	}
	if rule.Evaluate(admin) != Allow {
		t.Fatal("admin should be allowed")
	}
	if rule.Evaluate(other) != Deny {
		t.Fatal("other teacher must be denied")
	}
	// Ownership is by identity id; the rule itself is role-agnostic.
	if rule.Evaluate(student) != Allow {
		t.Fatal("identity match should allow")
	}

	unknown := OwnerOrAdmin(Owner{})
	for _, p := range []Principal{owner, admin, other} {
		if unknown.Evaluate(p) != Deny {
			t.Fatalf("unknown owner must deny %v", p.Role())
		}
	}
}

func TestZeroPrincipalAndNilRuleDeny(t *testing.T) {
	if err := Authorize(Principal{}, RequireRoles(RoleStudent, RoleTeacher, RoleAdmin)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("zero principal must be denied, got %v", err)
	}
	if err := Authorize(principal(1, RoleAdmin), nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("nil rule must deny, got %v", err)
	}
}

func TestSelfAndAnyOf(t *testing.T) {
	student := principal(5, RoleStudent)
	peer := principal(6, RoleStudent)
	teacher := principal(7, RoleTeacher)

	rule := AnyOf(Self(5), RequireRoles(RoleTeacher, RoleAdmin))
	if err := Authorize(student, rule); err != nil {
		t.Fatalf("student reading own record should pass: %v", err)
	}
	if err := Authorize(teacher, rule); err != nil {
		t.Fatalf("teacher should pass: %v", err)
	}
	if err := Authorize(peer, rule); !errors.Is(err, ErrForbidden) {
		t.Fatalf("peer must be denied, got %v", err)
	}
	if Self(0).Evaluate(Principal{}) != Deny {
		t.Fatal("Self(0) must never allow")
	}
	if AnyOf().Evaluate(teacher) != Deny {
		t.Fatal("empty AnyOf must deny")
	}
	if AnyOf(nil, Self(7)).Evaluate(teacher) != Allow {
		t.Fatal("nil members are skipped")
	}
}

func TestRuleNames(t *testing.T) {
	cases := map[string]Rule{
		"roles(TEACHER,ADMIN)":  RequireRoles(RoleTeacher, RoleAdmin),
		"owner_or_admin":        OwnerOrAdmin(Owner{ID: 1}),
		"self":                  Self(1),
		"any_of(self|roles(ADMIN))": AnyOf(Self(1), RequireRoles(RoleAdmin)),
	}
	for want, rule := range cases {
		if got := rule.String(); got != want {
			t.Fatalf("String()=%q, want %q", got, want)
		}
	}
}

func TestPrincipalIsImmutable(t *testing.T) {
	p := principal(3, RoleTeacher)
	auths := p.Authorities()
	auths[0] = "ROLE_ADMIN"
	if p.HasAuthority("ROLE_ADMIN") || !p.HasAuthority("ROLE_TEACHER") {
		t.Fatalf("authorities leaked: %v", p.Authorities())
	}
	s := p.Summary()
	if s.ID != 3 || s.Role != RoleTeacher || len(s.Authorities) != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
}
