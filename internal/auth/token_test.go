package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func newTestTokens(t *testing.T, clock *fakeClock, opts ...TokenOption) *TokenService {
	t.Helper()
	opts = append([]TokenOption{WithClock(clock.Now), WithTTL(time.Hour)}, opts...)
	svc, err := NewTokenService(testSecret, opts...)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func teacherIdentity() Identity {
	return Identity{ID: 7, Email: "Prof@School.test", Role: RoleTeacher, Active: true}
}

func TestTokenIssueAndValidate(t *testing.T) {
	clock := newFakeClock()
	svc := newTestTokens(t, clock)

	token, issued, err := svc.Issue(teacherIdentity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("token is not a compact JWS: %q", token)
	}
	if issued.Subject != "prof@school.test" {
		t.Fatalf("subject should be normalized email, got %q", issued.Subject)
	}
	if issued.ID == "" {
		t.Fatal("expected jti to be set")
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Role != RoleTeacher || claims.Issuer != DefaultIssuer {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.ExpiresAt.Time.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAt.Time)
	}
}

func TestTokenExpiresAtExp(t *testing.T) {
	clock := newFakeClock()
	svc := newTestTokens(t, clock)
	token, _, err := svc.Issue(teacherIdentity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.Advance(time.Hour - time.Second)
	if _, err := svc.Validate(token); err != nil {
		t.Fatalf("token should be valid one second before exp: %v", err)
	}
	clock.Advance(time.Second)
	if _, err := svc.Validate(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at exp, got %v", err)
	}
}

func TestTokenRejectsForeignSignature(t *testing.T) {
	clock := newFakeClock()
	svc := newTestTokens(t, clock)
	other, err := NewTokenService([]byte("ffffffffffffffffffffffffffffffff"), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	token, _, err := other.Issue(teacherIdentity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Validate(token); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}

	// Expired and badly signed is still a signature failure.
	clock.Advance(48 * time.Hour)
	if _, err := svc.Validate(token); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for expired foreign token, got %v", err)
	}
}

func TestTokenRejectsAlgNone(t *testing.T) {
	clock := newFakeClock()
	svc := newTestTokens(t, clock)
	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Subject:   "prof@school.test",
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := svc.Validate(token); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestTokenRejectsBadStructure(t *testing.T) {
	clock := newFakeClock()
	svc := newTestTokens(t, clock)
	now := clock.Now()

	sign := func(c Claims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(testSecret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	valid := func() Claims {
		return Claims{
			Role: RoleStudent,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    DefaultIssuer,
				Subject:   "kid@school.test",
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
	}

	cases := map[string]func(*Claims){
		"wrong issuer":   func(c *Claims) { c.Issuer = "elsewhere" },
		"unknown role":   func(c *Claims) { c.Role = "ROOT" },
		"no subject":     func(c *Claims) { c.Subject = "" },
		"no issued at":   func(c *Claims) { c.IssuedAt = nil },
		"future iat":     func(c *Claims) { c.IssuedAt = jwt.NewNumericDate(now.Add(time.Minute)) },
		"exp before iat": func(c *Claims) {
			c.IssuedAt = jwt.NewNumericDate(now.Add(4 * time.Second))
			c.ExpiresAt = jwt.NewNumericDate(now.Add(2 * time.Second))
		},
		"no expiry":      func(c *Claims) { c.ExpiresAt = nil },
	}
	for name, mutate := range cases {
		c := valid()
		mutate(&c)
		if _, err := svc.Validate(sign(c)); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("%s: expected ErrTokenMalformed, got %v", name, err)
		}
	}

	if _, err := svc.Validate(sign(valid())); err != nil {
		t.Fatalf("baseline claims should validate: %v", err)
	}
	for _, garbage := range []string{"", "   ", "abc", "a.b.c"} {
		if _, err := svc.Validate(garbage); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("%q: expected ErrTokenMalformed, got %v", garbage, err)
		}
	}
}

func TestTokenIssuerMismatchBetweenServices(t *testing.T) {
	clock := newFakeClock()
	a := newTestTokens(t, clock, WithIssuer("campus-a"))
	b := newTestTokens(t, clock, WithIssuer("campus-b"))
	token, _, err := a.Issue(teacherIdentity())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Validate(token); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestNewTokenServiceRequiresLongSecret(t *testing.T) {
	if _, err := NewTokenService([]byte("short")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	svc := newTestTokens(t, newFakeClock())
	if _, _, err := svc.Issue(Identity{ID: 1, Email: "x@y.z", Role: "ROOT"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}
