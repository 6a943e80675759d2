package auth

import (
	"context"
	"errors"
	"fmt"

	"gradebook.dev/internal/obs"
)

// Resolver turns credentials or tokens into a Principal. Every call consults the store;
// nothing is cached between requests, so deactivation and role changes apply at once.
type Resolver struct {
	store   IdentityStore
	hasher  *Hasher
	tokens  *TokenService
	revoker Revoker
}

// NewResolver wires the resolver. revoker may be nil.
func NewResolver(store IdentityStore, hasher *Hasher, tokens *TokenService, revoker Revoker) (*Resolver, error) {
	if store == nil || hasher == nil || tokens == nil {
		return nil, errors.New("auth: resolver requires store, hasher and token service")
	}
	return &Resolver{store: store, hasher: hasher, tokens: tokens, revoker: revoker}, nil
}

// FromCredentials verifies an email/password pair. Every failure is ErrInvalidCredentials.
func (r *Resolver) FromCredentials(ctx context.Context, email, password string) (Principal, Identity, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		r.hasher.burn(password)
		return Principal{}, Identity{}, ErrInvalidCredentials
	}
	identity, err := r.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.hasher.burn(password)
			return Principal{}, Identity{}, ErrInvalidCredentials
		}
		return Principal{}, Identity{}, fmt.Errorf("lookup identity: %w", err)
	}
	if !r.hasher.Verify(password, identity.PasswordHash) {
		return Principal{}, Identity{}, ErrInvalidCredentials
	}
	// Checked after the hash so inactive accounts cost the same as wrong passwords.
	if !identity.Active {
		return Principal{}, Identity{}, ErrInvalidCredentials
	}
	return NewPrincipal(identity), identity, nil
}

// FromToken validates token and re-resolves the identity named by its subject.
func (r *Resolver) FromToken(ctx context.Context, token string) (Principal, error) {
	claims, err := r.tokens.Validate(token)
	if err != nil {
		obs.ObserveToken(tokenResult(err))
		return Principal{}, err
	}
	if r.revoker != nil && claims.ID != "" {
		revoked, err := r.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Principal{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			obs.ObserveToken("revoked")
			return Principal{}, ErrTokenRevoked
		}
	}

	identity, err := r.store.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.ObserveToken("stale")
			return Principal{}, fmt.Errorf("%w: identity no longer exists", ErrIdentityStale)
		}
		return Principal{}, fmt.Errorf("lookup identity: %w", err)
	}
	if !identity.Active {
		obs.ObserveToken("stale")
		return Principal{}, fmt.Errorf("%w: identity deactivated", ErrIdentityStale)
	}
	if identity.Role != claims.Role {
		obs.ObserveToken("stale")
		return Principal{}, fmt.Errorf("%w: role changed since issuance", ErrIdentityStale)
	}
	obs.ObserveToken("valid")
	return NewPrincipal(identity), nil
}

// Claims validates token and returns its claims without touching the store.
func (r *Resolver) Claims(token string) (Claims, error) {
	return r.tokens.Validate(token)
}

func tokenResult(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	default:
		return "malformed"
	}
}
