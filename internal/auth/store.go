package auth

import (
	"context"
	"time"
)

// IdentityStore is the credential store consulted by the auth subsystem. Lookups by
// email take the normalized form. Missing records yield ErrNotFound; uniqueness
// violations yield ErrConflict.
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (Identity, error)
	FindByID(ctx context.Context, id int64) (Identity, error)
	// Create assigns identity.ID and the timestamps on success.
	Create(ctx context.Context, identity *Identity, profile Profile) error
	Profile(ctx context.Context, id int64) (Profile, error)
	SetActive(ctx context.Context, id int64, active bool) error
	SetRole(ctx context.Context, id int64, role Role) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	Delete(ctx context.Context, id int64) error
}

// Revoker records tokens that must be refused before their natural expiry.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
