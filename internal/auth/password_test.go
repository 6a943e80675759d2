package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

func TestHasherRoundTrip(t *testing.T) {
	h := newTestHasher(t)
	hash, err := h.Hash("s3cret!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "s3cret!" || !strings.HasPrefix(hash, "$2") {
		t.Fatalf("unexpected hash %q", hash)
	}
	if !h.Verify("s3cret!", hash) {
		t.Fatal("expected password to verify")
	}
	if h.Verify("s3cret?", hash) {
		t.Fatal("wrong password verified")
	}

	again, err := h.Hash("s3cret!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if again == hash {
		t.Fatal("hashes of the same password must be salted")
	}
}

func TestHasherRejectsBadInput(t *testing.T) {
	h := newTestHasher(t)
	if _, err := h.Hash(""); err == nil {
		t.Fatal("expected error for empty password")
	}
	if _, err := h.Hash(strings.Repeat("x", MaxPasswordBytes+1)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for long password, got %v", err)
	}
	if h.Verify("anything", "not-a-hash") {
		t.Fatal("malformed hash must not verify")
	}
	if h.Verify("", "") {
		t.Fatal("empty inputs must not verify")
	}
}

func TestHasherRejectsPasswordsPastBcryptLimit(t *testing.T) {
	h := newTestHasher(t)
	pw := strings.Repeat("a", MaxPasswordBytes)
	hash, err := h.Hash(pw)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Verify(pw, hash) {
		t.Fatal("expected password at the limit to verify")
	}
	if h.Verify(pw+"EXTRA", hash) {
		t.Fatal("password extending a valid one past the limit must not verify")
	}
}

func TestNewHasherCostBounds(t *testing.T) {
	h, err := NewHasher(0)
	if err != nil {
		t.Fatalf("NewHasher(0): %v", err)
	}
	if h.Cost() != DefaultBcryptCost {
		t.Fatalf("default cost = %d, want %d", h.Cost(), DefaultBcryptCost)
	}
	for _, cost := range []int{bcrypt.MinCost - 1, bcrypt.MaxCost + 1} {
		if _, err := NewHasher(cost); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("cost %d: expected ErrInvalidInput, got %v", cost, err)
		}
	}
}

func TestHasherVerifiesArgon2id(t *testing.T) {
	h := newTestHasher(t)
	salt := []byte("0123456789abcdef")
	key := argon2.IDKey([]byte("legacy-pass"), salt, 1, 64*1024, 2, 32)
	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, 64*1024, 1, 2,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))

	if !h.Verify("legacy-pass", encoded) {
		t.Fatal("expected argon2id hash to verify")
	}
	if h.Verify("other-pass", encoded) {
		t.Fatal("wrong password verified against argon2id hash")
	}
	if !h.NeedsRehash(encoded) {
		t.Fatal("argon2id hash should be flagged for rehash")
	}
}

func TestNeedsRehashOnCostChange(t *testing.T) {
	low := newTestHasher(t)
	hash, err := low.Hash("password1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if low.NeedsRehash(hash) {
		t.Fatal("hash at current cost should not need rehash")
	}
	higher, err := NewHasher(bcrypt.MinCost + 1)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	if !higher.NeedsRehash(hash) {
		t.Fatal("hash at lower cost should need rehash")
	}
	if !higher.Verify("password1", hash) {
		t.Fatal("hashes from other costs must still verify")
	}
}
