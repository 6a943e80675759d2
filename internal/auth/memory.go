package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

var _ IdentityStore = (*MemoryStore)(nil)

// MemoryStore implements IdentityStore in process. Used for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	byID     map[int64]Identity
	byEmail  map[string]int64
	profiles map[int64]Profile
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[int64]Identity),
		byEmail:  make(map[string]int64),
		profiles: make(map[int64]Profile),
		now:      time.Now,
	}
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id int64) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.byID[id]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return identity, nil
}

func (s *MemoryStore) Create(ctx context.Context, identity *Identity, profile Profile) error {
	email := NormalizeEmail(identity.Email)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return ErrConflict
	}
	if s.profileNumberTaken(profile) {
		return ErrConflict
	}

	s.nextID++
	now := s.now().UTC()
	identity.ID = s.nextID
	identity.Email = email
	identity.CreatedAt = now
	identity.UpdatedAt = now
	profile.IdentityID = identity.ID

	s.byID[identity.ID] = *identity
	s.byEmail[email] = identity.ID
	s.profiles[identity.ID] = profile
	return nil
}

func (s *MemoryStore) profileNumberTaken(profile Profile) bool {
	for _, existing := range s.profiles {
		if profile.Student != nil && existing.Student != nil &&
			strings.EqualFold(existing.Student.StudentNumber, profile.Student.StudentNumber) {
			return true
		}
		if profile.Teacher != nil && existing.Teacher != nil &&
			strings.EqualFold(existing.Teacher.EmployeeNumber, profile.Teacher.EmployeeNumber) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) Profile(ctx context.Context, id int64) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return profile, nil
}

func (s *MemoryStore) SetActive(ctx context.Context, id int64, active bool) error {
	return s.update(id, func(identity *Identity) { identity.Active = active })
}

func (s *MemoryStore) SetRole(ctx context.Context, id int64, role Role) error {
	return s.update(id, func(identity *Identity) { identity.Role = role })
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return s.update(id, func(identity *Identity) { identity.PasswordHash = hash })
}

func (s *MemoryStore) update(id int64, fn func(*Identity)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(&identity)
	identity.UpdatedAt = s.now().UTC()
	s.byID[id] = identity
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byEmail, identity.Email)
	delete(s.profiles, id)
	return nil
}
