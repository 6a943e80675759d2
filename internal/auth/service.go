package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"gradebook.dev/internal/obs"
)

const (
	maxNameLength   = 50
	maxEmailLength  = 100
	maxNumberLength = 20
	minPasswordLen  = 6
)

// Service provides registration, login and account administration on top of the
// resolver and policy engine.
type Service struct {
	store    IdentityStore
	hasher   *Hasher
	tokens   *TokenService
	revoker  Revoker
	resolver *Resolver
	logger   *zap.Logger
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithRevoker enables server-side logout through a revocation set.
func WithRevoker(r Revoker) ServiceOption {
	return func(s *Service) error {
		s.revoker = r
		return nil
	}
}

// WithLogger sets the logger used for non-fatal background failures.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store IdentityStore, hasher *Hasher, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	svc := &Service{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		logger: obs.Logger(),
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	resolver, err := NewResolver(store, hasher, tokens, svc.revoker)
	if err != nil {
		return nil, err
	}
	svc.resolver = resolver
	return svc, nil
}

// Resolver exposes the principal resolver for transports.
func (s *Service) Resolver() *Resolver { return s.resolver }

// RevocationEnabled reports whether logout is enforced server-side.
func (s *Service) RevocationEnabled() bool { return s.revoker != nil }

// Registration is the input for creating an identity.
type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Student   *StudentProfile
	Teacher   *TeacherProfile
}

// RegisterStudent creates an active STUDENT identity.
func (s *Service) RegisterStudent(ctx context.Context, reg Registration) (Identity, error) {
	if reg.Student == nil {
		return Identity{}, fmt.Errorf("%w: student details are required", ErrInvalidInput)
	}
	reg.Teacher = nil
	return s.register(ctx, RoleStudent, reg)
}

// RegisterTeacher creates an active TEACHER identity.
func (s *Service) RegisterTeacher(ctx context.Context, reg Registration) (Identity, error) {
	if reg.Teacher == nil {
		return Identity{}, fmt.Errorf("%w: teacher details are required", ErrInvalidInput)
	}
	reg.Student = nil
	return s.register(ctx, RoleTeacher, reg)
}

// RegisterAdmin creates an ADMIN identity on behalf of an existing admin.
func (s *Service) RegisterAdmin(ctx context.Context, actor Principal, reg Registration) (Identity, error) {
	if err := Authorize(actor, RequireRoles(RoleAdmin)); err != nil {
		return Identity{}, err
	}
	return s.BootstrapAdmin(ctx, reg)
}

// BootstrapAdmin creates an ADMIN identity without an acting principal. Only operator
// tooling calls it.
func (s *Service) BootstrapAdmin(ctx context.Context, reg Registration) (Identity, error) {
	reg.Student, reg.Teacher = nil, nil
	return s.register(ctx, RoleAdmin, reg)
}

func (s *Service) register(ctx context.Context, role Role, reg Registration) (Identity, error) {
	reg, err := normalizeRegistration(reg)
	if err != nil {
		return Identity{}, err
	}
	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return Identity{}, err
	}
	identity := Identity{
		Email:        reg.Email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	profile := Profile{
		FirstName: reg.FirstName,
		LastName:  reg.LastName,
		Student:   reg.Student,
		Teacher:   reg.Teacher,
	}
	if err := s.store.Create(ctx, &identity, profile); err != nil {
		if errors.Is(err, ErrConflict) {
			return Identity{}, fmt.Errorf("%w: email or registration number already in use", ErrConflict)
		}
		return Identity{}, err
	}
	return identity, nil
}

func normalizeRegistration(reg Registration) (Registration, error) {
	reg.Email = NormalizeEmail(reg.Email)
	if reg.Email == "" || len(reg.Email) > maxEmailLength {
		return reg, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(reg.Email); err != nil || addr.Address != reg.Email {
		return reg, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(reg.Password) < minPasswordLen {
		return reg, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if len(reg.Password) > MaxPasswordBytes {
		return reg, fmt.Errorf("%w: password must not exceed %d bytes", ErrInvalidInput, MaxPasswordBytes)
	}
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)
	if reg.FirstName == "" || reg.LastName == "" {
		return reg, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(reg.FirstName) > maxNameLength || utf8.RuneCountInString(reg.LastName) > maxNameLength {
		return reg, fmt.Errorf("%w: names must not exceed %d characters", ErrInvalidInput, maxNameLength)
	}
	if reg.Student != nil {
		st := *reg.Student
		st.StudentNumber = strings.TrimSpace(st.StudentNumber)
		if st.StudentNumber == "" || len(st.StudentNumber) > maxNumberLength {
			return reg, fmt.Errorf("%w: student number is required (max %d characters)", ErrInvalidInput, maxNumberLength)
		}
		reg.Student = &st
	}
	if reg.Teacher != nil {
		tp := *reg.Teacher
		tp.EmployeeNumber = strings.TrimSpace(tp.EmployeeNumber)
		if tp.EmployeeNumber == "" || len(tp.EmployeeNumber) > maxNumberLength {
			return reg, fmt.Errorf("%w: employee number is required (max %d characters)", ErrInvalidInput, maxNumberLength)
		}
		reg.Teacher = &tp
	}
	return reg, nil
}

// LoginResult is returned on successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Principal Principal
	Profile   Profile
}

// Login verifies credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	principal, identity, err := s.resolver.FromCredentials(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			obs.ObserveLogin("rejected")
		} else {
			obs.ObserveLogin("error")
		}
		return LoginResult{}, err
	}
	token, claims, err := s.tokens.Issue(identity)
	if err != nil {
		obs.ObserveLogin("error")
		return LoginResult{}, err
	}
	if s.hasher.NeedsRehash(identity.PasswordHash) {
		s.upgradeHash(ctx, identity.ID, password)
	}
	profile, err := s.store.Profile(ctx, identity.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		obs.ObserveLogin("error")
		return LoginResult{}, err
	}
	obs.ObserveLogin("success")
	return LoginResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		Principal: principal,
		Profile:   profile,
	}, nil
}

func (s *Service) upgradeHash(ctx context.Context, id int64, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.store.UpdatePasswordHash(ctx, id, hash)
	}
	if err != nil {
		s.logger.Warn("password rehash failed", zap.Int64("identity_id", id), zap.Error(err))
	}
}

// Authenticate resolves the principal behind a bearer token.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	return s.resolver.FromToken(ctx, token)
}

// Account is what a caller may learn about itself.
type Account struct {
	Summary
	Profile Profile `json:"profile"`
}

// Me returns the caller's own account, without any token material.
func (s *Service) Me(ctx context.Context, principal Principal) (Account, error) {
	if principal.IsZero() {
		return Account{}, ErrUnauthenticated
	}
	profile, err := s.store.Profile(ctx, principal.ID())
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Account{}, err
	}
	return Account{Summary: principal.Summary(), Profile: profile}, nil
}

// Logout is advisory: the client discards its token. When a revocation set is configured
// the token id is also recorded until the token would have expired.
func (s *Service) Logout(ctx context.Context, token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.tokens.Validate(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil
		}
		return err
	}
	if claims.ID == "" {
		return nil
	}
	return s.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// SetActive enables or disables an identity. Tokens of a disabled identity stop
// resolving on their next use.
func (s *Service) SetActive(ctx context.Context, actor Principal, id int64, active bool) error {
	if err := Authorize(actor, RequireRoles(RoleAdmin)); err != nil {
		return err
	}
	if id <= 0 {
		return fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}
	if !active && id == actor.ID() {
		return fmt.Errorf("%w: admins cannot deactivate themselves", ErrInvalidInput)
	}
	return s.store.SetActive(ctx, id, active)
}

// ChangeRole reassigns the role of an identity.
func (s *Service) ChangeRole(ctx context.Context, actor Principal, id int64, role Role) error {
	if err := Authorize(actor, RequireRoles(RoleAdmin)); err != nil {
		return err
	}
	if id <= 0 {
		return fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if id == actor.ID() && role != RoleAdmin {
		return fmt.Errorf("%w: admins cannot demote themselves", ErrInvalidInput)
	}
	return s.store.SetRole(ctx, id, role)
}

// DeleteIdentity removes an identity and its profile.
func (s *Service) DeleteIdentity(ctx context.Context, actor Principal, id int64) error {
	if err := Authorize(actor, RequireRoles(RoleAdmin)); err != nil {
		return err
	}
	if id <= 0 {
		return fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}
	if id == actor.ID() {
		return fmt.Errorf("%w: admins cannot delete themselves", ErrInvalidInput)
	}
	return s.store.Delete(ctx, id)
}
