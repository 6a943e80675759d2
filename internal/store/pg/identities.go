package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gradebook.dev/internal/auth"
)

var _ auth.IdentityStore = (*Store)(nil)

const identityColumns = `id, email, password_hash, role, active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (auth.Identity, error) {
	var (
		identity auth.Identity
		role     string
	)
	err := row.Scan(&identity.ID, &identity.Email, &identity.PasswordHash, &role,
		&identity.Active, &identity.CreatedAt, &identity.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Identity{}, err
	}
	identity.Role = auth.Role(role)
	return identity, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (auth.Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+identityColumns+`
		from identities
		where lower(email) = $1
	`, auth.NormalizeEmail(email))
	return scanIdentity(row)
}

func (s *Store) FindByID(ctx context.Context, id int64) (auth.Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+identityColumns+`
		from identities
		where id = $1
	`, id)
	return scanIdentity(row)
}

func (s *Store) Create(ctx context.Context, identity *auth.Identity, profile auth.Profile) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	email := auth.NormalizeEmail(identity.Email)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		insert into identities (email, password_hash, role, active)
		values ($1, $2, $3, $4)
		returning id, created_at, updated_at
	`, email, identity.PasswordHash, string(identity.Role), identity.Active).
		Scan(&identity.ID, &identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrConflict
		}
		return err
	}

	var studentNumber, employeeNumber, address, phone, department, specialization sql.NullString
	var dob sql.NullTime
	switch {
	case profile.Student != nil:
		studentNumber = nullIfEmpty(profile.Student.StudentNumber)
		address = nullIfEmpty(profile.Student.Address)
		phone = nullIfEmpty(profile.Student.Phone)
		dob = nullTime(profile.Student.DateOfBirth)
	case profile.Teacher != nil:
		employeeNumber = nullIfEmpty(profile.Teacher.EmployeeNumber)
		address = nullIfEmpty(profile.Teacher.Address)
		phone = nullIfEmpty(profile.Teacher.Phone)
		dob = nullTime(profile.Teacher.DateOfBirth)
		department = nullIfEmpty(profile.Teacher.Department)
		specialization = nullIfEmpty(profile.Teacher.Specialization)
	}
	if _, err := tx.ExecContext(ctx, `
		insert into profiles (identity_id, first_name, last_name, student_number, employee_number,
			address, phone, date_of_birth, department, specialization)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, identity.ID, profile.FirstName, profile.LastName, studentNumber, employeeNumber,
		address, phone, dob, department, specialization); err != nil {
		if isUniqueViolation(err) {
			return auth.ErrConflict
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	identity.Email = email
	return nil
}

func (s *Store) Profile(ctx context.Context, id int64) (auth.Profile, error) {
	var (
		p                             auth.Profile
		studentNumber, employeeNumber sql.NullString
		address, phone                sql.NullString
		dept, specialty               sql.NullString
		dob                           sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select first_name, last_name, student_number, employee_number,
			address, phone, date_of_birth, department, specialization
		from profiles
		where identity_id = $1
	`, id).Scan(&p.FirstName, &p.LastName, &studentNumber, &employeeNumber,
		&address, &phone, &dob, &dept, &specialty)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Profile{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Profile{}, err
	}
	p.IdentityID = id

	var birth *time.Time
	if dob.Valid {
		birth = &dob.Time
	}
	switch {
	case studentNumber.Valid:
		p.Student = &auth.StudentProfile{
			StudentNumber: studentNumber.String,
			Address:       address.String,
			Phone:         phone.String,
			DateOfBirth:   birth,
		}
	case employeeNumber.Valid:
		p.Teacher = &auth.TeacherProfile{
			EmployeeNumber: employeeNumber.String,
			Address:        address.String,
			Phone:          phone.String,
			DateOfBirth:    birth,
			Department:     dept.String,
			Specialization: specialty.String,
		}
	}
	return p, nil
}

func (s *Store) SetActive(ctx context.Context, id int64, active bool) error {
	return s.execAffecting(ctx, `update identities set active = $2, updated_at = now() where id = $1`, id, active)
}

func (s *Store) SetRole(ctx context.Context, id int64, role auth.Role) error {
	return s.execAffecting(ctx, `update identities set role = $2, updated_at = now() where id = $1`, id, string(role))
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return s.execAffecting(ctx, `update identities set password_hash = $2, updated_at = now() where id = $1`, id, hash)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.execAffecting(ctx, `delete from identities where id = $1`, id)
}

func (s *Store) execAffecting(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
