package grades

import (
	"context"
	"errors"
	"fmt"

	"gradebook.dev/internal/auth"
)

var staffOnly = auth.RequireRoles(auth.RoleTeacher, auth.RoleAdmin)

// Service applies authorization to grade operations. Every method takes the acting
// principal explicitly.
type Service struct {
	store      Store
	identities IdentityLookup
}

// NewService wires the grade service.
func NewService(store Store, identities IdentityLookup) (*Service, error) {
	if store == nil || identities == nil {
		return nil, errors.New("grades: store and identity lookup are required")
	}
	return &Service{store: store, identities: identities}, nil
}

// Record creates a grade owned by the acting teacher. Admins must name the owning teacher.
func (s *Service) Record(ctx context.Context, actor auth.Principal, in Input) (Grade, error) {
	if err := auth.Authorize(actor, staffOnly); err != nil {
		return Grade{}, err
	}

	teacherID := in.TeacherID
	if actor.Role() == auth.RoleTeacher {
		if teacherID != 0 && teacherID != actor.ID() {
			return Grade{}, fmt.Errorf("%w: teachers record grades under their own name", auth.ErrForbidden)
		}
		teacherID = actor.ID()
	} else if teacherID == 0 {
		return Grade{}, fmt.Errorf("%w: teacher_id is required", auth.ErrInvalidInput)
	}

	if err := s.requireRole(ctx, in.StudentID, auth.RoleStudent); err != nil {
		return Grade{}, err
	}
	if err := s.requireRole(ctx, teacherID, auth.RoleTeacher); err != nil {
		return Grade{}, err
	}

	g := Grade{
		StudentID: in.StudentID,
		SubjectID: in.SubjectID,
		TeacherID: teacherID,
		Value:     in.Value,
		MaxValue:  in.MaxValue,
		ExamType:  in.ExamType,
		Comment:   in.Comment,
	}
	if g.MaxValue == 0 {
		g.MaxValue = DefaultMaxValue
	}
	if err := g.validate(); err != nil {
		return Grade{}, err
	}
	if err := s.store.Create(ctx, &g); err != nil {
		return Grade{}, err
	}
	return g, nil
}

// Update changes a grade. Only its owning teacher and admins may do so.
func (s *Service) Update(ctx context.Context, actor auth.Principal, id int64, patch Patch) (Grade, error) {
	if err := auth.Authorize(actor, staffOnly); err != nil {
		return Grade{}, err
	}
	g, err := s.store.Get(ctx, id)
	if err != nil {
		return Grade{}, err
	}
	if err := auth.Authorize(actor, auth.OwnerOrAdmin(auth.Owner{ID: g.TeacherID})); err != nil {
		return Grade{}, err
	}
	if patch.empty() {
		return g, nil
	}
	patch.apply(&g)
	if err := g.validate(); err != nil {
		return Grade{}, err
	}
	if err := s.store.Update(ctx, &g); err != nil {
		return Grade{}, err
	}
	return g, nil
}

// Delete removes a grade. Only its owning teacher and admins may do so.
func (s *Service) Delete(ctx context.Context, actor auth.Principal, id int64) error {
	if err := auth.Authorize(actor, staffOnly); err != nil {
		return err
	}
	g, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.Authorize(actor, auth.OwnerOrAdmin(auth.Owner{ID: g.TeacherID})); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}

// Get returns one grade to its student or to staff.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id int64) (Grade, error) {
	if actor.IsZero() {
		return Grade{}, auth.ErrUnauthenticated
	}
	g, err := s.store.Get(ctx, id)
	if err != nil {
		return Grade{}, err
	}
	if err := auth.Authorize(actor, readRule(g.StudentID)); err != nil {
		return Grade{}, err
	}
	return g, nil
}

// ListForStudent returns every grade of a student, to that student or to staff.
func (s *Service) ListForStudent(ctx context.Context, actor auth.Principal, studentID int64) ([]Grade, error) {
	if err := auth.Authorize(actor, readRule(studentID)); err != nil {
		return nil, err
	}
	return s.store.ListByStudent(ctx, studentID)
}

func readRule(studentID int64) auth.Rule {
	return auth.AnyOf(auth.Self(studentID), staffOnly)
}

func (s *Service) requireRole(ctx context.Context, id int64, role auth.Role) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s id is required", auth.ErrInvalidInput, role)
	}
	identity, err := s.identities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return fmt.Errorf("%w: %s %d does not exist", auth.ErrInvalidInput, role, id)
		}
		return err
	}
	if identity.Role != role || !identity.Active {
		return fmt.Errorf("%w: identity %d is not an active %s", auth.ErrInvalidInput, id, role)
	}
	return nil
}
