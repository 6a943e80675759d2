package grades

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"gradebook.dev/internal/auth"
)

// DefaultMaxValue is the scale used when a grade does not name one.
const DefaultMaxValue = 20

const (
	maxExamTypeLen = 50
	maxCommentLen  = 500
)

// Grade is one mark given by a teacher to a student in a subject.
type Grade struct {
	ID        int64     `json:"id"`
	StudentID int64     `json:"student_id"`
	SubjectID int64     `json:"subject_id"`
	TeacherID int64     `json:"teacher_id"`
	Value     float64   `json:"value"`
	MaxValue  float64   `json:"max_value"`
	ExamType  string    `json:"exam_type,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input describes a new grade. TeacherID is only honoured for admins.
type Input struct {
	StudentID int64
	SubjectID int64
	TeacherID int64
	Value     float64
	MaxValue  float64
	ExamType  string
	Comment   string
}

// Patch changes selected fields of a grade. Nil fields are left alone.
type Patch struct {
	Value    *float64
	MaxValue *float64
	ExamType *string
	Comment  *string
}

// Store persists grades. Missing rows yield auth.ErrNotFound.
type Store interface {
	Create(ctx context.Context, g *Grade) error
	Get(ctx context.Context, id int64) (Grade, error)
	Update(ctx context.Context, g *Grade) error
	Delete(ctx context.Context, id int64) error
	ListByStudent(ctx context.Context, studentID int64) ([]Grade, error)
}

// IdentityLookup resolves the identities a grade refers to.
type IdentityLookup interface {
	FindByID(ctx context.Context, id int64) (auth.Identity, error)
}

func (g *Grade) validate() error {
	if g.StudentID <= 0 || g.SubjectID <= 0 || g.TeacherID <= 0 {
		return fmt.Errorf("%w: student, subject and teacher are required", auth.ErrInvalidInput)
	}
	if g.MaxValue <= 0 || math.IsNaN(g.MaxValue) || math.IsInf(g.MaxValue, 0) {
		return fmt.Errorf("%w: max value must be positive", auth.ErrInvalidInput)
	}
	if math.IsNaN(g.Value) || g.Value < 0 || g.Value > g.MaxValue {
		return fmt.Errorf("%w: value must be between 0 and %g", auth.ErrInvalidInput, g.MaxValue)
	}
	g.ExamType = strings.TrimSpace(g.ExamType)
	if len(g.ExamType) > maxExamTypeLen {
		return fmt.Errorf("%w: exam type must not exceed %d characters", auth.ErrInvalidInput, maxExamTypeLen)
	}
	if len(g.Comment) > maxCommentLen {
		return fmt.Errorf("%w: comment must not exceed %d characters", auth.ErrInvalidInput, maxCommentLen)
	}
	return nil
}

func (p Patch) apply(g *Grade) {
	if p.Value != nil {
		g.Value = *p.Value
	}
	if p.MaxValue != nil {
		g.MaxValue = *p.MaxValue
	}
	if p.ExamType != nil {
		g.ExamType = *p.ExamType
	}
	if p.Comment != nil {
		g.Comment = *p.Comment
	}
}

func (p Patch) empty() bool {
	return p.Value == nil && p.MaxValue == nil && p.ExamType == nil && p.Comment == nil
}
