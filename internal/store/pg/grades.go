package pg

import (
	"context"
	"database/sql"
	"errors"

	"gradebook.dev/internal/auth"
	"gradebook.dev/internal/grades"
)

var _ grades.Store = (*GradeStore)(nil)

// GradeStore persists grades through the pool of the owning Store.
type GradeStore struct {
	store *Store
}

// Grades returns the grade store sharing this connection pool.
func (s *Store) Grades() *GradeStore { return &GradeStore{store: s} }

const gradeColumns = `id, student_id, subject_id, teacher_id, value, max_value, exam_type, comment, created_at, updated_at`

func scanGrade(row rowScanner) (grades.Grade, error) {
	var (
		g        grades.Grade
		teacher  sql.NullInt64
		examType sql.NullString
		comment  sql.NullString
	)
	err := row.Scan(&g.ID, &g.StudentID, &g.SubjectID, &teacher, &g.Value, &g.MaxValue,
		&examType, &comment, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return grades.Grade{}, auth.ErrNotFound
	}
	if err != nil {
		return grades.Grade{}, err
	}
	// A null teacher leaves TeacherID at 0: the owner is unknown.
	g.TeacherID = teacher.Int64
	g.ExamType = examType.String
	g.Comment = comment.String
	return g, nil
}

func (s *GradeStore) Create(ctx context.Context, g *grades.Grade) error {
	err := s.store.db.QueryRowContext(ctx, `
		insert into grades (student_id, subject_id, teacher_id, value, max_value, exam_type, comment)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, created_at, updated_at
	`, g.StudentID, g.SubjectID, g.TeacherID, g.Value, g.MaxValue,
		nullIfEmpty(g.ExamType), nullIfEmpty(g.Comment)).
		Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *GradeStore) Get(ctx context.Context, id int64) (grades.Grade, error) {
	row := s.store.db.QueryRowContext(ctx, `select `+gradeColumns+` from grades where id = $1`, id)
	return scanGrade(row)
}

func (s *GradeStore) Update(ctx context.Context, g *grades.Grade) error {
	err := s.store.db.QueryRowContext(ctx, `
		update grades
		set value = $2, max_value = $3, exam_type = $4, comment = $5, updated_at = now()
		where id = $1
		returning updated_at
	`, g.ID, g.Value, g.MaxValue, nullIfEmpty(g.ExamType), nullIfEmpty(g.Comment)).Scan(&g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	return err
}

func (s *GradeStore) Delete(ctx context.Context, id int64) error {
	return s.store.execAffecting(ctx, `delete from grades where id = $1`, id)
}

func (s *GradeStore) ListByStudent(ctx context.Context, studentID int64) ([]grades.Grade, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		select `+gradeColumns+`
		from grades
		where student_id = $1
		order by id
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]grades.Grade, 0)
	for rows.Next() {
		g, err := scanGrade(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
