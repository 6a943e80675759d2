package httpapi

import (
	"net/http"

	"gradebook.dev/internal/audit"
	"gradebook.dev/internal/auth"
	"gradebook.dev/internal/grades"
)

type recordGradeRequest struct {
	StudentID int64   `json:"student_id"`
	SubjectID int64   `json:"subject_id"`
	TeacherID int64   `json:"teacher_id,omitempty"`
	Value     float64 `json:"value"`
	MaxValue  float64 `json:"max_value,omitempty"`
	ExamType  string  `json:"exam_type,omitempty"`
	Comment   string  `json:"comment,omitempty"`
}

type updateGradeRequest struct {
	Value    *float64 `json:"value"`
	MaxValue *float64 `json:"max_value"`
	ExamType *string  `json:"exam_type"`
	Comment  *string  `json:"comment"`
}

func (a *API) handleRecordGrade(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	var req recordGradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	g, err := a.grades.Record(r.Context(), actor, grades.Input{
		StudentID: req.StudentID,
		SubjectID: req.SubjectID,
		TeacherID: req.TeacherID,
		Value:     req.Value,
		MaxValue:  req.MaxValue,
		ExamType:  req.ExamType,
		Comment:   req.Comment,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "grade.recorded", actor, map[string]any{
		"grade_id":   g.ID,
		"student_id": g.StudentID,
		"subject_id": g.SubjectID,
		"value":      g.Value,
	})
	writeJSON(w, http.StatusCreated, g)
}

func (a *API) handleUpdateGrade(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid grade id")
		return
	}
	var req updateGradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	g, err := a.grades.Update(r.Context(), actor, id, grades.Patch{
		Value:    req.Value,
		MaxValue: req.MaxValue,
		ExamType: req.ExamType,
		Comment:  req.Comment,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "grade.updated", actor, map[string]any{
		"grade_id": g.ID,
		"value":    g.Value,
	})
	writeJSON(w, http.StatusOK, g)
}

func (a *API) handleDeleteGrade(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid grade id")
		return
	}
	if err := a.grades.Delete(r.Context(), actor, id); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "grade.deleted", actor, map[string]any{"grade_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGetGrade(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid grade id")
		return
	}
	g, err := a.grades.Get(r.Context(), actor, id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *API) handleListGrades(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	studentID, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid student id")
		return
	}
	list, err := a.grades.ListForStudent(r.Context(), actor, studentID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"student_id": studentID,
		"grades":     list,
	})
}
