package httpapi

import (
	"net/http"
	"strconv"

	"gradebook.dev/internal/audit"
	"gradebook.dev/internal/auth"
)

type statusRequest struct {
	Active *bool `json:"active"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleSetStatus(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid user id")
		return
	}
	var req statusRequest
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "active must be true or false")
			return
		}
		req.Active = &active
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, r, http.StatusBadRequest, "active is required")
		return
	}
	if err := a.auth.SetActive(r.Context(), actor, id, *req.Active); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.identity.status_changed", actor, map[string]any{
		"identity_id": id,
		"active":      *req.Active,
	})
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": *req.Active})
}

func (a *API) handleSetRole(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid user id")
		return
	}
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, ok := auth.ParseRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "role must be STUDENT, TEACHER or ADMIN")
		return
	}
	if err := a.auth.ChangeRole(r.Context(), actor, id, role); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.identity.role_changed", actor, map[string]any{
		"identity_id": id,
		"role":        string(role),
	})
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "role": role})
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := a.auth.DeleteIdentity(r.Context(), actor, id); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.identity.deleted", actor, map[string]any{"identity_id": id})
	w.WriteHeader(http.StatusNoContent)
}
