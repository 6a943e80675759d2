package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"gradebook.dev/internal/audit"
	"gradebook.dev/internal/auth"
)

const dateLayout = "2006-01-02"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        userView  `json:"user"`
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	StudentNumber  string `json:"student_number,omitempty"`
	EmployeeNumber string `json:"employee_number,omitempty"`
	Address        string `json:"address,omitempty"`
	Phone          string `json:"phone,omitempty"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
	Department     string `json:"department,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

func (req registerRequest) registration() auth.Registration {
	return auth.Registration{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
}

func (req registerRequest) birthDate() (*time.Time, error) {
	raw := strings.TrimSpace(req.DateOfBirth)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: date_of_birth must be YYYY-MM-DD", auth.ErrInvalidInput)
	}
	return &t, nil
}

type registerResponse struct {
	ID    int64     `json:"id"`
	Email string    `json:"email"`
	Role  auth.Role `json:"role"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	res, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", auth.Principal{}, map[string]any{
			"email":     auth.NormalizeEmail(req.Email),
			"remote_ip": clientIP(r),
		})
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login.succeeded", res.Principal, map[string]any{
		"remote_ip":  clientIP(r),
		"expires_at": res.ExpiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: res.Token,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt,
		User: userView{
			ID:        res.Principal.ID(),
			Email:     res.Principal.Email(),
			Role:      res.Principal.Role(),
			FirstName: res.Profile.FirstName,
			LastName:  res.Profile.LastName,
		},
	})
}

func (a *API) handleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	dob, err := req.birthDate()
	if err != nil {
		handleError(w, r, err)
		return
	}
	reg := req.registration()
	reg.Student = &auth.StudentProfile{
		StudentNumber: req.StudentNumber,
		Address:       req.Address,
		Phone:         req.Phone,
		DateOfBirth:   dob,
	}
	identity, err := a.auth.RegisterStudent(r.Context(), reg)
	a.finishRegistration(w, r, auth.Principal{}, identity, err)
}

func (a *API) handleRegisterTeacher(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	dob, err := req.birthDate()
	if err != nil {
		handleError(w, r, err)
		return
	}
	reg := req.registration()
	reg.Teacher = &auth.TeacherProfile{
		EmployeeNumber: req.EmployeeNumber,
		Address:        req.Address,
		Phone:          req.Phone,
		DateOfBirth:    dob,
		Department:     req.Department,
		Specialization: req.Specialization,
	}
	identity, err := a.auth.RegisterTeacher(r.Context(), reg)
	a.finishRegistration(w, r, auth.Principal{}, identity, err)
}

func (a *API) handleRegisterAdmin(w http.ResponseWriter, r *http.Request, actor auth.Principal) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	identity, err := a.auth.RegisterAdmin(r.Context(), actor, req.registration())
	a.finishRegistration(w, r, actor, identity, err)
}

func (a *API) finishRegistration(w http.ResponseWriter, r *http.Request, actor auth.Principal, identity auth.Identity, err error) {
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.identity.registered", actor, map[string]any{
		"identity_id": identity.ID,
		"role":        string(identity.Role),
	})
	writeJSON(w, http.StatusCreated, registerResponse{
		ID:    identity.ID,
		Email: identity.Email,
		Role:  identity.Role,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	account, err := a.auth.Me(r.Context(), p)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	// protect already validated the header.
	token, _ := extractBearerToken(r.Header.Get(authHeader))
	if err := a.auth.Logout(r.Context(), token); err != nil {
		handleError(w, r, err)
		return
	}
	revoked := a.auth.RevocationEnabled()
	_ = audit.LogEvent(r.Context(), "auth.logout", p, map[string]any{"revoked": revoked})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "logged_out",
		"revoked": revoked,
	})
}
