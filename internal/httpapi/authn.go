package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gradebook.dev/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var (
	anyRole   = auth.RequireRoles(auth.RoleStudent, auth.RoleTeacher, auth.RoleAdmin)
	staffOnly = auth.RequireRoles(auth.RoleTeacher, auth.RoleAdmin)
	adminOnly = auth.RequireRoles(auth.RoleAdmin)
)

// principalHandler receives the resolved caller explicitly.
type principalHandler func(w http.ResponseWriter, r *http.Request, p auth.Principal)

// protect resolves the bearer token and evaluates rule before calling next. Finer
// checks that depend on the target resource are left to the services.
func (a *API) protect(rule auth.Rule, next principalHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		principal, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			handleError(w, r, err)
			return
		}
		if err := auth.Authorize(principal, rule); err != nil {
			handleError(w, r, err)
			return
		}
		next(w, r, principal)
	}
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("authorization header must use Bearer scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
