package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gradebook.dev/internal/auth"
	"gradebook.dev/internal/obs"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// writeUnauthorized answers 401 with a Bearer challenge. The message says what to do,
// not which check failed beyond what the client can already see.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	challenge := "Bearer"
	msg := "authentication required"
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		msg = "invalid email or password"
	case errors.Is(err, auth.ErrTokenExpired):
		challenge = `Bearer error="invalid_token"`
		msg = "token expired"
	case errors.Is(err, auth.ErrTokenRevoked):
		challenge = `Bearer error="invalid_token"`
		msg = "token revoked"
	case errors.Is(err, auth.ErrIdentityStale):
		challenge = `Bearer error="invalid_token"`
		msg = "account changed, sign in again"
	case errors.Is(err, auth.ErrTokenMalformed):
		challenge = `Bearer error="invalid_token"`
		msg = "invalid token"
	}
	w.Header().Set("WWW-Authenticate", challenge)
	writeError(w, r, http.StatusUnauthorized, msg)
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case auth.IsAuthenticationError(err):
		writeUnauthorized(w, r, err)
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, detail(err, auth.ErrInvalidInput, "invalid input"))
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, detail(err, auth.ErrConflict, "already exists"))
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	default:
		obs.Logger().Error("request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// detail strips the sentinel prefix from a wrapped error, leaving the part meant for
// the client.
func detail(err, sentinel error, fallback string) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error())
	msg = strings.TrimSpace(strings.TrimPrefix(msg, ":"))
	if msg == "" {
		return fallback
	}
	return msg
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
