package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	"gradebook.dev/internal/auth"
	"gradebook.dev/internal/grades"
	"gradebook.dev/internal/obs"
)

const serviceName = "gradebook-api"

// Pinger is any dependency whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the backing stores. Nil entries are skipped.
type ReadyProbe struct {
	DB         Pinger
	Revocation Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if rp.Revocation != nil {
		if err := rp.Revocation.Ping(ctx); err != nil {
			return fmt.Errorf("revocation store: %w", err)
		}
	}
	return nil
}

// Options tune the HTTP surface.
type Options struct {
	Version string
	// LoginBurst and LoginPerSecond bound login attempts per client IP.
	LoginBurst     int
	LoginPerSecond float64
	MaxBodyBytes   int64
	// TrustedProxies lists the peers allowed to set X-Forwarded-For.
	TrustedProxies []string
}

// API is the HTTP layer over the auth and grade services.
type API struct {
	router chi.Router
	auth   *auth.Service
	grades *grades.Service
	ready  ReadyProbe
	opts   Options
	// proxies is the parsed form of opts.TrustedProxies.
	proxies []netip.Prefix
}

func New(authSvc *auth.Service, gradeSvc *grades.Service, rp ReadyProbe, opts Options) (*API, error) {
	if authSvc == nil || gradeSvc == nil {
		return nil, fmt.Errorf("httpapi: auth and grade services are required")
	}
	if opts.LoginBurst <= 0 {
		opts.LoginBurst = 10
	}
	if opts.LoginPerSecond <= 0 {
		opts.LoginPerSecond = 1
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	proxies, err := ParseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("httpapi: %w", err)
	}
	a := &API{
		auth:    authSvc,
		grades:  gradeSvc,
		ready:   rp,
		opts:    opts,
		proxies: proxies,
	}
	a.router = a.routes()
	return a, nil
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	loginLimit := func(next http.Handler) http.Handler {
		return RateLimit(next, a.opts.LoginBurst, a.opts.LoginPerSecond)
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(loginLimit).Post("/login", a.handleLogin)
		r.Post("/register/student", a.handleRegisterStudent)
		r.Post("/register/teacher", a.handleRegisterTeacher)
		r.Post("/register/admin", a.protect(adminOnly, a.handleRegisterAdmin))
		r.Get("/me", a.protect(anyRole, a.handleMe))
		r.Post("/logout", a.protect(anyRole, a.handleLogout))
	})

	r.Route("/admin/users/{id}", func(r chi.Router) {
		r.Put("/status", a.protect(adminOnly, a.handleSetStatus))
		r.Put("/role", a.protect(adminOnly, a.handleSetRole))
		r.Delete("/", a.protect(adminOnly, a.handleDeleteUser))
	})

	r.Route("/teacher/grades", func(r chi.Router) {
		r.Post("/", a.protect(staffOnly, a.handleRecordGrade))
		r.Put("/{id}", a.protect(staffOnly, a.handleUpdateGrade))
		r.Delete("/{id}", a.protect(staffOnly, a.handleDeleteGrade))
	})

	r.Get("/grades/{id}", a.protect(anyRole, a.handleGetGrade))
	r.Get("/students/{id}/grades", a.protect(anyRole, a.handleListGrades))
	return r
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = LoggingJSON(h)
	h = ClientIP(h, a.proxies)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
