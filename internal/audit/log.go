package audit

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"gradebook.dev/internal/auth"
	"gradebook.dev/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID extracts the request id from context if present.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry. The acting principal is passed explicitly; a zero
// principal is logged as anonymous.
func LogEvent(ctx context.Context, event string, actor auth.Principal, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}

	zf := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := RequestID(ctx); rid != "" {
		zf = append(zf, zap.String("request_id", rid))
	}
	if actor.IsZero() {
		zf = append(zf, zap.Bool("anonymous", true))
	} else {
		zf = append(zf,
			zap.Int64("actor_id", actor.ID()),
			zap.String("actor_role", string(actor.Role())),
		)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	nested := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		nested = append(nested, zap.Any(k, fields[k]))
	}
	zf = append(zf, zap.Dict("fields", nested...))

	obs.Logger().Info("audit", zf...)
	return nil
}
