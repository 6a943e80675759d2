package grpcapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"gradebook.dev/internal/auth"
	"gradebook.dev/internal/obs"
)

const (
	ServiceName  = "gradebook.v1.Identity"
	whoAmIMethod = "/" + ServiceName + "/WhoAmI"
)

var grpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gradebook_grpc_requests_total",
	Help: "gRPC requests by method and status code",
}, []string{"method", "code"})

// Authenticator resolves a bearer token to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

// IdentityServer is the gradebook.v1.Identity service.
type IdentityServer interface {
	WhoAmI(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

// Server implements IdentityServer over an Authenticator.
type Server struct {
	auth Authenticator
}

func NewServer(a Authenticator) *Server {
	return &Server{auth: a}
}

// WhoAmI returns the summary of the caller named by the authorization metadata.
func (s *Server) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	token, err := tokenFromMetadata(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	principal, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		return nil, toStatus(err)
	}
	authorities := make([]any, 0, 1)
	for _, a := range principal.Authorities() {
		authorities = append(authorities, a)
	}
	out, err := structpb.NewStruct(map[string]any{
		"id":          principal.ID(),
		"email":       principal.Email(),
		"role":        string(principal.Role()),
		"authorities": authorities,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

var identityServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IdentityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WhoAmI", Handler: whoAmIHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gradebook/v1/identity.proto",
}

func whoAmIHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IdentityServer).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: whoAmIMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IdentityServer).WhoAmI(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterIdentityServer attaches srv to a gRPC server.
func RegisterIdentityServer(r grpc.ServiceRegistrar, srv IdentityServer) {
	r.RegisterService(&identityServiceDesc, srv)
}

// NewGRPCServer builds a server carrying the identity and standard health services.
// The returned health server lets callers flip serving status during shutdown.
func NewGRPCServer(a Authenticator, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append(opts, grpc.ChainUnaryInterceptor(UnaryLogging))
	srv := grpc.NewServer(opts...)
	RegisterIdentityServer(srv, NewServer(a))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// UnaryLogging logs and counts every unary call.
func UnaryLogging(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	grpcRequests.WithLabelValues(info.FullMethod, code.String()).Inc()

	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.String("code", code.String()),
		zap.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
	}
	if code == codes.Internal || code == codes.Unknown {
		obs.Logger().Error("grpc_request", append(fields, zap.Error(err))...)
	} else {
		obs.Logger().Info("grpc_request", fields...)
	}
	return resp, err
}

func tokenFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("missing bearer token")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", errors.New("missing bearer token")
	}
	raw := strings.TrimSpace(values[0])
	const prefix = "bearer "
	if len(raw) < len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return "", errors.New("authorization metadata must use Bearer scheme")
	}
	token := strings.TrimSpace(raw[len(prefix):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// reasons pairs auth errors with the status messages that carry them across the wire.
var reasons = []struct {
	err error
	msg string
}{
	{auth.ErrTokenExpired, "token expired"},
	{auth.ErrTokenRevoked, "token revoked"},
	{auth.ErrIdentityStale, "identity stale"},
	{auth.ErrTokenMalformed, "invalid token"},
	{auth.ErrInvalidCredentials, "invalid credentials"},
	{auth.ErrUnauthenticated, "authentication required"},
}

func toStatus(err error) error {
	switch {
	case auth.IsAuthenticationError(err):
		for _, r := range reasons {
			if errors.Is(err, r.err) {
				return status.Error(codes.Unauthenticated, r.msg)
			}
		}
		return status.Error(codes.Unauthenticated, "authentication required")
	case errors.Is(err, auth.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
