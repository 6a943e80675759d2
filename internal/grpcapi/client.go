package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"gradebook.dev/internal/auth"
)

// Client calls the identity service of a remote gradebook.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a new client with sensible defaults (insecure transport).
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection. Close is then the caller's business.
func NewClient(conn *grpc.ClientConn) *Client { return &Client{conn: conn} }

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// WhoAmI resolves token on the server. Status codes come back as auth errors.
func (c *Client) WhoAmI(ctx context.Context, token string) (auth.Summary, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, whoAmIMethod, &emptypb.Empty{}, out); err != nil {
		return auth.Summary{}, fromStatus(err)
	}

	fields := out.GetFields()
	summary := auth.Summary{
		ID:    int64(fields["id"].GetNumberValue()),
		Email: fields["email"].GetStringValue(),
		Role:  auth.Role(fields["role"].GetStringValue()),
	}
	for _, v := range fields["authorities"].GetListValue().GetValues() {
		summary.Authorities = append(summary.Authorities, v.GetStringValue())
	}
	return summary, nil
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated:
		for _, r := range reasons {
			if st.Message() == r.msg {
				return r.err
			}
		}
		return fmt.Errorf("%w: %s", auth.ErrUnauthenticated, st.Message())
	case codes.PermissionDenied:
		return auth.ErrForbidden
	default:
		return err
	}
}
