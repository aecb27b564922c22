package client

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const servicePath = "/learnkeeper.v1.LearnKeeper/"

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, common.BearerPrefix+token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if s.accessToken != "" {
		ctx = withAccessToken(ctx, s.accessToken)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient connects to endpointURL. Extra dial options are appended
// after the defaults, which use plaintext transport.
func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(c.endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) Token() string { return s.accessToken }

func (s *GRPCClient) SetToken(token string) { s.accessToken = token }

func (s *GRPCClient) call(ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := s.conn.Invoke(ctx, servicePath+method, req, out); err != nil {
		return nil, s.mapError(err)
	}
	return out, nil
}

func str(m *structpb.Struct, name string) string {
	return m.GetFields()[name].GetStringValue()
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	_, err := s.call(ctx, "Ping", nil)
	return err
}

func (s *GRPCClient) SignUp(ctx context.Context, username, email, password, kind string) (string, error) {
	res, err := s.call(ctx, "SignUp", map[string]any{
		"username": username,
		"email":    email,
		"password": password,
		"kind":     kind,
	})
	if err != nil {
		return "", err
	}
	return str(res, "user_id"), nil
}

// SignIn starts a session. The stored token is only good for CompleteMFA
// until the emailed code is submitted.
func (s *GRPCClient) SignIn(ctx context.Context, identifier, password string) error {
	res, err := s.call(ctx, "SignIn", map[string]any{"identifier": identifier, "password": password})
	if err != nil {
		return err
	}
	s.accessToken = str(res, "token")
	return nil
}

func (s *GRPCClient) CompleteMFA(ctx context.Context, code string) error {
	res, err := s.call(ctx, "CompleteMFA", map[string]any{"code": code})
	if err != nil {
		return err
	}
	s.accessToken = str(res, "token")
	return nil
}

func (s *GRPCClient) SignOut(ctx context.Context) error {
	if _, err := s.call(ctx, "SignOut", nil); err != nil {
		return err
	}
	s.accessToken = ""
	return nil
}

func (s *GRPCClient) WhoAmI(ctx context.Context) (*Account, error) {
	res, err := s.call(ctx, "GetAccount", nil)
	if err != nil {
		return nil, err
	}
	return &Account{
		UserID:          str(res, "user_id"),
		Username:        str(res, "username"),
		Email:           str(res, "email"),
		Kind:            str(res, "kind"),
		InstitutionID:   str(res, "institution_id"),
		InstitutionName: str(res, "institution_name"),
		CourseProgress:  res.GetFields()["course_progress"].GetStructValue().AsMap(),
	}, nil
}

func (s *GRPCClient) SaveProgress(ctx context.Context, progress map[string]any) error {
	_, err := s.call(ctx, "SaveProgress", map[string]any{"course_progress": progress})
	return err
}

func (s *GRPCClient) JoinInstitution(ctx context.Context, joinCode string) (string, error) {
	res, err := s.call(ctx, "JoinInstitution", map[string]any{"join_code": joinCode})
	if err != nil {
		return "", err
	}
	return str(res, "name"), nil
}

func (s *GRPCClient) CheckIfPaidFor(ctx context.Context, courseID string) (bool, error) {
	res, err := s.call(ctx, "CheckIfPaidFor", map[string]any{"course_id": courseID})
	if err != nil {
		return false, err
	}
	return res.GetFields()["paid"].GetBoolValue(), nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.InvalidArgument, codes.AlreadyExists, codes.FailedPrecondition, codes.NotFound:
		return fmt.Errorf("%w: %s", ErrRejected, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
