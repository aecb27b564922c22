package grpc

import (
	"context"
	"encoding/json"
	"net"

	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/services"
	"github.com/dmitrijs2005/learnkeeper/internal/server/sessions"
	"google.golang.org/grpc"
)

// SessionValidator resolves a bearer token to its claims.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*sessions.Claims, bool)
}

// Users is the account surface exposed over gRPC.
type Users interface {
	SignUp(ctx context.Context, username, email, pw string, kind models.AccountKind) (string, error)
	SignIn(ctx context.Context, identifier, pw string) (string, error)
	CompleteMFA(ctx context.Context, c *sessions.Claims, code string) (string, error)
	SignOut(ctx context.Context, c *sessions.Claims) error
	SignOutEverywhere(ctx context.Context, c *sessions.Claims) error
	GetAccount(ctx context.Context, c *sessions.Claims) (*services.AccountView, error)
	SaveProgress(ctx context.Context, c *sessions.Claims, progress json.RawMessage) error
	ChangePassword(ctx context.Context, c *sessions.Claims, oldPw, newPw string) error
	DeleteAccount(ctx context.Context, c *sessions.Claims, pw string) error
}

// Institutions is the institution surface exposed over gRPC.
type Institutions interface {
	CreateInstitution(ctx context.Context, c *sessions.Claims, name string) (*models.Institution, error)
	JoinInstitution(ctx context.Context, c *sessions.Claims, joinCode string) (*models.Institution, error)
	LeaveInstitution(ctx context.Context, c *sessions.Claims) error
	DeleteInstitution(ctx context.Context, c *sessions.Claims) error
}

// Payments is the payment surface exposed over gRPC.
type Payments interface {
	CheckIfPaidFor(ctx context.Context, userID, courseID string) (bool, error)
	StartCheckout(ctx context.Context, c *sessions.Claims, courseID, successURL, cancelURL string) (string, error)
}

type GRPCServer struct {
	address      string
	logger       logging.Logger
	metrics      *metrics.Metrics
	sessions     SessionValidator
	users        Users
	institutions Institutions
	payments     Payments
}

func NewGRPCServer(a string, l logging.Logger, m *metrics.Metrics, sv SessionValidator, us Users, is Institutions, ps Payments) *GRPCServer {
	return &GRPCServer{
		address:      a,
		logger:       l.With("module", "grpc_server"),
		metrics:      m,
		sessions:     sv,
		users:        us,
		institutions: is,
		payments:     ps,
	}
}

// NewServer builds the gRPC server with the interceptors and the
// LearnKeeper service registered.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.metricsInterceptor, s.accessTokenInterceptor))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(serviceDesc(), s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
