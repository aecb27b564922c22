package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/server/sessions"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// ClaimsFromContext returns the session claims the interceptor attached, or
// nil for public methods.
func ClaimsFromContext(ctx context.Context) *sessions.Claims {
	c, _ := ctx.Value(claimsKey).(*sessions.Claims)
	return c
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(common.AccessTokenHeaderName)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(values[0], common.BearerPrefix))
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	access, ok := methodAccess[info.FullMethod]
	if !ok {
		access = Authenticated
	}
	if access == Public {
		return handler(ctx, req)
	}

	token := bearerToken(ctx)
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, ok := s.sessions.Validate(ctx, token)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}

	want := sessions.Authenticated
	if access == MFAPending {
		want = sessions.MFAPending
	}
	if claims.Stage != want {
		return nil, status.Error(codes.Unauthenticated, "session is not at stage "+want.String())
	}

	ctx = context.WithValue(ctx, claimsKey, claims)
	return handler(ctx, req)
}

func (s *GRPCServer) metricsInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	s.metrics.RPCDuration.WithLabelValues(info.FullMethod, code.String()).Observe(time.Since(start).Seconds())
	s.logger.Debug(ctx, "rpc", "method", info.FullMethod, "code", code.String())
	return resp, err
}
