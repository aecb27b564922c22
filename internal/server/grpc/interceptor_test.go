package grpc

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/learnkeeper/internal/server/sessions"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type fakeValidator map[string]*sessions.Claims

func (f fakeValidator) Validate(_ context.Context, token string) (*sessions.Claims, bool) {
	c, ok := f[token]
	return c, ok
}

func newInterceptorServer() *GRPCServer {
	return NewGRPCServer("", logging.Nop(), metrics.NewNop(), fakeValidator{
		"pending": {UserID: "u1", Stage: sessions.MFAPending},
		"full":    {UserID: "u1", Stage: sessions.Authenticated},
	}, nil, nil, nil)
}

func withToken(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(),
		metadata.New(map[string]string{common.AccessTokenHeaderName: token}))
}

func TestInterceptor(t *testing.T) {
	s := newInterceptorServer()

	tests := []struct {
		name     string
		ctx      context.Context
		method   string
		wantCode codes.Code
		wantUser string
	}{
		{"public without token", context.Background(), MethodSignIn, codes.OK, ""},
		{"authenticated without token", context.Background(), MethodGetAccount, codes.Unauthenticated, ""},
		{"unknown token", withToken("Bearer nope"), MethodGetAccount, codes.Unauthenticated, ""},
		{"full token with bearer prefix", withToken("Bearer full"), MethodGetAccount, codes.OK, "u1"},
		{"full token without prefix", withToken("full"), MethodGetAccount, codes.OK, "u1"},
		{"pending token on authenticated method", withToken("pending"), MethodGetAccount, codes.Unauthenticated, ""},
		{"pending token on CompleteMFA", withToken("pending"), MethodCompleteMFA, codes.OK, "u1"},
		{"full token on CompleteMFA", withToken("full"), MethodCompleteMFA, codes.Unauthenticated, ""},
		{"unlisted method needs a full session", withToken("pending"), "Unlisted", codes.Unauthenticated, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *sessions.Claims
			called := false
			h := func(ctx context.Context, req any) (any, error) {
				called = true
				seen = ClaimsFromContext(ctx)
				return "ok", nil
			}

			info := &grpc.UnaryServerInfo{FullMethod: FullMethod(tt.method)}
			_, err := s.accessTokenInterceptor(tt.ctx, nil, info, h)

			assert.Equal(t, tt.wantCode, status.Code(err))
			assert.Equal(t, tt.wantCode == codes.OK, called)
			if tt.wantUser != "" {
				require.NotNil(t, seen)
				assert.Equal(t, tt.wantUser, seen.UserID)
			}
		})
	}
}

func TestMetricsInterceptor_ObservesCode(t *testing.T) {
	s := newInterceptorServer()
	info := &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodPing)}

	_, _ = s.metricsInterceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "x")
	})
	_, _ = s.metricsInterceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})

	assert.Equal(t, 2, testutil.CollectAndCount(s.metrics.RPCDuration))
}
