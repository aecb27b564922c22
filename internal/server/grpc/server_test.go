package grpc

import (
	"context"
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/cryptox"
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/auth"
	"github.com/dmitrijs2005/learnkeeper/internal/server/billing"
	"github.com/dmitrijs2005/learnkeeper/internal/server/codec"
	"github.com/dmitrijs2005/learnkeeper/internal/server/config"
	"github.com/dmitrijs2005/learnkeeper/internal/server/credentials"
	"github.com/dmitrijs2005/learnkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/learnkeeper/internal/server/mail"
	"github.com/dmitrijs2005/learnkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/learnkeeper/internal/server/password"
	"github.com/dmitrijs2005/learnkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/learnkeeper/internal/server/schema"
	"github.com/dmitrijs2005/learnkeeper/internal/server/services"
	"github.com/dmitrijs2005/learnkeeper/internal/server/sessions"
	"github.com/dmitrijs2005/learnkeeper/internal/server/txn"
	"github.com/dmitrijs2005/learnkeeper/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type harness struct {
	conn   *grpc.ClientConn
	outbox *mail.Outbox
	ledger *billing.Ledger
	pays   *services.PaymentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tiny := cryptox.KDFParams{Iterations: 1, MemoryKiB: 64, Parallelism: 1}

	ccfg := codec.DefaultConfig()
	ccfg.KDF = tiny
	c, err := codec.New([]byte("grpc-test-secret"), ccfg)
	require.NoError(t, err)

	s := schema.Default()
	backend := docstore.NewMemoryBackend(s.UniqueFields())
	rm := repomanager.NewRecordRepositoryManager(s, c, logging.Nop(), timex.Now)
	m := metrics.NewNop()
	tx := txn.NewCoordinator(backend, rm, txn.DefaultConfig(), logging.Nop(), m)

	outbox := mail.NewOutbox()
	vcfg := credentials.DefaultConfig([]byte("grpc-pepper"))
	vcfg.KDF = tiny
	verifier, err := credentials.NewVerifier(vcfg, backend, rm, tx, outbox, timex.Now, logging.Nop(), m)
	require.NoError(t, err)

	signer, err := auth.NewSigner([]byte("grpc-jwt-secret-0123456789"), c, timex.Now)
	require.NoError(t, err)
	sm := sessions.NewManager(sessions.Config{TokenTTL: time.Hour, MFAPendingTTL: 30 * time.Minute},
		signer, backend, rm, timex.Now, logging.Nop(), m)

	holder := config.NewHolder()
	holder.Publish(config.Catalog{Courses: []string{"go-101"}}, nil)
	policy, err := password.NewChecker(password.DefaultConfig(), holder.Blocklist, nil)
	require.NoError(t, err)

	ledger := billing.NewLedger()
	d := &services.Deps{
		Backend: backend, Repos: rm, Tx: tx, Verifier: verifier, Sessions: sm,
		Policy: policy, Processor: ledger, Catalog: holder, Logger: logging.Nop(),
	}
	pays := services.NewPaymentService(d)
	srv := NewGRPCServer("bufnet", logging.Nop(), m, sm, services.NewUserService(d), services.NewInstitutionService(d), pays)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &harness{conn: conn, outbox: outbox, ledger: ledger, pays: pays}
}

func (h *harness) call(t *testing.T, token, method string, in map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(in)
	require.NoError(t, err)

	ctx := context.Background()
	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, common.BearerPrefix+token)
	}
	out := new(structpb.Struct)
	if err := h.conn.Invoke(ctx, FullMethod(method), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

var codeRe = regexp.MustCompile(`<b>(\d{6})</b>`)

// signIn runs both sign-in steps and returns the full session token.
func (h *harness) signIn(t *testing.T, username, email string) string {
	t.Helper()
	res, err := h.call(t, "", MethodSignIn, map[string]any{"identifier": username, "password": "a long passphrase"})
	require.NoError(t, err)
	pending := res.Fields["token"].GetStringValue()

	msg, ok := h.outbox.Last(email)
	require.True(t, ok)
	code := codeRe.FindStringSubmatch(msg.HTMLBody)[1]

	res, err = h.call(t, pending, MethodCompleteMFA, map[string]any{"code": code})
	require.NoError(t, err)
	return res.Fields["token"].GetStringValue()
}

func (h *harness) signUp(t *testing.T, username, email, kind string) string {
	t.Helper()
	res, err := h.call(t, "", MethodSignUp, map[string]any{
		"username": username, "email": email, "password": "a long passphrase", "kind": kind,
	})
	require.NoError(t, err)
	return res.Fields["user_id"].GetStringValue()
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Nop(), metrics.NewNop(), fakeValidator{}, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop(), metrics.NewNop(), fakeValidator{}, nil, nil, nil)
	assert.Error(t, srv.Run(context.Background()))
}

func TestEndToEnd_AccountLifecycle(t *testing.T) {
	h := newHarness(t)

	res, err := h.call(t, "", MethodPing, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Fields["status"].GetStringValue())

	userID := h.signUp(t, "alice", "alice@example.com", "")
	token := h.signIn(t, "alice", "alice@example.com")

	_, err = h.call(t, token, MethodSaveProgress, map[string]any{
		"course_progress": map[string]any{"go-101": map[string]any{"lesson": 4}},
	})
	require.NoError(t, err)

	res, err = h.call(t, token, MethodGetAccount, nil)
	require.NoError(t, err)
	assert.Equal(t, userID, res.Fields["user_id"].GetStringValue())
	assert.Equal(t, "alice@example.com", res.Fields["email"].GetStringValue())
	assert.Equal(t, "individual", res.Fields["kind"].GetStringValue())
	progress := res.Fields["course_progress"].GetStructValue().AsMap()
	assert.Equal(t, map[string]any{"go-101": map[string]any{"lesson": 4.0}}, progress)

	_, err = h.call(t, token, MethodSignOut, nil)
	require.NoError(t, err)

	_, err = h.call(t, token, MethodGetAccount, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestEndToEnd_Errors(t *testing.T) {
	h := newHarness(t)
	h.signUp(t, "alice", "alice@example.com", "individual")

	_, err := h.call(t, "", MethodSignUp, map[string]any{
		"username": "alice2", "email": "alice@example.com", "password": "a long passphrase",
	})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
	assert.Equal(t, "email is already in use", status.Convert(err).Message())

	_, err = h.call(t, "", MethodSignUp, map[string]any{
		"username": "bob", "email": "bob@example.com", "password": "short",
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.call(t, "", MethodSignIn, map[string]any{"identifier": "alice", "password": "wrong password"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	res, err := h.call(t, "", MethodSignIn, map[string]any{"identifier": "alice@example.com", "password": "a long passphrase"})
	require.NoError(t, err)
	pending := res.Fields["token"].GetStringValue()

	_, err = h.call(t, pending, MethodGetAccount, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err), "pending token must not reach account methods")

	_, err = h.call(t, pending, MethodCompleteMFA, map[string]any{"code": "000000"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	token := h.signIn(t, "alice", "alice@example.com")
	_, err = h.call(t, token, MethodSaveProgress, map[string]any{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.call(t, token, MethodCreateInstitution, map[string]any{"name": "Acme"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = h.call(t, token, MethodCheckIfPaidFor, map[string]any{"course_id": "nope"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestEndToEnd_InstitutionAndPayments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	adminID := h.signUp(t, "admin", "admin@example.com", "admin")
	adminToken := h.signIn(t, "admin", "admin@example.com")
	h.signUp(t, "stu", "stu@example.com", "individual")
	stuToken := h.signIn(t, "stu", "stu@example.com")

	res, err := h.call(t, adminToken, MethodCreateInstitution, map[string]any{"name": "Acme"})
	require.NoError(t, err)
	joinCode := res.Fields["join_code"].GetStringValue()
	require.NotEmpty(t, joinCode)

	res, err = h.call(t, stuToken, MethodJoinInstitution, map[string]any{"join_code": joinCode})
	require.NoError(t, err)
	assert.Equal(t, "Acme", res.Fields["name"].GetStringValue())
	_, hasCode := res.Fields["join_code"]
	assert.False(t, hasCode)

	res, err = h.call(t, stuToken, MethodCheckIfPaidFor, map[string]any{"course_id": "go-101"})
	require.NoError(t, err)
	assert.False(t, res.Fields["paid"].GetBoolValue())

	require.NoError(t, h.pays.SetSubscription(ctx, adminID, "sub_1"))

	res, err = h.call(t, stuToken, MethodCheckIfPaidFor, map[string]any{"course_id": "go-101"})
	require.NoError(t, err)
	assert.True(t, res.Fields["paid"].GetBoolValue())

	res, err = h.call(t, stuToken, MethodStartCheckout, map[string]any{
		"course_id": "go-101", "success_url": "https://example.com/ok", "cancel_url": "https://example.com/no",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Fields["checkout_url"].GetStringValue())

	_, err = h.call(t, adminToken, MethodDeleteAccount, map[string]any{"password": "a long passphrase"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = h.call(t, adminToken, MethodDeleteInstitution, nil)
	require.NoError(t, err)

	res, err = h.call(t, stuToken, MethodGetAccount, nil)
	require.NoError(t, err)
	assert.Equal(t, "individual", res.Fields["kind"].GetStringValue())
	assert.Empty(t, res.Fields["institution_id"].GetStringValue())
}
