// Package server wires the LearnKeeper server together: storage, the field
// codec, the auth subsystem, business services, the gRPC transport and the
// ops HTTP endpoints, plus the background sweeper and config reloader.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/learnkeeper/internal/cryptox"
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/auth"
	"github.com/dmitrijs2005/learnkeeper/internal/server/billing"
	"github.com/dmitrijs2005/learnkeeper/internal/server/breach"
	"github.com/dmitrijs2005/learnkeeper/internal/server/codec"
	"github.com/dmitrijs2005/learnkeeper/internal/server/config"
	"github.com/dmitrijs2005/learnkeeper/internal/server/credentials"
	"github.com/dmitrijs2005/learnkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/learnkeeper/internal/server/mail"
	"github.com/dmitrijs2005/learnkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/learnkeeper/internal/server/ops"
	"github.com/dmitrijs2005/learnkeeper/internal/server/password"
	"github.com/dmitrijs2005/learnkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/learnkeeper/internal/server/schema"
	"github.com/dmitrijs2005/learnkeeper/internal/server/services"
	"github.com/dmitrijs2005/learnkeeper/internal/server/sessions"
	"github.com/dmitrijs2005/learnkeeper/internal/server/txn"
	"github.com/dmitrijs2005/learnkeeper/internal/timex"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/learnkeeper/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	backend  docstore.Backend
	metrics  *metrics.Metrics
	holder   *config.Holder
	source   config.Source
	sessions *sessions.Manager
	grpc     *gs.GRPCServer
	ops      *ops.HTTPServer
	closers  []func() error
}

func newLogger(c *config.Config) (logging.Logger, error) {
	if c.LogFormat == "zap" {
		return logging.NewProductionZapLogger(c.LogLevel)
	}
	return logging.NewJSONLogger(os.Stdout, c.LogLevel), nil
}

func openBackend(ctx context.Context, c *config.Config, s *schema.Schema) (docstore.Backend, error) {
	if c.DatabaseDSN == "" {
		return docstore.NewMemoryBackend(s.UniqueFields()), nil
	}
	b, err := docstore.OpenPostgres(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := b.Migrate(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("db migrate error: %w", err)
	}
	return b, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := newLogger(c)
	if err != nil {
		return nil, err
	}
	app := &App{config: c, logger: logger}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.metrics = metrics.New(registry)

	s := schema.Default()
	app.backend, err = openBackend(ctx, c, s)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, app.backend.Close)
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database configured, records are kept in memory")
	}

	kdf := cryptox.KDFParams{Iterations: c.KDFIterations, MemoryKiB: c.KDFMemoryKiB, Parallelism: c.KDFParallelism}
	cdc, err := codec.New([]byte(c.MasterSecret), codec.Config{
		Algorithm:  cryptox.Algorithm(c.AEAD),
		Digest:     cryptox.DigestAlgorithm(c.IndexDigest),
		SaltLength: c.SaltLength,
		KDF:        kdf,
	})
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}

	rm := repomanager.NewRecordRepositoryManager(s, cdc, logger, timex.Now)
	tcfg := txn.DefaultConfig()
	tcfg.MaxAttempts = c.TxMaxAttempts
	tx := txn.NewCoordinator(app.backend, rm, tcfg, logger, app.metrics)

	mailer, err := app.newMailer(ctx)
	if err != nil {
		return nil, err
	}

	app.holder = config.NewHolder()
	app.source, err = app.newSource(ctx)
	if err != nil {
		return nil, err
	}
	if err := app.holder.Reload(ctx, app.source); err != nil {
		return nil, fmt.Errorf("initial config snapshot: %w", err)
	}

	policy, err := password.NewChecker(password.Config{
		MinLength:    c.PasswordMinLength,
		MaxLength:    c.PasswordMaxLength,
		BreachDigest: c.BreachDigest,
	}, app.holder.Blocklist, app.newBreachLookup(ctx))
	if err != nil {
		return nil, fmt.Errorf("password policy: %w", err)
	}

	vcfg := credentials.DefaultConfig([]byte(c.Pepper))
	vcfg.KDF = kdf
	vcfg.SaltLength = c.SaltLength
	vcfg.MFAValidity = c.MFAValidityDuration
	vcfg.MFAMaxAttempts = c.MFAMaxAttempts
	verifier, err := credentials.NewVerifier(vcfg, app.backend, rm, tx, mailer, timex.Now, logger, app.metrics)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}

	signer, err := auth.NewSigner([]byte(c.JWTSecret), cdc, timex.Now)
	if err != nil {
		return nil, fmt.Errorf("token signer: %w", err)
	}
	app.sessions = sessions.NewManager(sessions.Config{
		TokenTTL:      c.TokenValidityDuration,
		MFAPendingTTL: c.MFAValidityDuration,
	}, signer, app.backend, rm, timex.Now, logger, app.metrics)

	// TODO: replace the in-process ledger with a client for the hosted payment processor.
	processor := billing.NewLedger()

	d := &services.Deps{
		Backend:   app.backend,
		Repos:     rm,
		Tx:        tx,
		Verifier:  verifier,
		Sessions:  app.sessions,
		Policy:    policy,
		Processor: processor,
		Catalog:   app.holder,
		Logger:    logger,
	}

	app.grpc = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, app.metrics, app.sessions,
		services.NewUserService(d), services.NewInstitutionService(d), services.NewPaymentService(d))
	app.ops = ops.NewHTTPServer(c.EndpointAddrOps, ops.NewRouter(app.backend, registry, app.holder, logger), logger)

	return app, nil
}

func (app *App) newMailer(ctx context.Context) (mail.Dispatcher, error) {
	c := app.config
	if c.SMTPAddr == "" {
		app.logger.Warn(ctx, "no SMTP relay configured, MFA codes stay in the local outbox")
		return mail.NewOutbox(), nil
	}
	d, err := mail.NewSMTPDispatcher(mail.SMTPConfig{
		Addr:     c.SMTPAddr,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.MailFrom,
		FromName: "LearnKeeper",
	})
	if err != nil {
		return nil, fmt.Errorf("smtp: %w", err)
	}
	return d, nil
}

// newBreachLookup returns nil when breach checks are disabled.
func (app *App) newBreachLookup(ctx context.Context) breach.Lookup {
	c := app.config
	if !c.BreachCheck {
		app.logger.Warn(ctx, "breach corpus check disabled")
		return nil
	}

	var lookup breach.Lookup = breach.NewHTTPLookup(c.BreachURL, c.BreachTimeout)
	if c.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		app.closers = append(app.closers, rdb.Close)
		lookup = breach.NewCachedLookup(lookup, rdb, c.BreachCacheTTL, app.logger)
	}
	return lookup
}

// newSource builds the reload source for the catalog and blocklist.
func (app *App) newSource(ctx context.Context) (config.Source, error) {
	c := app.config

	var s3c password.ObjectGetter
	if strings.HasPrefix(c.BlocklistSource, "s3://") {
		client, err := password.NewS3Client(ctx, password.S3Config{
			Region:       c.S3Region,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		s3c = client
	}

	return func(ctx context.Context) (config.Catalog, []*regexp.Regexp, error) {
		cat, err := config.LoadCatalog(c.CatalogFile)
		if err != nil {
			return cat, nil, err
		}
		bl, err := password.LoadBlocklist(ctx, c.BlocklistSource, s3c)
		if err != nil {
			return cat, nil, err
		}
		return cat, bl, nil
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startServer(ctx context.Context, cancelFunc context.CancelFunc, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, name+" server failed", "error", err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	app.sessions.StartSweeper(ctx, app.config.SweepInterval)
	if app.config.CatalogFile != "" || app.config.BlocklistSource != "" {
		app.holder.StartReloader(ctx, app.config.ReloadInterval, app.source, app.logger, app.metrics)
	}

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startServer(ctx, cancelFunc, "gRPC", app.grpc.Run)
	}()
	go func() {
		defer wg.Done()
		app.startServer(ctx, cancelFunc, "ops HTTP", app.ops.Run)
	}()

	wg.Wait()

	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Warn(context.Background(), "close failed", "error", err.Error())
		}
	}
	app.logger.Info(context.Background(), "App stopped")
}
