package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"polytrade/internal/approvals"
	"polytrade/internal/book"
	"polytrade/internal/chain"
	"polytrade/internal/clob"
	"polytrade/internal/config"
	cronrunner "polytrade/internal/cron"
	"polytrade/internal/db"
	"polytrade/internal/handler"
	"polytrade/internal/logger"
	"polytrade/internal/metrics"
	"polytrade/internal/proxywallet"
	"polytrade/internal/relayer"
	gormrepository "polytrade/internal/repository/gorm"
	"polytrade/internal/service"
	"polytrade/internal/session"

	_ "polytrade/docs"
)

func main() {
	cfgPath := os.Getenv("PT_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("PT_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}
	store := gormrepository.New(dbConn.Gorm)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exchangeHTTP := &http.Client{Timeout: cfg.Exchange.Timeout}
	exchange := clob.NewClient(exchangeHTTP, cfg.Exchange.BaseURL)
	books := book.NewService(ctx, exchange, cfg.Book.PollInterval, logger)

	var caller *chain.Caller
	if cfg.Chain.PrivateKey != "" {
		caller, err = chain.NewCallerWithKey(cfg.Chain, cfg.Chain.PrivateKey)
	} else {
		logger.Info("no chain signing key configured, direct approvals disabled")
		caller, err = chain.NewCaller(cfg.Chain)
	}
	if err != nil {
		logger.Fatal("chain RPC connect failed", zap.Error(err))
	}
	defer caller.Close()

	relayHTTP := &http.Client{Timeout: cfg.Relayer.Timeout}
	relayExec := &relayer.Executor{
		Client:         relayer.NewClient(relayHTTP, cfg.Relayer.URL),
		Logger:         logger,
		ChainID:        cfg.Chain.ChainID,
		TxType:         cfg.Relayer.TxType,
		SessionTTL:     cfg.Relayer.SessionTTL,
		DeployPollTick: cfg.Relayer.DeployPollTick,
		DeployWaitMax:  cfg.Relayer.DeployWaitMax,
	}

	resolver := &proxywallet.Resolver{
		Factory:      common.HexToAddress(cfg.Chain.ProxyFactory),
		InitCodeHash: common.HexToHash(cfg.Chain.ProxyInitCodeHash),
		Chain:        caller,
		Deployer:     &relayDeployer{exec: relayExec},
		Repo:         store,
		Logger:       logger,
	}

	engine := &approvals.Engine{
		Chain:    caller,
		Resolver: resolver,
		Relay:    &relayBatcher{exec: relayExec},
		Logger:   logger,
	}

	store2 := session.NewCookieStore(cfg.Session.CookieName, cfg.Session.EncryptionKey, cfg.Session.CookieSecure, cfg.Session.TTL)
	if !store2.Configured() {
		logger.Warn("session encryption key missing, auth endpoints will refuse requests")
	}
	authenticator := &session.Authenticator{Exchange: exchange, Logger: logger}

	var builderSigner clob.BuilderSigner
	if cfg.Builder.Secret != "" {
		builderSigner = &clob.HMACBuilder{
			Name:   cfg.Builder.Name,
			APIKey: cfg.Builder.APIKey,
			Secret: cfg.Builder.Secret,
		}
	}

	policy := clob.DefaultRetryPolicy()
	if cfg.Exchange.SubmitAttempts > 0 {
		policy.Attempts = cfg.Exchange.SubmitAttempts
	}
	if cfg.Exchange.SubmitTimeout > 0 {
		policy.AttemptTimeout = cfg.Exchange.SubmitTimeout
	}
	policy.OnRetry = func(int) { metrics.SubmitRetries.Inc() }

	submission := &service.Submission{
		Exchange: exchange,
		Repo:     store,
		Logger:   logger,
		Builder:  builderSigner,
		Policy:   policy,
	}
	allowance := &service.Allowance{
		Engine:   engine,
		Resolver: resolver,
		Logger:   logger,
	}
	quote := &service.Quote{Exchange: exchange, Logger: logger}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.CORS(cfg.Server.CORSOrigins))
	router.Use(handler.RejectSpoofedAuthHeaders())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(router)
	authHandler := &handler.AuthHandler{Store: store2, Auth: authenticator, Logger: logger}
	authHandler.Register(router)
	orderHandler := &handler.OrderHandler{Store: store2, Submission: submission, Logger: logger}
	orderHandler.Register(router)
	ordersListHandler := &handler.OrdersListHandler{Repo: store, Logger: logger}
	ordersListHandler.Register(router)
	allowanceHandler := &handler.AllowanceHandler{Store: store2, Allowance: allowance}
	allowanceHandler.Register(router)
	relayerHandler := &handler.RelayerHandler{Store: store2, Resolver: resolver, Logger: logger}
	relayerHandler.Register(router)
	bookHandler := &handler.BookHandler{Books: books, Logger: logger}
	bookHandler.Register(router)
	quoteHandler := &handler.QuoteHandler{Quote: quote}
	quoteHandler.Register(router)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		_, err = cronRunner.Add(cfg.Cron.CacheSweep, func(context.Context) {
			resolver.Sweep()
			relayExec.Sweep()
		})
		if err != nil {
			logger.Warn("cron register cache sweep failed", zap.Error(err))
		}
		_, err = cronRunner.Add(cfg.Cron.JournalSweep, func(jobCtx context.Context) {
			submission.SweepStaleJournal(jobCtx, time.Hour)
		})
		if err != nil {
			logger.Warn("cron register journal sweep failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// relayDeployer adapts the relay executor to the resolver's deploy contract.
type relayDeployer struct {
	exec *relayer.Executor
}

func (d *relayDeployer) Deploy(ctx context.Context, owner, proxy string) error {
	_, err := d.exec.Deploy(ctx, owner, proxy)
	return err
}

// relayBatcher adapts the relay executor to the approval engine's contract.
type relayBatcher struct {
	exec *relayer.Executor
}

func (b *relayBatcher) Execute(ctx context.Context, owner, proxyWallet string, calls []chain.Call, metadata map[string]any) error {
	_, err := b.exec.Execute(ctx, owner, proxyWallet, calls, metadata)
	return err
}
