package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/pharmatrace/internal/access"
	"github.com/iliyamo/pharmatrace/internal/audit"
	"github.com/iliyamo/pharmatrace/internal/auth"
	"github.com/iliyamo/pharmatrace/internal/config"
	"github.com/iliyamo/pharmatrace/internal/database"
	"github.com/iliyamo/pharmatrace/internal/document"
	"github.com/iliyamo/pharmatrace/internal/handler"
	"github.com/iliyamo/pharmatrace/internal/integrity"
	"github.com/iliyamo/pharmatrace/internal/ledger"
	"github.com/iliyamo/pharmatrace/internal/logger"
	"github.com/iliyamo/pharmatrace/internal/middleware"
	"github.com/iliyamo/pharmatrace/internal/queue"
	"github.com/iliyamo/pharmatrace/internal/repository"
	"github.com/iliyamo/pharmatrace/internal/router"
	"github.com/iliyamo/pharmatrace/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	log.Info("starting", zap.String("env", cfg.App.Env), zap.String("ledger", cfg.Ledger.Backend),
		zap.String("storage", cfg.Storage.Backend))

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("mysql: %w", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("mysql migrate: %w", err)
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	} else if cfg.Redis.Enabled {
		log.Warn("redis unreachable; using in-process revocation, cache and rate limits", zap.String("addr", cfg.Redis.Addr))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client, err := ledger.NewClient(ctx, cfg.Ledger)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	gw := ledger.NewGateway(client, ledger.Options{
		CallTimeout: cfg.Ledger.CallTimeout,
		ReadRetries: cfg.Ledger.ReadRetries,
		ReadBackoff: cfg.Ledger.ReadBackoff,
		GasLimit:    cfg.Ledger.GasLimit,
		Admins:      cfg.App.Admins,
	}, ledger.NewMetrics(reg), log)
	defer gw.Close()
	if err := gw.Ping(ctx); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	log.Info("ledger connected", zap.String("signer", client.Signer()))

	docs, err := document.NewStore(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("document store: %w", err)
	}

	auditRepo := repository.NewAuditRepo(db)
	sinks := audit.MultiSink{audit.NewLogSink(log)}
	var (
		custody   service.CustodyPublisher
		publisher *queue.Publisher
	)
	if cfg.AMQP.Enabled {
		publisher, err = queue.NewPublisher(cfg.AMQP, log)
		if err != nil {
			return fmt.Errorf("amqp: %w", err)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
		custody = publisher
	} else {
		sinks = append(sinks, auditRepo)
	}

	var (
		revocations  auth.RevocationStore = auth.NewMemoryRevocationStore()
		profileCache auth.ProfileCache    = auth.NewMemoryProfileCache()
	)
	if rdb != nil {
		revocations = auth.NewRedisRevocationStore(rdb)
		profileCache = auth.NewRedisProfileCache(rdb)
	}
	tokens := auth.NewManager(cfg.JWT, revocations, log)
	profiles := auth.NewProfiles(profileCache, gw, cfg.Auth.ProfileTTL, log)

	policy, err := access.LoadPolicy(cfg.Access.PolicyFile)
	if err != nil {
		return err
	}
	guard := access.NewGuard(policy, profiles, sinks, log)
	engine := integrity.NewEngine(cfg.Integrity, cfg.App.PublicBaseURL, log)

	accounts := repository.NewAccountRepo(db, cfg.Auth.BcryptCost)
	authSvc := service.NewAuthService(accounts, gw, profiles, tokens, log)
	if err := authSvc.Bootstrap(ctx, cfg.Auth.Bootstrap); err != nil {
		return fmt.Errorf("bootstrap regulator: %w", err)
	}
	stakeholders := service.NewStakeholderService(accounts, gw, profiles, engine, log)
	batches := service.NewBatchService(gw, engine, custody, log)

	health := service.NewHealth(2*time.Second, log)
	health.Add("ledger", gw.Ping)
	health.Add("mysql", db.PingContext)
	health.Add("documents", docs.Ping)
	if rdb != nil {
		health.Add("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	if publisher != nil {
		health.Add("amqp", publisher.Ping)
	}
	ops := handler.NewOpsHandler(health, gw)

	e := router.New(log)
	ch := router.Chain{
		Authn: middleware.Authenticate(tokens),
		Guard: guard,
		Limit: middleware.NewTokenBucket(cfg.RateLimit, rdb, log),
		Cache: middleware.NewRedisCache(cfg.Cache, rdb, log),
	}
	router.RegisterRoutes(e, ops, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	router.RegisterAuth(e, handler.NewAuthHandler(authSvc, stakeholders), ch)
	router.RegisterBatches(e, handler.NewBatchHandler(batches), handler.NewDocumentHandler(docs), ch)
	router.RegisterVerify(e, handler.NewVerifyHandler(batches), ch)
	router.RegisterStakeholders(e, handler.NewStakeholderHandler(stakeholders), ch)
	router.RegisterOps(e, ops, handler.NewAuditHandler(auditRepo), ch)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.AMQP.Enabled {
		consumer := queue.NewAuditConsumer(cfg.AMQP.URL, cfg.AMQP.AuditQueue, auditRepo, log)
		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		addr := ":" + cfg.App.Port
		log.Info("listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})
	return g.Wait()
}
