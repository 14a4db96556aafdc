package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xboybx/Authentication-System/internal/audit"
	auditrepo "github.com/xboybx/Authentication-System/internal/audit/repository"
	"github.com/xboybx/Authentication-System/internal/config"
	"github.com/xboybx/Authentication-System/internal/db"
	"github.com/xboybx/Authentication-System/internal/db/migrate"
	healthhandler "github.com/xboybx/Authentication-System/internal/health/handler"
	"github.com/xboybx/Authentication-System/internal/identity/service"
	"github.com/xboybx/Authentication-System/internal/logging"
	"github.com/xboybx/Authentication-System/internal/policy/engine"
	"github.com/xboybx/Authentication-System/internal/security"
	"github.com/xboybx/Authentication-System/internal/server"
	"github.com/xboybx/Authentication-System/internal/server/middleware"
	sessionrepo "github.com/xboybx/Authentication-System/internal/session/repository"
	"github.com/xboybx/Authentication-System/internal/session/retention"
	"github.com/xboybx/Authentication-System/internal/telemetry"
	telemetryotel "github.com/xboybx/Authentication-System/internal/telemetry/otel"
	"github.com/xboybx/Authentication-System/internal/telemetry/producer"
	userrepo "github.com/xboybx/Authentication-System/internal/user/repository"
)

const shutdownTimeout = 10 * time.Second

// sessionStore is what the service and the sweeper need from either backend.
type sessionStore interface {
	service.SessionRepo
	retention.Purger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	if err := cfg.ValidateSecrets(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Insecure:    cfg.OTelInsecure,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Warn("otel shutdown", zap.Error(err))
		}
	}()

	if err := migrate.Run(cfg.DatabaseDriver, cfg.DatabaseURL, "up"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	conn, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer conn.Close()

	policy, err := engine.NewOPAEvaluator(ctx, "")
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	health := healthhandler.NewServer(conn, policy)

	var sessions sessionStore
	switch cfg.SessionStore {
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		sessions = sessionrepo.NewRedisRepository(rdb, cfg.RedisKeyPrefix)
		health.AddCheck("redis", healthhandler.PingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }))
	default:
		sessions = sessionrepo.NewSQLRepository(conn)
	}

	accessKey, err := security.ParseSigningKey(cfg.AccessTokenSecret)
	if err != nil {
		return fmt.Errorf("ACCESS_TOKEN_SECRET: %w", err)
	}
	refreshKey, err := security.ParseSigningKey(cfg.RefreshTokenSecret)
	if err != nil {
		return fmt.Errorf("REFRESH_TOKEN_SECRET: %w", err)
	}
	codec, err := security.NewTokenCodec(accessKey, refreshKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		return err
	}

	svc := service.NewAuthService(userrepo.NewSQLRepository(conn), sessions, security.NewHasher(cfg.BcryptCost), codec, log)
	svc.SetAuditLogger(audit.NewLogger(auditrepo.NewSQLRepository(conn), middleware.ClientIP, log))

	kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.SessionEventsTopic)
	if err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			log.Warn("kafka producer close", zap.Error(err))
		}
	}()
	if kafkaProducer != nil {
		log.Info("session events streaming to kafka", zap.String("topic", kafkaProducer.Topic()))
	}
	svc.SetEventEmitter(telemetry.Multi(telemetryotel.NewEventEmitter(providers.LoggerProvider), kafkaProducer))

	sweeper := retention.NewSweeper(sessions, cfg.SweepEvery(), log)
	svc.SetPurger(sweeper)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.Deps{
			Auth:           svc,
			Policy:         policy,
			Health:         health,
			Logger:         log,
			CORSOrigins:    cfg.CORSOrigins(),
			RequestTimeout: cfg.RequestTimeoutDuration(),
		}),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	grpcSrv := server.NewGRPCServer(health)
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		go func() {
			log.Info("grpc health server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	// Let in-flight async events finish before the emitters close.
	time.Sleep(telemetry.ShutdownDrainDuration)
	log.Info("server stopped")
	return nil
}
