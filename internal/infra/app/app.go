package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dmflow/auth-service/internal/core/port"
	"github.com/dmflow/auth-service/internal/infra/config"
	"github.com/dmflow/auth-service/internal/infra/database"
	kafkainfra "github.com/dmflow/auth-service/internal/infra/kafka"
	"github.com/dmflow/auth-service/internal/infra/logger"
	"github.com/dmflow/auth-service/internal/infra/mailer"
	redisinfra "github.com/dmflow/auth-service/internal/infra/redis"
	"github.com/dmflow/auth-service/internal/infra/security"
	"github.com/dmflow/auth-service/internal/infra/telemetry"
	"github.com/dmflow/auth-service/internal/repository/memory"
	postgresrepo "github.com/dmflow/auth-service/internal/repository/postgres"
	redisrepo "github.com/dmflow/auth-service/internal/repository/redis"
	"github.com/dmflow/auth-service/internal/transport/http/routes"
	"github.com/dmflow/auth-service/internal/usecase"
)

type Application struct {
	cfg     *config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	closers []func() error
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	// First in, so it closes last and still sees spans from the other dependencies.
	a.closers = append(a.closers, func() error {
		return tracer.Shutdown(context.Background())
	})

	accounts, readiness, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	sender, err := a.openEmailSender()
	if err != nil {
		a.close()
		return nil, err
	}

	hasher, err := security.NewPasswordHasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	tokens, err := security.NewSessionTokenIssuer(cfg.JWT.Secret, cfg.JWT.TTL)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	metrics, err := telemetry.NewAuthMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	authService := usecase.NewAuthService(accounts, hasher, security.OTPGenerator{}, sender, tokens).
		WithLogger(log).
		WithMetrics(metrics)

	engine, err := routes.Register(routes.Dependencies{
		Config:    cfg,
		Logger:    log,
		Auth:      authService,
		Readiness: readiness,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("register routes: %w", err)
	}
	a.engine = engine

	return a, nil
}

// openStore connects the credential store selected by store.driver.
func (a *Application) openStore(ctx context.Context) (port.AccountRepository, map[string]routes.Pinger, error) {
	cfg := a.cfg

	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		if cfg.Store.AutoMigrate {
			if err := database.Migrate(ctx, cfg.Postgres.DSN(), a.logger); err != nil {
				return nil, nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres: %w", err)
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		return postgresrepo.NewAccountRepository(pool), map[string]routes.Pinger{"postgres": pool}, nil

	case config.StoreDriverRedis:
		client, err := redisinfra.NewClient(ctx, cfg.Redis, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return redisrepo.NewAccountRepository(client.Redis(), cfg.Store.RedisKeySpace), map[string]routes.Pinger{"redis": client}, nil

	case config.StoreDriverMemory:
		a.logger.Warn("using in-memory credential store; accounts are lost on restart")
		repo := memory.NewAccountRepository()
		return repo, map[string]routes.Pinger{"memory": repo}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// openEmailSender builds the OTP delivery transport selected by email.transport.
func (a *Application) openEmailSender() (port.EmailSender, error) {
	cfg := a.cfg

	switch transport := cfg.Email.ResolvedTransport(); transport {
	case config.EmailTransportSMTP:
		a.logger.Info("otp delivery via smtp", zap.String("host", cfg.Email.Host))
		return mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			User:     cfg.Email.User,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		}, a.logger), nil

	case config.EmailTransportKafka:
		producer, err := kafkainfra.NewProducer(cfg.Kafka, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init kafka producer: %w", err)
		}
		a.closers = append(a.closers, producer.Close)
		a.logger.Info("otp delivery via kafka", zap.Strings("brokers", cfg.Kafka.Brokers))
		return kafkainfra.NewOTPDeliveryPublisher(producer, cfg.App, a.logger), nil

	case config.EmailTransportLog:
		a.logger.Warn("email credentials not configured; otp codes are written to the log")
		return mailer.NewLogSender(a.logger).WithMaskedCodes(cfg.App.Env == "production"), nil

	default:
		return nil, fmt.Errorf("unknown email transport %q", transport)
	}
}

func (a *Application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close dependency", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       a.cfg.HTTP.ReadTimeout,
		WriteTimeout:      a.cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("store", a.cfg.Store.Driver),
		zap.String("email_transport", a.cfg.Email.ResolvedTransport()),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		timeout := a.cfg.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		a.logger.Info("server stopped")
		return nil
	case err := <-serverErrCh:
		return err
	}
}
