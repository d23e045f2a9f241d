package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/releves-ma/si-releves/internal/anomaly"
	"github.com/releves-ma/si-releves/internal/auth"
	"github.com/releves-ma/si-releves/internal/config"
	"github.com/releves-ma/si-releves/internal/httpapi"
	"github.com/releves-ma/si-releves/internal/ingest"
	"github.com/releves-ma/si-releves/internal/mq"
	"github.com/releves-ma/si-releves/internal/session"
	"github.com/releves-ma/si-releves/internal/storage"
	"github.com/releves-ma/si-releves/internal/store"
	"github.com/releves-ma/si-releves/internal/validator"
)

// ProvideBackend selects the key-value backend from configuration.
func ProvideBackend(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "memory":
		logger.Info("using in-memory storage backend")
		return storage.NewMemory(), nil
	case "redis":
		return storage.NewRedis(lc, logger, cfg.Storage.RedisAddr, cfg.Storage.RedisPassword, cfg.Storage.RedisDB), nil
	case "postgres":
		return storage.NewPostgres(lc, logger, cfg.Storage.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// ProvideStore creates the data store and loads its tables on start.
func ProvideStore(lc fx.Lifecycle, backend storage.Backend, logger *zap.Logger, cfg *config.Config) *store.Store {
	st := store.New(backend, logger, cfg.API.SimulatedLatency)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return st.Init(ctx)
		},
	})
	return st
}

// ProvideJWTer creates the session token signer
func ProvideJWTer(cfg *config.Config) *auth.JWTer {
	return &auth.JWTer{
		Secret: []byte(cfg.Session.JWTSecret),
		Issuer: cfg.Session.JWTIssuer,
		TTL:    cfg.Session.TokenTTL,
	}
}

// ProvideSession creates the session store and restores persisted state on
// start.
func ProvideSession(lc fx.Lifecycle, backend storage.Backend, st *store.Store, j *auth.JWTer, logger *zap.Logger, cfg *config.Config) *session.Session {
	sess := session.New(backend, st, j, logger, cfg.Session.IdleTimeout)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sess.Initialize(ctx)
		},
	})
	return sess
}

// ProvideAnomalyDetector creates a new anomaly detector instance
func ProvideAnomalyDetector(cfg *config.Config) *anomaly.Detector {
	return anomaly.NewDetector(cfg.Anomaly.SpikeThreshold, cfg.Anomaly.MinDataPointsForDetection)
}

// ProvideValidator creates a new validator instance
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.TimestampToleranceMinutes)
}

// ProvideHandler creates the HTTP handler set
func ProvideHandler(st *store.Store, sess *session.Session, logger *zap.Logger) *httpapi.Handler {
	return httpapi.NewHandler(st, sess, logger)
}

// ProvideEngine builds the gin engine
func ProvideEngine(cfg *config.Config, h *httpapi.Handler, j *auth.JWTer, sess *session.Session, logger *zap.Logger) *gin.Engine {
	return httpapi.NewEngine(cfg, h, j, sess, logger)
}

// ProvideServer wraps the engine in an http.Server bound to the lifecycle
func ProvideServer(lc fx.Lifecycle, cfg *config.Config, engine *gin.Engine, logger *zap.Logger) *http.Server {
	return httpapi.NewServer(lc, cfg, engine, logger)
}

// registerHTTP forces construction of the HTTP server.
func registerHTTP(*http.Server) {}

// startSessionWatcher runs the inactivity poller for the lifetime of the app.
func startSessionWatcher(lc fx.Lifecycle, sess *session.Session, cfg *config.Config, logger *zap.Logger) {
	w := session.NewWatcher(sess, logger, cfg.Session.CheckInterval)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			w.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			w.Stop()
			return nil
		},
	})
}

// startIngest wires the RabbitMQ consumer when ingest is enabled. The
// connection, publisher and consumer are only created in that case.
func startIngest(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *zap.Logger,
	st *store.Store,
	detector *anomaly.Detector,
	v *validator.Validator,
) error {
	if !cfg.RabbitMQ.Enabled {
		logger.Info("reading ingest disabled, skipping RabbitMQ setup")
		return nil
	}

	conn, err := mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}

	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
	if err != nil {
		return err
	}

	svc := ingest.NewService(st, publisher, detector, v, cfg.RabbitMQ.EventsRoutingKey, logger)

	// Consumer context cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.IngestQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.IngestExchange,
		RoutingKey:    cfg.RabbitMQ.IngestRoutingKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       svc.ProcessMessage,
	})
	if err != nil {
		cancel()
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting ingest consumer",
				zap.String("queue", cfg.RabbitMQ.IngestQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			if err := publisher.Close(); err != nil {
				logger.Error("failed to close publisher", zap.Error(err))
				return err
			}
			logger.Info("ingest stopped gracefully")
			return nil
		},
	})

	return nil
}
