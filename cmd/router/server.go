package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/acme-corp/enterprise-tool-router/api/handlers"
	"github.com/acme-corp/enterprise-tool-router/config"
	"github.com/acme-corp/enterprise-tool-router/internal/audit"
	"github.com/acme-corp/enterprise-tool-router/internal/breaker"
	"github.com/acme-corp/enterprise-tool-router/internal/database"
	"github.com/acme-corp/enterprise-tool-router/internal/dispatcher"
	"github.com/acme-corp/enterprise-tool-router/internal/llmplan"
	"github.com/acme-corp/enterprise-tool-router/internal/metrics"
	"github.com/acme-corp/enterprise-tool-router/internal/plancache"
	"github.com/acme-corp/enterprise-tool-router/internal/planhistory"
	"github.com/acme-corp/enterprise-tool-router/internal/planner"
	"github.com/acme-corp/enterprise-tool-router/internal/ratelimit"
	"github.com/acme-corp/enterprise-tool-router/internal/server"
	"github.com/acme-corp/enterprise-tool-router/internal/sqltool"
	"github.com/acme-corp/enterprise-tool-router/internal/sqlvalidator"
)

// Server owns every component the router wires together (C1-C14) and
// the two HTTP listeners (app + metrics) that front them.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB

	httpManager    *server.Manager
	metricsManager *server.Manager

	pool          *database.PoolManager
	redisClient   *redis.Client
	healthHandler *handlers.HealthHandler
	queryHandler  *handlers.QueryHandler

	metricsCollector *metrics.Collector
	auditSink        *audit.Sink

	wg sync.WaitGroup
}

// NewServer builds a Server. db must already be open; Start wires
// every remaining component from cfg.
func NewServer(cfg *config.Config, logger *zap.Logger, db *gorm.DB) *Server {
	return &Server{cfg: cfg, logger: logger, db: db}
}

// Start wires C1-C14, runs schema migrations, and starts both
// listeners. It returns once both are accepting connections.
func (s *Server) Start() error {
	if err := s.initComponents(); err != nil {
		return fmt.Errorf("init components: %w", err)
	}
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

func (s *Server) initComponents() error {
	pool, err := database.NewPoolManager(s.db, database.DefaultPoolConfig(), s.logger)
	if err != nil {
		return fmt.Errorf("init db pool: %w", err)
	}
	s.pool = pool

	s.redisClient = openRedis(s.cfg.Redis, s.logger)

	s.metricsCollector = metrics.NewCollector("router", s.logger)
	pool.SetMetrics(s.metricsCollector)

	history := planhistory.New(pool)
	s.auditSink = audit.New(pool, s.logger)

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := history.Migrate(migrateCtx); err != nil {
		return fmt.Errorf("migrate query_history: %w", err)
	}
	if err := s.auditSink.Migrate(migrateCtx); err != nil {
		return fmt.Errorf("migrate audit_log: %w", err)
	}

	cache := plancache.New(context.Background(), plancache.Config{
		TTL:          time.Duration(s.cfg.Cache.TTLSeconds) * time.Second,
		MaxSizeBytes: s.cfg.Cache.MaxBytes,
	}, s.redisClient, s.logger)

	cb := breaker.New(breaker.Config{
		FailureThreshold: s.cfg.CircuitBreaker.FailureThreshold,
		Window:           time.Duration(s.cfg.CircuitBreaker.WindowSeconds) * time.Second,
		RecoveryTimeout:  time.Duration(s.cfg.CircuitBreaker.RecoverySeconds) * time.Second,
		OnStateChange: func(from, to breaker.State) {
			s.metricsCollector.RecordBreakerState("llm_provider", int(to))
			s.logger.Info("circuit breaker state changed",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}, s.logger)

	validator := sqlvalidator.New(sqlvalidator.DefaultConfig())

	var p *planner.Planner
	if s.cfg.LLM.BaseURL != "" && s.cfg.LLM.APIKey != "" {
		provider := llmplan.NewHTTPProvider(llmplan.Config{
			BaseURL: s.cfg.LLM.BaseURL,
			APIKey:  s.cfg.LLM.APIKey,
			Model:   s.cfg.LLM.Model,
			Timeout: s.cfg.LLM.Timeout,
		}, s.logger)
		p = planner.New(cache, history, cb, provider, validator, s.logger)
		p.SetMetrics(s.metricsCollector)
	} else {
		s.logger.Warn("llm.base_url or llm.api_key not configured, the SQL tool accepts raw SQL only")
	}

	sqlTool := sqltool.New(sqltool.Config{ConfidenceThreshold: s.cfg.Router.ConfidenceThreshold}, p, validator, s.db)

	limiter := ratelimit.New(ratelimit.Config{
		Enabled:     s.cfg.RateLimit.Enabled,
		MaxRequests: s.cfg.RateLimit.MaxRequests,
		Window:      time.Duration(s.cfg.RateLimit.WindowSeconds) * time.Second,
	}, s.redisClient, s.logger)

	retention := time.Duration(s.cfg.History.RetentionDays) * 24 * time.Hour

	d := dispatcher.New(
		dispatcher.NewSQLToolAdapter(sqlTool),
		dispatcher.StubTool{Name: "vector"},
		dispatcher.StubTool{Name: "rest"},
		limiter,
		s.metricsCollector,
		s.auditSink,
		s.cfg.LLM.Timeout,
		retention,
		s.logger,
	)

	s.queryHandler = handlers.NewQueryHandler(d, s.logger)

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("warehouse", s.pool.Ping))
	if s.redisClient != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("cache", func(ctx context.Context) error {
			return s.redisClient.Ping(ctx).Err()
		}))
	}

	s.logger.Info("components initialized")
	return nil
}

func openRedis(cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	if cfg.URL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		logger.Warn("invalid redis url, plan cache and rate limiter will degrade to in-process behavior", zap.Error(err))
		return nil
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, plan cache and rate limiter will degrade to in-process behavior", zap.Error(err))
		return nil
	}
	return client
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))
	mux.HandleFunc("/query", s.queryHandler.HandleQuery)

	ctx := context.Background()
	handler := Chain(mux,
		Recovery(s.logger),
		RequestLogger(s.logger),
		RequestID(),
		SecurityHeaders(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		IPRateLimiter(ctx, s.cfg.Server.IPRateLimitRPS, s.cfg.Server.IPRateLimitBurst,
			[]string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}, s.logger),
		MetricsMiddleware(s.metricsCollector),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("http server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until the HTTP manager receives a shutdown
// signal, then runs Shutdown.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown gracefully stops both listeners and closes the database pool.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown...")

	ctx := context.Background()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("db pool shutdown error", zap.Error(err))
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("redis client shutdown error", zap.Error(err))
		}
	}

	s.wg.Wait()
	s.logger.Info("graceful shutdown completed")
}
