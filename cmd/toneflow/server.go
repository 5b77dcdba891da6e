package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/toneflow/api/handlers"
	"github.com/BaSui01/toneflow/cache"
	"github.com/BaSui01/toneflow/config"
	"github.com/BaSui01/toneflow/internal/metrics"
	"github.com/BaSui01/toneflow/internal/server"
	"github.com/BaSui01/toneflow/providers"
	"github.com/BaSui01/toneflow/providers/groq"
	"github.com/BaSui01/toneflow/tone"
)

// =============================================================================
// 🏗️ 服务器组装
// =============================================================================

// Server 组装后的完整服务
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      cache.Store
	service    *tone.Service
	httpSrv    *server.Manager
	metricsSrv *server.Manager
	bgCtx      context.Context
	bgStop     context.CancelFunc
}

// NewServer 按配置组装存储、上游与 HTTP 服务
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	store, pingStore, err := openStore(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}

	// Prometheus 指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 上游 provider
	provider := groq.NewGroqProvider(providers.GroqConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)

	// 编排服务
	service := tone.NewService(store, provider, tone.Options{
		Model:          cfg.LLM.Model,
		TTL:            cfg.Cache.TTL,
		MaxTokens:      cfg.LLM.MaxTokens,
		MaxInputTokens: cfg.LLM.MaxInputTokens,
		Recorder:       collector,
	}, logger)

	// 路由
	healthHandler := handlers.NewHealthHandler(logger)
	healthHandler.RegisterCheck(handlers.NewPingHealthCheck("cache_store", pingStore))
	healthHandler.RegisterCheck(handlers.NewPingHealthCheck("upstream", func(ctx context.Context) error {
		_, err := provider.HealthCheck(ctx)
		return err
	}))

	toneHandler := handlers.NewToneHandler(service, logger)

	mux := http.NewServeMux()
	toneHandler.RegisterRoutes(mux)
	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", healthHandler.HandleReady)
	mux.HandleFunc("GET /version", healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 中间件链（外层在前）；bgCtx 同时约束限流清理与后台清扫
	bgCtx, bgStop := context.WithCancel(context.Background())
	chain := []Middleware{
		Recovery(logger),
		RequestID(),
		SecurityHeaders(),
		CORS(cfg.Server.CORSAllowedOrigins),
	}
	if cfg.Server.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(bgCtx, float64(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst))
	}
	chain = append(chain,
		JWTIdentity(cfg.Auth, logger),
		MetricsMiddleware(collector),
		RequestLogger(logger),
	)
	handler := Chain(mux, chain...)

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	srvCfg.ReadTimeout = cfg.Server.ReadTimeout
	srvCfg.WriteTimeout = cfg.Server.WriteTimeout
	srvCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	httpSrv := server.NewManager(handler, srvCfg, logger)

	// 独立端口暴露 /metrics
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsCfg := server.DefaultConfig()
	metricsCfg.Addr = fmt.Sprintf(":%d", cfg.Server.MetricsPort)
	metricsSrv := server.NewManager(metricsMux, metricsCfg, logger)

	return &Server{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		service:    service,
		httpSrv:    httpSrv,
		metricsSrv: metricsSrv,
		bgCtx:      bgCtx,
		bgStop:     bgStop,
	}, nil
}

// Start 启动 HTTP 服务、指标服务与后台清扫
func (s *Server) Start() error {
	if err := s.httpSrv.Start(); err != nil {
		return err
	}
	if err := s.metricsSrv.Start(); err != nil {
		return err
	}

	if s.cfg.Cache.SweepInterval > 0 {
		go s.runSweeper()
	}
	return nil
}

// runSweeper 周期性清理过期缓存条目
func (s *Server) runSweeper() {
	ticker := time.NewTicker(s.cfg.Cache.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			removed, err := s.service.SweepExpired(ctx)
			cancel()
			if err != nil {
				s.logger.Warn("background sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				s.logger.Info("background sweep done", zap.Int64("removed", removed))
			}
		case <-s.bgCtx.Done():
			return
		}
	}
}

// WaitForShutdown 阻塞等待退出信号并优雅收尾
func (s *Server) WaitForShutdown() {
	s.httpSrv.WaitForShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.bgStop()
	if err := s.metricsSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("metrics server shutdown failed", zap.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("cache store close failed", zap.Error(err))
	}
}

// =============================================================================
// 💾 存储驱动装配
// =============================================================================

// openStore 按配置打开缓存存储，返回存储实例与就绪探测函数
func openStore(cfg config.CacheConfig, logger *zap.Logger) (cache.Store, func(ctx context.Context) error, error) {
	switch cfg.Driver {
	case "gorm":
		return openGormStore(cfg.Database, logger)

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return cache.NewRedisStore(client, logger), ping, nil

	case "mongo":
		client, err := mongo.Connect(mongoopts.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		store := cache.NewMongoStore(client, cfg.Mongo.Database, cfg.Mongo.Collection, logger)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.EnsureIndexes(ctx); err != nil {
			logger.Warn("failed to ensure mongodb indexes", zap.Error(err))
		}

		ping := func(ctx context.Context) error { return client.Ping(ctx, nil) }
		return store, ping, nil

	case "memory":
		return cache.NewMemoryStore(), func(context.Context) error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache driver: %s", cfg.Driver)
	}
}

func openGormStore(cfg config.DatabaseConfig, logger *zap.Logger) (cache.Store, func(ctx context.Context) error, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := cache.NewGormStore(db, logger)
	if err := store.AutoMigrate(); err != nil {
		return nil, nil, err
	}

	ping := func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	return store, ping, nil
}
