package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/wyxpro/CubeAI-FlowDecompose/analyzer"
	"github.com/wyxpro/CubeAI-FlowDecompose/api/handlers"
	"github.com/wyxpro/CubeAI-FlowDecompose/config"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/cache"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/database"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/metrics"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/migration"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/server"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/telemetry"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/tlsutil"
	"github.com/wyxpro/CubeAI-FlowDecompose/media"
	"github.com/wyxpro/CubeAI-FlowDecompose/motion"
	"github.com/wyxpro/CubeAI-FlowDecompose/pipeline"
	"github.com/wyxpro/CubeAI-FlowDecompose/store"
	"github.com/wyxpro/CubeAI-FlowDecompose/terminology"
)

// dbStatsInterval 连接池指标上报间隔
const dbStatsInterval = 15 * time.Second

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 持有服务运行期的全部组件，负责按依赖顺序启动和反向关闭
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel

	otel *telemetry.Providers

	// 存储
	db    *database.PoolManager
	cache *cache.Manager
	store store.JobStore

	// 业务组件
	workspace  *media.Workspace
	terms      *terminology.Catalogue
	dispatcher *pipeline.Dispatcher
	motion     *motion.Service
	collector  *metrics.Collector

	// Handlers
	healthHandler      *handlers.HealthHandler
	jobHandler         *handlers.JobHandler
	streamHandler      *handlers.StreamHandler
	motionHandler      *handlers.MotionHandler
	terminologyHandler *handlers.TerminologyHandler

	servers *server.Group
	watcher *config.Watcher

	// 后台 goroutine（限流清理、连接池指标、配置监听）的生命周期
	bgCancel context.CancelFunc
}

// NewServer 创建服务器；configPath 非空时启用配置热更新
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		level:      level,
		otel:       otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Run 启动所有组件并阻塞到 ctx 结束或服务器异常退出，随后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if err := s.Start(bgCtx); err != nil {
		s.Shutdown()
		return err
	}

	err := s.servers.Wait(ctx)
	if err != nil {
		s.logger.Error("server exited unexpectedly", zap.Error(err))
	}
	s.Shutdown()
	return err
}

// Start 按依赖顺序初始化组件并启动 HTTP 与 metrics 服务器
func (s *Server) Start(ctx context.Context) error {
	if s.bgCancel == nil {
		ctx, s.bgCancel = context.WithCancel(ctx)
	}

	// 1. 指标收集器
	s.collector = metrics.NewCollector("flowdecompose", s.logger)

	// 2. 数据库、缓存与任务存储
	if err := s.initStorage(ctx); err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}

	// 3. 分析流水线
	if err := s.initPipeline(); err != nil {
		return fmt.Errorf("failed to init pipeline: %w", err)
	}

	// 4. Handlers
	s.initHandlers()

	// 5. 配置热更新
	if err := s.initWatcher(ctx); err != nil {
		return fmt.Errorf("failed to init config watcher: %w", err)
	}

	// 6. HTTP 与 Metrics 服务器
	if err := s.startServers(ctx); err != nil {
		return fmt.Errorf("failed to start servers: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("store", string(s.storeType())),
		zap.String("auth", describeAuth(s.cfg.Server)),
		zap.Bool("hot_reload_enabled", s.watcher != nil),
	)
	return nil
}

// =============================================================================
// 🗄️ 存储
// =============================================================================

func (s *Server) storeType() store.Type {
	if s.cfg.Storage.Backend == "" {
		return store.TypeMemory
	}
	return store.Type(s.cfg.Storage.Backend)
}

// initStorage 打开数据库（database 后端）与 Redis（redis 后端或分析缓存），再创建 JobStore
func (s *Server) initStorage(ctx context.Context) error {
	backends := store.Backends{Logger: s.logger}

	if s.storeType() == store.TypeDatabase {
		if s.cfg.Database.AutoMigrate {
			if err := s.runMigrations(ctx); err != nil {
				return err
			}
		}
		pm, err := database.Open(s.cfg.Database, s.logger)
		if err != nil {
			return err
		}
		s.db = pm
		backends.DB = pm.DB()
		go s.reportDBStats(ctx)
	}

	if s.storeType() == store.TypeRedis || s.cfg.Analyzer.CacheEnabled {
		cm, err := cache.NewManager(cacheConfig(s.cfg), s.logger)
		if err != nil {
			if s.storeType() == store.TypeRedis {
				return err
			}
			// 缓存只是优化，连接失败时关闭缓存继续启动
			s.logger.Warn("Redis not available, analyzer cache disabled", zap.Error(err))
		} else {
			s.cache = cm
			backends.Redis = cm.Client()
		}
	}

	st, err := store.New(store.Config{Type: s.storeType(), KeyPrefix: s.cfg.Storage.KeyPrefix}, backends)
	if err != nil {
		return err
	}
	s.store = st
	s.logger.Info("Job store initialized", zap.String("type", string(s.storeType())))
	return nil
}

// runMigrations 启动时执行版本化迁移
func (s *Server) runMigrations(ctx context.Context) error {
	m, err := migration.NewMigratorFromDatabaseConfig(s.cfg.Database, s.logger)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	version, dirty, err := m.Version(ctx)
	if err == nil {
		s.logger.Info("Database migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}

func (s *Server) reportDBStats(ctx context.Context) {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.db.GetStats()
			s.collector.RecordDBConnections(s.cfg.Database.Driver, stats.OpenConnections, stats.Idle)
		}
	}
}

// =============================================================================
// 🎬 流水线
// =============================================================================

// initPipeline 组装 ffmpeg、下载、分析器、调度器与虚拟运镜服务
func (s *Server) initPipeline() error {
	s.workspace = media.NewWorkspace(s.cfg.Pipeline.DataDir)
	s.terms = terminology.Default()

	ff := media.NewFFmpeg(media.Config{
		FFmpegBin:  s.cfg.Pipeline.FFmpegBin,
		FFprobeBin: s.cfg.Pipeline.FFprobeBin,
	}, nil, s.logger)

	var downloadClient *http.Client
	if s.cfg.Pipeline.DownloadTimeout > 0 {
		downloadClient = tlsutil.DownloadClient(s.cfg.Pipeline.DownloadTimeout)
	}
	ingestor := media.NewIngestor(s.workspace, ff, downloadClient, s.logger)

	opts := []analyzer.Option{
		analyzer.WithRecorder(s.collector),
		analyzer.WithTerminology(s.terms),
	}
	if s.cache != nil {
		opts = append(opts, analyzer.WithCache(s.cache))
	}
	an := analyzer.NewClient(analyzer.Config{
		BaseURL:       s.cfg.Analyzer.BaseURL,
		APIKey:        s.cfg.Analyzer.APIKey,
		Model:         s.cfg.Analyzer.Model,
		Timeout:       s.cfg.Analyzer.Timeout,
		CacheTTL:      s.cfg.Analyzer.CacheTTL,
		TokenEncoding: s.cfg.Analyzer.TokenEncoding,
	}, s.logger, opts...)
	if s.cfg.Analyzer.APIKey == "" {
		s.logger.Warn("Analyzer API key not configured, feature analysis requests will be rejected upstream")
	}

	// Prometheus 与 OTLP 并行记录；遥测关闭时 OTel 仪表为空操作
	var recorder pipeline.Recorder = s.collector
	if otelMetrics, err := telemetry.NewPipelineMetrics(nil); err != nil {
		s.logger.Warn("OTel pipeline metrics unavailable", zap.Error(err))
	} else {
		recorder = pipeline.MultiRecorder(s.collector, otelMetrics)
	}

	dispatcher, err := pipeline.NewDispatcher(pipeline.Deps{
		Store:     s.store,
		Workspace: s.workspace,
		Ingestor:  ingestor,
		Frames:    ff,
		Scenes:    ff,
		Analyzer:  an,
		Metrics:   recorder,
		Tracer:    otel.Tracer(telemetry.ScopePipeline),
		Logger:    s.logger,
	})
	if err != nil {
		return err
	}
	s.dispatcher = dispatcher

	renderer := motion.NewClient(motion.Config{
		BaseURL:    s.cfg.Motion.BaseURL,
		APIKey:     s.cfg.Motion.APIKey,
		Model:      s.cfg.Motion.Model,
		Timeout:    s.cfg.Motion.Timeout,
		MaxRetries: s.cfg.Motion.MaxRetries,
		RetryDelay: s.cfg.Motion.RetryDelay,
	}, nil, s.logger)
	s.motion = motion.NewService(s.store, renderer, s.workspace, s.collector, s.logger)

	s.logger.Info("Pipeline initialized",
		zap.String("data_dir", s.workspace.Root()),
		zap.String("analyzer_model", an.Model()),
		zap.Bool("analyzer_cache", s.cache != nil),
		zap.Bool("motion_mock", renderer.Mock()),
	)
	return nil
}

// =============================================================================
// 🔧 Handlers
// =============================================================================

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(Version, s.logger)
	s.healthHandler.RegisterCheck(handlers.NewStoreHealthCheck(s.store.Ping))
	if s.db != nil {
		s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck(s.db.Ping))
	}
	if s.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck(s.cache.Ping))
	}

	s.jobHandler = handlers.NewJobHandler(s.store, s.dispatcher, s.logger)
	s.streamHandler = handlers.NewStreamHandler(s.store, s.cfg.Server.StreamInterval, s.cfg.Server.CORSAllowedOrigins, s.logger)
	s.motionHandler = handlers.NewMotionHandler(s.motion, s.logger)
	s.terminologyHandler = handlers.NewTerminologyHandler(s.terms, s.logger)

	s.logger.Info("Handlers initialized")
}

// routes 注册 API 路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 视频分析任务
	mux.HandleFunc("POST /v1/video-analysis/jobs", s.jobHandler.HandleSubmit)
	mux.HandleFunc("GET /v1/video-analysis/jobs", s.jobHandler.HandleList)
	mux.HandleFunc("GET /v1/video-analysis/jobs/{job_id}", s.jobHandler.HandleGet)
	mux.HandleFunc("GET /v1/video-analysis/jobs/{job_id}/stream", s.streamHandler.HandleStream)

	// 虚拟运镜
	mux.HandleFunc("POST /v1/video-analysis/virtual-motion/jobs", s.motionHandler.HandleCreate)
	mux.HandleFunc("GET /v1/video-analysis/virtual-motion/jobs/{subtask_id}", s.motionHandler.HandleGet)

	// 镜头术语
	mux.HandleFunc("GET /v1/terminology/shots", s.terminologyHandler.HandleShots)
	mux.HandleFunc("GET /v1/terminology/shots/list", s.terminologyHandler.HandleList)
	mux.HandleFunc("GET /v1/terminology/shots/{key}", s.terminologyHandler.HandleDetail)
	mux.HandleFunc("GET /v1/terminology/shots/translate/{key}", s.terminologyHandler.HandleTranslate)

	return mux
}

// handler 构建带中间件链的根 handler
func (s *Server) handler(ctx context.Context) http.Handler {
	return Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		Auth(s.cfg.Server, publicPaths, s.logger),
	)
}

// =============================================================================
// 🔄 配置热更新
// =============================================================================

// initWatcher 监听配置文件；日志级别即时生效，其余字段需要重启
func (s *Server) initWatcher(ctx context.Context) error {
	if s.configPath == "" {
		return nil
	}

	loader := config.NewLoader().WithConfigPath(s.configPath)
	w, err := config.NewWatcher(s.configPath, s.cfg, loader, config.WithWatcherLogger(s.logger))
	if err != nil {
		return err
	}
	w.OnReload(s.onConfigReload)
	if err := w.Start(ctx); err != nil {
		return err
	}
	s.watcher = w
	return nil
}

func (s *Server) onConfigReload(oldCfg, newCfg *config.Config) {
	if oldCfg.Log.Level != newCfg.Log.Level {
		s.level.SetLevel(parseLevel(newCfg.Log.Level))
		s.logger.Info("Log level changed",
			zap.String("from", oldCfg.Log.Level),
			zap.String("to", newCfg.Log.Level),
		)
	}
	if oldCfg.Server.HTTPPort != newCfg.Server.HTTPPort ||
		oldCfg.Storage.Backend != newCfg.Storage.Backend ||
		oldCfg.Database.DSN() != newCfg.Database.DSN() {
		s.logger.Warn("Configuration change requires restart to take effect")
	}
}

// =============================================================================
// 🌐 HTTP 与 Metrics 服务器
// =============================================================================

func (s *Server) startServers(ctx context.Context) error {
	idle := s.cfg.Server.IdleTimeout
	if idle == 0 {
		idle = 2 * s.cfg.Server.ReadTimeout
	}

	api := server.NewManager(s.handler(ctx), server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     idle,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.Handler())
	metricsServer := server.NewManager(metricsMux, server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	s.servers = server.NewGroup(s.logger, api, metricsServer)
	return s.servers.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Shutdown 反向关闭：停止接收请求，等待运行中的任务，再关闭存储与遥测
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. 停止配置监听与后台 goroutine
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.bgCancel != nil {
		s.bgCancel()
	}

	// 2. 关闭 HTTP 与 Metrics 服务器
	if s.servers != nil {
		if err := s.servers.Shutdown(ctx); err != nil {
			s.logger.Error("Server shutdown error", zap.Error(err))
		}
	}

	// 3. 等待运行中的任务与虚拟运镜子任务
	if s.dispatcher != nil {
		if err := s.dispatcher.Shutdown(ctx); err != nil {
			s.logger.Warn("Jobs still running at shutdown", zap.Error(err))
		}
	}
	if s.motion != nil {
		if err := s.motion.Shutdown(ctx); err != nil {
			s.logger.Warn("Virtual motion jobs still running at shutdown", zap.Error(err))
		}
	}

	// 4. 关闭存储
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("Storage shutdown error", zap.Error(err))
	}

	// 5. 刷新遥测数据
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
