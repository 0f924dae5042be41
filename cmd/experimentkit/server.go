package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/api/handlers"
	"github.com/BaSui01/experimentkit/config"
	"github.com/BaSui01/experimentkit/internal/server"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs, g := newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync() //nolint:errcheck

	logger.Info("Starting ExperimentKit",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger, appOptions{
		exportMetrics: true,
		telemetry:     true,
		cache:         true,
		database:      true,
	})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	srv := NewServer(a)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	if err := srv.WaitForShutdown(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}
	logger.Info("ExperimentKit stopped")
	return nil
}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 ExperimentKit 的 HTTP 服务
type Server struct {
	app    *app
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler   *handlers.HealthHandler
	agentHandler    *handlers.AgentHandler
	workflowHandler *handlers.WorkflowHandler
	llmHandler      *handlers.LLMHandler

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(a *app) *Server {
	return &Server{
		app:    a,
		cfg:    a.cfg,
		logger: a.logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化 handlers 并启动 HTTP 与 Metrics 服务（非阻塞）
func (s *Server) Start() error {
	s.initHandlers()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if s.cfg.Metrics.Enabled {
		if err := s.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.ListenAddr()),
		zap.Bool("metrics_enabled", s.cfg.Metrics.Enabled),
		zap.Bool("run_history", s.app.history != nil),
		zap.Strings("llm_providers", s.app.llm.Providers()),
	)
	return nil
}

// initHandlers 初始化所有 handlers 与就绪检查
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(Version, s.logger)
	if s.app.pool != nil {
		s.healthHandler.RegisterCheck(handlers.NewCheck("database", s.app.pool.Ping))
	}
	if s.app.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewCheck("redis", s.app.cache.Ping))
	}

	s.agentHandler = handlers.NewAgentHandler(s.app.registry, s.app.counter, s.cfg.LLM.DefaultModel, s.logger)

	opts := []handlers.WorkflowHandlerOption{
		handlers.WithWorkflowOptions(s.app.workflowOptions()...),
		handlers.WithOriginPatterns(originPatterns(s.cfg.Server.CORSAllowedOrigins)...),
	}
	if s.app.history != nil {
		opts = append(opts, handlers.WithRunStore(s.app.history))
	}
	s.workflowHandler = handlers.NewWorkflowHandler(s.app.registry, s.logger, opts...)

	s.llmHandler = handlers.NewLLMHandler(s.app.llm, s.app.counter, s.logger)

	s.logger.Info("Handlers initialized")
}

// originPatterns 将 CORS 来源转为 websocket 的 host 模式
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		patterns = append(patterns, stripScheme(o))
	}
	return patterns
}

func stripScheme(origin string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if host, ok := strings.CutPrefix(origin, prefix); ok {
			return host
		}
	}
	return origin
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册所有路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/", s.healthHandler.HandleRoot)
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(BuildTime, GitCommit))

	// Agent API
	mux.HandleFunc("GET /api/v1/agents/list", s.agentHandler.HandleListAgents)
	mux.HandleFunc("POST /api/v1/agents/execute", s.agentHandler.HandleExecuteAgent)

	// Workflow API
	mux.HandleFunc("POST /api/v1/workflows/hypothesis-refinement/execute", s.workflowHandler.HandleHypothesisRefinement)
	mux.HandleFunc("GET /api/v1/workflows/hypothesis-refinement/stream", s.workflowHandler.HandleHypothesisStream)
	mux.HandleFunc("POST /api/v1/workflows/execute", s.workflowHandler.HandleExecuteDefinition)
	mux.HandleFunc("GET /api/v1/workflows/runs", s.workflowHandler.HandleListRuns)
	mux.HandleFunc("GET /api/v1/workflows/runs/{id}", s.workflowHandler.HandleGetRun)

	// LLM API
	mux.HandleFunc("POST /api/v1/llm/complete", s.llmHandler.HandleComplete)
	mux.HandleFunc("GET /api/v1/llm/providers", s.llmHandler.HandleProviders)

	return mux
}

// handler 构建带中间件链的根 handler
func (s *Server) handler(ctx context.Context) http.Handler {
	skipAuthPaths := []string{"/", "/health", "/healthz", "/ready", "/readyz", "/version"}

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.app.collector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	// 认证在限流之前，已认证请求按 subject 限流
	switch auth := s.cfg.Auth; {
	case auth.JWTEnabled():
		middlewares = append(middlewares, JWTAuth(auth, skipAuthPaths, s.logger))
	case len(auth.APIKeys) > 0:
		middlewares = append(middlewares, APIKeyAuth(auth.APIKeys, skipAuthPaths, auth.AllowQueryAPIKey, s.logger))
	default:
		s.logger.Warn("No API keys or JWT configured, authentication disabled")
	}
	middlewares = append(middlewares, RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))

	return Chain(s.routes(), middlewares...)
}

// startHTTPServer 启动 HTTP 服务器；配置了证书时使用 TLS
func (s *Server) startHTTPServer() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	s.httpManager = server.NewManager(s.handler(ctx), server.ConfigFrom(s.cfg.Server, "http", s.cfg.Server.Addr()), s.logger)

	if s.cfg.Server.TLSCertFile != "" {
		return s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
	}
	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 在独立端口暴露 /metrics
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.ConfigFrom(s.cfg.Server, "metrics", s.cfg.Server.MetricsAddr()), s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞到收到信号或某个服务器异常退出，然后关闭所有服务器
func (s *Server) WaitForShutdown(ctx context.Context) error {
	managers := []*server.Manager{s.httpManager}
	if s.metricsManager != nil {
		managers = append(managers, s.metricsManager)
	}
	err := server.WaitForShutdown(ctx, s.logger, managers...)

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	return err
}
