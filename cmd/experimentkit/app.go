package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/agent"
	"github.com/BaSui01/experimentkit/agent/hypothesis"
	"github.com/BaSui01/experimentkit/config"
	"github.com/BaSui01/experimentkit/internal/cache"
	"github.com/BaSui01/experimentkit/internal/database"
	"github.com/BaSui01/experimentkit/internal/history"
	"github.com/BaSui01/experimentkit/internal/metrics"
	"github.com/BaSui01/experimentkit/internal/migration"
	"github.com/BaSui01/experimentkit/internal/telemetry"
	"github.com/BaSui01/experimentkit/llm"
	"github.com/BaSui01/experimentkit/llm/providers"
	"github.com/BaSui01/experimentkit/llm/providers/anthropic"
	"github.com/BaSui01/experimentkit/llm/providers/mistral"
	"github.com/BaSui01/experimentkit/llm/providers/openai"
	"github.com/BaSui01/experimentkit/llm/tokenizer"
	"github.com/BaSui01/experimentkit/workflow"
)

// =============================================================================
// 🧩 运行时组件
// =============================================================================

// app 持有 serve 与 CLI 子命令共享的组件。可选组件（cache、pool、history）
// 未启用时为 nil。
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	collector *metrics.Collector
	telemetry *telemetry.Providers
	counter   *tokenizer.Counter
	llm       *llm.Client
	registry  *agent.Registry

	cache   *cache.Manager
	pool    *database.PoolManager
	history *history.Store
}

// appOptions 控制哪些外部依赖需要连接
type appOptions struct {
	// 注册到默认 Prometheus registry（仅 serve 需要对外暴露）
	exportMetrics bool
	// 初始化 OpenTelemetry
	telemetry bool
	// 连接 Redis 完成缓存
	cache bool
	// 打开运行历史数据库
	database bool
}

// newApp 按配置组装组件。可选依赖连接失败时记录警告并降级，LLM 与
// agent 注册失败时返回错误。
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var reg prometheus.Registerer = prometheus.NewRegistry()
	if opts.exportMetrics && cfg.Metrics.Enabled {
		reg = prometheus.DefaultRegisterer
	}
	a.collector = metrics.NewCollectorWithRegistry(cfg.Metrics.Namespace, reg, logger)

	if opts.telemetry {
		providers, err := telemetry.Init(cfg.Telemetry, logger, telemetry.WithVersion(Version))
		if err != nil {
			logger.Warn("failed to initialize telemetry", zap.Error(err))
		}
		a.telemetry = providers
	}

	if opts.cache && cfg.Redis.Enabled {
		m, err := cache.NewManager(ctx, cache.ConfigFrom(cfg.Redis, cfg.LLM.Cache.TTL), logger)
		if err != nil {
			logger.Warn("Redis not available, completion cache disabled", zap.Error(err))
		} else {
			a.cache = m
		}
	}

	if opts.database && cfg.Database.Enabled {
		if err := a.openHistory(ctx); err != nil {
			logger.Warn("Database not available, run history disabled", zap.Error(err))
		}
	}

	a.counter = tokenizer.NewCounter(tokenizer.WithLogger(logger))
	a.llm = newLLMClient(cfg, logger, a.collector, a.counter, a.completionCache())

	a.registry = agent.NewRegistry(logger)
	if err := hypothesis.Register(a.registry, hypothesis.Deps{
		Caller:   a.llm,
		Defaults: hypothesis.Settings{Model: cfg.LLM.DefaultModel, Provider: cfg.LLM.DefaultProvider},
		Logger:   logger,
		Recorder: a.collector,
	}); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to register hypothesis agents: %w", err)
	}

	return a, nil
}

// completionCache 只在 Redis 可用且开启 llm.cache 时返回缓存
func (a *app) completionCache() *cache.CompletionStore {
	if a.cache == nil || !a.cfg.LLM.Cache.Enabled {
		return nil
	}
	return cache.NewCompletionStore(a.cache, a.cfg.LLM.Cache.TTL)
}

// openHistory 打开数据库、建表并创建运行历史存储
func (a *app) openHistory(ctx context.Context) error {
	db, err := database.Open(a.cfg.Database, a.logger)
	if err != nil {
		return err
	}
	pool, err := database.NewPoolManager(db, database.PoolConfigFrom(a.cfg.Database), a.logger)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return err
	}

	store := history.NewStore(pool, a.logger)
	if a.cfg.Database.AutoMigrate {
		if err := migrateSchema(ctx, a.cfg.Database, store, a.logger); err != nil {
			_ = pool.Close()
			return err
		}
	}

	a.pool = pool
	a.history = store
	return nil
}

// migrateSchema 优先执行版本化迁移，迁移器不可用时退回 GORM AutoMigrate
func migrateSchema(ctx context.Context, dbCfg config.DatabaseConfig, store *history.Store, logger *zap.Logger) error {
	m, err := migration.NewMigratorFromDatabaseConfig(dbCfg, logger)
	if err != nil {
		logger.Warn("migrator unavailable, falling back to auto-migrate", zap.Error(err))
		return store.AutoMigrate(ctx)
	}
	defer m.Close()
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// newLLMClient 为配置了密钥的 provider 创建客户端。cache 为 nil 时不缓存。
func newLLMClient(cfg *config.Config, logger *zap.Logger, rec llm.Recorder, est llm.TokenEstimator, store *cache.CompletionStore) *llm.Client {
	opts := []llm.ClientOption{
		llm.WithLogger(logger),
		llm.WithRecorder(rec),
		llm.WithTokenEstimator(est),
	}
	if store != nil {
		opts = append(opts, llm.WithCache(store))
	}

	base := func(pc config.ProviderConfig) providers.BaseProviderConfig {
		return providers.BaseProviderConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Timeout: cfg.LLM.Timeout}
	}
	p := cfg.LLM.Providers
	if p.OpenAI.APIKey != "" {
		opts = append(opts, llm.WithProvider(openai.New(openai.Config{BaseProviderConfig: base(p.OpenAI)}, logger)))
	}
	if p.Anthropic.APIKey != "" {
		opts = append(opts, llm.WithProvider(anthropic.New(anthropic.Config{BaseProviderConfig: base(p.Anthropic)}, logger)))
	}
	if p.Mistral.APIKey != "" {
		opts = append(opts, llm.WithProvider(mistral.New(mistral.Config{BaseProviderConfig: base(p.Mistral)}, logger)))
	}

	return llm.NewClient(clientConfigFrom(cfg.LLM), opts...)
}

// clientConfigFrom 将应用配置映射为 LLM 客户端默认值
func clientConfigFrom(lc config.LLMConfig) llm.ClientConfig {
	cc := llm.DefaultClientConfig()
	cc.DefaultProvider = lc.DefaultProvider
	cc.DefaultModel = lc.DefaultModel
	cc.DefaultMaxTokens = lc.DefaultMaxTokens
	cc.DefaultTemperature = float32(lc.DefaultTemperature)
	if lc.Timeout > 0 {
		cc.Timeout = lc.Timeout
	}
	if lc.MaxAttempts > 0 {
		cc.MaxAttempts = lc.MaxAttempts
	}
	if lc.RetryInitialDelay > 0 {
		cc.RetryInitialDelay = lc.RetryInitialDelay
	}
	return cc
}

// workflowOptions 引擎使用的日志、指标与 tracer
func (a *app) workflowOptions() []workflow.Option {
	opts := []workflow.Option{
		workflow.WithLogger(a.logger),
		workflow.WithRecorder(a.collector),
	}
	if a.telemetry.Enabled() {
		opts = append(opts, workflow.WithTracer(a.telemetry.Tracer("experimentkit/workflow")))
	}
	return opts
}

// Close 释放外部连接并刷新遥测数据
func (a *app) Close(ctx context.Context) {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.pool != nil {
		errs = append(errs, a.pool.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error while closing components", zap.Error(err))
	}
}
