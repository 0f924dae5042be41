// =============================================================================
// ExperimentKit 主入口
// =============================================================================
// HTTP 服务、命令行工作流执行、数据库迁移
//
// 使用方法:
//
//	experimentkit serve --config config.yaml      # 启动服务
//	experimentkit refine "Users who ..."          # 精炼一条假设
//	experimentkit workflow "Users who ..."        # 运行完整精炼流程
//	experimentkit run pipeline.yaml --input k=v   # 执行工作流定义
//	experimentkit migrate up                      # 运行数据库迁移
// =============================================================================

// @title ExperimentKit API
// @version 1.0.0
// @description ExperimentKit runs LLM-backed agents and dependency-ordered workflows for experiment design.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8000
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/experimentkit/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(args)
	case "refine":
		err = runRefine(args, os.Stdout)
	case "analyze":
		err = runAnalyze(args, os.Stdout)
	case "workflow":
		err = runWorkflow(args, os.Stdout)
	case "run":
		err = runDefinition(args, os.Stdout)
	case "history":
		err = runHistory(args, os.Stdout)
	case "config":
		err = runConfig(args, os.Stdout)
	case "migrate":
		err = runMigrate(args)
	case "health":
		err = runHealthCheck(args, os.Stdout)
	case "version":
		printVersion(os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// 🏳️ 全局参数
// =============================================================================

// globalFlags 所有子命令共享的参数
type globalFlags struct {
	configPath string
	logLevel   string
}

// newFlagSet 创建带 --config / --log-level 的 FlagSet
func newFlagSet(name string) (*flag.FlagSet, *globalFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	g := &globalFlags{}
	fs.StringVar(&g.configPath, "config", "", "Path to config file (YAML)")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warning, error, critical")
	return fs, g
}

// loadConfig 加载并校验配置，--log-level 覆盖配置文件中的级别
func (g *globalFlags) loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if g.configPath != "" {
		loader = loader.WithConfigPath(g.configPath)
	}
	level := strings.ToLower(g.logLevel)
	cfg, err := loader.
		WithValidator(func(c *config.Config) error {
			if level != "" {
				c.Log.Level = level
			}
			return nil
		}).
		WithValidator((*config.Config).Validate).
		Load()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseInterspersed 允许位置参数与 flag 混排，例如 `refine "text" --model x`
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, out io.Writer) error {
	fs, _ := newFlagSet("health")
	addr := fs.String("addr", "http://localhost:8000", "Server address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(*addr, "/")+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	fmt.Fprintln(out, "OK")
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "ExperimentKit %s\n", Version)
	fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `ExperimentKit - Agentic infrastructure for experiment design

Usage:
  experimentkit <command> [options]

Commands:
  serve                      Start the HTTP API server
  refine <hypothesis>        Refine a hypothesis to make it more specific and testable
  analyze <hypothesis>       Analyze a refined hypothesis and provide feedback
  workflow <hypothesis>      Run the complete hypothesis refinement workflow
  run <definition.yaml>      Execute a workflow definition file
  history                    List recent workflow runs
  config                     Show current configuration
  migrate <subcommand>       Database migration commands
  health                     Check server health
  version                    Show version information
  help                       Show this help message

Global options:
  --config <path>            Path to configuration file (YAML)
  --log-level <level>        debug, info, warning, error, critical

Agent options (refine, analyze, workflow):
  --model <name>             LLM model to use (defaults to configuration)
  --provider <name>          openai, anthropic or mistral (defaults to configuration)

Examples:
  experimentkit serve --config /etc/experimentkit/config.yaml
  experimentkit workflow "Personalized onboarding increases upgrades" --provider anthropic
  experimentkit run pipeline.yaml --input hypothesis="Dark mode reduces churn"
  experimentkit history --limit 10
  experimentkit migrate status`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	case "critical":
		level = zapcore.DPanicLevel
	default:
		level = zapcore.InfoLevel
	}

	console := cfg.Format == "console" || cfg.Format == "text"

	var encoderConfig zapcore.EncoderConfig
	if console {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if console {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
