package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 ExperimentKit 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Metrics   MetricsConfig   `yaml:"metrics" env:"METRICS"`
	Auth      AuthConfig      `yaml:"auth" env:"AUTH"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个客户端 IP 的限流
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// CORS 允许的来源，为空时拒绝跨域请求，"*" 允许所有
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 同时设置时启用 HTTPS
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// Addr 返回 HTTP 监听地址
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.HTTPPort))
}

// MetricsAddr 返回 metrics 监听地址
func (s ServerConfig) MetricsAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.MetricsPort))
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// LLMConfig LLM 调用默认值
type LLMConfig struct {
	DefaultProvider    string          `yaml:"default_provider" env:"DEFAULT_PROVIDER"`
	DefaultModel       string          `yaml:"default_model" env:"DEFAULT_MODEL"`
	DefaultMaxTokens   int             `yaml:"default_max_tokens" env:"DEFAULT_MAX_TOKENS"`
	DefaultTemperature float64         `yaml:"default_temperature" env:"DEFAULT_TEMPERATURE"`
	Timeout            time.Duration   `yaml:"timeout" env:"TIMEOUT"`
	MaxAttempts        int             `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	RetryInitialDelay  time.Duration   `yaml:"retry_initial_delay" env:"RETRY_INITIAL_DELAY"`
	Providers          ProvidersConfig `yaml:"providers" env:"PROVIDERS"`
	Cache              LLMCacheConfig  `yaml:"cache" env:"CACHE"`
}

// ProvidersConfig 各 Provider 凭据
type ProvidersConfig struct {
	OpenAI    ProviderConfig `yaml:"openai" env:"OPENAI"`
	Anthropic ProviderConfig `yaml:"anthropic" env:"ANTHROPIC"`
	Mistral   ProviderConfig `yaml:"mistral" env:"MISTRAL"`
}

// ProviderConfig 单个 Provider 的密钥与地址
type ProviderConfig struct {
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
}

// APIKey returns the configured key for provider, or "".
func (l LLMConfig) APIKey(provider string) string {
	switch provider {
	case "openai":
		return l.Providers.OpenAI.APIKey
	case "anthropic":
		return l.Providers.Anthropic.APIKey
	case "mistral":
		return l.Providers.Mistral.APIKey
	}
	return ""
}

// LLMCacheConfig 补全结果缓存（需要 Redis）
type LLMCacheConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	TTL     time.Duration `yaml:"ttl" env:"TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool   `yaml:"enabled" env:"ENABLED"`
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 运行历史数据库配置
type DatabaseConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: postgres, mysql, sqlite
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名；sqlite 时为文件路径
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时自动执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// AuthConfig HTTP 认证配置。API Key 与 JWT 均未配置时不启用认证。
type AuthConfig struct {
	APIKeys          []string `yaml:"api_keys" env:"API_KEYS"`
	AllowQueryAPIKey bool     `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	JWTSecret        string   `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTPublicKey     string   `yaml:"jwt_public_key" env:"JWT_PUBLIC_KEY"`
	JWTIssuer        string   `yaml:"jwt_issuer" env:"JWT_ISSUER"`
	JWTAudience      string   `yaml:"jwt_audience" env:"JWT_AUDIENCE"`
}

// JWTEnabled 是否配置了 JWT 校验
func (a AuthConfig) JWTEnabled() bool {
	return a.JWTSecret != "" || a.JWTPublicKey != ""
}
