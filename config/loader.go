// =============================================================================
// 📦 ExperimentKit 配置加载器
// =============================================================================
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("experimentkit.yaml").
//	    WithValidator((*config.Config).Validate).
//	    Load()
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量前缀，如 EXPERIMENTKIT_LLM_DEFAULT_MODEL
const DefaultEnvPrefix = "EXPERIMENTKIT"

// providerKeyEnv 未配置密钥时读取的标准环境变量
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
}

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix: DefaultEnvPrefix,
		lookupEnv: os.LookupEnv,
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// withEnv replaces the environment source.
func (l *Loader) withEnv(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量 → Provider 标准密钥变量（仅填补空缺）
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	l.applyProviderKeyFallbacks(cfg)

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置；文件不存在时保持默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) applyProviderKeyFallbacks(cfg *Config) {
	targets := map[string]*string{
		"openai":    &cfg.LLM.Providers.OpenAI.APIKey,
		"anthropic": &cfg.LLM.Providers.Anthropic.APIKey,
		"mistral":   &cfg.LLM.Providers.Mistral.APIKey,
	}
	for provider, dst := range targets {
		if *dst != "" {
			continue
		}
		if v, ok := l.lookupEnv(providerKeyEnv[provider]); ok && v != "" {
			*dst = v
		}
	}
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		value, ok := l.lookupEnv(envKey)
		if !ok || value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

// setFieldValue 按字段类型解析字符串值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := parts[:0]
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}

	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// Load 使用默认前缀加载 path（可为空）并校验
func Load(path string) (*Config, error) {
	return NewLoader().
		WithConfigPath(path).
		WithValidator((*Config).Validate).
		Load()
}

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true, "critical": true}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port %d", c.Server.HTTPPort))
	}
	if c.Metrics.Enabled && (c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535) {
		errs = append(errs, fmt.Errorf("invalid metrics port %d", c.Server.MetricsPort))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("tls_cert_file and tls_key_file must be set together"))
	}

	switch strings.ToLower(c.LLM.DefaultProvider) {
	case "openai", "anthropic", "mistral":
	default:
		errs = append(errs, fmt.Errorf("unknown default provider %q", c.LLM.DefaultProvider))
	}
	if c.LLM.DefaultModel == "" {
		errs = append(errs, errors.New("default model must not be empty"))
	}
	if c.LLM.DefaultMaxTokens < 1 || c.LLM.DefaultMaxTokens > 32000 {
		errs = append(errs, errors.New("default max tokens must be between 1 and 32000"))
	}
	if c.LLM.DefaultTemperature < 0 || c.LLM.DefaultTemperature > 2 {
		errs = append(errs, errors.New("temperature must be between 0 and 2"))
	}
	if c.LLM.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	if c.Database.Enabled {
		switch c.Database.Driver {
		case "postgres", "mysql", "sqlite":
		default:
			errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
		}
	}
	if c.LLM.Cache.Enabled && !c.Redis.Enabled {
		errs = append(errs, errors.New("llm cache requires redis"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %w", errors.Join(errs...))
	}
	return nil
}
