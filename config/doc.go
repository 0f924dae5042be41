// Package config 提供 ExperimentKit 的配置管理功能。
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量（前缀 EXPERIMENTKIT）。
// 各 Provider 的标准环境变量 OPENAI_API_KEY、ANTHROPIC_API_KEY、
// MISTRAL_API_KEY 在未显式配置密钥时作为回退。
package config
