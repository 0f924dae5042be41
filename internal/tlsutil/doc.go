// Package tlsutil 提供集中式 TLS 配置：LLM provider 的 HTTP 客户端与
// HTTPS 服务端共用同一套加固设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
