// Package providers 提供 LLM Provider 的公共配置与 HTTP 辅助函数，
// 具体实现位于 openai、anthropic、mistral 子包。
package providers
