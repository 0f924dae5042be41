// 版权所有 2024 ExperimentKit Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package api 定义 ExperimentKit HTTP API 的请求与响应结构。
//
// # API 概览
//
//   - GET  /、/health、/healthz、/ready、/version
//   - POST /api/v1/agents/execute，GET /api/v1/agents/list
//   - POST /api/v1/workflows/hypothesis-refinement/execute
//   - GET  /api/v1/workflows/hypothesis-refinement/stream（WebSocket）
//   - POST /api/v1/workflows/execute
//   - GET  /api/v1/workflows/runs，GET /api/v1/workflows/runs/{id}
//   - POST /api/v1/llm/complete，GET /api/v1/llm/providers
//
// # 认证
//
// 配置了 API Key 时通过 X-API-Key 请求头认证：
//
//	X-API-Key: your-api-key
//
// 配置了 JWT 时使用 Bearer Token：
//
//	Authorization: Bearer <token>
//
// 所有 JSON 响应使用统一信封 {success, data, error, timestamp, request_id}，
// 见 handlers.Response。
package api
