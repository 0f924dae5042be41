// 版权所有 2024 ExperimentKit Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package handlers 提供 ExperimentKit HTTP API 的请求处理器实现。

# 核心类型

  - AgentHandler     — 按名称执行已注册的 Agent，列出 Agent
  - WorkflowHandler  — 假设精炼工作流、内联定义工作流、运行历史与 WebSocket 进度流
  - LLMHandler       — 直接调用 LLM Provider 与 Provider 探活
  - HealthHandler    — /、/health、/healthz、/ready、/version
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp + request_id）
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码

# 错误映射

types.ErrorCode 通过 mapErrorCodeToHTTPStatus 转为 HTTP 状态码。
Agent 未注册返回 404，Agent 执行失败返回 400。

所有 Handler 均遵循标准 net/http 接口。
*/
package handlers
