// 版权所有 2024 ExperimentKit Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 ExperimentKit 命令行与服务端入口。

# 概述

cmd/experimentkit 把 agent 注册表、工作流引擎、LLM 客户端与运行历史
组装成一个可执行程序。既可以作为 HTTP 服务运行（serve），也可以在命令行
直接调用假设精炼 agent 或执行 YAML 工作流定义。

# 子命令

  - serve     启动 HTTP API 与独立的 /metrics 端口
  - refine    精炼单条假设
  - analyze   分析一条（已精炼的）假设
  - workflow  运行 refine -> analyze -> revise 完整流程
  - run       执行 YAML 工作流定义
  - history   列出最近的工作流运行记录与各状态计数，--prune-before 清理旧记录
  - config    打印当前生效的配置
  - migrate   数据库迁移（up/down/status/version/...）
  - health    探测运行中服务的 /health
  - version   打印构建信息

所有子命令都接受 --config 与 --log-level。

# 中间件

serve 的中间件顺序：Recovery、RequestID、SecurityHeaders、RequestLogger、
Metrics、OTelTracing、CORS、按配置启用的 APIKeyAuth 或 JWTAuth，最后是
RateLimiter（认证后按 subject 限流，否则按客户端 IP）。错误统一写成
api/handlers 的响应信封。
*/
package main
