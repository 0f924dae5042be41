// 版权所有 2024 ExperimentKit Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，主要用于 LLM 补全结果缓存。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端与连接池配置，
    提供 Get/Set/Delete/Exists 等基础操作以及 GetJSON/SetJSON。
  - CompletionStore：实现 llm.CompletionCache，以 JSON 形式按 TTL
    存储 llm.ChatResponse，未命中时返回 (nil, nil)。

# 主要能力

  - 连接池管理：通过 PoolSize 与 MinIdleConns 控制连接复用。
  - 健康检查：后台定时 Ping 检测，Close 时停止。
  - 错误语义：提供 ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
