/*
Package agent 定义 experimentkit 的最小执行单元：Capability。

# 概述

Capability 是一个具名的工作单元，只有一个 Invoke 操作：接收命名输入，
返回一个结果或失败。Capability 不感知自己处于哪个 workflow 之中。

# 核心组件

  - Capability / Func — 执行契约与函数适配器
  - Registry          — 名称到构造器的映射，按名称惰性构造并缓存单例
  - Instrument        — 装饰器：日志、计时、指标、追踪，并把任何失败统一
    转换为 *ExecutionError

# 错误

  - ErrDuplicateCapability — 重复注册（未指定 WithOverwrite）
  - ErrCapabilityNotFound  — 名称未注册
  - *ExecutionError        — 一次 Invoke 的统一失败类型，携带 Capability 名称
*/
package agent
