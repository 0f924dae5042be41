/*
Package workflow 提供按依赖顺序执行 Capability 的工作流引擎。

# 概述

一个 Workflow 由按声明顺序排列的 StepDefinition 组成。Execute 先用依赖解析器
计算执行顺序，然后逐步解析输入绑定、评估守卫条件、通过 CapabilityLookup
取得 Capability 并调用，最后汇总为 WorkflowResult。

# 核心类型

  - StepDefinition  — 步骤声明：名称、目标 Capability、输入绑定、依赖、守卫条件
  - Binding         — 输入绑定表达式：Literal | StepRef | StepFieldRef（前缀 "$"）
  - ResolveOrder    — Kahn 风格的稳定拓扑排序；ResolveBatches 报告可并行批次
  - Workflow        — 执行引擎（Execute / ExecutionOrder / Batches）
  - WorkflowResult  — 单次执行的终态记录（status、steps、final_result、error）
  - Aggregator      — final_result 汇总策略，默认取最后声明步骤的结果
  - Pipeline        — 记录可并行步骤组（仅声明，不并发执行）
  - Definition      — YAML / JSON 工作流定义

# 执行语义

  - 任一依赖未完成的步骤标记为 skipped
  - 守卫条件 "$name" 当且仅当 name 已有结果时为真，非引用条件恒为真
  - 步骤调用失败立即中止：该步骤标记 failed，未到达的步骤不出现在 steps 中
  - 总体状态：有 failed 则 failed；全部 skipped 则 skipped；否则 completed
*/
package workflow
