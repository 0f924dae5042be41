// 版权所有 2024 ExperimentKit Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、LLM、Agent 与 Workflow 四个维度。

# 核心类型

  - Collector：指标收集器，同时实现 agent.Recorder、workflow.Recorder
    与 llm.Recorder，可直接注入到对应组件。

# 主要能力

  - Agent 指标：执行次数（agent_name/provider）、耗时（status）、错误（error_type）。
  - Workflow 指标：启动、完成（status）、失败（error_type）与耗时。
  - LLM 指标：请求、耗时（status）、成功、错误（error_type）与缓存命中。
  - HTTP 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
*/
package metrics
