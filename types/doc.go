// 版权所有 2024 ExperimentKit Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package types 提供 experimentkit 的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包，为 agent、workflow、llm、api
等上层模块提供统一的错误码，以避免循环依赖。

  - Error / ErrorCode — 结构化错误，含 HTTP 状态码、Provider 与 Retryable 标记
  - AsError / GetErrorCode / IsErrorCode / IsRetryable — 沿错误链查询
*/
package types
