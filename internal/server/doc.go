// 版权所有 2024 ExperimentKit Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理，`experimentkit serve`
用它同时托管 API 服务与 Prometheus metrics 服务。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener，提供 Start/StartTLS/
    Shutdown 等生命周期方法与异步错误通道。
  - Config：监听地址、读写超时、空闲超时与优雅关闭超时。

# 主要能力

  - 非阻塞启动，ListenAddr 返回实际绑定地址（支持 :0）。
  - TLS 使用 internal/tlsutil 的加固配置。
  - WaitForShutdown 监听 SIGINT/SIGTERM 或任一服务器异常，
    随后按顺序关闭所有服务器。
*/
package server
