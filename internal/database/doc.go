// 版权所有 2024 ExperimentKit Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接与连接池管理，
为工作流运行历史（internal/history）提供存储底座。

# 核心类型

  - Open：按 config.DatabaseConfig 选择 postgres、mysql 或纯 Go sqlite 方言。
  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close() 等生命周期方法。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 连接池调优：通过 MaxIdleConns/MaxOpenConns/ConnMaxLifetime 控制。
  - 健康检查：后台定时 PingContext 探活。
  - 事务管理：WithTransactionRetry 对死锁、序列化失败等场景指数退避重试。
*/
package database
