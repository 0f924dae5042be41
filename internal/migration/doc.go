// 版权所有 2024 ExperimentKit Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理运行历史表（workflow_runs、workflow_run_steps）的
Schema 迁移，支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 核心类型

  - Migrator：迁移器接口，定义 Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close 等操作。
  - DefaultMigrator：基于 golang-migrate 与内嵌 SQL 的默认实现。
  - CLI：`experimentkit migrate` 子命令的格式化输出层。

# 主要能力

  - 多数据库支持：按 DatabaseType 选择内嵌方言目录。
  - 工厂函数：NewMigratorFromDatabaseConfig 直接使用 config.DatabaseConfig。
  - 辅助工具：ParseDatabaseType、BuildDatabaseURL、AvailableMigrations。
*/
package migration
