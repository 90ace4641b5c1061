/*
包 migration 管理 FlowDecompose 任务库的 Schema 迁移，基于 golang-migrate，
支持 PostgreSQL、MySQL 与 SQLite（modernc.org/sqlite，无需 cgo）。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌，建立 jobs、assets、artifacts 与
virtual_motion_jobs 四张表，列与 store 包的 GORM 模型一一对应。
生产部署使用迁移；database.auto_migrate 仅用于开发环境。

# 核心类型

  - Migrator / DefaultMigrator：Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close。ctx 取消时在当前迁移完成后停止。
  - Config：方言、连接串、版本表名、锁超时与 zap 日志。
  - CLI：flowdecompose migrate 子命令的终端输出，status 使用 go-pretty 表格。

# 工厂函数

NewMigratorFromConfig / NewMigratorFromDatabaseConfig 从 config.DatabaseConfig
拼接连接串；NewMigratorFromURL 直接使用连接串。
*/
package migration
