/*
包 database 打开并管理 FlowDecompose 任务库的 GORM 连接。

# 概述

Open 按 config.DatabaseConfig 选择方言（PostgreSQL、MySQL 或 SQLite，
后者经 gorm.io/driver/sqlite 使用 modernc.org/sqlite 纯 Go 驱动），
GORM 日志写入 zap，随后交给 PoolManager 管理连接池。
sqlite 固定为单连接并开启外键与 WAL。

# 核心类型

  - PoolManager：连接池参数、后台健康检查（Close 时停止）、Ping 与统计。
  - RetryTransaction：遇到死锁、序列化失败、SQLITE_BUSY 等错误时指数退避重试，
    store.GormStore 的状态写入使用它。
*/
package database
