/*
Package main 提供 FlowDecompose 服务端程序入口。

# 概述

cmd/flowdecompose 是视频镜头拆解服务的可执行入口，提供 HTTP API、
数据库迁移、任务查看、健康检查和版本查询等子命令。

# 主要能力

  - 子命令：serve、migrate、job、cache、health、version
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    RequestLogger、Metrics、CORS、RateLimiter，最后是 JWT 或 API Key 鉴权
  - 存储：memory、database（GORM + 版本化迁移）、redis 三种任务存储
  - 配置热更新：Watcher 监听配置文件，日志级别即时生效
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：停止接收请求，等待运行中的任务，再关闭存储与遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
