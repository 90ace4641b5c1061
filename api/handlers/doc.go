/*
Package handlers 提供 FlowDecompose HTTP API 的请求处理器实现。

# 概述

handlers 包实现视频分析任务、进度推送、虚拟运镜、镜头术语与健康检查端点，
以及统一的响应/错误处理。所有 Handler 均遵循标准 net/http 接口，
路由使用 Go 1.22 的 method + path 模式，路径参数通过 r.PathValue 读取。

# 核心类型

  - JobHandler：提交、查询、列出 learn / compare 任务
  - StreamHandler：WebSocket 推送任务视图，直到终态
  - MotionHandler：虚拟运镜预览子任务
  - TerminologyHandler：镜头术语表查询与中文翻译
  - HealthHandler：服务健康检查（/health, /healthz, /ready）
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码，支持 Hijack

# 错误映射

types.ErrorCode 自动映射为 HTTP 状态码：validation → 422，
external_capability → 502，resource / unclassified → 500，not_found → 404。
非结构化错误一律按内部错误返回，不泄露原始信息。
*/
package handlers
