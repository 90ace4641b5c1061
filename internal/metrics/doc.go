/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、任务流水线、
多模态分析服务、虚拟运镜、缓存与数据库。

# 核心类型

  - Collector：指标收集器，使用 promauto 自动注册，所有指标按 namespace 隔离。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 任务指标：提交数、运行中任务数、终态计数（含 error_kind）、任务耗时、
    阶段耗时与部分结果写入次数。
  - 分析服务指标：调用次数、耗时、估算的 prompt token 数与特征数量。
  - 缓存与数据库指标：命中/未命中、连接数、查询耗时。
*/
package metrics
