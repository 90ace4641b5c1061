// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 FlowDecompose 的任务、阶段与 HTTP 请求 span 提供 TracerProvider 和 MeterProvider，
// 并通过 PipelineMetrics 把任务与阶段耗时经 OTLP 导出。
// 当遥测功能禁用时只注册 W3C 传播器，不连接任何外部服务。
package telemetry
