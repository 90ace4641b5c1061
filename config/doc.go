// Package config 提供 FlowDecompose 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → FLOWDECOMPOSE_ 环境变量 的顺序叠加，
// Validate 汇总所有问题一次返回。Watcher 轮询配置文件并在变化时重新加载，
// 供服务进程在运行时调整日志级别等可热更新的字段。
package config
