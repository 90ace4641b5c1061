// Package tlsutil 提供出站连接的 TLS 与传输配置（TLS 1.2+，仅 AEAD 密码套件）。
//
// APIProfile 服务模型网关与图生视频接口，DownloadProfile 服务源视频与预览下载；
// Redis 缓存复用 DefaultTLSConfig。
package tlsutil
