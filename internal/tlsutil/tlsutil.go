package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// Profile 描述一类出站连接的传输参数
type Profile struct {
	// DialTimeout 建连超时
	DialTimeout time.Duration
	// ResponseHeaderTimeout 等待响应头的上限；0 表示不单独限制
	ResponseHeaderTimeout time.Duration
	// MaxIdleConnsPerHost 每个上游保留的空闲连接
	MaxIdleConnsPerHost int
	// DisableCompression 对已压缩的媒体内容关闭 gzip 协商
	DisableCompression bool
}

var (
	// APIProfile 用于模型网关与图生视频接口：小请求体、长推理耗时
	APIProfile = Profile{
		DialTimeout:         10 * time.Second,
		MaxIdleConnsPerHost: 8,
	}

	// DownloadProfile 用于拉取源视频与预览视频：大响应体，首包需及时返回
	DownloadProfile = Profile{
		DialTimeout:           30 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConnsPerHost:   2,
		DisableCompression:    true,
	}
)

// DefaultTLSConfig 返回加固后的 TLS 配置：TLS 1.2 起步，仅 AEAD 套件。
// Redis 连接与所有 HTTP 客户端共用。
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// Transport 按 profile 构造 http.Transport，遵循 HTTPS_PROXY 等环境变量
func Transport(p Profile) *http.Transport {
	if p.DialTimeout <= 0 {
		p.DialTimeout = APIProfile.DialTimeout
	}
	if p.MaxIdleConnsPerHost <= 0 {
		p.MaxIdleConnsPerHost = http.DefaultMaxIdleConnsPerHost
	}
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   p.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          4 * p.MaxIdleConnsPerHost,
		MaxIdleConnsPerHost:   p.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: p.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    p.DisableCompression,
	}
}

// SecureHTTPClient 返回 APIProfile 客户端，timeout 限制整个请求（含读取响应体）
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: Transport(APIProfile)}
}

// DownloadClient 返回 DownloadProfile 客户端，timeout 限制整次下载
func DownloadClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: Transport(DownloadProfile)}
}
