/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动与优雅关闭。

# 核心类型

  - Manager：封装 net/http.Server，持有监听器与异步错误通道，
    提供 Start/Shutdown/Errors/Addr 等生命周期方法。
  - Group：同时管理 API 服务器与 metrics 服务器，Wait 在 ctx 结束
    或任一服务器异常退出时返回，Shutdown 并行关闭全部服务器。
  - Config：监听地址、读写超时、空闲超时、请求头上限与关闭超时。

WriteTimeout 默认为 0，任务进度的 WebSocket 推送是长连接。
*/
package server
