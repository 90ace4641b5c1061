/*
包 cache 提供基于 Redis 的应答缓存，缓存多模态分析服务对相同模型、提示词与帧集合的回复。

# 核心类型

  - Manager：持有 Redis 客户端，键统一加 KeyPrefix；Get/Set 读写，
    Purge 按命名空间清理，超过 MaxValueBytes 的应答不写入。
  - Key：把模型、提示词与帧摘要压成定长键。
  - Stats：进程内命中、未命中与跳过计数，Close 时写入日志。

未命中通过 ErrCacheMiss 哨兵错误表示，可用 IsCacheMiss 判断。
*/
package cache
