/*
Package analyzer 封装多模态大模型分析服务（OpenAI 兼容的 chat/completions 接口）。

Client 支持两种调用：

  - ProposeBoundaries：在未启用场景检测时，根据最多 20 帧采样图像提出镜头边界；
  - AnalyzeFeatures：在边界已确定时，对单个片段（最多 5 帧）做特征分析。

模型输出经 ExtractJSON 提取后由 NormalizeFeatures 规范化：缺失的置信度默认 0.75
并截断到 [0,1]，缺失或格式错误的证据时间段默认为片段自身范围，非对象特征被丢弃。
成功解析的回复可写入 Redis 响应缓存（internal/cache），调用耗时与估算的
prompt token 数写入 Prometheus 指标。
*/
package analyzer
