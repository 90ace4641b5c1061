// Package motion 为已完成任务的片段生成虚拟运镜预览。
//
// 每个预览是一个子任务：创建时为 queued，在独立 goroutine 中渲染，
// 生成的视频记录为 preview_video 产物。未配置图生视频凭证时进入 mock 模式，
// 只写出一个空的占位文件。
package motion
