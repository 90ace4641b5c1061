/*
Package media 负责视频文件相关的所有本地处理。

  - Ingestor：按 url（流式下载）或 file（复制）摄取视频并用 ffprobe 读取元数据
  - FFmpeg.ExtractFrames：按 fps 抽帧并写出 frames_index.json
  - FFmpeg.Detect：基于 ffmpeg scene 分数的镜头切分（SceneDetector）
  - WriteKeyframes：为每个片段复制中点附近的关键帧
  - Workspace：<data_dir>/jobs/<job_id> 下的目录约定

外部命令通过 Runner 接口执行，测试中可替换为假实现。
*/
package media
