/*
Package types 提供 FlowDecompose 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 validator、analyzer、compare、
pipeline、store、api 等上层模块提供统一的数据契约，以避免循环依赖。

# 核心类型

  - Segment / Feature：镜头片段与其特征（运镜、光线、调色）
  - Mapping：user 片段到 target 片段的匹配
  - ImprovementAction：有序的改进动作（含可选 MotionRecipe）
  - Result：任务最终结果（learn / compare）
  - PartialResult：运行中的部分结果快照（analyzing 标记）
  - Job / JobStatus：任务记录与单调状态机 queued → running → succeeded|failed
  - JobConfig：提交参数（视频来源、抽帧、场景检测、分析模块）
  - Asset / Artifact：输入视频与生成产物
  - Error / ErrorCode：结构化错误；ErrorKind 为失败分类
    （validation / external_capability / resource / unclassified）
*/
package types
