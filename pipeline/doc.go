/*
Package pipeline 编排 learn / compare 两种拆解任务。

# 概述

每种模式是一个独立的 Pipeline 实现（LearnPipeline、ComparePipeline），
由 New 根据 types.JobMode 一次性选定。阶段顺序执行，进度检查点固定，
作为与前端的契约：

	learn:   ingest 10 → scene_detection 25 → extract_frames 35 →
	         feature_analysis 60..85 → artifacts 85 → finalize 95
	compare: target_ingest 5 → target_extract 15 → target_decompose 25 →
	         user_ingest 40 → user_extract 50 → user_decompose 60 →
	         compare 75 → improve 85 → finalize 95

# 分段融合

启用场景检测时，检测出的边界是权威的，分析服务对每个片段只做特征分析；
未启用时分析服务先提出边界，再逐段分析特征。

# 部分结果

learn 模式在边界确定后立即写入一个全部为 analyzing 的快照，
之后每完成一个片段写入一次新快照。已完成片段集合只增不减。

# 调度

Dispatcher 为每个任务启动一个 goroutine，并维护运行中任务的注册表，
支持 Running / List / Wait / Shutdown。
*/
package pipeline
