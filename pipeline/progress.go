package pipeline

import (
	"fmt"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

// Checkpoint 阶段开始时上报的固定进度点
type Checkpoint struct {
	Stage   string
	Percent float64
	Message string
}

// Progress 转为任务进度记录
func (c Checkpoint) Progress() types.Progress {
	return types.Progress{Stage: c.Stage, Percent: c.Percent, Message: c.Message}
}

// learn 检查点
var (
	LearnIngest          = Checkpoint{"ingest", 10, "downloading video"}
	LearnSceneDetection  = Checkpoint{"scene_detection", 25, "detecting scene boundaries"}
	LearnExtractFrames   = Checkpoint{"extract_frames", 35, "extracting frames"}
	LearnFeatureAnalysis = Checkpoint{"feature_analysis", 60, "analyzing features"}
	LearnArtifacts       = Checkpoint{"artifacts", 85, "generating artifacts"}
	LearnFinalize        = Checkpoint{"finalize", 95, "finalizing"}
)

// compare 检查点
var (
	CompareTargetIngest    = Checkpoint{"target_ingest", 5, "ingesting target video"}
	CompareTargetExtract   = Checkpoint{"target_extract", 15, "extracting target frames"}
	CompareTargetDecompose = Checkpoint{"target_decompose", 25, "analyzing target features"}
	CompareUserIngest      = Checkpoint{"user_ingest", 40, "ingesting user video"}
	CompareUserExtract     = Checkpoint{"user_extract", 50, "extracting user frames"}
	CompareUserDecompose   = Checkpoint{"user_decompose", 60, "analyzing user features"}
	CompareAlign           = Checkpoint{"compare", 75, "aligning segments"}
	CompareImprove         = Checkpoint{"improve", 85, "generating improvements"}
	CompareFinalize        = Checkpoint{"finalize", 95, "finalizing"}
)

// featureAnalysisSpan 逐段分析占用的进度区间
const featureAnalysisSpan = 25

// SegmentProgress 第 i 段（从 0 开始，共 n 段）分析完成后上报
func SegmentProgress(i, n int) Checkpoint {
	percent := LearnFeatureAnalysis.Percent
	if n > 0 {
		percent += float64(i+1) / float64(n) * featureAnalysisSpan
	}
	return Checkpoint{
		Stage:   LearnFeatureAnalysis.Stage,
		Percent: percent,
		Message: fmt.Sprintf("分析特征 %d/%d", i+1, n),
	}
}
