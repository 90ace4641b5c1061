// Package fixtures 提供任务配置、片段与特征的样例数据
package fixtures

import (
	"fmt"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

// TargetPath / UserPath 是样例配置使用的本地视频路径
const (
	TargetPath = "/videos/target.mp4"
	UserPath   = "/videos/user.mp4"
)

// LearnConfig 返回本地文件来源的 learn 任务配置
func LearnConfig() types.JobConfig {
	return types.JobConfig{
		Mode:        types.ModeLearn,
		TargetVideo: types.VideoInput{Source: types.VideoSource{Type: types.SourceFile, Path: TargetPath}},
	}
}

// CompareConfig 返回 compare 任务配置
func CompareConfig() types.JobConfig {
	cfg := LearnConfig()
	cfg.Mode = types.ModeCompare
	cfg.UserVideo = &types.VideoInput{Source: types.VideoSource{Type: types.SourceFile, Path: UserPath}}
	return cfg
}

// URLConfig 返回 URL 来源的 learn 任务配置
func URLConfig(url string) types.JobConfig {
	return types.JobConfig{
		Mode:        types.ModeLearn,
		TargetVideo: types.VideoInput{Source: types.VideoSource{Type: types.SourceURL, URL: url}},
	}
}

// WithoutSceneDetection 关闭 CV 场景检测，使切分交给分析器
func WithoutSceneDetection(cfg types.JobConfig) types.JobConfig {
	off := false
	cfg.Options.SceneDetection.UseCV = &off
	return cfg
}

// Segments 按边界生成 seg_001.. 片段，例如 Segments(0, 2000, 6000) 得到两个片段
func Segments(bounds ...float64) []types.Segment {
	if len(bounds) < 2 {
		return nil
	}
	out := make([]types.Segment, 0, len(bounds)-1)
	for i := 1; i < len(bounds); i++ {
		out = append(out, types.NewSegment(fmt.Sprintf("seg_%03d", i), bounds[i-1], bounds[i]))
	}
	return out
}

// Feature 构造一个以 [startMs, endMs] 为证据区间的特征
func Feature(c types.Category, typ, value string, startMs, endMs float64) types.Feature {
	return types.Feature{
		Category:   c,
		Type:       typ,
		Value:      value,
		Confidence: 0.8,
		Evidence:   types.Evidence{TimeRangesMs: []types.TimeRange{{startMs, endMs}}},
	}
}

// WithFeatures 返回附带特征的片段副本
func WithFeatures(s types.Segment, features ...types.Feature) types.Segment {
	s.Features = append([]types.Feature(nil), features...)
	return s
}
