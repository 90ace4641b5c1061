package compare

import (
	"fmt"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

// NoneValue user 片段缺少该类别时的 current_value
const NoneValue = "none"

// DefaultConfidenceThreshold 每条动作 validation 中的置信度阈值
const DefaultConfidenceThreshold = 0.7

var actionTypes = map[types.Category]string{
	types.CategoryCameraMotion: "adjust_camera_motion",
	types.CategoryLighting:     "adjust_lighting",
	types.CategoryColorGrading: "adjust_color_grading",
}

var categoryLabels = map[types.Category]string{
	types.CategoryCameraMotion: "camera motion",
	types.CategoryLighting:     "lighting",
	types.CategoryColorGrading: "color grading",
}

// FeatureIndex 类别到首个特征的有序关联，同类别后续特征被忽略
type FeatureIndex struct {
	order []types.Category
	first map[types.Category]types.Feature
}

// IndexFeatures 按类别归组，首次出现者生效
func IndexFeatures(features []types.Feature) *FeatureIndex {
	idx := &FeatureIndex{first: make(map[types.Category]types.Feature, len(features))}
	for _, f := range features {
		if f.Category == "" {
			continue
		}
		if _, seen := idx.first[f.Category]; seen {
			continue
		}
		idx.first[f.Category] = f
		idx.order = append(idx.order, f.Category)
	}
	return idx
}

// Get 返回类别 c 记录的首个特征
func (idx *FeatureIndex) Get(c types.Category) (types.Feature, bool) {
	f, ok := idx.first[c]
	return f, ok
}

// Categories 按首次插入顺序返回类别
func (idx *FeatureIndex) Categories() []types.Category {
	return append([]types.Category(nil), idx.order...)
}

// Synthesizer 把对齐片段间的特征差异转成有序的改进动作
type Synthesizer struct {
	priority []types.Category
	logger   *zap.Logger
}

// NewSynthesizer 创建合成器，类别优先级固定为 camera_motion、lighting、color_grading
func NewSynthesizer(logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		priority: types.Categories(),
		logger:   logger.With(zap.String("component", "synthesizer")),
	}
}

// Synthesize 两端片段都存在的映射各产出一条结果
func (s *Synthesizer) Synthesize(user, target []types.Segment, mappings []types.Mapping) []types.SegmentImprovements {
	userByID := indexSegments(user)
	targetByID := indexSegments(target)

	out := make([]types.SegmentImprovements, 0, len(mappings))
	for _, m := range mappings {
		u, okU := userByID[m.UserSegmentID]
		t, okT := targetByID[m.TargetSegmentID]
		if !okU || !okT {
			s.logger.Warn("mapping refers to unknown segment, skipped",
				zap.String("user_segment_id", m.UserSegmentID),
				zap.String("target_segment_id", m.TargetSegmentID),
			)
			continue
		}
		out = append(out, types.SegmentImprovements{
			UserSegmentID:   m.UserSegmentID,
			TargetSegmentID: m.TargetSegmentID,
			Improvements:    s.SegmentActions(u, t),
		})
	}

	s.logger.Info("improvements synthesized", zap.Int("mappings", len(out)))
	return out
}

// SegmentActions 比较一对 user/target 片段
// 优先级按输出位置决定：第一条为 high，其余为 medium
func (s *Synthesizer) SegmentActions(user, target types.Segment) []types.ImprovementAction {
	userIdx := IndexFeatures(user.Features)
	targetIdx := IndexFeatures(target.Features)

	actions := make([]types.ImprovementAction, 0, len(s.priority))
	for _, category := range s.priority {
		tf, ok := targetIdx.Get(category)
		if !ok {
			continue
		}
		current := NoneValue
		if uf, ok := userIdx.Get(category); ok {
			current = uf.Value
		}
		if current == tf.Value {
			continue
		}

		step := len(actions) + 1
		priority := types.PriorityMedium
		if step == 1 {
			priority = types.PriorityHigh
		}

		action := types.ImprovementAction{
			Step:         step,
			Category:     category,
			ActionType:   actionTypes[category],
			Description:  fmt.Sprintf("Adjust %s to: %s", categoryLabels[category], tf.Value),
			TargetValue:  tf.Value,
			CurrentValue: current,
			Priority:     priority,
			Validation: types.ActionValidation{
				Expected:            tf.Value,
				ConfidenceThreshold: DefaultConfidenceThreshold,
			},
		}
		if category == types.CategoryCameraMotion {
			recipe := InferMotionRecipe(tf)
			action.MotionRecipe = &recipe
		}
		actions = append(actions, action)
	}
	return actions
}

func indexSegments(segments []types.Segment) map[string]types.Segment {
	m := make(map[string]types.Segment, len(segments))
	for _, s := range segments {
		if _, dup := m[s.SegmentID]; !dup {
			m[s.SegmentID] = s
		}
	}
	return m
}
