package types

// DetectionMethod records which source produced the segment boundaries.
type DetectionMethod string

const (
	DetectionCV  DetectionMethod = "cv"
	DetectionLLM DetectionMethod = "llm"
)

// Priority of an improvement action.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// Mapping pairs a user segment with its best-matching target segment.
type Mapping struct {
	UserSegmentID   string  `json:"user_segment_id"`
	TargetSegmentID string  `json:"target_segment_id"`
	Confidence      float64 `json:"confidence"`
	Reason          string  `json:"reason"`
}

// MotionRecipe drives the virtual-motion preview renderer.
type MotionRecipe struct {
	Type       string  `json:"type"`
	Direction  string  `json:"direction,omitempty"`
	Strength   float64 `json:"strength"`
	DurationMs int     `json:"duration_ms"`
}

// ActionValidation is the acceptance check attached to an action.
type ActionValidation struct {
	Expected            string  `json:"expected"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// ImprovementAction is one ordered corrective instruction.
type ImprovementAction struct {
	Step         int              `json:"step"`
	Category     Category         `json:"category"`
	ActionType   string           `json:"action_type"`
	Description  string           `json:"description"`
	TargetValue  string           `json:"target_value"`
	CurrentValue string           `json:"current_value"`
	Priority     Priority         `json:"priority"`
	Validation   ActionValidation `json:"validation"`
	MotionRecipe *MotionRecipe    `json:"motion_recipe,omitempty"`
}

// SegmentImprovements groups the actions produced for one mapping.
type SegmentImprovements struct {
	UserSegmentID   string              `json:"user_segment_id"`
	TargetSegmentID string              `json:"target_segment_id"`
	Improvements    []ImprovementAction `json:"improvements"`
}

// Comparison is the compare-mode section of a result.
type Comparison struct {
	Mappings     []Mapping             `json:"mappings"`
	Improvements []SegmentImprovements `json:"improvements"`
}

// AssetResult is the decomposition of one video.
type AssetResult struct {
	AssetID         string          `json:"asset_id"`
	Segments        []Segment       `json:"segments"`
	Keyframes       []Keyframe      `json:"keyframes"`
	DetectionMethod DetectionMethod `json:"detection_method,omitempty"`
}

// Result is the final, stable output of a succeeded job.
type Result struct {
	Mode       JobMode      `json:"mode"`
	Target     AssetResult  `json:"target"`
	User       *AssetResult `json:"user,omitempty"`
	Comparison *Comparison  `json:"comparison,omitempty"`
}

// SnapshotSegment is a segment as seen in a partial result.
type SnapshotSegment struct {
	Segment
	Analyzing bool `json:"analyzing"`
}

// PartialTarget is the in-progress view of the target asset.
type PartialTarget struct {
	AssetID         string            `json:"asset_id,omitempty"`
	Segments        []SnapshotSegment `json:"segments"`
	DetectionMethod DetectionMethod   `json:"detection_method"`
	Analyzing       bool              `json:"analyzing"`
}

// PartialResult is the latest in-progress snapshot of a running job.
type PartialResult struct {
	Mode   JobMode       `json:"mode"`
	Target PartialTarget `json:"target"`
}

// CompletedCount returns how many snapshot segments are no longer analyzing.
func (p *PartialResult) CompletedCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, s := range p.Target.Segments {
		if !s.Analyzing {
			n++
		}
	}
	return n
}
