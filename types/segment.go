package types

// Category is one of the three feature dimensions the analyzer attributes.
type Category string

const (
	CategoryCameraMotion Category = "camera_motion"
	CategoryLighting     Category = "lighting"
	CategoryColorGrading Category = "color_grading"
)

// Categories returns all categories in synthesis priority order.
func Categories() []Category {
	return []Category{CategoryCameraMotion, CategoryLighting, CategoryColorGrading}
}

// IsValid reports whether c is one of the enumerated categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryCameraMotion, CategoryLighting, CategoryColorGrading:
		return true
	default:
		return false
	}
}

// TimeRange is a [start_ms, end_ms] pair.
type TimeRange [2]float64

// Evidence holds the time ranges that support a feature.
type Evidence struct {
	TimeRangesMs []TimeRange `json:"time_ranges_ms"`
}

// DetailedDescription is the optional long-form explanation of a feature.
type DetailedDescription struct {
	Summary        string         `json:"summary"`
	TechnicalTerms []string       `json:"technical_terms"`
	Purpose        string         `json:"purpose"`
	Parameters     map[string]any `json:"parameters"`
	Diagram        string         `json:"diagram"`
}

// Feature is a single confidence-scored characteristic of a segment.
type Feature struct {
	Category            Category             `json:"category"`
	Type                string               `json:"type"`
	Value               string               `json:"value"`
	Confidence          float64              `json:"confidence"`
	Evidence            Evidence             `json:"evidence"`
	DetailedDescription *DetailedDescription `json:"detailed_description,omitempty"`
}

// Segment is a contiguous time interval of one video.
type Segment struct {
	SegmentID  string    `json:"segment_id"`
	StartMs    float64   `json:"start_ms"`
	EndMs      float64   `json:"end_ms"`
	DurationMs float64   `json:"duration_ms"`
	Features   []Feature `json:"features"`
}

// NewSegment builds a segment with duration derived from its bounds and an empty feature list.
func NewSegment(id string, startMs, endMs float64) Segment {
	return Segment{
		SegmentID:  id,
		StartMs:    startMs,
		EndMs:      endMs,
		DurationMs: endMs - startMs,
		Features:   []Feature{},
	}
}

// Bounds returns a copy of the segment without features.
func (s Segment) Bounds() Segment {
	return NewSegment(s.SegmentID, s.StartMs, s.EndMs)
}

// Frame is one entry of the extracted frame index.
type Frame struct {
	FrameID string  `json:"frame_id"`
	TsMs    float64 `json:"ts_ms"`
	Path    string  `json:"path"`
}

// Keyframe is the representative frame copied for a segment.
type Keyframe struct {
	SegmentID    string  `json:"segment_id"`
	KeyframePath string  `json:"keyframe_path"`
	TsMs         float64 `json:"ts_ms"`
}
