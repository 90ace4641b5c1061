package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

// durationTolerance 容忍 duration_ms 的舍入误差（毫秒）
const durationTolerance = 1.0

// conjunctionMarkers 出现这些标记说明 value 描述了不止一个特征
var conjunctionMarkers = []string{"、", "，", "；", " and ", "以及", "/"}

// Warning 单特征约束告警，不会导致校验失败
type Warning struct {
	Path        string   `json:"path"`
	SegmentID   string   `json:"segment_id"`
	FeatureType string   `json:"feature_type"`
	Value       string   `json:"value"`
	Markers     []string `json:"markers"`
}

// Report 一次校验的软性结果
type Report struct {
	Segments int       `json:"segments"`
	Features int       `json:"features"`
	Warnings []Warning `json:"warnings"`
}

// HasWarnings 是否存在告警
func (r *Report) HasWarnings() bool {
	return r != nil && len(r.Warnings) > 0
}

// Validator 按片段/特征契约校验拆解结果
// 直接读原始 JSON，以便区分字段缺失与零值
type Validator struct {
	logger *zap.Logger
}

// New 创建校验器
func New(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{logger: logger.With(zap.String("component", "validator"))}
}

// Validate 接受 {"segments": [...]}、裸片段数组或带 target/user 的完整结果
// 遇到第一个结构错误即返回 *types.Error，并带上字段路径
func (v *Validator) Validate(raw []byte) (*Report, error) {
	if !gjson.ValidBytes(raw) {
		return nil, types.NewValidationError("$", "document is not valid JSON")
	}
	doc := gjson.ParseBytes(raw)

	report := &Report{Warnings: []Warning{}}
	for _, section := range sections(doc) {
		if err := v.checkSegments(section.value, section.path, report); err != nil {
			return nil, err
		}
	}

	if report.HasWarnings() {
		v.logger.Warn("single-feature constraint violations",
			zap.Int("count", len(report.Warnings)),
			zap.Any("warnings", report.Warnings),
		)
	}
	return report, nil
}

// ValidateSegments 把类型化片段序列化后校验
func (v *Validator) ValidateSegments(segments []types.Segment) (*Report, error) {
	if segments == nil {
		segments = []types.Segment{}
	}
	raw, err := json.Marshal(map[string]any{"segments": segments})
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "marshal segments").WithCause(err)
	}
	return v.Validate(raw)
}

// ValidatePartial 对中间快照做结构校验，特征为空的占位片段合法
func (v *Validator) ValidatePartial(p *types.PartialResult) (*Report, error) {
	if p == nil {
		return &Report{Warnings: []Warning{}}, nil
	}
	raw, err := json.Marshal(map[string]any{"segments": p.Target.Segments})
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "marshal partial result").WithCause(err)
	}
	return v.Validate(raw)
}

type section struct {
	path  string
	value gjson.Result
}

func sections(doc gjson.Result) []section {
	if doc.IsArray() {
		return []section{{path: "segments", value: doc}}
	}
	if doc.Get("segments").Exists() || !doc.Get("target").Exists() {
		return []section{{path: "segments", value: doc.Get("segments")}}
	}

	out := []section{{path: "target.segments", value: doc.Get("target.segments")}}
	if user := doc.Get("user"); user.Exists() && user.Type != gjson.Null {
		out = append(out, section{path: "user.segments", value: user.Get("segments")})
	}
	return out
}

func (v *Validator) checkSegments(segments gjson.Result, path string, report *Report) error {
	if !segments.Exists() {
		return types.NewValidationError(path, "is required")
	}
	if !segments.IsArray() {
		return types.NewValidationError(path, "must be an array")
	}

	ids := make(map[string]int, len(segments.Array()))
	for i, seg := range segments.Array() {
		segPath := fmt.Sprintf("%s[%d]", path, i)
		if !seg.IsObject() {
			return types.NewValidationError(segPath, "must be an object")
		}
		if err := requireString(seg, segPath, "segment_id"); err != nil {
			return err
		}
		id := seg.Get("segment_id").String()
		if first, dup := ids[id]; dup {
			return types.NewValidationError(segPath+".segment_id",
				fmt.Sprintf("duplicate segment_id %q (first at %s[%d])", id, path, first))
		}
		ids[id] = i

		for _, field := range []string{"start_ms", "end_ms", "duration_ms"} {
			if err := requireNumber(seg, segPath, field); err != nil {
				return err
			}
		}
		if err := checkInterval(seg, segPath); err != nil {
			return err
		}
		report.Segments++

		features := seg.Get("features")
		if !features.Exists() || features.Type == gjson.Null {
			continue
		}
		if !features.IsArray() {
			return types.NewValidationError(segPath+".features", "must be an array")
		}
		for j, f := range features.Array() {
			featPath := fmt.Sprintf("%s.features[%d]", segPath, j)
			if err := checkFeature(f, featPath); err != nil {
				return err
			}
			report.Features++
			if w, ok := singleFeatureWarning(f, featPath, seg.Get("segment_id").String()); ok {
				report.Warnings = append(report.Warnings, w)
			}
		}
	}
	return nil
}

func checkInterval(seg gjson.Result, path string) error {
	start := seg.Get("start_ms").Float()
	end := seg.Get("end_ms").Float()
	if start < 0 {
		return types.NewValidationError(path+".start_ms", "must not be negative")
	}
	if end < start {
		return types.NewValidationError(path+".end_ms", "must not precede start_ms")
	}
	if d := seg.Get("duration_ms").Float(); math.Abs(d-(end-start)) > durationTolerance {
		return types.NewValidationError(path+".duration_ms",
			fmt.Sprintf("must equal end_ms - start_ms (%g), got %g", end-start, d))
	}
	return nil
}

func checkFeature(f gjson.Result, path string) error {
	if !f.IsObject() {
		return types.NewValidationError(path, "must be an object")
	}

	if err := requireString(f, path, "category"); err != nil {
		return err
	}
	if c := types.Category(f.Get("category").String()); !c.IsValid() {
		return types.NewValidationError(path+".category", fmt.Sprintf("unknown category %q", c))
	}
	if err := requireString(f, path, "type"); err != nil {
		return err
	}
	if err := requireString(f, path, "value"); err != nil {
		return err
	}
	if err := requireNumber(f, path, "confidence"); err != nil {
		return err
	}
	if c := f.Get("confidence").Float(); c < 0 || c > 1 {
		return types.NewValidationError(path+".confidence", "must be within [0, 1]")
	}

	evidence := f.Get("evidence")
	if !evidence.Exists() {
		return types.NewValidationError(path+".evidence", "is required")
	}
	if !evidence.IsObject() {
		return types.NewValidationError(path+".evidence", "must be an object")
	}
	ranges := evidence.Get("time_ranges_ms")
	rangesPath := path + ".evidence.time_ranges_ms"
	if !ranges.Exists() {
		return types.NewValidationError(rangesPath, "is required")
	}
	if !ranges.IsArray() {
		return types.NewValidationError(rangesPath, "must be an array")
	}
	if len(ranges.Array()) == 0 {
		return types.NewValidationError(rangesPath, "must not be empty")
	}
	for k, r := range ranges.Array() {
		pairPath := fmt.Sprintf("%s[%d]", rangesPath, k)
		if !r.IsArray() {
			return types.NewValidationError(pairPath, "must be a [start, end] pair")
		}
		pair := r.Array()
		if len(pair) != 2 {
			return types.NewValidationError(pairPath, "must contain exactly 2 numbers")
		}
		for _, n := range pair {
			if n.Type != gjson.Number {
				return types.NewValidationError(pairPath, "must contain numbers")
			}
		}
	}

	if dd := f.Get("detailed_description"); dd.Exists() && dd.Type != gjson.Null && !dd.IsObject() {
		return types.NewValidationError(path+".detailed_description", "must be an object")
	}
	return nil
}

func singleFeatureWarning(f gjson.Result, path, segmentID string) (Warning, bool) {
	value := f.Get("value").String()
	var found []string
	for _, m := range conjunctionMarkers {
		if strings.Contains(value, m) {
			found = append(found, m)
		}
	}
	if len(found) == 0 {
		return Warning{}, false
	}
	return Warning{
		Path:        path + ".value",
		SegmentID:   segmentID,
		FeatureType: f.Get("type").String(),
		Value:       value,
		Markers:     found,
	}, true
}

func requireString(obj gjson.Result, path, field string) error {
	r := obj.Get(field)
	if !r.Exists() || r.Type == gjson.Null {
		return types.NewValidationError(path+"."+field, "is required")
	}
	if r.Type != gjson.String {
		return types.NewValidationError(path+"."+field, "must be a string")
	}
	return nil
}

func requireNumber(obj gjson.Result, path, field string) error {
	r := obj.Get(field)
	if !r.Exists() || r.Type == gjson.Null {
		return types.NewValidationError(path+"."+field, "is required")
	}
	if r.Type != gjson.Number {
		return types.NewValidationError(path+"."+field, "must be a number")
	}
	return nil
}
