package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

// DefaultConfidence 置信度缺失或无法解析时的默认值
const DefaultConfidence = 0.75

// NormalizeFeatures 把分析结果整理成合法特征：
//
//   - 解开 {"features": [...]} 包装，其他非列表内容返回空
//   - 丢弃非对象条目
//   - 丢弃类别不在枚举内或 type/value 为空的条目
//   - confidence 缺省为 DefaultConfidence，并截断到 [0, 1]
//   - evidence.time_ranges_ms 缺失或格式错误时改为 [[startMs, endMs]]
func NormalizeFeatures(payload gjson.Result, startMs, endMs float64) []types.Feature {
	list := unwrap(payload, "features")
	out := []types.Feature{}
	if !list.IsArray() {
		return out
	}

	for _, item := range list.Array() {
		if !item.IsObject() {
			continue
		}
		category := types.Category(strings.TrimSpace(item.Get("category").String()))
		if !category.IsValid() {
			continue
		}
		typ := strings.TrimSpace(item.Get("type").String())
		value := strings.TrimSpace(item.Get("value").String())
		if typ == "" || value == "" {
			continue
		}

		f := types.Feature{
			Category:   category,
			Type:       typ,
			Value:      value,
			Confidence: normalizeConfidence(item.Get("confidence")),
			Evidence:   types.Evidence{TimeRangesMs: normalizeRanges(item.Get("evidence.time_ranges_ms"), startMs, endMs)},
		}
		if dd := item.Get("detailed_description"); dd.IsObject() {
			f.DetailedDescription = normalizeDescription(dd)
		}
		out = append(out, f)
	}
	return out
}

func normalizeConfidence(r gjson.Result) float64 {
	var c float64
	switch r.Type {
	case gjson.Number:
		c = r.Float()
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return DefaultConfidence
		}
		c = v
	default:
		return DefaultConfidence
	}
	switch {
	case math.IsNaN(c):
		return DefaultConfidence
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func normalizeRanges(r gjson.Result, startMs, endMs float64) []types.TimeRange {
	fallback := []types.TimeRange{{startMs, endMs}}
	if !r.IsArray() {
		return fallback
	}
	items := r.Array()
	if len(items) == 0 {
		return fallback
	}

	ranges := make([]types.TimeRange, 0, len(items))
	for _, pair := range items {
		if !pair.IsArray() {
			return fallback
		}
		vals := pair.Array()
		if len(vals) != 2 || vals[0].Type != gjson.Number || vals[1].Type != gjson.Number {
			return fallback
		}
		ranges = append(ranges, types.TimeRange{vals[0].Float(), vals[1].Float()})
	}
	return ranges
}

func normalizeDescription(dd gjson.Result) *types.DetailedDescription {
	d := &types.DetailedDescription{
		Summary:        dd.Get("summary").String(),
		TechnicalTerms: []string{},
		Purpose:        dd.Get("purpose").String(),
		Parameters:     map[string]any{},
		Diagram:        dd.Get("diagram").String(),
	}
	for _, t := range dd.Get("technical_terms").Array() {
		if t.Type == gjson.String {
			d.TechnicalTerms = append(d.TechnicalTerms, t.Str)
		}
	}
	if params := dd.Get("parameters"); params.IsObject() {
		if m, ok := params.Value().(map[string]any); ok {
			d.Parameters = m
		}
	}
	return d
}

// ParseBoundaries 把边界提议转成从 0 开始、有序且不重叠的片段
//
// 缺失的 id 补为 seg_%03d，重复的 id 改为下一个未占用的 seg_%03d；
// 缺失 end 时延伸到 totalMs。空区间和倒置区间先被丢弃，
// 之后保留下来的第一个片段起点才对齐到 0。
func ParseBoundaries(payload gjson.Result, totalMs float64) []types.Segment {
	list := unwrap(payload, "segments")
	if !list.IsArray() {
		return nil
	}

	type span struct {
		id         string
		start, end float64
	}
	spans := make([]span, 0, len(list.Array()))
	prevEnd := 0.0
	for i, item := range list.Array() {
		if !item.IsObject() {
			continue
		}
		id := item.Get("segment_id").String()
		if id == "" {
			id = fmt.Sprintf("seg_%03d", i+1)
		}
		start := prevEnd
		if s := item.Get("start_ms"); s.Type == gjson.Number {
			start = s.Float()
		}
		end := totalMs
		if e := item.Get("end_ms"); e.Type == gjson.Number {
			end = e.Float()
		}
		spans = append(spans, span{id: id, start: start, end: end})
		prevEnd = end
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	segments := make([]types.Segment, 0, len(spans))
	seen := make(map[string]bool, len(spans))
	cursor := 0.0
	for _, s := range spans {
		if s.end <= s.start {
			continue
		}
		start := s.start
		if len(segments) == 0 || start < cursor {
			start = cursor
		}
		if s.end <= start {
			continue
		}
		id := s.id
		for n := len(segments) + 1; seen[id]; n++ {
			id = fmt.Sprintf("seg_%03d", n)
		}
		seen[id] = true
		segments = append(segments, types.NewSegment(id, start, s.end))
		cursor = s.end
	}
	return segments
}
