package analyzer

import (
	"fmt"
	"strings"

	"github.com/wyxpro/CubeAI-FlowDecompose/terminology"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

var categoryFocus = map[types.Category]string{
	types.CategoryCameraMotion: "运镜方式和拍摄角度",
	types.CategoryLighting:     "光线布局（如主光位置、补光、轮廓光等）",
	types.CategoryColorGrading: "调色风格（如色温、饱和度、对比度风格等）",
}

// BoundaryPrompt 只要求模型给出镜头边界
func BoundaryPrompt(durationMs float64, sampled int) string {
	return fmt.Sprintf(`请识别这段视频的镜头切分（Shot Segmentation）。

视频总时长: %.0fms
提供的关键帧: %d帧

根据画面变化找出镜头切换点，只输出如下格式的 JSON 数组：

[
  {"segment_id": "seg_001", "start_ms": 0, "end_ms": 3500},
  {"segment_id": "seg_002", "start_ms": 3500, "end_ms": 8200}
]

要求：
1. segment_id 按顺序编号
2. 时间范围连续且互不重叠，覆盖整段视频
3. 不要输出 JSON 以外的任何文字
`, durationMs, sampled)
}

// FeaturePrompt 要求模型为固定片段归纳特征，不得重新切分
func FeaturePrompt(segmentID string, startMs, endMs float64, categories []types.Category, terms *terminology.Catalogue) string {
	var focus strings.Builder
	for _, c := range categories {
		desc, ok := categoryFocus[c]
		if !ok {
			desc = string(c)
		}
		fmt.Fprintf(&focus, "- %s: %s\n", c, desc)
	}

	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, string(c))
	}

	var glossary string
	if terms != nil {
		glossary = terms.PromptSection()
	}

	return fmt.Sprintf(`请分析这个视频片段的影视特征，镜头边界已经确定，不要重新切分。

%s
片段ID: %s
时间范围: %.0fms - %.0fms

需要分析的特征：
%s
只输出 JSON 数组，每个元素描述一个特征，例如：

[
  {
    "category": "camera_motion",
    "type": "push_in",
    "value": "推镜头",
    "confidence": 0.85,
    "evidence": {"time_ranges_ms": [[%.0f, %.0f]]},
    "detailed_description": {
      "summary": "摄像机缓慢向主体推进",
      "technical_terms": ["推镜头", "Dolly In"],
      "purpose": "引导观众注意力聚焦到主体",
      "parameters": {"speed": "缓慢"}
    }
  },
  {
    "category": "lighting",
    "type": "side_light",
    "value": "侧光",
    "confidence": 0.8,
    "evidence": {"time_ranges_ms": [[%.0f, %.0f]]},
    "detailed_description": {"diagram": "主光源 ↗ 左前上"}
  }
]

要求：
1. 覆盖所有启用的类别：%s
2. camera_motion 需要包含景别、运镜方式和拍摄角度
3. type 使用英文 key（如 push_in、medium_shot、low_angle），value 使用标准中文术语
4. value 只描述一个特征，不要使用连接词或列举
5. confidence 为 0 到 1 之间的数值
6. 特征不明显时可以省略该项
`, glossary, segmentID, startMs, endMs, focus.String(),
		startMs, endMs, startMs, endMs, strings.Join(names, "、"))
}
