package compare

import (
	"strings"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

type namedRecipe struct {
	key    string
	recipe types.MotionRecipe
}

// motionRecipes 按顺序匹配，先命中者生效
var motionRecipes = []namedRecipe{
	{"push_in", types.MotionRecipe{Type: "push_in", Strength: 0.18, DurationMs: 3000}},
	{"pull_out", types.MotionRecipe{Type: "pull_out", Strength: 0.18, DurationMs: 3000}},
	{"pan_left", types.MotionRecipe{Type: "pan", Direction: "left", Strength: 0.15, DurationMs: 3000}},
	{"pan_right", types.MotionRecipe{Type: "pan", Direction: "right", Strength: 0.15, DurationMs: 3000}},
	{"tilt_up", types.MotionRecipe{Type: "tilt", Direction: "up", Strength: 0.15, DurationMs: 3000}},
	{"tilt_down", types.MotionRecipe{Type: "tilt", Direction: "down", Strength: 0.15, DurationMs: 3000}},
}

var defaultRecipe = types.MotionRecipe{Type: "push_in", Strength: 0.18, DurationMs: 3000}

// InferMotionRecipe 为 camera_motion 特征选择预览运镜参数
// 键出现在小写 type 中，或去掉下划线后出现在小写 value 中即视为命中
func InferMotionRecipe(f types.Feature) types.MotionRecipe {
	featureType := strings.ToLower(f.Type)
	value := strings.ToLower(f.Value)

	for _, nr := range motionRecipes {
		if strings.Contains(featureType, nr.key) ||
			strings.Contains(value, strings.ReplaceAll(nr.key, "_", "")) {
			return nr.recipe
		}
	}
	return defaultRecipe
}
