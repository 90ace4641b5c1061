package motion

import (
	"strings"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

const (
	DefaultStrength   = 0.18
	DefaultDurationMs = 3000

	MinDurationMs = 1000
	MaxDurationMs = 10000
)

// NormalizeRecipe 补全默认值并检查参数范围
func NormalizeRecipe(r types.MotionRecipe) (types.MotionRecipe, error) {
	r.Type = strings.TrimSpace(r.Type)
	if r.Type == "" {
		return r, types.NewValidationError("motion_recipe.type", "is required")
	}
	if r.Strength == 0 {
		r.Strength = DefaultStrength
	}
	if r.DurationMs == 0 {
		r.DurationMs = DefaultDurationMs
	}
	if r.Strength < 0 || r.Strength > 1 {
		return r, types.NewValidationError("motion_recipe.strength", "must be within [0, 1]")
	}
	if r.DurationMs < MinDurationMs || r.DurationMs > MaxDurationMs {
		return r, types.NewValidationError("motion_recipe.duration_ms", "must be within [1000, 10000]")
	}
	return r, nil
}
