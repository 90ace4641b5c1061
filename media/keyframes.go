package media

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

// ClosestFrame 返回离 tsMs 最近的帧，距离相同取较早的一帧
func ClosestFrame(frames []types.Frame, tsMs float64) (types.Frame, bool) {
	if len(frames) == 0 {
		return types.Frame{}, false
	}
	best := frames[0]
	bestDist := math.Abs(best.TsMs - tsMs)
	for _, f := range frames[1:] {
		if d := math.Abs(f.TsMs - tsMs); d < bestDist {
			best, bestDist = f, d
		}
	}
	return best, true
}

// WriteKeyframes 把离每个片段中点最近的帧复制为 <dir>/<role>_<segment_id>_key.jpg
func WriteKeyframes(frames []types.Frame, segments []types.Segment, dir string, role types.AssetRole) ([]types.Keyframe, error) {
	keyframes := make([]types.Keyframe, 0, len(segments))
	if len(frames) == 0 {
		return keyframes, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, types.NewResourceError("create keyframes directory", err)
	}

	for _, s := range segments {
		f, _ := ClosestFrame(frames, (s.StartMs+s.EndMs)/2)
		dst := filepath.Join(dir, fmt.Sprintf("%s_%s_key.jpg", role, s.SegmentID))
		if err := copyFile(f.Path, dst); err != nil {
			return nil, types.NewResourceError(fmt.Sprintf("copy keyframe for %s", s.SegmentID), err)
		}
		keyframes = append(keyframes, types.Keyframe{
			SegmentID:    s.SegmentID,
			KeyframePath: dst,
			TsMs:         f.TsMs,
		})
	}
	return keyframes, nil
}
