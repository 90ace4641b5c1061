package analyzer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

func frameIndex(n int, intervalMs float64) []types.Frame {
	frames := make([]types.Frame, n)
	for i := range frames {
		frames[i] = types.Frame{FrameID: fmt.Sprintf("f_%05d", i+1), TsMs: float64(i) * intervalMs}
	}
	return frames
}

func ids(frames []types.Frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.FrameID
	}
	return out
}

func TestSampleFrames(t *testing.T) {
	frames := frameIndex(10, 500)

	assert.Equal(t, []string{"f_00001", "f_00003", "f_00005", "f_00007", "f_00009"}, ids(SampleFrames(frames, 5)))
	assert.Len(t, SampleFrames(frames, 20), 10)
	assert.Len(t, SampleFrames(frames, 0), 10)
	assert.Empty(t, SampleFrames(nil, 5))
}

func TestFramesForSegment(t *testing.T) {
	frames := frameIndex(10, 500) // 0 .. 4500

	assert.Equal(t, []string{"f_00003", "f_00004", "f_00005"}, ids(FramesForSegment(frames, 1000, 2000)))

	// no frame inside the window
	assert.Equal(t, []string{"f_00004"}, ids(FramesForSegment(frames, 1600, 1700)))
	assert.Equal(t, []string{"f_00010"}, ids(FramesForSegment(frames, 9000, 9500)))

	assert.Nil(t, FramesForSegment(nil, 0, 1000))
}
