package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

// Metadata ffprobe 读出的视频信息
type Metadata struct {
	DurationMs float64
	Width      int
	Height     int
	FPS        float64
	Codec      string
}

type probeOutput struct {
	Streams []struct {
		CodecName  string `json:"codec_name"`
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe 读取容器与第一路视频流的元数据
func (f *FFmpeg) Probe(ctx context.Context, path string) (*Metadata, error) {
	stdout, _, err := f.runner.Run(ctx, f.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, types.NewResourceError("ffprobe failed", err)
	}
	meta, err := parseProbe(stdout)
	if err != nil {
		return nil, err
	}

	f.logger.Info("video probed",
		zap.String("path", path),
		zap.Float64("duration_ms", meta.DurationMs),
		zap.Float64("fps", meta.FPS),
		zap.String("codec", meta.Codec),
	)
	return meta, nil
}

func parseProbe(raw []byte) (*Metadata, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, types.NewResourceError("parse ffprobe output", err)
	}

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		codec := s.CodecName
		if codec == "" {
			codec = "unknown"
		}
		duration, _ := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
		return &Metadata{
			DurationMs: duration * 1000,
			Width:      s.Width,
			Height:     s.Height,
			FPS:        parseFrameRate(s.RFrameRate),
			Codec:      codec,
		}, nil
	}
	return nil, types.NewResourceError("no video stream found", nil)
}

// parseFrameRate accepts "30000/1001" or "25".
func parseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d <= 0 {
			return 0
		}
		return n / d
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func (m *Metadata) String() string {
	return fmt.Sprintf("%dx%d %.2ffps %.0fms %s", m.Width, m.Height, m.FPS, m.DurationMs, m.Codec)
}
