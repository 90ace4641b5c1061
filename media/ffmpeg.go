package media

import (
	"go.uber.org/zap"
)

// Config 外部命令路径
type Config struct {
	FFmpegBin  string `yaml:"ffmpeg_bin" env:"FFMPEG_BIN"`
	FFprobeBin string `yaml:"ffprobe_bin" env:"FFPROBE_BIN"`
}

// DefaultConfig 从 PATH 查找 ffmpeg 与 ffprobe
func DefaultConfig() Config {
	return Config{FFmpegBin: "ffmpeg", FFprobeBin: "ffprobe"}
}

// FFmpeg 封装 ffmpeg 与 ffprobe 调用
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	runner  Runner
	logger  *zap.Logger
}

// NewFFmpeg 创建封装，runner 为 nil 时使用 os/exec
func NewFFmpeg(cfg Config, runner Runner, logger *zap.Logger) *FFmpeg {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.FFmpegBin == "" {
		cfg.FFmpegBin = def.FFmpegBin
	}
	if cfg.FFprobeBin == "" {
		cfg.FFprobeBin = def.FFprobeBin
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &FFmpeg{
		ffmpeg:  cfg.FFmpegBin,
		ffprobe: cfg.FFprobeBin,
		runner:  runner,
		logger:  logger.With(zap.String("component", "ffmpeg")),
	}
}
