package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/wyxpro/CubeAI-FlowDecompose/internal/pool"
)

// Runner 执行外部命令并返回输出
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs binaries with os/exec.
type ExecRunner struct {
	logger *zap.Logger
}

// NewExecRunner 创建基于 os/exec 的 Runner
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{logger: logger.With(zap.String("component", "exec"))}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.logger.Debug("executing command",
		zap.String("cmd", name),
		zap.Strings("args", args),
	)

	stdout := pool.ByteBufferPool.Get()
	stderr := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(stdout)
	defer pool.ByteBufferPool.Put(stderr)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	// 缓冲区会被放回池中，返回前复制
	outBytes, errBytes := bytes.Clone(stdout.Bytes()), bytes.Clone(stderr.Bytes())
	if err != nil {
		if ctx.Err() != nil {
			return outBytes, errBytes, ctx.Err()
		}
		return outBytes, errBytes, fmt.Errorf("%s failed: %w: %s", name, err, lastLines(stderr.String(), 5))
	}
	return outBytes, errBytes, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
