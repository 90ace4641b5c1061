package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	_, ok := RequestID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithJobID(ctx, "job_abc")

	v, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", v)

	v, ok = TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "trace-1", v)

	v, ok = JobID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "job_abc", v)

	_, ok = JobID(WithJobID(context.Background(), ""))
	assert.False(t, ok)

	v, ok = Subject(WithSubject(ctx, "studio-a"))
	assert.True(t, ok)
	assert.Equal(t, "studio-a", v)
}
