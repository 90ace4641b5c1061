package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func retryableErr(msg string) error {
	return types.NewError(types.ErrExternalCapability, msg).WithRetryable(true)
}

func TestRetryer_SuccessFirstAttempt(t *testing.T) {
	r := New(fastPolicy(3), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_RetryThenSuccess(t *testing.T) {
	r := New(fastPolicy(3), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return retryableErr("upstream 503")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryer_Exhausted(t *testing.T) {
	r := New(fastPolicy(2), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return retryableErr("upstream 503")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, 3, calls, "初始调用 + 2 次重试")
	assert.True(t, types.IsRetryable(err), "包装后仍可识别原始错误")
}

func TestRetryer_NonRetryableStopsImmediately(t *testing.T) {
	r := New(fastPolicy(5), zap.NewNop())

	calls := 0
	permanent := types.NewError(types.ErrInvalidRequest, "bad prompt")
	err := r.Do(context.Background(), func() error {
		calls++
		return permanent
	})

	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_PlainErrorsAreNotRetried(t *testing.T) {
	r := New(fastPolicy(3), nil)

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return errors.New("boom")
	})

	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1, calls)
}

func TestRetryer_CustomRetryable(t *testing.T) {
	policy := fastPolicy(2)
	policy.Retryable = func(error) bool { return true }
	var seen []int
	policy.OnRetry = func(attempt int, _ error, _ time.Duration) { seen = append(seen, attempt) }
	r := New(policy, zap.NewNop())

	calls := 0
	_ = r.Do(context.Background(), func() error {
		calls++
		return errors.New("boom")
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestRetryer_ContextCancelled(t *testing.T) {
	policy := fastPolicy(5)
	policy.InitialDelay = time.Second
	policy.MaxDelay = time.Second
	r := New(policy, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	calls := 0
	err := r.Do(ctx, func() error {
		calls++
		return retryableErr("timeout")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult(t *testing.T) {
	r := New(fastPolicy(2), zap.NewNop())

	calls := 0
	url, err := DoWithResult(context.Background(), r, func() (string, error) {
		calls++
		if calls == 1 {
			return "", retryableErr("429")
		}
		return "https://cdn.example/v.mp4", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/v.mp4", url)
	assert.Equal(t, 2, calls)
}

func TestRetryer_DelayBounds(t *testing.T) {
	r := New(Policy{
		MaxRetries:   10,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}, nil)

	assert.Equal(t, 10*time.Millisecond, r.delay(1))
	assert.Equal(t, 20*time.Millisecond, r.delay(2))
	assert.Equal(t, 40*time.Millisecond, r.delay(3))
	assert.Equal(t, 50*time.Millisecond, r.delay(4))
	assert.Equal(t, 50*time.Millisecond, r.delay(9))

	r.policy.Jitter = true
	for attempt := 1; attempt <= 6; attempt++ {
		d := r.delay(attempt)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, time.Duration(float64(50*time.Millisecond)*1.25))
	}
}

func TestNew_NormalizesPolicy(t *testing.T) {
	r := New(Policy{MaxRetries: -1}, nil)
	def := DefaultPolicy()

	assert.Equal(t, 0, r.policy.MaxRetries)
	assert.Equal(t, def.InitialDelay, r.policy.InitialDelay)
	assert.Equal(t, def.MaxDelay, r.policy.MaxDelay)
	assert.Equal(t, def.Multiplier, r.policy.Multiplier)
	assert.NotNil(t, r.policy.Retryable)
}
