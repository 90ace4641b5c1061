// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和任务相关断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	job := testutil.WaitForJob(t, st, jobID, 5*time.Second)
//	testutil.AssertContiguousSegments(t, job.Result.Target.Segments, 6000)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/wyxpro/CubeAI-FlowDecompose/store"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertJSONEqual 断言两个值的 JSON 表示相等
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to marshal expected: %v", err)
	}
	actualJSON, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("failed to marshal actual: %v", err)
	}
	if string(expectedJSON) != string(actualJSON) {
		t.Errorf("JSON mismatch:\nexpected: %s\nactual: %s", expectedJSON, actualJSON)
	}
}

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// AssertContiguousSegments 断言片段从 0 开始首尾相接、编号为 seg_001.. 且覆盖 totalMs
func AssertContiguousSegments(t *testing.T, segments []types.Segment, totalMs float64) {
	t.Helper()

	if len(segments) == 0 {
		t.Errorf("expected at least one segment")
		return
	}
	var cursor float64
	for i, s := range segments {
		if want := fmt.Sprintf("seg_%03d", i+1); s.SegmentID != want {
			t.Errorf("segment[%d] id = %q, want %q", i, s.SegmentID, want)
		}
		if !almostEqual(s.StartMs, cursor) {
			t.Errorf("segment[%d] starts at %v, want %v", i, s.StartMs, cursor)
		}
		if s.EndMs <= s.StartMs {
			t.Errorf("segment[%d] is empty: [%v, %v]", i, s.StartMs, s.EndMs)
		}
		if !almostEqual(s.DurationMs, s.EndMs-s.StartMs) {
			t.Errorf("segment[%d] duration %v does not match bounds", i, s.DurationMs)
		}
		cursor = s.EndMs
	}
	if totalMs > 0 && !almostEqual(cursor, totalMs) {
		t.Errorf("segments end at %v, want %v", cursor, totalMs)
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// WaitForJob 轮询任务直到进入终态
func WaitForJob(t *testing.T, st store.JobStore, jobID string, timeout time.Duration) *types.Job {
	t.Helper()

	var job *types.Job
	ok := WaitFor(func() bool {
		got, err := st.Get(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = got
		return got.Status.IsTerminal()
	}, timeout)
	if !ok {
		status := types.JobStatus("unknown")
		if job != nil {
			status = job.Status
		}
		t.Fatalf("job %s not terminal within %v (status %s)", jobID, timeout, status)
	}
	return job
}

// =============================================================================
// 🔧 测试数据辅助
// =============================================================================

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// MustParseJSON 解析 JSON 字符串，失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}
