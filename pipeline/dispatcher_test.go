package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

func TestNew_SelectsPipelineByMode(t *testing.T) {
	h := newHarness(t)

	p, err := New("job_1", learnConfig(), h.deps())
	require.NoError(t, err)
	assert.IsType(t, &LearnPipeline{}, p)

	p, err = New("job_2", compareConfig(), h.deps())
	require.NoError(t, err)
	assert.IsType(t, &ComparePipeline{}, p)

	bad := compareConfig()
	bad.UserVideo = nil
	_, err = New("job_3", bad, h.deps())
	assert.Equal(t, types.KindValidation, types.KindOf(err))

	deps := h.deps()
	deps.Analyzer = nil
	_, err = New("job_4", learnConfig(), deps)
	assert.ErrorContains(t, err, "analyzer is required")
}

func TestSegmentProgress(t *testing.T) {
	cp := SegmentProgress(0, 4)
	assert.Equal(t, "feature_analysis", cp.Stage)
	assert.InDelta(t, 66.25, cp.Percent, 1e-9)
	assert.Equal(t, "分析特征 1/4", cp.Message)

	assert.InDelta(t, 85.0, SegmentProgress(3, 4).Percent, 1e-9)
}

func TestStageOf(t *testing.T) {
	err := &StageError{Stage: "ingest", Err: types.NewResourceError("boom", nil)}
	assert.Equal(t, "ingest", StageOf(err))
	assert.Equal(t, types.KindResource, types.KindOf(err))
	assert.Empty(t, StageOf(errors.New("plain")))
}

func TestDispatcher_PanicIsUnclassified(t *testing.T) {
	h := newHarness(t)
	h.analyzer.PanicOn = "seg_002"

	job := h.runJob(t, learnConfig())
	require.Equal(t, types.JobStatusFailed, job.Status)
	assert.Equal(t, types.KindUnclassified, job.Error.Kind())
	assert.Contains(t, job.Error.Message, "analyzer exploded")
}

func TestDispatcher_Registry(t *testing.T) {
	h := newHarness(t)
	h.analyzer.Gate = make(chan struct{})
	h.analyzer.Started = make(chan struct{}, 4)
	d := h.dispatcher(t)
	ctx := context.Background()

	first := h.createJob(t, learnConfig())
	second := h.createJob(t, learnConfig())
	require.NoError(t, d.Submit(ctx, first.ID, learnConfig()))
	require.NoError(t, d.Submit(ctx, second.ID, learnConfig()))

	assert.True(t, d.Running(first.ID))
	assert.True(t, d.Running(second.ID))
	assert.False(t, d.Running("job_unknown"))

	running := d.List()
	require.Len(t, running, 2)
	ids := []string{running[0].JobID, running[1].JobID}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)
	assert.Equal(t, types.ModeLearn, running[0].Mode)

	err := d.Submit(ctx, first.ID, learnConfig())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	got, err := h.store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusRunning, got.Status)

	close(h.analyzer.Gate)
	require.NoError(t, d.Wait(ctx, first.ID))
	require.NoError(t, d.Wait(ctx, second.ID))

	assert.False(t, d.Running(first.ID))
	assert.Empty(t, d.List())
	for _, id := range []string{first.ID, second.ID} {
		job, err := h.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, types.JobStatusSucceeded, job.Status)
	}
}

func TestDispatcher_WaitHonoursContext(t *testing.T) {
	h := newHarness(t)
	h.analyzer.Gate = make(chan struct{})
	h.analyzer.Started = make(chan struct{}, 1)
	d := h.dispatcher(t)
	defer close(h.analyzer.Gate)

	job := h.createJob(t, learnConfig())
	require.NoError(t, d.Submit(context.Background(), job.ID, learnConfig()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx, job.ID), context.DeadlineExceeded)
	assert.NoError(t, d.Wait(context.Background(), "job_unknown"))
}

func TestDispatcher_ShutdownCancelsRunningJobs(t *testing.T) {
	h := newHarness(t)
	h.analyzer.Gate = make(chan struct{})
	h.analyzer.Started = make(chan struct{}, 1)
	d := h.dispatcher(t)

	job := h.createJob(t, learnConfig())
	require.NoError(t, d.Submit(context.Background(), job.ID, learnConfig()))

	select {
	case <-h.analyzer.Started:
	case <-time.After(5 * time.Second):
		t.Fatal("analysis never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)
	require.NoError(t, d.Wait(context.Background(), job.ID))

	got, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, got.Status)
	assert.Equal(t, "feature_analysis", got.Error.Details["stage"])

	next := h.createJob(t, learnConfig())
	assert.ErrorIs(t, d.Submit(context.Background(), next.ID, learnConfig()), ErrDispatcherClosed)
	got, err = h.store.Get(context.Background(), next.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusQueued, got.Status)
}

func TestDispatcher_ShutdownWaitsForIdle(t *testing.T) {
	h := newHarness(t)
	d := h.dispatcher(t)
	assert.NoError(t, d.Shutdown(context.Background()))
	assert.Empty(t, d.List())
}

func TestDispatcher_SubmitRequiresQueuedJob(t *testing.T) {
	h := newHarness(t)
	d := h.dispatcher(t)

	err := d.Submit(context.Background(), "job_missing", learnConfig())
	assert.Error(t, err)
	assert.False(t, d.Running("job_missing"))

	bad := learnConfig()
	bad.TargetVideo.Source.Path = ""
	job := h.createJob(t, learnConfig())
	err = d.Submit(context.Background(), job.ID, bad)
	assert.Equal(t, types.KindValidation, types.KindOf(err))

	got, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusQueued, got.Status)
}

type countingRecorder struct {
	submitted, finished, stages, snapshots int
}

func (r *countingRecorder) RecordJobSubmitted(string)                               { r.submitted++ }
func (r *countingRecorder) RecordJobFinished(string, string, string, time.Duration) { r.finished++ }
func (r *countingRecorder) RecordStage(string, string, string, time.Duration)       { r.stages++ }
func (r *countingRecorder) RecordPartialSnapshot(string)                            { r.snapshots++ }

func TestMultiRecorder(t *testing.T) {
	a, b := &countingRecorder{}, &countingRecorder{}
	rec := MultiRecorder(a, nil, b)

	rec.RecordJobSubmitted("learn")
	rec.RecordStage("learn", "ingest", "ok", time.Second)
	rec.RecordStage("learn", "finalize", "ok", time.Second)
	rec.RecordPartialSnapshot("learn")
	rec.RecordJobFinished("learn", "succeeded", "", time.Minute)

	for _, r := range []*countingRecorder{a, b} {
		assert.Equal(t, 1, r.submitted)
		assert.Equal(t, 2, r.stages)
		assert.Equal(t, 1, r.snapshots)
		assert.Equal(t, 1, r.finished)
	}
	assert.NotPanics(t, func() { MultiRecorder().RecordJobSubmitted("compare") })
}
