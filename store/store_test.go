package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyxpro/CubeAI-FlowDecompose/config"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/database"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type storeFactory func(t *testing.T) JobStore

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) JobStore {
			return NewMemoryStore()
		},
		"gorm": func(t *testing.T) JobStore {
			dialector, err := database.Dialector(config.DatabaseConfig{
				Driver: "sqlite",
				Name:   filepath.Join(t.TempDir(), "store.db"),
			})
			require.NoError(t, err)
			db, err := gorm.Open(dialector, &gorm.Config{
				Logger: logger.Default.LogMode(logger.Silent),
			})
			require.NoError(t, err)
			sqlDB, err := db.DB()
			require.NoError(t, err)
			sqlDB.SetMaxOpenConns(1)
			t.Cleanup(func() { _ = sqlDB.Close() })

			s := NewGormStore(db, zap.NewNop())
			require.NoError(t, s.AutoMigrate())
			return s
		},
		"redis": func(t *testing.T) JobStore {
			mr, err := miniredis.Run()
			require.NoError(t, err)
			t.Cleanup(mr.Close)

			s, err := DialRedisStore(&redis.Options{Addr: mr.Addr()}, "test:", zap.NewNop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s JobStore)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func sampleResult() *types.Result {
	seg := types.NewSegment("seg_001", 0, 1500)
	seg.Features = []types.Feature{{
		Category:   types.CategoryLighting,
		Type:       "soft",
		Value:      "柔光",
		Confidence: 0.8,
		Evidence:   types.Evidence{TimeRangesMs: []types.TimeRange{{0, 1500}}},
	}}
	return &types.Result{
		Mode: types.ModeLearn,
		Target: types.AssetResult{
			AssetID:         "job_x_target",
			Segments:        []types.Segment{seg},
			Keyframes:       []types.Keyframe{},
			DetectionMethod: types.DetectionCV,
		},
	}
}

func TestJobStore_Lifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s JobStore) {
		ctx := context.Background()
		job := types.NewJob(types.ModeLearn)
		require.NoError(t, s.Create(ctx, job))

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, types.JobStatusQueued, got.Status)
		assert.Nil(t, got.StartedAt)

		require.NoError(t, s.UpdateStatus(ctx, job.ID, types.JobStatusRunning, nil))
		require.NoError(t, s.UpdateProgress(ctx, job.ID, types.Progress{Stage: "ingest", Percent: 10, Message: "downloading video"}))

		partial := &types.PartialResult{
			Mode: types.ModeLearn,
			Target: types.PartialTarget{
				Segments:        []types.SnapshotSegment{{Segment: types.NewSegment("seg_001", 0, 1500), Analyzing: true}},
				DetectionMethod: types.DetectionCV,
				Analyzing:       true,
			},
		}
		require.NoError(t, s.SavePartialResult(ctx, job.ID, partial))

		got, err = s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, types.JobStatusRunning, got.Status)
		require.NotNil(t, got.StartedAt)
		assert.Equal(t, "ingest", got.Progress.Stage)
		require.NotNil(t, got.PartialResult)
		assert.True(t, got.PartialResult.Target.Segments[0].Analyzing)

		require.NoError(t, s.SaveResult(ctx, job.ID, sampleResult()))

		got, err = s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, types.JobStatusSucceeded, got.Status)
		assert.Equal(t, CompletedProgress, got.Progress)
		require.NotNil(t, got.CompletedAt)
		require.NotNil(t, got.Result)
		assert.Equal(t, "柔光", got.Result.Target.Segments[0].Features[0].Value)

		// terminal jobs are immutable
		assert.ErrorIs(t, s.UpdateProgress(ctx, job.ID, types.Progress{Percent: 50}), ErrJobTerminal)
		assert.ErrorIs(t, s.UpdateStatus(ctx, job.ID, types.JobStatusFailed, nil), ErrJobTerminal)
		assert.ErrorIs(t, s.SavePartialResult(ctx, job.ID, partial), ErrJobTerminal)
	})
}

func TestJobStore_Failure(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s JobStore) {
		ctx := context.Background()
		job := types.NewJob(types.ModeCompare)
		require.NoError(t, s.Create(ctx, job))
		require.NoError(t, s.UpdateStatus(ctx, job.ID, types.JobStatusRunning, nil))

		cause := types.NewValidationError("target.segments[0].duration_ms", "must be a number")
		require.NoError(t, s.UpdateStatus(ctx, job.ID, types.JobStatusFailed, types.NewJobError(cause, "finalize")))

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, types.JobStatusFailed, got.Status)
		require.NotNil(t, got.Error)
		assert.Equal(t, types.KindValidation, got.Error.Kind())
		assert.Equal(t, "finalize", got.Error.Details["stage"])
		assert.Equal(t, "target.segments[0].duration_ms", got.Error.Details["path"])
		assert.Nil(t, got.Result)
	})
}

func TestJobStore_Transitions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s JobStore) {
		ctx := context.Background()
		job := types.NewJob(types.ModeLearn)
		require.NoError(t, s.Create(ctx, job))

		assert.ErrorIs(t, s.UpdateStatus(ctx, job.ID, types.JobStatusSucceeded, nil), ErrInvalidTransition)
		assert.ErrorIs(t, s.SaveResult(ctx, job.ID, sampleResult()), ErrInvalidTransition)
		assert.ErrorIs(t, s.UpdateProgress(ctx, job.ID, types.Progress{Percent: 101}), ErrInvalidInput)

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, types.JobStatusQueued, got.Status)
	})
}

func TestJobStore_CreateAndGetErrors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s JobStore) {
		ctx := context.Background()
		job := types.NewJob(types.ModeLearn)
		require.NoError(t, s.Create(ctx, job))

		assert.ErrorIs(t, s.Create(ctx, &types.Job{ID: job.ID, Mode: types.ModeLearn}), ErrAlreadyExists)
		assert.ErrorIs(t, s.Create(ctx, &types.Job{Mode: types.ModeLearn}), ErrInvalidInput)
		assert.ErrorIs(t, s.Create(ctx, &types.Job{ID: "job_x", Mode: "remix"}), ErrInvalidInput)

		_, err := s.Get(ctx, "job_missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.UpdateProgress(ctx, "job_missing", types.Progress{}), ErrNotFound)
	})
}

func TestJobStore_List(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s JobStore) {
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Hour)

		var ids []string
		for i := 0; i < 4; i++ {
			mode := types.ModeLearn
			if i%2 == 1 {
				mode = types.ModeCompare
			}
			job := types.NewJob(mode)
			job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			job.UpdatedAt = job.CreatedAt
			require.NoError(t, s.Create(ctx, job))
			ids = append(ids, job.ID)
		}
		require.NoError(t, s.UpdateStatus(ctx, ids[3], types.JobStatusRunning, nil))

		all, err := s.List(ctx, JobFilter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, ids[3], all[0].ID, "newest first")
		assert.Equal(t, ids[0], all[3].ID)

		running, err := s.List(ctx, JobFilter{Status: []types.JobStatus{types.JobStatusRunning}})
		require.NoError(t, err)
		require.Len(t, running, 1)
		assert.Equal(t, ids[3], running[0].ID)

		queued, err := s.List(ctx, JobFilter{Status: []types.JobStatus{types.JobStatusQueued}})
		require.NoError(t, err)
		assert.Len(t, queued, 3)

		compare, err := s.List(ctx, JobFilter{Mode: types.ModeCompare, Limit: 1})
		require.NoError(t, err)
		require.Len(t, compare, 1)
		assert.Equal(t, ids[3], compare[0].ID)

		paged, err := s.List(ctx, JobFilter{Offset: 1, Limit: 2})
		require.NoError(t, err)
		require.Len(t, paged, 2)
		assert.Equal(t, ids[2], paged[0].ID)
	})
}

func TestJobStore_AssetsAndArtifacts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s JobStore) {
		ctx := context.Background()
		now := time.Now().UTC()

		target := &types.Asset{ID: "job_a_target", JobID: "job_a", Role: types.RoleTarget,
			Source: types.VideoSource{Type: types.SourceURL, URL: "http://x/v.mp4"}, FPS: 25, Codec: "h264", CreatedAt: now}
		user := &types.Asset{ID: "job_a_user", JobID: "job_a", Role: types.RoleUser,
			Source: types.VideoSource{Type: types.SourceFile, Path: "/tmp/u.mp4"}, CreatedAt: now.Add(time.Second)}
		require.NoError(t, s.SaveAsset(ctx, target))
		require.NoError(t, s.SaveAsset(ctx, user))

		target.DurationMs = 9000
		require.NoError(t, s.SaveAsset(ctx, target))

		assets, err := s.ListAssets(ctx, "job_a")
		require.NoError(t, err)
		require.Len(t, assets, 2)
		assert.Equal(t, "job_a_target", assets[0].ID)
		assert.Equal(t, 9000.0, assets[0].DurationMs)
		assert.Equal(t, "http://x/v.mp4", assets[0].Source.URL)

		art := types.NewArtifact("job_a", types.ArtifactKeyframe, "/data/k.jpg")
		art.AssetRole = types.RoleTarget
		art.SegmentID = "seg_001"
		art.Metadata = map[string]string{"ts_ms": "750"}
		require.NoError(t, s.SaveArtifact(ctx, art))
		require.NoError(t, s.SaveArtifact(ctx, types.NewArtifact("job_a", types.ArtifactResultJSON, "/data/result.json")))

		arts, err := s.ListArtifacts(ctx, "job_a")
		require.NoError(t, err)
		require.Len(t, arts, 2)
		assert.Equal(t, types.ArtifactKeyframe, arts[0].Type)
		assert.Equal(t, "750", arts[0].Metadata["ts_ms"])

		none, err := s.ListArtifacts(ctx, "job_none")
		require.NoError(t, err)
		assert.Empty(t, none)

		assert.ErrorIs(t, s.SaveAsset(ctx, &types.Asset{}), ErrInvalidInput)
	})
}

func TestJobStore_VirtualMotion(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s JobStore) {
		ctx := context.Background()
		vm := &types.VirtualMotionJob{
			ID:           types.NewVirtualMotionID(),
			ParentJobID:  "job_p",
			AssetRole:    types.RoleUser,
			SegmentID:    "seg_002",
			MotionRecipe: types.MotionRecipe{Type: "pan", Direction: "left", Strength: 0.15, DurationMs: 3000},
		}
		require.NoError(t, s.CreateVirtualMotion(ctx, vm))
		assert.ErrorIs(t, s.CreateVirtualMotion(ctx, vm), ErrAlreadyExists)

		got, err := s.GetVirtualMotion(ctx, vm.ID)
		require.NoError(t, err)
		assert.Equal(t, types.JobStatusQueued, got.Status)
		assert.Equal(t, "left", got.MotionRecipe.Direction)

		got.Status = types.JobStatusRunning
		require.NoError(t, s.UpdateVirtualMotion(ctx, got))
		got.Status = types.JobStatusSucceeded
		got.ResultVideoPath = "/data/jobs/job_p/previews/" + vm.ID + ".mp4"
		require.NoError(t, s.UpdateVirtualMotion(ctx, got))

		done, err := s.GetVirtualMotion(ctx, vm.ID)
		require.NoError(t, err)
		assert.Equal(t, types.JobStatusSucceeded, done.Status)
		assert.NotNil(t, done.CompletedAt)
		assert.Equal(t, got.ResultVideoPath, done.ResultVideoPath)

		done.Status = types.JobStatusFailed
		assert.ErrorIs(t, s.UpdateVirtualMotion(ctx, done), ErrJobTerminal)

		_, err = s.GetVirtualMotion(ctx, "vm_missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestJobStore_Closed(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s JobStore) {
		require.NoError(t, s.Close())
		err := s.Ping(context.Background())
		assert.True(t, errors.Is(err, ErrStoreClosed))
		_, err = s.Get(context.Background(), "job_x")
		assert.ErrorIs(t, err, ErrStoreClosed)
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := types.NewJob(types.ModeLearn)
	require.NoError(t, s.Create(ctx, job))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	got.Status = types.JobStatusFailed

	again, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusQueued, again.Status)
}

func TestRedisStore_StatusIndex(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStore(client, "", nil)

	ctx := context.Background()
	job := types.NewJob(types.ModeLearn)
	require.NoError(t, s.Create(ctx, job))
	require.NoError(t, s.UpdateStatus(ctx, job.ID, types.JobStatusRunning, nil))

	queued, err := mr.ZMembers(DefaultRedisKeyPrefix + "job:status:queued")
	if err == nil {
		assert.NotContains(t, queued, job.ID)
	}
	running, err := mr.ZMembers(DefaultRedisKeyPrefix + "job:status:running")
	require.NoError(t, err)
	assert.Contains(t, running, job.ID)

	// closing a borrowed client leaves it usable
	require.NoError(t, s.Close())
	assert.NoError(t, client.Ping(ctx).Err())
}

func TestNew(t *testing.T) {
	s, err := New(Config{Type: TypeMemory}, Backends{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New(Config{Type: TypeDatabase}, Backends{})
	assert.Error(t, err)
	_, err = New(Config{Type: TypeRedis}, Backends{})
	assert.Error(t, err)
	_, err = New(Config{Type: "file"}, Backends{})
	assert.Error(t, err)
}
