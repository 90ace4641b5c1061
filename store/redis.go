package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

// DefaultRedisKeyPrefix namespaces every key written by RedisStore.
const DefaultRedisKeyPrefix = "flowdecompose:"

// RedisStore is a Redis-based JobStore. Jobs are JSON strings indexed by
// sorted sets on creation time, globally and per status.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ownClient bool
	logger    *zap.Logger
	closed    atomic.Bool
}

var _ JobStore = (*RedisStore)(nil)

// NewRedisStore wraps an existing client, for example the cache manager's.
func NewRedisStore(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "redis_store")),
	}
}

// DialRedisStore opens its own connection and checks it.
func DialRedisStore(opts *redis.Options, keyPrefix string, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := NewRedisStore(client, keyPrefix, logger)
	s.ownClient = true
	return s, nil
}

// Close closes the connection when the store opened it.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}

// Ping implements JobStore.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) jobKey(id string) string { return s.keyPrefix + "job:data:" + id }
func (s *RedisStore) allJobsKey() string     { return s.keyPrefix + "job:all" }
func (s *RedisStore) statusKey(st types.JobStatus) string {
	return s.keyPrefix + "job:status:" + string(st)
}
func (s *RedisStore) assetsKey(jobID string) string    { return s.keyPrefix + "job:assets:" + jobID }
func (s *RedisStore) artifactsKey(jobID string) string { return s.keyPrefix + "job:artifacts:" + jobID }
func (s *RedisStore) motionKey(id string) string       { return s.keyPrefix + "vm:data:" + id }

func (s *RedisStore) check() error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return nil
}

func (s *RedisStore) Create(ctx context.Context, job *types.Job) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := validateNewJob(job); err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.jobKey(job.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: job %s", ErrAlreadyExists, job.ID)
	}

	score := float64(job.CreatedAt.UnixNano())
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.allJobsKey(), redis.Z{Score: score, Member: job.ID})
	pipe.ZAdd(ctx, s.statusKey(job.Status), redis.Z{Score: score, Member: job.ID})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (*types.Job, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.load(ctx, s.client, jobID)
}

func (s *RedisStore) load(ctx context.Context, c redis.Cmdable, jobID string) (*types.Job, error) {
	data, err := c.Get(ctx, s.jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, err
	}
	var job types.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *RedisStore) List(ctx context.Context, filter JobFilter) ([]*types.Job, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	index := s.allJobsKey()
	if len(filter.Status) == 1 {
		index = s.statusKey(filter.Status[0])
	}
	ids, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*types.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.load(ctx, s.client, id)
		if err != nil {
			s.logger.Warn("skipping unreadable job", zap.String("job_id", id), zap.Error(err))
			continue
		}
		if filter.matches(job) {
			jobs = append(jobs, job)
		}
	}
	return page(jobs, filter), nil
}

func (s *RedisStore) UpdateStatus(ctx context.Context, jobID string, status types.JobStatus, jobErr *types.JobError) error {
	return s.mutate(ctx, jobID, func(job *types.Job, now time.Time) error {
		return applyStatus(job, status, jobErr, now)
	})
}

func (s *RedisStore) UpdateProgress(ctx context.Context, jobID string, progress types.Progress) error {
	return s.mutate(ctx, jobID, func(job *types.Job, now time.Time) error {
		return applyProgress(job, progress, now)
	})
}

func (s *RedisStore) SaveResult(ctx context.Context, jobID string, result *types.Result) error {
	return s.mutate(ctx, jobID, func(job *types.Job, now time.Time) error {
		return applyResult(job, result, now)
	})
}

func (s *RedisStore) SavePartialResult(ctx context.Context, jobID string, partial *types.PartialResult) error {
	return s.mutate(ctx, jobID, func(job *types.Job, now time.Time) error {
		return applyPartial(job, partial, now)
	})
}

// mutate rewrites the job under WATCH so that concurrent writers cannot
// interleave, and moves it between status indexes.
func (s *RedisStore) mutate(ctx context.Context, jobID string, fn func(*types.Job, time.Time) error) error {
	if err := s.check(); err != nil {
		return err
	}
	key := s.jobKey(jobID)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		job, err := s.load(ctx, tx, jobID)
		if err != nil {
			return err
		}
		oldStatus := job.Status
		if err := fn(job, time.Now().UTC()); err != nil {
			return err
		}
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if oldStatus != job.Status {
				pipe.ZRem(ctx, s.statusKey(oldStatus), job.ID)
				pipe.ZAdd(ctx, s.statusKey(job.Status), redis.Z{Score: float64(job.CreatedAt.UnixNano()), Member: job.ID})
			}
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) SaveAsset(ctx context.Context, asset *types.Asset) error {
	if err := s.check(); err != nil {
		return err
	}
	if asset == nil || asset.ID == "" || asset.JobID == "" {
		return fmt.Errorf("%w: asset requires id and job id", ErrInvalidInput)
	}
	data, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("failed to marshal asset: %w", err)
	}
	return s.client.HSet(ctx, s.assetsKey(asset.JobID), asset.ID, data).Err()
}

func (s *RedisStore) ListAssets(ctx context.Context, jobID string) ([]*types.Asset, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	m, err := s.client.HGetAll(ctx, s.assetsKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*types.Asset, 0, len(m))
	for _, raw := range m {
		var a types.Asset
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal asset: %w", err)
		}
		out = append(out, &a)
	}
	sortAssets(out)
	return out, nil
}

func (s *RedisStore) SaveArtifact(ctx context.Context, artifact *types.Artifact) error {
	if err := s.check(); err != nil {
		return err
	}
	if artifact == nil || artifact.ID == "" || artifact.JobID == "" {
		return fmt.Errorf("%w: artifact requires id and job id", ErrInvalidInput)
	}
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}
	return s.client.RPush(ctx, s.artifactsKey(artifact.JobID), data).Err()
}

func (s *RedisStore) ListArtifacts(ctx context.Context, jobID string) ([]*types.Artifact, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	raws, err := s.client.LRange(ctx, s.artifactsKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*types.Artifact, 0, len(raws))
	for _, raw := range raws {
		var a types.Artifact
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifact: %w", err)
		}
		out = append(out, &a)
	}
	return out, nil
}

func (s *RedisStore) CreateVirtualMotion(ctx context.Context, vm *types.VirtualMotionJob) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := validateVirtualMotion(vm); err != nil {
		return err
	}
	data, err := json.Marshal(vm)
	if err != nil {
		return fmt.Errorf("failed to marshal virtual motion job: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.motionKey(vm.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: virtual motion job %s", ErrAlreadyExists, vm.ID)
	}
	return nil
}

func (s *RedisStore) GetVirtualMotion(ctx context.Context, id string) (*types.VirtualMotionJob, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.motionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: virtual motion job %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var vm types.VirtualMotionJob
	if err := json.Unmarshal(data, &vm); err != nil {
		return nil, fmt.Errorf("failed to unmarshal virtual motion job: %w", err)
	}
	return &vm, nil
}

func (s *RedisStore) UpdateVirtualMotion(ctx context.Context, vm *types.VirtualMotionJob) error {
	if vm == nil {
		return ErrInvalidInput
	}
	current, err := s.GetVirtualMotion(ctx, vm.ID)
	if err != nil {
		return err
	}
	if err := applyMotionUpdate(current, vm, time.Now().UTC()); err != nil {
		return err
	}
	data, err := json.Marshal(vm)
	if err != nil {
		return fmt.Errorf("failed to marshal virtual motion job: %w", err)
	}
	return s.client.Set(ctx, s.motionKey(vm.ID), data, 0).Err()
}
