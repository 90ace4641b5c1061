package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

// MemoryStore is an in-memory JobStore for development and tests. Records
// are deep-copied on the way in and out, so callers never share state with
// the store.
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]*types.Job
	assets    map[string][]*types.Asset
	artifacts map[string][]*types.Artifact
	motions   map[string]*types.VirtualMotionJob
	closed    bool
}

var _ JobStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]*types.Job),
		assets:    make(map[string][]*types.Asset),
		artifacts: make(map[string][]*types.Artifact),
		motions:   make(map[string]*types.VirtualMotionJob),
	}
}

// Close implements JobStore.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping implements JobStore.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, job *types.Job) error {
	if err := validateNewJob(job); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: job %s", ErrAlreadyExists, job.ID)
	}
	cp, err := clone(job)
	if err != nil {
		return err
	}
	s.jobs[job.ID] = cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	return clone(job)
}

func (s *MemoryStore) List(ctx context.Context, filter JobFilter) ([]*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]*types.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if !filter.matches(job) {
			continue
		}
		cp, err := clone(job)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return page(out, filter), nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, jobID string, status types.JobStatus, jobErr *types.JobError) error {
	return s.mutate(jobID, func(job *types.Job, now time.Time) error {
		return applyStatus(job, status, jobErr, now)
	})
}

func (s *MemoryStore) UpdateProgress(ctx context.Context, jobID string, progress types.Progress) error {
	return s.mutate(jobID, func(job *types.Job, now time.Time) error {
		return applyProgress(job, progress, now)
	})
}

func (s *MemoryStore) SaveResult(ctx context.Context, jobID string, result *types.Result) error {
	return s.mutate(jobID, func(job *types.Job, now time.Time) error {
		return applyResult(job, result, now)
	})
}

func (s *MemoryStore) SavePartialResult(ctx context.Context, jobID string, partial *types.PartialResult) error {
	return s.mutate(jobID, func(job *types.Job, now time.Time) error {
		return applyPartial(job, partial, now)
	})
}

// mutate applies fn to a copy and swaps it in only when fn succeeds.
func (s *MemoryStore) mutate(jobID string, fn func(*types.Job, time.Time) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	current, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	next, err := clone(current)
	if err != nil {
		return err
	}
	if err := fn(next, time.Now().UTC()); err != nil {
		return err
	}
	s.jobs[jobID] = next
	return nil
}

func (s *MemoryStore) SaveAsset(ctx context.Context, asset *types.Asset) error {
	if asset == nil || asset.ID == "" || asset.JobID == "" {
		return fmt.Errorf("%w: asset requires id and job id", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	cp, err := clone(asset)
	if err != nil {
		return err
	}
	list := s.assets[asset.JobID]
	for i, a := range list {
		if a.ID == asset.ID {
			list[i] = cp
			return nil
		}
	}
	s.assets[asset.JobID] = append(list, cp)
	return nil
}

func (s *MemoryStore) ListAssets(ctx context.Context, jobID string) ([]*types.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return cloneAll(s.assets[jobID])
}

func (s *MemoryStore) SaveArtifact(ctx context.Context, artifact *types.Artifact) error {
	if artifact == nil || artifact.ID == "" || artifact.JobID == "" {
		return fmt.Errorf("%w: artifact requires id and job id", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	cp, err := clone(artifact)
	if err != nil {
		return err
	}
	s.artifacts[artifact.JobID] = append(s.artifacts[artifact.JobID], cp)
	return nil
}

func (s *MemoryStore) ListArtifacts(ctx context.Context, jobID string) ([]*types.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return cloneAll(s.artifacts[jobID])
}

func (s *MemoryStore) CreateVirtualMotion(ctx context.Context, vm *types.VirtualMotionJob) error {
	if err := validateVirtualMotion(vm); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, exists := s.motions[vm.ID]; exists {
		return fmt.Errorf("%w: virtual motion job %s", ErrAlreadyExists, vm.ID)
	}
	cp, err := clone(vm)
	if err != nil {
		return err
	}
	s.motions[vm.ID] = cp
	return nil
}

func (s *MemoryStore) GetVirtualMotion(ctx context.Context, id string) (*types.VirtualMotionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	vm, ok := s.motions[id]
	if !ok {
		return nil, fmt.Errorf("%w: virtual motion job %s", ErrNotFound, id)
	}
	return clone(vm)
}

func (s *MemoryStore) UpdateVirtualMotion(ctx context.Context, vm *types.VirtualMotionJob) error {
	if vm == nil {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	current, ok := s.motions[vm.ID]
	if !ok {
		return fmt.Errorf("%w: virtual motion job %s", ErrNotFound, vm.ID)
	}
	if err := applyMotionUpdate(current, vm, time.Now().UTC()); err != nil {
		return err
	}
	cp, err := clone(vm)
	if err != nil {
		return err
	}
	s.motions[vm.ID] = cp
	return nil
}

// clone deep-copies a record through its JSON form.
func clone[T any](v *T) (*T, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("copy record: %w", err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("copy record: %w", err)
	}
	return &out, nil
}

func cloneAll[T any](items []*T) ([]*T, error) {
	out := make([]*T, 0, len(items))
	for _, it := range items {
		cp, err := clone(it)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}
