package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

// Common errors
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrStoreClosed       = errors.New("store is closed")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrJobTerminal       = errors.New("job is terminal")
)

// Type represents the storage backend.
type Type string

const (
	TypeMemory   Type = "memory"
	TypeDatabase Type = "database"
	TypeRedis    Type = "redis"
)

// JobFilter selects jobs for List. Results are ordered newest first.
type JobFilter struct {
	Status []types.JobStatus
	Mode   types.JobMode
	Limit  int
	Offset int
}

func (f JobFilter) matches(job *types.Job) bool {
	if f.Mode != "" && job.Mode != f.Mode {
		return false
	}
	if len(f.Status) == 0 {
		return true
	}
	for _, s := range f.Status {
		if job.Status == s {
			return true
		}
	}
	return false
}

// JobStore persists jobs and their side records.
//
// Job records are mutated only through UpdateStatus, UpdateProgress,
// SaveResult and SavePartialResult, which enforce the monotonic
// queued → running → succeeded|failed order. A terminal job is never
// mutated again.
type JobStore interface {
	Close() error
	Ping(ctx context.Context) error

	Create(ctx context.Context, job *types.Job) error
	Get(ctx context.Context, jobID string) (*types.Job, error)
	List(ctx context.Context, filter JobFilter) ([]*types.Job, error)

	// UpdateStatus moves the job to status. jobErr is recorded when status is failed.
	UpdateStatus(ctx context.Context, jobID string, status types.JobStatus, jobErr *types.JobError) error
	UpdateProgress(ctx context.Context, jobID string, progress types.Progress) error
	// SaveResult stores the final result and marks the job succeeded at 100%.
	SaveResult(ctx context.Context, jobID string, result *types.Result) error
	SavePartialResult(ctx context.Context, jobID string, partial *types.PartialResult) error

	SaveAsset(ctx context.Context, asset *types.Asset) error
	ListAssets(ctx context.Context, jobID string) ([]*types.Asset, error)
	SaveArtifact(ctx context.Context, artifact *types.Artifact) error
	ListArtifacts(ctx context.Context, jobID string) ([]*types.Artifact, error)

	CreateVirtualMotion(ctx context.Context, vm *types.VirtualMotionJob) error
	GetVirtualMotion(ctx context.Context, id string) (*types.VirtualMotionJob, error)
	UpdateVirtualMotion(ctx context.Context, vm *types.VirtualMotionJob) error
}

// CompletedProgress is written together with the succeeded status.
var CompletedProgress = types.Progress{Stage: "completed", Percent: 100, Message: "completed"}

// =============================================================================
// Mutation rules shared by every backend
// =============================================================================

func applyStatus(job *types.Job, status types.JobStatus, jobErr *types.JobError, now time.Time) error {
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, job.ID, job.Status)
	}
	if !job.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}

	job.Status = status
	job.UpdatedAt = now
	if status == types.JobStatusRunning && job.StartedAt == nil {
		t := now
		job.StartedAt = &t
	}
	if status.IsTerminal() {
		t := now
		job.CompletedAt = &t
	}
	if status == types.JobStatusFailed {
		job.Error = jobErr
	}
	return nil
}

func applyProgress(job *types.Job, progress types.Progress, now time.Time) error {
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, job.ID, job.Status)
	}
	if progress.Percent < 0 || progress.Percent > 100 {
		return fmt.Errorf("%w: progress %.1f outside [0, 100]", ErrInvalidInput, progress.Percent)
	}
	job.Progress = progress
	job.UpdatedAt = now
	return nil
}

func applyResult(job *types.Job, result *types.Result, now time.Time) error {
	if result == nil {
		return fmt.Errorf("%w: nil result", ErrInvalidInput)
	}
	if err := applyStatus(job, types.JobStatusSucceeded, nil, now); err != nil {
		return err
	}
	job.Result = result
	job.Progress = CompletedProgress
	return nil
}

func applyPartial(job *types.Job, partial *types.PartialResult, now time.Time) error {
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, job.ID, job.Status)
	}
	job.PartialResult = partial
	job.UpdatedAt = now
	return nil
}

func validateNewJob(job *types.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("%w: job id is required", ErrInvalidInput)
	}
	if !job.Mode.IsValid() {
		return fmt.Errorf("%w: mode %q", ErrInvalidInput, job.Mode)
	}
	if job.Status == "" {
		job.Status = types.JobStatusQueued
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	return nil
}

func validateVirtualMotion(vm *types.VirtualMotionJob) error {
	if vm == nil || vm.ID == "" || vm.ParentJobID == "" {
		return fmt.Errorf("%w: virtual motion job requires id and parent job id", ErrInvalidInput)
	}
	now := time.Now().UTC()
	if vm.Status == "" {
		vm.Status = types.JobStatusQueued
	}
	if vm.CreatedAt.IsZero() {
		vm.CreatedAt = now
	}
	vm.UpdatedAt = now
	return nil
}

func sortAssets(assets []*types.Asset) {
	sort.SliceStable(assets, func(i, j int) bool {
		if assets[i].CreatedAt.Equal(assets[j].CreatedAt) {
			return assets[i].ID < assets[j].ID
		}
		return assets[i].CreatedAt.Before(assets[j].CreatedAt)
	})
}

// page sorts newest first and applies offset/limit.
func page(jobs []*types.Job, filter JobFilter) []*types.Job {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(jobs) {
			return []*types.Job{}
		}
		jobs = jobs[filter.Offset:]
	}
	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}
	return jobs
}

func applyMotionUpdate(current, next *types.VirtualMotionJob, now time.Time) error {
	if current.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, current.ID, current.Status)
	}
	if next.Status != current.Status && !current.Status.CanTransitionTo(next.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next.Status)
	}
	next.ParentJobID = current.ParentJobID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = now
	if next.Status.IsTerminal() && next.CompletedAt == nil {
		t := now
		next.CompletedAt = &t
	}
	return nil
}
