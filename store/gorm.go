package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wyxpro/CubeAI-FlowDecompose/internal/database"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

// =============================================================================
// 🗄️ 数据库模型
// =============================================================================

// JobModel is the jobs table. Nested documents are stored as JSON text.
type JobModel struct {
	ID            string               `gorm:"primaryKey;size:64"`
	Mode          string               `gorm:"size:16;not null"`
	Status        string               `gorm:"size:16;not null;index"`
	Progress      types.Progress       `gorm:"serializer:json;type:text"`
	Result        *types.Result        `gorm:"serializer:json;type:text"`
	PartialResult *types.PartialResult `gorm:"serializer:json;type:text"`
	Error         *types.JobError      `gorm:"column:error_info;serializer:json;type:text"`
	CreatedAt     time.Time            `gorm:"index;autoCreateTime:false"`
	UpdatedAt     time.Time            `gorm:"autoUpdateTime:false"`
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// TableName 指定表名
func (JobModel) TableName() string { return "jobs" }

func jobToModel(j *types.Job) *JobModel {
	return &JobModel{
		ID:            j.ID,
		Mode:          string(j.Mode),
		Status:        string(j.Status),
		Progress:      j.Progress,
		Result:        j.Result,
		PartialResult: j.PartialResult,
		Error:         j.Error,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
}

func (m *JobModel) toJob() *types.Job {
	return &types.Job{
		ID:            m.ID,
		Mode:          types.JobMode(m.Mode),
		Status:        types.JobStatus(m.Status),
		Progress:      m.Progress,
		Result:        m.Result,
		PartialResult: m.PartialResult,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		StartedAt:     m.StartedAt,
		CompletedAt:   m.CompletedAt,
	}
}

// AssetModel is the assets table.
type AssetModel struct {
	ID         string `gorm:"primaryKey;size:96"`
	JobID      string `gorm:"size:64;not null;index"`
	Role       string `gorm:"size:16;not null"`
	SourceType string `gorm:"size:16"`
	SourceURL  string `gorm:"type:text"`
	SourcePath string `gorm:"type:text"`
	LocalPath  string `gorm:"type:text"`
	DurationMs float64
	Width      int
	Height     int
	FPS        float64 `gorm:"column:fps"`
	Codec      string  `gorm:"size:32"`
	CreatedAt  time.Time
}

// TableName 指定表名
func (AssetModel) TableName() string { return "assets" }

func (m *AssetModel) toAsset() *types.Asset {
	return &types.Asset{
		ID:         m.ID,
		JobID:      m.JobID,
		Role:       types.AssetRole(m.Role),
		Source:     types.VideoSource{Type: types.SourceType(m.SourceType), URL: m.SourceURL, Path: m.SourcePath},
		LocalPath:  m.LocalPath,
		DurationMs: m.DurationMs,
		Width:      m.Width,
		Height:     m.Height,
		FPS:        m.FPS,
		Codec:      m.Codec,
		CreatedAt:  m.CreatedAt,
	}
}

// ArtifactModel is the artifacts table.
type ArtifactModel struct {
	ID        string            `gorm:"primaryKey;size:64"`
	JobID     string            `gorm:"size:64;not null;index"`
	Type      string            `gorm:"column:artifact_type;size:32;not null"`
	FilePath  string            `gorm:"type:text;not null"`
	AssetRole string            `gorm:"size:16"`
	SegmentID string            `gorm:"size:64"`
	Metadata  map[string]string `gorm:"serializer:json;type:text"`
	CreatedAt time.Time
}

// TableName 指定表名
func (ArtifactModel) TableName() string { return "artifacts" }

func (m *ArtifactModel) toArtifact() *types.Artifact {
	return &types.Artifact{
		ID:        m.ID,
		JobID:     m.JobID,
		Type:      types.ArtifactType(m.Type),
		FilePath:  m.FilePath,
		AssetRole: types.AssetRole(m.AssetRole),
		SegmentID: m.SegmentID,
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt,
	}
}

// VirtualMotionModel is the virtual_motion_jobs table.
type VirtualMotionModel struct {
	ID              string             `gorm:"primaryKey;size:64"`
	ParentJobID     string             `gorm:"size:64;not null;index"`
	Status          string             `gorm:"size:16;not null"`
	AssetRole       string             `gorm:"size:16"`
	SegmentID       string             `gorm:"size:64"`
	MotionRecipe    types.MotionRecipe `gorm:"serializer:json;type:text"`
	ResultVideoPath string             `gorm:"type:text"`
	ErrorMessage    string             `gorm:"type:text"`
	CreatedAt       time.Time          `gorm:"autoCreateTime:false"`
	UpdatedAt       time.Time          `gorm:"autoUpdateTime:false"`
	CompletedAt     *time.Time
}

// TableName 指定表名
func (VirtualMotionModel) TableName() string { return "virtual_motion_jobs" }

func motionToModel(vm *types.VirtualMotionJob) *VirtualMotionModel {
	return &VirtualMotionModel{
		ID:              vm.ID,
		ParentJobID:     vm.ParentJobID,
		Status:          string(vm.Status),
		AssetRole:       string(vm.AssetRole),
		SegmentID:       vm.SegmentID,
		MotionRecipe:    vm.MotionRecipe,
		ResultVideoPath: vm.ResultVideoPath,
		ErrorMessage:    vm.ErrorMessage,
		CreatedAt:       vm.CreatedAt,
		UpdatedAt:       vm.UpdatedAt,
		CompletedAt:     vm.CompletedAt,
	}
}

func (m *VirtualMotionModel) toVirtualMotion() *types.VirtualMotionJob {
	return &types.VirtualMotionJob{
		ID:              m.ID,
		ParentJobID:     m.ParentJobID,
		Status:          types.JobStatus(m.Status),
		AssetRole:       types.AssetRole(m.AssetRole),
		SegmentID:       m.SegmentID,
		MotionRecipe:    m.MotionRecipe,
		ResultVideoPath: m.ResultVideoPath,
		ErrorMessage:    m.ErrorMessage,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		CompletedAt:     m.CompletedAt,
	}
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&JobModel{}, &AssetModel{}, &ArtifactModel{}, &VirtualMotionModel{}}
}

// =============================================================================
// 🗃️ GormStore
// =============================================================================

// GormStore is a JobStore backed by PostgreSQL, MySQL or SQLite through gorm.
// The connection is owned by the caller (usually database.PoolManager).
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
	closed atomic.Bool
}

var _ JobStore = (*GormStore)(nil)

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{db: db, logger: logger.With(zap.String("component", "gorm_store"))}
}

// AutoMigrate creates the tables from the models. Production deployments use
// the versioned migrations instead.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(Models()...)
}

// Close marks the store closed; the connection itself is left to its owner.
func (s *GormStore) Close() error {
	s.closed.Store(true)
	return nil
}

// Ping implements JobStore.
func (s *GormStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) conn(ctx context.Context) (*gorm.DB, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	return s.db.WithContext(ctx), nil
}

func (s *GormStore) Create(ctx context.Context, job *types.Job) error {
	if err := validateNewJob(job); err != nil {
		return err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&JobModel{}).Where("id = ?", job.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: job %s", ErrAlreadyExists, job.ID)
		}
		return tx.Create(jobToModel(job)).Error
	})
}

func (s *GormStore) Get(ctx context.Context, jobID string) (*types.Job, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	m, err := loadJob(db, jobID)
	if err != nil {
		return nil, err
	}
	return m.toJob(), nil
}

func loadJob(db *gorm.DB, jobID string) (*JobModel, error) {
	var m JobModel
	if err := db.Where("id = ?", jobID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
		}
		return nil, err
	}
	return &m, nil
}

func (s *GormStore) List(ctx context.Context, filter JobFilter) ([]*types.Job, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Model(&JobModel{}).Order("created_at DESC")
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, st := range filter.Status {
			statuses[i] = string(st)
		}
		q = q.Where("status IN ?", statuses)
	}
	if filter.Mode != "" {
		q = q.Where("mode = ?", string(filter.Mode))
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var models []JobModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*types.Job, 0, len(models))
	for i := range models {
		out = append(out, models[i].toJob())
	}
	return out, nil
}

func (s *GormStore) UpdateStatus(ctx context.Context, jobID string, status types.JobStatus, jobErr *types.JobError) error {
	return s.mutate(ctx, jobID, func(job *types.Job, now time.Time) error {
		return applyStatus(job, status, jobErr, now)
	})
}

func (s *GormStore) UpdateProgress(ctx context.Context, jobID string, progress types.Progress) error {
	return s.mutate(ctx, jobID, func(job *types.Job, now time.Time) error {
		return applyProgress(job, progress, now)
	})
}

func (s *GormStore) SaveResult(ctx context.Context, jobID string, result *types.Result) error {
	return s.mutate(ctx, jobID, func(job *types.Job, now time.Time) error {
		return applyResult(job, result, now)
	})
}

func (s *GormStore) SavePartialResult(ctx context.Context, jobID string, partial *types.PartialResult) error {
	return s.mutate(ctx, jobID, func(job *types.Job, now time.Time) error {
		return applyPartial(job, partial, now)
	})
}

func (s *GormStore) mutate(ctx context.Context, jobID string, fn func(*types.Job, time.Time) error) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return database.RetryTransaction(ctx, db, database.DefaultTransactionRetries, s.logger, func(tx *gorm.DB) error {
		m, err := loadJob(tx, jobID)
		if err != nil {
			return err
		}
		job := m.toJob()
		if err := fn(job, time.Now().UTC()); err != nil {
			return err
		}
		return tx.Save(jobToModel(job)).Error
	})
}

func (s *GormStore) SaveAsset(ctx context.Context, asset *types.Asset) error {
	if asset == nil || asset.ID == "" || asset.JobID == "" {
		return fmt.Errorf("%w: asset requires id and job id", ErrInvalidInput)
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Save(&AssetModel{
		ID:         asset.ID,
		JobID:      asset.JobID,
		Role:       string(asset.Role),
		SourceType: string(asset.Source.Type),
		SourceURL:  asset.Source.URL,
		SourcePath: asset.Source.Path,
		LocalPath:  asset.LocalPath,
		DurationMs: asset.DurationMs,
		Width:      asset.Width,
		Height:     asset.Height,
		FPS:        asset.FPS,
		Codec:      asset.Codec,
		CreatedAt:  asset.CreatedAt,
	}).Error
}

func (s *GormStore) ListAssets(ctx context.Context, jobID string) ([]*types.Asset, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var models []AssetModel
	if err := db.Where("job_id = ?", jobID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*types.Asset, 0, len(models))
	for i := range models {
		out = append(out, models[i].toAsset())
	}
	return out, nil
}

func (s *GormStore) SaveArtifact(ctx context.Context, artifact *types.Artifact) error {
	if artifact == nil || artifact.ID == "" || artifact.JobID == "" {
		return fmt.Errorf("%w: artifact requires id and job id", ErrInvalidInput)
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Create(&ArtifactModel{
		ID:        artifact.ID,
		JobID:     artifact.JobID,
		Type:      string(artifact.Type),
		FilePath:  artifact.FilePath,
		AssetRole: string(artifact.AssetRole),
		SegmentID: artifact.SegmentID,
		Metadata:  artifact.Metadata,
		CreatedAt: artifact.CreatedAt,
	}).Error
}

func (s *GormStore) ListArtifacts(ctx context.Context, jobID string) ([]*types.Artifact, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var models []ArtifactModel
	if err := db.Where("job_id = ?", jobID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*types.Artifact, 0, len(models))
	for i := range models {
		out = append(out, models[i].toArtifact())
	}
	return out, nil
}

func (s *GormStore) CreateVirtualMotion(ctx context.Context, vm *types.VirtualMotionJob) error {
	if err := validateVirtualMotion(vm); err != nil {
		return err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&VirtualMotionModel{}).Where("id = ?", vm.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: virtual motion job %s", ErrAlreadyExists, vm.ID)
		}
		return tx.Create(motionToModel(vm)).Error
	})
}

func (s *GormStore) GetVirtualMotion(ctx context.Context, id string) (*types.VirtualMotionJob, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	m, err := loadMotion(db, id)
	if err != nil {
		return nil, err
	}
	return m.toVirtualMotion(), nil
}

func loadMotion(db *gorm.DB, id string) (*VirtualMotionModel, error) {
	var m VirtualMotionModel
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: virtual motion job %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &m, nil
}

func (s *GormStore) UpdateVirtualMotion(ctx context.Context, vm *types.VirtualMotionJob) error {
	if vm == nil {
		return ErrInvalidInput
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return database.RetryTransaction(ctx, db, database.DefaultTransactionRetries, s.logger, func(tx *gorm.DB) error {
		m, err := loadMotion(tx, vm.ID)
		if err != nil {
			return err
		}
		if err := applyMotionUpdate(m.toVirtualMotion(), vm, time.Now().UTC()); err != nil {
			return err
		}
		return tx.Save(motionToModel(vm)).Error
	})
}
