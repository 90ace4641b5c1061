package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobMode selects the pipeline variant.
type JobMode string

const (
	ModeLearn   JobMode = "learn"
	ModeCompare JobMode = "compare"
)

// IsValid reports whether m is a supported mode.
func (m JobMode) IsValid() bool {
	return m == ModeLearn || m == ModeCompare
}

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal returns true if the status is a terminal state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// CanTransitionTo reports whether moving from s to next keeps the
// queued → running → {succeeded|failed} order.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusRunning || next == JobStatusFailed
	case JobStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// Progress is the current stage checkpoint of a job.
type Progress struct {
	Stage   string  `json:"stage,omitempty"`
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
}

// JobError is what callers see on a failed job.
type JobError struct {
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Kind returns details.kind when present.
func (e *JobError) Kind() ErrorKind {
	if e == nil || e.Details == nil {
		return ""
	}
	if k, ok := e.Details["kind"].(string); ok {
		return ErrorKind(k)
	}
	if k, ok := e.Details["kind"].(ErrorKind); ok {
		return k
	}
	return ""
}

// NewJobError builds the stored error view from a pipeline failure.
func NewJobError(err error, stage string) *JobError {
	details := map[string]any{"kind": string(KindOf(err))}
	if stage != "" {
		details["stage"] = stage
	}
	if e, ok := AsError(err); ok {
		if e.Capability != "" {
			details["capability"] = e.Capability
		}
		if e.Path != "" {
			details["path"] = e.Path
		}
	}
	return &JobError{Message: err.Error(), Details: details}
}

// Job is the persisted record of one analysis run.
type Job struct {
	ID            string         `json:"job_id"`
	Mode          JobMode        `json:"mode"`
	Status        JobStatus      `json:"status"`
	Progress      Progress       `json:"progress"`
	Result        *Result        `json:"result,omitempty"`
	PartialResult *PartialResult `json:"partial_result,omitempty"`
	Error         *JobError      `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// NewJob creates a queued job with a fresh id.
func NewJob(mode JobMode) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        NewJobID(),
		Mode:      mode,
		Status:    JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewJobID returns an id of the form job_<12 hex>.
func NewJobID() string {
	return "job_" + shortHex()
}

// NewVirtualMotionID returns an id of the form vm_<12 hex>.
func NewVirtualMotionID() string {
	return "vm_" + shortHex()
}

func shortHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// AssetRole distinguishes the reference video from the user's attempt.
type AssetRole string

const (
	RoleTarget AssetRole = "target"
	RoleUser   AssetRole = "user"
)

// AssetID returns the id of the asset of role r within a job.
func AssetID(jobID string, r AssetRole) string {
	return fmt.Sprintf("%s_%s", jobID, r)
}

// SourceType is where an input video comes from.
type SourceType string

const (
	SourceURL  SourceType = "url"
	SourceFile SourceType = "file"
)

// VideoSource locates an input video.
type VideoSource struct {
	Type SourceType `json:"type"`
	URL  string     `json:"url,omitempty"`
	Path string     `json:"path,omitempty"`
}

// VideoInput wraps a source.
type VideoInput struct {
	Source VideoSource `json:"source"`
}

// FrameExtractOptions controls frame sampling.
type FrameExtractOptions struct {
	FPS       float64 `json:"fps,omitempty"`
	MaxFrames int     `json:"max_frames,omitempty"`
}

// AnalysisOptions selects the feature categories to analyze.
type AnalysisOptions struct {
	EnabledModules []Category `json:"enabled_modules,omitempty"`
}

// SceneDetectionOptions controls the boundary detector.
type SceneDetectionOptions struct {
	UseCV       *bool   `json:"use_cv,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
	MinSceneLen int     `json:"min_scene_len,omitempty"`
}

// Enabled reports whether boundary detection runs; it defaults to true.
func (o SceneDetectionOptions) Enabled() bool {
	return o.UseCV == nil || *o.UseCV
}

// LLMOptions overrides the analyzer model per job.
type LLMOptions struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// JobOptions are the per-job pipeline options.
type JobOptions struct {
	FrameExtract   FrameExtractOptions   `json:"frame_extract"`
	Analysis       AnalysisOptions       `json:"analysis"`
	SceneDetection SceneDetectionOptions `json:"scene_detection"`
	LLM            LLMOptions            `json:"llm"`
}

// JobConfig is everything the orchestrator needs to run one job.
type JobConfig struct {
	Mode        JobMode     `json:"mode"`
	TargetVideo VideoInput  `json:"target_video"`
	UserVideo   *VideoInput `json:"user_video,omitempty"`
	Options     JobOptions  `json:"options"`
}

// Validate checks the submission contract.
func (c JobConfig) Validate() error {
	if !c.Mode.IsValid() {
		return NewError(ErrInvalidRequest, fmt.Sprintf("unsupported mode: %q", c.Mode))
	}
	if err := c.TargetVideo.Source.validate("target_video"); err != nil {
		return err
	}
	if c.Mode == ModeCompare {
		if c.UserVideo == nil {
			return NewError(ErrInvalidRequest, "compare mode requires user_video")
		}
		if err := c.UserVideo.Source.validate("user_video"); err != nil {
			return err
		}
	}
	fe := c.Options.FrameExtract
	if fe.FPS != 0 && (fe.FPS < 0.1 || fe.FPS > 10) {
		return NewError(ErrInvalidRequest, "options.frame_extract.fps must be within [0.1, 10]")
	}
	if fe.MaxFrames != 0 && (fe.MaxFrames < 10 || fe.MaxFrames > 1000) {
		return NewError(ErrInvalidRequest, "options.frame_extract.max_frames must be within [10, 1000]")
	}
	for _, m := range c.Options.Analysis.EnabledModules {
		if !m.IsValid() {
			return NewError(ErrInvalidRequest, fmt.Sprintf("unknown analysis module: %q", m))
		}
	}
	return nil
}

func (s VideoSource) validate(field string) error {
	switch s.Type {
	case SourceURL:
		if s.URL == "" {
			return NewError(ErrInvalidRequest, field+".source.url is required for type url")
		}
	case SourceFile:
		if s.Path == "" {
			return NewError(ErrInvalidRequest, field+".source.path is required for type file")
		}
	default:
		return NewError(ErrInvalidRequest, fmt.Sprintf("%s.source.type must be url or file, got %q", field, s.Type))
	}
	return nil
}

// Asset is an ingested input video.
type Asset struct {
	ID         string      `json:"asset_id"`
	JobID      string      `json:"job_id"`
	Role       AssetRole   `json:"role"`
	Source     VideoSource `json:"source"`
	LocalPath  string      `json:"local_path"`
	DurationMs float64     `json:"duration_ms"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	FPS        float64     `json:"fps"`
	Codec      string      `json:"codec"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ArtifactType classifies generated files.
type ArtifactType string

const (
	ArtifactFrames       ArtifactType = "frames"
	ArtifactKeyframe     ArtifactType = "keyframe"
	ArtifactPreviewVideo ArtifactType = "preview_video"
	ArtifactResultJSON   ArtifactType = "result_json"
)

// Artifact is a file produced by a job.
type Artifact struct {
	ID        string            `json:"artifact_id"`
	JobID     string            `json:"job_id"`
	Type      ArtifactType      `json:"artifact_type"`
	FilePath  string            `json:"file_path"`
	AssetRole AssetRole         `json:"asset_role,omitempty"`
	SegmentID string            `json:"segment_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewArtifact creates an artifact record with a fresh id.
func NewArtifact(jobID string, t ArtifactType, path string) *Artifact {
	return &Artifact{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Type:      t,
		FilePath:  path,
		CreatedAt: time.Now().UTC(),
	}
}

// VirtualMotionJob is a preview-rendering sub-job of a succeeded parent job.
type VirtualMotionJob struct {
	ID              string       `json:"subtask_id"`
	ParentJobID     string       `json:"parent_job_id"`
	Status          JobStatus    `json:"status"`
	AssetRole       AssetRole    `json:"asset_role"`
	SegmentID       string       `json:"segment_id"`
	MotionRecipe    MotionRecipe `json:"motion_recipe"`
	ResultVideoPath string       `json:"result_video_path,omitempty"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}
