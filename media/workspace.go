package media

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

const (
	inputVideoName = "input_video.mp4"
	resultFileName = "result.json"
)

// Workspace 任务文件目录约定：<data_dir>/jobs/<job_id>
type Workspace struct {
	root string
}

// NewWorkspace 以 dataDir 为根创建工作目录
func NewWorkspace(dataDir string) *Workspace {
	return &Workspace{root: dataDir}
}

// Root returns the data directory.
func (w *Workspace) Root() string { return w.root }

// JobDir is <data_dir>/jobs/<job_id>.
func (w *Workspace) JobDir(jobID string) string {
	return filepath.Join(w.root, "jobs", jobID)
}

// AssetDir holds the input video, frames and frame index of one role.
func (w *Workspace) AssetDir(jobID string, role types.AssetRole) string {
	return filepath.Join(w.JobDir(jobID), string(role))
}

// InputPath is where the ingested video of a role is stored.
func (w *Workspace) InputPath(jobID string, role types.AssetRole) string {
	return filepath.Join(w.AssetDir(jobID, role), inputVideoName)
}

// KeyframeDir holds keyframes of both roles.
func (w *Workspace) KeyframeDir(jobID string) string {
	return filepath.Join(w.JobDir(jobID), "keyframes")
}

// ResultPath is where the final result document is written.
func (w *Workspace) ResultPath(jobID string) string {
	return filepath.Join(w.JobDir(jobID), resultFileName)
}

// PreviewPath is the output of a virtual motion sub-job.
func (w *Workspace) PreviewPath(parentJobID, subtaskID string) string {
	return filepath.Join(w.JobDir(parentJobID), "previews", subtaskID+".mp4")
}

// WriteJSON 以缩进 JSON 原子替换 path
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return types.NewResourceError("encode "+filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return types.NewResourceError("create directory for "+filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return types.NewResourceError("write "+filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return types.NewResourceError("replace "+filepath.Base(path), err)
	}
	return nil
}
