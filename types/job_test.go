package types

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
)

func TestJobStatus_Transitions(t *testing.T) {
	t.Parallel()

	allowed := map[[2]JobStatus]bool{
		{JobStatusQueued, JobStatusRunning}:    true,
		{JobStatusQueued, JobStatusFailed}:     true,
		{JobStatusRunning, JobStatusSucceeded}: true,
		{JobStatusRunning, JobStatusFailed}:    true,
	}
	all := []JobStatus{JobStatusQueued, JobStatusRunning, JobStatusSucceeded, JobStatusFailed}
	for _, from := range all {
		for _, to := range all {
			if got := from.CanTransitionTo(to); got != allowed[[2]JobStatus{from, to}] {
				t.Fatalf("%s -> %s: got %v", from, to, got)
			}
		}
	}
	if !JobStatusSucceeded.IsTerminal() || !JobStatusFailed.IsTerminal() || JobStatusRunning.IsTerminal() {
		t.Fatalf("terminal states wrong")
	}
}

func TestNewJobID_Format(t *testing.T) {
	t.Parallel()

	re := regexp.MustCompile(`^job_[0-9a-f]{12}$`)
	for i := 0; i < 20; i++ {
		if id := NewJobID(); !re.MatchString(id) {
			t.Fatalf("bad job id %q", id)
		}
	}
	if !strings.HasPrefix(NewVirtualMotionID(), "vm_") {
		t.Fatalf("bad vm id")
	}
	if AssetID("job_abc", RoleUser) != "job_abc_user" {
		t.Fatalf("bad asset id")
	}
}

func TestJobConfig_Validate(t *testing.T) {
	t.Parallel()

	url := VideoInput{Source: VideoSource{Type: SourceURL, URL: "http://example.com/a.mp4"}}
	cases := []struct {
		name    string
		cfg     JobConfig
		wantErr bool
	}{
		{"learn ok", JobConfig{Mode: ModeLearn, TargetVideo: url}, false},
		{"bad mode", JobConfig{Mode: "remix", TargetVideo: url}, true},
		{"compare without user", JobConfig{Mode: ModeCompare, TargetVideo: url}, true},
		{"compare ok", JobConfig{Mode: ModeCompare, TargetVideo: url, UserVideo: &url}, false},
		{"file without path", JobConfig{Mode: ModeLearn, TargetVideo: VideoInput{Source: VideoSource{Type: SourceFile}}}, true},
		{"fps out of range", JobConfig{Mode: ModeLearn, TargetVideo: url, Options: JobOptions{FrameExtract: FrameExtractOptions{FPS: 30}}}, true},
		{"unknown module", JobConfig{Mode: ModeLearn, TargetVideo: url, Options: JobOptions{Analysis: AnalysisOptions{EnabledModules: []Category{"sound"}}}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSceneDetectionOptions_DefaultsToEnabled(t *testing.T) {
	t.Parallel()

	var opts SceneDetectionOptions
	if !opts.Enabled() {
		t.Fatalf("expected enabled by default")
	}
	off := false
	opts.UseCV = &off
	if opts.Enabled() {
		t.Fatalf("expected disabled")
	}
}

func TestSnapshotSegment_FlattensJSON(t *testing.T) {
	t.Parallel()

	s := SnapshotSegment{Segment: NewSegment("seg_001", 0, 1500), Analyzing: true}
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	if m["segment_id"] != "seg_001" || m["analyzing"] != true || m["duration_ms"] != 1500.0 {
		t.Fatalf("unexpected json %s", raw)
	}
	if feats, ok := m["features"].([]any); !ok || len(feats) != 0 {
		t.Fatalf("features should be an empty array: %s", raw)
	}
}
