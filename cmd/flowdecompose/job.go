package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/wyxpro/CubeAI-FlowDecompose/api"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

// =============================================================================
// 📋 job 命令
// =============================================================================

// jobEnvelope 是 GET /v1/video-analysis/jobs/{id} 的响应
type jobEnvelope struct {
	Success bool         `json:"success"`
	Data    *api.JobView `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func runJob(args []string) {
	fs := flag.NewFlagSet("job", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	apiKey := fs.String("api-key", os.Getenv("FLOWDECOMPOSE_API_KEY"), "API key sent as X-API-Key")
	timeout := fs.Duration("timeout", 10*time.Second, "Request timeout")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: flowdecompose job <job_id> [--addr URL] [--api-key KEY]")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	view, err := fetchJob(ctx, &http.Client{}, *addr, fs.Arg(0), *apiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fetch job: %v\n", err)
		os.Exit(1)
	}
	renderJob(os.Stdout, view)
}

func fetchJob(ctx context.Context, client *http.Client, addr, jobID, apiKey string) (*api.JobView, error) {
	endpoint := strings.TrimRight(addr, "/") + api.JobStatusURL(url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env jobEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 32<<20)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success || env.Data == nil {
		if env.Error != nil {
			return nil, fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
		}
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return env.Data, nil
}

// renderJob 打印任务概要，以及结果或中间快照中的片段表
func renderJob(w io.Writer, v *api.JobView) {
	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetStyle(table.StyleRounded)
	summary.AppendRows([]table.Row{
		{"Job", v.JobID},
		{"Mode", v.Mode},
		{"Status", v.Status},
		{"Stage", v.Progress.Stage},
		{"Progress", fmt.Sprintf("%.0f%%", v.Progress.Percent)},
		{"Created", v.CreatedAt.Format(time.RFC3339)},
	})
	if v.Progress.Message != "" {
		summary.AppendRow(table.Row{"Message", v.Progress.Message})
	}
	if v.Error != nil {
		summary.AppendRow(table.Row{"Error", v.Error.Message})
		if kind, ok := v.Error.Details["kind"]; ok {
			summary.AppendRow(table.Row{"Error kind", kind})
		}
	}
	summary.Render()

	switch {
	case v.Result != nil:
		renderSegments(w, "Target segments", v.Result.Target.Segments, nil)
		if v.Result.User != nil {
			renderSegments(w, "User segments", v.Result.User.Segments, nil)
		}
		if v.Result.Comparison != nil {
			renderImprovements(w, v.Result.Comparison)
		}
	case v.PartialResult != nil:
		segs := make([]types.Segment, 0, len(v.PartialResult.Target.Segments))
		analyzing := make(map[string]bool, len(segs))
		for _, s := range v.PartialResult.Target.Segments {
			segs = append(segs, s.Segment)
			analyzing[s.SegmentID] = s.Analyzing
		}
		title := fmt.Sprintf("Target segments (%d/%d analyzed)", v.PartialResult.CompletedCount(), len(segs))
		renderSegments(w, title, segs, analyzing)
	}
}

func renderSegments(w io.Writer, title string, segments []types.Segment, analyzing map[string]bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Segment", "Start (s)", "End (s)", "Duration (s)", "Features"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	for _, s := range segments {
		features := describeFeatures(s.Features)
		if analyzing[s.SegmentID] {
			features = "analyzing..."
		}
		t.AppendRow(table.Row{
			s.SegmentID,
			fmt.Sprintf("%.2f", s.StartMs/1000),
			fmt.Sprintf("%.2f", s.EndMs/1000),
			fmt.Sprintf("%.2f", s.DurationMs/1000),
			features,
		})
	}
	t.Render()
}

func renderImprovements(w io.Writer, c *types.Comparison) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Improvements")
	t.AppendHeader(table.Row{"User", "Target", "Step", "Priority", "Action"})
	for _, si := range c.Improvements {
		if len(si.Improvements) == 0 {
			t.AppendRow(table.Row{si.UserSegmentID, si.TargetSegmentID, "-", "-", "no changes needed"})
			continue
		}
		for _, a := range si.Improvements {
			t.AppendRow(table.Row{si.UserSegmentID, si.TargetSegmentID, a.Step, a.Priority, a.Description})
		}
	}
	t.Render()
}

func describeFeatures(features []types.Feature) string {
	if len(features) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(features))
	for _, f := range features {
		parts = append(parts, fmt.Sprintf("%s=%s", f.Category, f.Value))
	}
	return strings.Join(parts, ", ")
}
