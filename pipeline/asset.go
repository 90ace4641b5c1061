package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/wyxpro/CubeAI-FlowDecompose/analyzer"
	"github.com/wyxpro/CubeAI-FlowDecompose/media"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

// =============================================================================
// 单个视频的处理步骤（learn 与 compare 共用）
// =============================================================================

func (r *run) ingest(ctx context.Context, role types.AssetRole) (*types.Asset, error) {
	asset, err := r.deps.Ingestor.Ingest(ctx, r.jobID, role, r.input(role).Source)
	if err != nil {
		return nil, err
	}
	if err := r.deps.Store.SaveAsset(ctx, asset); err != nil {
		return nil, types.NewResourceError("save asset", err)
	}
	r.logger.Info("asset ingested",
		zap.String("asset_id", asset.ID),
		zap.Float64("duration_ms", asset.DurationMs),
	)
	return asset, nil
}

func (r *run) extractFrames(ctx context.Context, asset *types.Asset) ([]types.Frame, error) {
	outDir := r.deps.Workspace.AssetDir(r.jobID, asset.Role)
	opts := media.FrameOptions{
		FPS:       r.cfg.Options.FrameExtract.FPS,
		MaxFrames: r.cfg.Options.FrameExtract.MaxFrames,
	}
	frames, err := r.deps.Frames.ExtractFrames(ctx, asset.LocalPath, outDir, opts)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, types.NewResourceError(fmt.Sprintf("no frames extracted from %s video", asset.Role), nil)
	}

	artifact := types.NewArtifact(r.jobID, types.ArtifactFrames, filepath.Join(outDir, "frames"))
	artifact.AssetRole = asset.Role
	artifact.Metadata = map[string]string{
		"count": strconv.Itoa(len(frames)),
		"index": filepath.Join(outDir, media.FrameIndexFile),
	}
	if err := r.deps.Store.SaveArtifact(ctx, artifact); err != nil {
		return nil, types.NewResourceError("save frames artifact", err)
	}
	return frames, nil
}

func (r *run) detectScenes(ctx context.Context, asset *types.Asset) ([]types.Segment, error) {
	opts := media.SceneOptions{
		Threshold:   r.cfg.Options.SceneDetection.Threshold,
		MinSceneLen: r.cfg.Options.SceneDetection.MinSceneLen,
	}
	segments, err := r.deps.Scenes.Detect(ctx, asset.LocalPath, opts)
	if err != nil {
		return nil, err
	}
	r.logger.Info("scenes detected", zap.String("role", string(asset.Role)), zap.Int("segments", len(segments)))
	return segments, nil
}

func (r *run) proposeBoundaries(ctx context.Context, frames []types.Frame) ([]types.Segment, error) {
	segments, err := r.analyzer.ProposeBoundaries(ctx, frames)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, types.NewExternalError("analyzer", "no segment boundaries proposed", nil)
	}
	r.logger.Info("boundaries proposed", zap.Int("segments", len(segments)))
	return segments, nil
}

// analyzeSegments 按顺序对每个片段做一次特征分析
// 每完成一段调用 done，传入已完成的片段；出现第一个错误即中止
func (r *run) analyzeSegments(
	ctx context.Context,
	boundaries []types.Segment,
	frames []types.Frame,
	done func(i int, completed []types.Segment) error,
) ([]types.Segment, error) {
	categories := r.categories()
	completed := make([]types.Segment, 0, len(boundaries))

	for i, b := range boundaries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		features, err := r.analyzer.AnalyzeFeatures(ctx, analyzer.SegmentRequest{
			SegmentID:  b.SegmentID,
			StartMs:    b.StartMs,
			EndMs:      b.EndMs,
			Categories: categories,
			Frames:     analyzer.FramesForSegment(frames, b.StartMs, b.EndMs),
		})
		if err != nil {
			return nil, fmt.Errorf("analyze segment %s: %w", b.SegmentID, err)
		}

		seg := types.NewSegment(b.SegmentID, b.StartMs, b.EndMs)
		if features != nil {
			seg.Features = features
		}
		completed = append(completed, seg)

		r.logger.Debug("segment analyzed",
			zap.String("segment_id", seg.SegmentID),
			zap.Int("features", len(seg.Features)),
		)
		if done != nil {
			if err := done(i, completed); err != nil {
				return nil, err
			}
		}
	}
	return completed, nil
}

func (r *run) validate(segments []types.Segment) error {
	report, err := r.deps.Validator.ValidateSegments(segments)
	if err != nil {
		return err
	}
	if report.HasWarnings() {
		r.logger.Info("decomposition accepted with warnings", zap.Int("warnings", len(report.Warnings)))
	}
	return nil
}

func (r *run) writeKeyframes(ctx context.Context, role types.AssetRole, frames []types.Frame, segments []types.Segment) ([]types.Keyframe, error) {
	keyframes, err := media.WriteKeyframes(frames, segments, r.deps.Workspace.KeyframeDir(r.jobID), role)
	if err != nil {
		return nil, err
	}
	for _, kf := range keyframes {
		artifact := types.NewArtifact(r.jobID, types.ArtifactKeyframe, kf.KeyframePath)
		artifact.AssetRole = role
		artifact.SegmentID = kf.SegmentID
		artifact.Metadata = map[string]string{"ts_ms": strconv.FormatFloat(kf.TsMs, 'f', -1, 64)}
		if err := r.deps.Store.SaveArtifact(ctx, artifact); err != nil {
			return nil, types.NewResourceError("save keyframe artifact", err)
		}
	}
	return keyframes, nil
}

// finalize 写出 result.json 并记录为产物
func (r *run) finalize(ctx context.Context, result *types.Result) error {
	path := r.deps.Workspace.ResultPath(r.jobID)
	if err := media.WriteJSON(path, result); err != nil {
		return err
	}
	if err := r.deps.Store.SaveArtifact(ctx, types.NewArtifact(r.jobID, types.ArtifactResultJSON, path)); err != nil {
		return types.NewResourceError("save result artifact", err)
	}
	return nil
}
