package pipeline

import (
	"context"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

// LearnPipeline 拆解 target 视频，分析过程中持续写入中间快照
type LearnPipeline struct {
	*run
}

// Run 依次执行摄取、可选的场景检测、抽帧、特征分析、产物生成与收尾
func (p *LearnPipeline) Run(ctx context.Context) (*types.Result, error) {
	var (
		asset      *types.Asset
		boundaries []types.Segment
		frames     []types.Frame
		segments   []types.Segment
		keyframes  []types.Keyframe
	)
	method := types.DetectionLLM
	if p.cfg.Options.SceneDetection.Enabled() {
		method = types.DetectionCV
	}

	err := p.stage(ctx, LearnIngest, func(ctx context.Context) (err error) {
		asset, err = p.ingest(ctx, types.RoleTarget)
		return err
	})
	if err != nil {
		return nil, err
	}

	if method == types.DetectionCV {
		err = p.stage(ctx, LearnSceneDetection, func(ctx context.Context) (err error) {
			if boundaries, err = p.detectScenes(ctx, asset); err != nil {
				return err
			}
			return p.snapshot(ctx, asset.ID, method, nil, boundaries)
		})
		if err != nil {
			return nil, err
		}
	}

	err = p.stage(ctx, LearnExtractFrames, func(ctx context.Context) (err error) {
		frames, err = p.extractFrames(ctx, asset)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, LearnFeatureAnalysis, func(ctx context.Context) (err error) {
		if method == types.DetectionLLM {
			if boundaries, err = p.proposeBoundaries(ctx, frames); err != nil {
				return err
			}
			if err = p.snapshot(ctx, asset.ID, method, nil, boundaries); err != nil {
				return err
			}
		}
		n := len(boundaries)
		segments, err = p.analyzeSegments(ctx, boundaries, frames, func(i int, completed []types.Segment) error {
			if err := p.report(ctx, SegmentProgress(i, n)); err != nil {
				return err
			}
			return p.snapshot(ctx, asset.ID, method, completed, boundaries[i+1:])
		})
		if err != nil {
			return err
		}
		return p.validate(segments)
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, LearnArtifacts, func(ctx context.Context) (err error) {
		keyframes, err = p.writeKeyframes(ctx, types.RoleTarget, frames, segments)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &types.Result{
		Mode: types.ModeLearn,
		Target: types.AssetResult{
			AssetID:         asset.ID,
			Segments:        segments,
			Keyframes:       keyframes,
			DetectionMethod: method,
		},
	}
	err = p.stage(ctx, LearnFinalize, func(ctx context.Context) error {
		return p.finalize(ctx, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// snapshot 写入已完成片段与其后的待分析占位片段
// 只要还有占位片段，target 就处于 analyzing
func (p *LearnPipeline) snapshot(ctx context.Context, assetID string, method types.DetectionMethod, completed, pending []types.Segment) error {
	segments := make([]types.SnapshotSegment, 0, len(completed)+len(pending))
	for _, s := range completed {
		segments = append(segments, types.SnapshotSegment{Segment: s})
	}
	for _, s := range pending {
		placeholder := types.NewSegment(s.SegmentID, s.StartMs, s.EndMs)
		segments = append(segments, types.SnapshotSegment{Segment: placeholder, Analyzing: true})
	}

	partial := &types.PartialResult{
		Mode: types.ModeLearn,
		Target: types.PartialTarget{
			AssetID:         assetID,
			Segments:        segments,
			DetectionMethod: method,
			Analyzing:       len(pending) > 0,
		},
	}
	if _, err := p.deps.Validator.ValidatePartial(partial); err != nil {
		return err
	}
	if err := p.deps.Store.SavePartialResult(ctx, p.jobID, partial); err != nil {
		return types.NewResourceError("save partial result", err)
	}
	p.deps.Metrics.RecordPartialSnapshot(p.mode())
	return nil
}
