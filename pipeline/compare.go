package pipeline

import (
	"context"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

// ComparePipeline 拆解 target 与 user 视频，对齐片段并生成改进步骤
// 该模式不写中间快照
type ComparePipeline struct {
	*run
}

type assetCheckpoints struct {
	ingest, extract, decompose Checkpoint
}

var (
	targetCheckpoints = assetCheckpoints{CompareTargetIngest, CompareTargetExtract, CompareTargetDecompose}
	userCheckpoints   = assetCheckpoints{CompareUserIngest, CompareUserExtract, CompareUserDecompose}
)

// Run 依次执行 target、user 子流程，然后是 compare、improve 与 finalize
func (p *ComparePipeline) Run(ctx context.Context) (*types.Result, error) {
	target, err := p.decomposeAsset(ctx, types.RoleTarget, targetCheckpoints)
	if err != nil {
		return nil, err
	}
	user, err := p.decomposeAsset(ctx, types.RoleUser, userCheckpoints)
	if err != nil {
		return nil, err
	}

	var mappings []types.Mapping
	err = p.stage(ctx, CompareAlign, func(context.Context) error {
		mappings = p.deps.Aligner.Align(target.Segments, user.Segments)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var improvements []types.SegmentImprovements
	err = p.stage(ctx, CompareImprove, func(context.Context) error {
		improvements = p.deps.Synthesizer.Synthesize(user.Segments, target.Segments, mappings)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &types.Result{
		Mode:   types.ModeCompare,
		Target: *target,
		User:   user,
		Comparison: &types.Comparison{
			Mappings:     mappings,
			Improvements: improvements,
		},
	}
	err = p.stage(ctx, CompareFinalize, func(ctx context.Context) error {
		return p.finalize(ctx, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// decomposeAsset 为一个角色执行 learn 子流程，分段融合各自独立
func (p *ComparePipeline) decomposeAsset(ctx context.Context, role types.AssetRole, cps assetCheckpoints) (*types.AssetResult, error) {
	var (
		asset  *types.Asset
		frames []types.Frame
		out    types.AssetResult
	)

	err := p.stage(ctx, cps.ingest, func(ctx context.Context) (err error) {
		asset, err = p.ingest(ctx, role)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, cps.extract, func(ctx context.Context) (err error) {
		frames, err = p.extractFrames(ctx, asset)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, cps.decompose, func(ctx context.Context) error {
		var (
			boundaries []types.Segment
			err        error
		)
		if p.cfg.Options.SceneDetection.Enabled() {
			out.DetectionMethod = types.DetectionCV
			boundaries, err = p.detectScenes(ctx, asset)
		} else {
			out.DetectionMethod = types.DetectionLLM
			boundaries, err = p.proposeBoundaries(ctx, frames)
		}
		if err != nil {
			return err
		}

		segments, err := p.analyzeSegments(ctx, boundaries, frames, nil)
		if err != nil {
			return err
		}
		if err := p.validate(segments); err != nil {
			return err
		}
		keyframes, err := p.writeKeyframes(ctx, role, frames, segments)
		if err != nil {
			return err
		}

		out.AssetID = asset.ID
		out.Segments = segments
		out.Keyframes = keyframes
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
