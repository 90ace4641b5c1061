/*
Package compare 对齐 user 与 target 视频的片段，并生成有序的改进动作。

# 对齐

Aligner 为每个 user 片段选出得分最高的 target 片段：

	score = 0.6 × (1 − |user_pos − target_pos|) + 0.4 × min(dur)/max(dur)

得分相同时保留靠前的 target 片段。多个 user 片段可以映射到同一个 target 片段。

# 改进合成

Synthesizer 按 camera_motion、lighting、color_grading 的顺序比较特征，
每个类别只取第一次出现的特征。第一个生成的动作优先级为 high，其余为 medium。
camera_motion 动作附带 MotionRecipe，供虚拟运镜预览使用。
*/
package compare
