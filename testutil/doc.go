/*
Package testutil 提供 FlowDecompose 测试的共享工具。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext
  - 断言工具: AssertJSONEqual / AssertEventuallyTrue / AssertContiguousSegments
  - 异步等待: WaitFor / WaitForChannel / WaitForJob

# 子包

  - testutil/mocks: 流水线外部能力的可编程替身（Ingestor、FrameExtractor、
    SceneDetector、Analyzer），支持错误注入与阻塞闸门
  - testutil/fixtures: 任务配置、片段与特征的样例数据

# 使用示例

	an := mocks.NewAnalyzer().WithBoundaries(fixtures.Segments(0, 3000, 6000)...)
	job := testutil.WaitForJob(t, st, jobID, 5*time.Second)
*/
package testutil
