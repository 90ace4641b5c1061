// Package validator 对拆解结果做结构校验（硬失败）和单特征约束检查（仅告警）。
package validator
