/*
 * @module service/validation/validator
 * @description 校验器统一接口和计时包装
 * @architecture 分层架构 - 校验服务层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 引擎按顺序调用 ValidateWithTiming -> 校验器产出结果与指标 -> 引擎聚合
 * @rules 校验器只产出结果和指标，不直接落库；执行耗时和内存采样由包装统一记录
 * @dependencies service/models, runtime, time
 * @refs service/validation/engine.go
 */

package validation

import (
	"context"
	"runtime"
	"time"

	"vms-validation-service/service/models"
)

// Validator 校验器接口
type Validator interface {
	// Name 校验器名称，用于结果归因和日志
	Name() string
	// Type 校验类型，对应结果的 validation_type
	Type() string
	// Validate 执行校验，返回结果与指标，不落库
	Validate(ctx context.Context) ([]models.ValidationResult, []models.ValidationMetric, error)
}

// Timing 单个校验器的执行计量
type Timing struct {
	Duration time.Duration
	MemoryMB float64
}

// ValidateWithTiming 包装校验器调用，记录起止时间和内存采样
func ValidateWithTiming(ctx context.Context, v Validator) ([]models.ValidationResult, []models.ValidationMetric, Timing, error) {
	start := time.Now()

	results, metrics, err := v.Validate(ctx)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	timing := Timing{
		Duration: time.Since(start),
		MemoryMB: float64(memStats.Alloc) / 1024.0 / 1024.0,
	}
	return results, metrics, timing, err
}
