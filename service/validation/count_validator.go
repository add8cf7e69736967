/*
 * @module service/validation/count_validator
 * @description 记录数量比对校验器，逐实体比对本地库与CRM的记录数并按偏差分级
 * @architecture 分层架构 - 校验服务层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 引擎调用 Validate -> 逐实体取本地计数和CRM计数 -> 偏差分级 -> 产出结果与指标
 * @rules 偏差按容差的 1/2/5 倍分级为 info/warning/error/critical；event 实体的偏差恒为 info
 * @dependencies client, service/localstore, service/models
 * @refs service/validation/engine.go
 */

package validation

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"vms-validation-service/client"
	"vms-validation-service/service/localstore"
	"vms-validation-service/service/models"
)

// CountValidator 记录数量比对校验器
type CountValidator struct {
	config *Config
	store  *localstore.Store
	sf     *client.SalesforceClient
}

// NewCountValidator 创建数量比对校验器
func NewCountValidator(config *Config, store *localstore.Store, sf *client.SalesforceClient) *CountValidator {
	return &CountValidator{config: config, store: store, sf: sf}
}

// Name 校验器名称
func (v *CountValidator) Name() string {
	return "count_validator"
}

// Type 校验类型
func (v *CountValidator) Type() string {
	return models.ValidationTypeCount
}

// Validate 逐实体比对本地与CRM记录数
// CRM 认证失败直接返回错误终止；单实体计数失败记录错误级结果后继续
func (v *CountValidator) Validate(ctx context.Context) ([]models.ValidationResult, []models.ValidationMetric, error) {
	var results []models.ValidationResult
	var metrics []models.ValidationMetric

	checkedEntities := 0
	passedEntities := 0

	for _, entityType := range v.config.EntityTypes {
		if err := ctx.Err(); err != nil {
			return results, metrics, err
		}

		localCount, err := v.store.Count(ctx, entityType)
		if err != nil {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				FieldName:      "record_count",
				Severity:       models.SeverityError,
				ValidationType: models.ValidationTypeCount,
				RuleName:       "count_match",
				Message:        fmt.Sprintf("本地记录数查询失败: %v", err),
			})
			continue
		}

		crmCount, err := v.sf.GetEntityCount(ctx, entityType)
		if err != nil {
			if client.IsAuthError(err) {
				return results, metrics, fmt.Errorf("CRM认证失败，数量校验中止: %w", err)
			}
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				FieldName:      "record_count",
				Severity:       models.SeverityError,
				ValidationType: models.ValidationTypeCount,
				RuleName:       "count_match",
				Message:        fmt.Sprintf("CRM记录数查询失败: %v", err),
				ActualValue:    fmt.Sprintf("%d", localCount),
			})
			continue
		}

		checkedEntities++
		diffPct := discrepancyPercentage(localCount, crmCount)
		severity := v.countSeverity(entityType, diffPct)
		if severity == models.SeverityInfo {
			passedEntities++
		}

		results = append(results, models.ValidationResult{
			EntityType:     entityType,
			FieldName:      "record_count",
			Severity:       severity,
			ValidationType: models.ValidationTypeCount,
			RuleName:       "count_match",
			Message: fmt.Sprintf("实体 %s 记录数比对: 本地 %d, CRM %d, 偏差 %.1f%%",
				entityType, localCount, crmCount, diffPct),
			ExpectedValue: fmt.Sprintf("%d", crmCount),
			ActualValue:   fmt.Sprintf("%d", localCount),
			Metadata: models.JSONB{
				"local_count":            localCount,
				"crm_count":              crmCount,
				"discrepancy_percentage": diffPct,
				"tolerance":              v.config.CountTolerance,
			},
		})

		metrics = append(metrics,
			models.ValidationMetric{
				MetricName:     fmt.Sprintf("%s_local_count", entityType),
				MetricCategory: models.MetricCategoryTechnical,
				MetricUnit:     models.MetricUnitCount,
				MetricValue:    float64(localCount),
				EntityType:     entityType,
			},
			models.ValidationMetric{
				MetricName:     fmt.Sprintf("%s_crm_count", entityType),
				MetricCategory: models.MetricCategoryTechnical,
				MetricUnit:     models.MetricUnitCount,
				MetricValue:    float64(crmCount),
				EntityType:     entityType,
			},
			models.ValidationMetric{
				MetricName:      fmt.Sprintf("%s_count_discrepancy", entityType),
				MetricCategory:  models.MetricCategoryQuality,
				MetricUnit:      models.MetricUnitPercentage,
				MetricValue:     diffPct,
				MetricThreshold: floatPtr(v.config.CountTolerance),
				EntityType:      entityType,
			},
		)
	}

	successRate := 100.0
	if checkedEntities > 0 {
		successRate = float64(passedEntities) / float64(checkedEntities) * 100.0
	}
	metrics = append(metrics, models.ValidationMetric{
		MetricName:      "count_validation_success_rate",
		MetricCategory:  models.MetricCategoryQuality,
		MetricUnit:      models.MetricUnitPercentage,
		MetricValue:     successRate,
		MetricThreshold: floatPtr(100.0),
	})

	slog.Info("数量比对校验完成", "entities", checkedEntities, "passed", passedEntities)
	return results, metrics, nil
}

// countSeverity 按偏差百分比相对容差的倍数分级
// event 实体的会话数据同步时会被过滤，偏差恒为 info
func (v *CountValidator) countSeverity(entityType string, diffPct float64) models.Severity {
	if entityType == "event" {
		return models.SeverityInfo
	}
	tolerance := v.config.CountTolerance
	switch {
	case diffPct <= tolerance:
		return models.SeverityInfo
	case diffPct <= tolerance*2:
		return models.SeverityWarning
	case diffPct <= tolerance*5:
		return models.SeverityError
	default:
		return models.SeverityCritical
	}
}

// discrepancyPercentage 计算偏差百分比，分母取本地记录数，下限为1避免除零
func discrepancyPercentage(localCount, crmCount int64) float64 {
	denominator := float64(localCount)
	if denominator < 1 {
		denominator = 1
	}
	return math.Abs(float64(localCount-crmCount)) / denominator * 100.0
}
