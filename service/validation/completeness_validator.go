/*
 * @module service/validation/completeness_validator
 * @description 字段完整性校验器，抽样检查必填字段非空率以及格式、范围规则符合度
 * @architecture 分层架构 - 校验服务层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 引擎调用 Validate -> 逐实体抽样 -> 必填字段非空统计 -> 格式/范围检查 -> 每实体一条汇总
 * @rules 完整率按阈值、阈值-10、阈值-25 分级；汇总结果的 metadata 最多附10条示例错误
 * @dependencies service/localstore, service/models
 * @refs service/validation/engine.go
 */

package validation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cast"

	"vms-validation-service/service/localstore"
	"vms-validation-service/service/models"
)

// 单条汇总结果的 metadata 中保留的示例错误上限
const maxExampleRecords = 10

// fieldError 抽样检查发现的结构化字段错误
type fieldError struct {
	RecordID string `json:"record_id"`
	Field    string `json:"field"`
	Value    string `json:"value"`
	Error    string `json:"error"`
}

// CompletenessValidator 字段完整性校验器
type CompletenessValidator struct {
	config *Config
	store  *localstore.Store
}

// NewCompletenessValidator 创建完整性校验器
func NewCompletenessValidator(config *Config, store *localstore.Store) *CompletenessValidator {
	return &CompletenessValidator{config: config, store: store}
}

// Name 校验器名称
func (v *CompletenessValidator) Name() string {
	return "completeness_validator"
}

// Type 校验类型
func (v *CompletenessValidator) Type() string {
	return models.ValidationTypeCompleteness
}

// Validate 抽样检查各实体必填字段完整率和格式、范围规则，每实体产出一条汇总结果
func (v *CompletenessValidator) Validate(ctx context.Context) ([]models.ValidationResult, []models.ValidationMetric, error) {
	var results []models.ValidationResult
	var metrics []models.ValidationMetric

	for _, entityType := range v.config.EntityTypes {
		if err := ctx.Err(); err != nil {
			return results, metrics, err
		}

		rules := v.config.EntityRulesFor(entityType)
		if len(rules.RequiredFields) == 0 {
			continue
		}

		records, err := v.store.Sample(ctx, entityType, v.config.SampleSize)
		if err != nil {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				Severity:       models.SeverityError,
				ValidationType: models.ValidationTypeCompleteness,
				RuleName:       "sample_fetch",
				Message:        fmt.Sprintf("实体 %s 抽样失败: %v", entityType, err),
			})
			continue
		}
		if len(records) == 0 {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				Severity:       models.SeverityInfo,
				ValidationType: models.ValidationTypeCompleteness,
				RuleName:       "field_completeness",
				Message:        fmt.Sprintf("实体 %s 无记录可抽样", entityType),
			})
			continue
		}

		result, metric := v.checkEntity(entityType, rules, records)
		results = append(results, result)
		metrics = append(metrics, metric)
	}

	slog.Info("完整性校验完成", "results", len(results))
	return results, metrics, nil
}

// checkEntity 对单个实体的抽样记录统计完整率并执行格式、范围检查
// 完整率只统计必填字段非空；格式/范围错误计入示例错误列表
func (v *CompletenessValidator) checkEntity(entityType string, rules *EntityRules, records []map[string]interface{}) (models.ValidationResult, models.ValidationMetric) {
	formatByField := map[string][]FormatRule{}
	for _, rule := range rules.FormatRules {
		formatByField[rule.Field] = append(formatByField[rule.Field], rule)
	}
	rangeByField := map[string][]RangeRule{}
	for _, rule := range rules.RangeRules {
		rangeByField[rule.Field] = append(rangeByField[rule.Field], rule)
	}

	totalChecks := 0
	populated := 0
	var errors []fieldError

	addError := func(record map[string]interface{}, field string, value interface{}, message string) {
		if len(errors) >= maxExampleRecords {
			return
		}
		errors = append(errors, fieldError{
			RecordID: recordID(record),
			Field:    field,
			Value:    cast.ToString(value),
			Error:    message,
		})
	}

	for _, record := range records {
		for _, field := range rules.RequiredFields {
			totalChecks++
			value := record[field]
			if isBlank(value) {
				addError(record, field, value, "必填字段为空")
				continue
			}
			populated++

			for _, rule := range formatByField[field] {
				if passed, message := checkFormat(rule, value); !passed {
					addError(record, field, value, message)
				}
			}
			for _, rule := range rangeByField[field] {
				if passed, message := checkRange(rule, value); !passed {
					addError(record, field, value, message)
				}
			}
		}
	}

	completeness := 100.0
	if totalChecks > 0 {
		completeness = float64(populated) / float64(totalChecks) * 100.0
	}
	severity := v.completenessSeverity(completeness)

	result := models.ValidationResult{
		EntityType:     entityType,
		Severity:       severity,
		ValidationType: models.ValidationTypeCompleteness,
		RuleName:       "field_completeness",
		Message: fmt.Sprintf("实体 %s 必填字段完整率 %.1f%% (%d/%d)",
			entityType, completeness, populated, totalChecks),
		ExpectedValue: fmt.Sprintf("%.1f%%", v.config.MinCompleteness),
		ActualValue:   fmt.Sprintf("%.1f%%", completeness),
		Metadata: models.JSONB{
			"sample_size":     len(records),
			"total_checks":    totalChecks,
			"populated_count": populated,
			"example_errors":  errors,
		},
	}
	metric := models.ValidationMetric{
		MetricName:      fmt.Sprintf("%s_completeness", entityType),
		MetricCategory:  models.MetricCategoryQuality,
		MetricUnit:      models.MetricUnitPercentage,
		MetricValue:     completeness,
		MetricThreshold: floatPtr(v.config.MinCompleteness),
		EntityType:      entityType,
	}
	return result, metric
}

// completenessSeverity 按完整率相对阈值的差距分级
func (v *CompletenessValidator) completenessSeverity(completeness float64) models.Severity {
	threshold := v.config.MinCompleteness
	switch {
	case completeness >= threshold:
		return models.SeverityInfo
	case completeness >= threshold-10:
		return models.SeverityWarning
	case completeness >= threshold-25:
		return models.SeverityError
	default:
		return models.SeverityCritical
	}
}

// recordID 提取记录主键，兼容本地库小写和CRM的Id命名
func recordID(record map[string]interface{}) string {
	for _, key := range []string{"id", "Id", "ID", "salesforce_individual_id", "salesforce_account_id"} {
		if value, exists := record[key]; exists && !isBlank(value) {
			return cast.ToString(value)
		}
	}
	return ""
}
