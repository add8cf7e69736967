/*
 * @module service/validation/datatype_validator
 * @description 数据类型准确性校验器，抽样检查字段值是否符合类型规则
 * @architecture 分层架构 - 校验服务层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 引擎调用 Validate -> 逐实体抽样 -> 按类型规则逐字段检查 -> 每实体一条准确率汇总
 * @rules 空值且非必填不计入检查总数；准确率按阈值、阈值-5、阈值-15 分级
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

// DataTypeValidator 数据类型准确性校验器
type DataTypeValidator struct {
	config *Config
	store  *localstore.Store
}

// NewDataTypeValidator 创建数据类型校验器
func NewDataTypeValidator(config *Config, store *localstore.Store) *DataTypeValidator {
	return &DataTypeValidator{config: config, store: store}
}

// Name 校验器名称
func (v *DataTypeValidator) Name() string {
	return "datatype_validator"
}

// Type 校验类型
func (v *DataTypeValidator) Type() string {
	return models.ValidationTypeDataType
}

// Validate 抽样检查各实体字段值的类型准确率，每实体产出一条汇总结果
func (v *DataTypeValidator) Validate(ctx context.Context) ([]models.ValidationResult, []models.ValidationMetric, error) {
	var results []models.ValidationResult
	var metrics []models.ValidationMetric

	for _, entityType := range v.config.EntityTypes {
		if err := ctx.Err(); err != nil {
			return results, metrics, err
		}

		rules := v.config.EntityRulesFor(entityType)
		if len(rules.TypeRules) == 0 {
			continue
		}

		records, err := v.store.Sample(ctx, entityType, v.config.SampleSize)
		if err != nil {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				Severity:       models.SeverityError,
				ValidationType: models.ValidationTypeDataType,
				RuleName:       "sample_fetch",
				Message:        fmt.Sprintf("实体 %s 抽样失败: %v", entityType, err),
			})
			continue
		}
		if len(records) == 0 {
			continue
		}

		result, metric := v.checkEntity(entityType, rules, records)
		results = append(results, result)
		metrics = append(metrics, metric)
	}

	slog.Info("数据类型校验完成", "results", len(results))
	return results, metrics, nil
}

// checkEntity 对单个实体的抽样记录按类型规则计算准确率
// 空值且非必填的字段跳过不计入总数
func (v *DataTypeValidator) checkEntity(entityType string, rules *EntityRules, records []map[string]interface{}) (models.ValidationResult, models.ValidationMetric) {
	checked := 0
	valid := 0
	var errors []fieldError

	for _, record := range records {
		for _, rule := range rules.TypeRules {
			value := record[rule.Field]
			if isBlank(value) && !rule.Required {
				continue
			}
			checked++
			passed, message := checkFieldType(rule, value)
			if passed {
				valid++
				continue
			}
			if len(errors) < maxExampleRecords {
				errors = append(errors, fieldError{
					RecordID: recordID(record),
					Field:    rule.Field,
					Value:    cast.ToString(value),
					Error:    message,
				})
			}
		}
	}

	accuracy := 100.0
	if checked > 0 {
		accuracy = float64(valid) / float64(checked) * 100.0
	}
	severity := v.accuracySeverity(accuracy)

	result := models.ValidationResult{
		EntityType:     entityType,
		Severity:       severity,
		ValidationType: models.ValidationTypeDataType,
		RuleName:       "data_type_accuracy",
		Message: fmt.Sprintf("实体 %s 数据类型准确率 %.1f%% (%d/%d)",
			entityType, accuracy, valid, checked),
		ExpectedValue: fmt.Sprintf("%.1f%%", v.config.MinAccuracy),
		ActualValue:   fmt.Sprintf("%.1f%%", accuracy),
		Metadata: models.JSONB{
			"sample_size":    len(records),
			"checked_count":  checked,
			"valid_count":    valid,
			"example_errors": errors,
		},
	}
	metric := models.ValidationMetric{
		MetricName:      fmt.Sprintf("%s_type_accuracy", entityType),
		MetricCategory:  models.MetricCategoryQuality,
		MetricUnit:      models.MetricUnitPercentage,
		MetricValue:     accuracy,
		MetricThreshold: floatPtr(v.config.MinAccuracy),
		EntityType:      entityType,
	}
	return result, metric
}

// accuracySeverity 按准确率相对阈值的差距分级
func (v *DataTypeValidator) accuracySeverity(accuracy float64) models.Severity {
	threshold := v.config.MinAccuracy
	switch {
	case accuracy >= threshold:
		return models.SeverityInfo
	case accuracy >= threshold-5:
		return models.SeverityWarning
	case accuracy >= threshold-15:
		return models.SeverityError
	default:
		return models.SeverityCritical
	}
}
