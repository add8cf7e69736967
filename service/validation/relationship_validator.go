/*
 * @module service/validation/relationship_validator
 * @description 关系完整性校验器，检查查找字段的必填性、ID格式、选项列表成员、孤儿记录和自引用
 * @architecture 分层架构 - 校验服务层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 引擎调用 Validate -> 逐实体抽样 -> 必填关系统计 -> 可选关系格式检查 -> 孤儿/自引用检测
 * @rules 必填关系缺失逐条产出结果并附完整率汇总；孤儿率超过允许缺失率10个百分点升级为 error
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

// 必填关系完整率低于该值时汇总结果升级为 error
const relationshipSummaryThreshold = 90.0

// RelationshipValidator 关系完整性校验器
type RelationshipValidator struct {
	config *Config
	store  *localstore.Store
}

// NewRelationshipValidator 创建关系校验器
func NewRelationshipValidator(config *Config, store *localstore.Store) *RelationshipValidator {
	return &RelationshipValidator{config: config, store: store}
}

// Name 校验器名称
func (v *RelationshipValidator) Name() string {
	return "relationship_validator"
}

// Type 校验类型
func (v *RelationshipValidator) Type() string {
	return models.ValidationTypeRelationship
}

// Validate 逐实体抽样检查关系字段
func (v *RelationshipValidator) Validate(ctx context.Context) ([]models.ValidationResult, []models.ValidationMetric, error) {
	var results []models.ValidationResult
	var metrics []models.ValidationMetric

	for _, entityType := range v.config.EntityTypes {
		if err := ctx.Err(); err != nil {
			return results, metrics, err
		}

		rules := v.config.EntityRulesFor(entityType)
		if len(rules.Relationships) == 0 {
			continue
		}

		records, err := v.store.Sample(ctx, entityType, v.config.SampleSize)
		if err != nil {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				Severity:       models.SeverityError,
				ValidationType: models.ValidationTypeRelationship,
				RuleName:       "sample_fetch",
				Message:        fmt.Sprintf("实体 %s 抽样失败: %v", entityType, err),
			})
			continue
		}
		if len(records) == 0 {
			continue
		}

		for _, rule := range rules.Relationships {
			if rule.Required {
				ruleResults, ruleMetric := v.checkRequiredRelationship(entityType, rule, records)
				results = append(results, ruleResults...)
				metrics = append(metrics, ruleMetric)
			} else {
				ruleResults, ruleMetric := v.checkOptionalRelationship(entityType, rule, records)
				results = append(results, ruleResults...)
				metrics = append(metrics, ruleMetric)
			}
		}

		results = append(results, v.checkOrphans(entityType, rules, records)...)
		results = append(results, v.checkSelfReferences(entityType, rules, records)...)
	}

	slog.Info("关系校验完成", "results", len(results))
	return results, metrics, nil
}

// checkRequiredRelationship 必填关系字段：逐条缺失结果加一条完整率汇总
func (v *RelationshipValidator) checkRequiredRelationship(entityType string, rule RelationshipRule, records []map[string]interface{}) ([]models.ValidationResult, models.ValidationMetric) {
	var results []models.ValidationResult
	populated := 0

	for _, record := range records {
		if isBlank(record[rule.Field]) {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				EntityID:       recordID(record),
				FieldName:      rule.Field,
				Severity:       rule.Severity,
				ValidationType: models.ValidationTypeRelationship,
				RuleName:       "required_relationship",
				Message:        fmt.Sprintf("实体 %s 记录 %s 缺少必填关系字段 %s", entityType, recordID(record), rule.Field),
			})
			continue
		}
		populated++
	}

	completeness := float64(populated) / float64(len(records)) * 100.0
	summarySeverity := models.SeverityError
	if completeness >= relationshipSummaryThreshold {
		summarySeverity = models.SeverityWarning
	}
	if populated == len(records) {
		summarySeverity = models.SeverityInfo
	}

	results = append(results, models.ValidationResult{
		EntityType:     entityType,
		FieldName:      rule.Field,
		Severity:       summarySeverity,
		ValidationType: models.ValidationTypeRelationship,
		RuleName:       "relationship_completeness",
		Message: fmt.Sprintf("实体 %s 必填关系 %s 完整率 %.1f%% (%d/%d)",
			entityType, rule.Field, completeness, populated, len(records)),
		ExpectedValue: fmt.Sprintf("%.1f%%", relationshipSummaryThreshold),
		ActualValue:   fmt.Sprintf("%.1f%%", completeness),
		Metadata: models.JSONB{
			"sample_size":     len(records),
			"populated_count": populated,
		},
	})

	metric := models.ValidationMetric{
		MetricName:      fmt.Sprintf("%s_%s_relationship_completeness", entityType, rule.Field),
		MetricCategory:  models.MetricCategoryQuality,
		MetricUnit:      models.MetricUnitPercentage,
		MetricValue:     completeness,
		MetricThreshold: floatPtr(relationshipSummaryThreshold),
		EntityType:      entityType,
		FieldName:       rule.Field,
	}
	return results, metric
}

// checkOptionalRelationship 可选关系字段：有值时校验格式，附一条填充率汇总
func (v *RelationshipValidator) checkOptionalRelationship(entityType string, rule RelationshipRule, records []map[string]interface{}) ([]models.ValidationResult, models.ValidationMetric) {
	var results []models.ValidationResult
	populated := 0

	for _, record := range records {
		value := record[rule.Field]
		if isBlank(value) {
			continue
		}
		populated++

		switch rule.Kind {
		case "lookup":
			if !sfIDRegex.MatchString(cast.ToString(value)) {
				results = append(results, models.ValidationResult{
					EntityType:     entityType,
					EntityID:       recordID(record),
					FieldName:      rule.Field,
					Severity:       rule.Severity,
					ValidationType: models.ValidationTypeRelationship,
					RuleName:       "lookup_id_format",
					Message: fmt.Sprintf("实体 %s 记录 %s 字段 %s 的值不是有效的15或18位ID: %v",
						entityType, recordID(record), rule.Field, value),
					ActualValue: cast.ToString(value),
				})
			}
		case "picklist":
			if len(rule.PicklistValues) > 0 && !containsString(rule.PicklistValues, cast.ToString(value)) {
				results = append(results, models.ValidationResult{
					EntityType:     entityType,
					EntityID:       recordID(record),
					FieldName:      rule.Field,
					Severity:       rule.Severity,
					ValidationType: models.ValidationTypeRelationship,
					RuleName:       "picklist_membership",
					Message: fmt.Sprintf("实体 %s 记录 %s 字段 %s 的值不在选项列表中: %v",
						entityType, recordID(record), rule.Field, value),
					ActualValue: cast.ToString(value),
				})
			}
		}
	}

	populationRate := float64(populated) / float64(len(records)) * 100.0
	results = append(results, models.ValidationResult{
		EntityType:     entityType,
		FieldName:      rule.Field,
		Severity:       models.SeverityInfo,
		ValidationType: models.ValidationTypeRelationship,
		RuleName:       "relationship_population",
		Message: fmt.Sprintf("实体 %s 可选关系 %s 填充率 %.1f%% (%d/%d)",
			entityType, rule.Field, populationRate, populated, len(records)),
		ActualValue: fmt.Sprintf("%.1f%%", populationRate),
	})

	metric := models.ValidationMetric{
		MetricName:     fmt.Sprintf("%s_%s_relationship_population", entityType, rule.Field),
		MetricCategory: models.MetricCategoryQuality,
		MetricUnit:     models.MetricUnitPercentage,
		MetricValue:    populationRate,
		EntityType:     entityType,
		FieldName:      rule.Field,
	}
	return results, metric
}

// checkOrphans 孤儿检测：所有必填关系字段均为空的记录视为孤儿
// 孤儿率不超过允许缺失率10个百分点时为 warning，否则 error
func (v *RelationshipValidator) checkOrphans(entityType string, rules *EntityRules, records []map[string]interface{}) []models.ValidationResult {
	var requiredFields []string
	for _, rule := range rules.Relationships {
		if rule.Required {
			requiredFields = append(requiredFields, rule.Field)
		}
	}
	if len(requiredFields) == 0 {
		return nil
	}

	orphans := 0
	var examples []string
	for _, record := range records {
		populated := false
		for _, field := range requiredFields {
			if !isBlank(record[field]) {
				populated = true
				break
			}
		}
		if !populated {
			orphans++
			if len(examples) < maxExampleRecords {
				examples = append(examples, recordID(record))
			}
		}
	}

	orphanRate := float64(orphans) / float64(len(records)) * 100.0
	allowedMissingRate := 100.0 - v.config.MinCompleteness

	severity := models.SeverityInfo
	if orphans > 0 {
		severity = models.SeverityWarning
		if orphanRate > allowedMissingRate+10 {
			severity = models.SeverityError
		}
	}

	return []models.ValidationResult{{
		EntityType:     entityType,
		Severity:       severity,
		ValidationType: models.ValidationTypeRelationship,
		RuleName:       "orphan_detection",
		Message: fmt.Sprintf("实体 %s 孤儿记录率 %.1f%% (%d/%d)",
			entityType, orphanRate, orphans, len(records)),
		ActualValue: fmt.Sprintf("%.1f%%", orphanRate),
		Metadata: models.JSONB{
			"orphan_count":    orphans,
			"sample_size":     len(records),
			"example_records": examples,
		},
	}}
}

// checkSelfReferences 自引用检测，只检查查找字段值等于记录自身ID的直接自引用
func (v *RelationshipValidator) checkSelfReferences(entityType string, rules *EntityRules, records []map[string]interface{}) []models.ValidationResult {
	var results []models.ValidationResult
	for _, record := range records {
		id := recordID(record)
		if id == "" {
			continue
		}
		for _, rule := range rules.Relationships {
			if rule.Kind != "lookup" {
				continue
			}
			if cast.ToString(record[rule.Field]) == id {
				results = append(results, models.ValidationResult{
					EntityType:     entityType,
					EntityID:       id,
					FieldName:      rule.Field,
					Severity:       models.SeverityError,
					ValidationType: models.ValidationTypeRelationship,
					RuleName:       "circular_reference",
					Message:        fmt.Sprintf("实体 %s 记录 %s 字段 %s 直接引用自身", entityType, id, rule.Field),
					ActualValue:    id,
				})
			}
		}
	}
	return results
}
