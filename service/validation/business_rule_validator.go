/*
 * @module service/validation/business_rule_validator
 * @description 业务规则校验器，按类型化规则变体逐条评估抽样记录，并计算运行级质量评分
 * @architecture 分层架构 - 校验服务层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 引擎调用 Validate -> 逐实体抽样 -> 规则类型分派评估 -> 质量评分与趋势快照
 * @rules 质量评分 = 100 - Σ(级别权重 × 条数)，下限为0；趋势快照指标不关联运行
 * @dependencies service/localstore, service/models
 * @refs service/validation/engine.go, service/validation/business_rules.go
 */

package validation

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/spf13/cast"

	"vms-validation-service/service/localstore"
	"vms-validation-service/service/models"
)

// 容量利用率告警线
const capacityUtilizationWarning = 90.0

// BusinessRuleValidator 业务规则校验器
type BusinessRuleValidator struct {
	config  *Config
	store   *localstore.Store
	scripts *ScriptExecutor
}

// NewBusinessRuleValidator 创建业务规则校验器
func NewBusinessRuleValidator(config *Config, store *localstore.Store, scripts *ScriptExecutor) *BusinessRuleValidator {
	if scripts == nil {
		scripts = NewScriptExecutor()
	}
	return &BusinessRuleValidator{config: config, store: store, scripts: scripts}
}

// Name 校验器名称
func (v *BusinessRuleValidator) Name() string {
	return "business_rule_validator"
}

// Type 校验类型
func (v *BusinessRuleValidator) Type() string {
	return models.ValidationTypeBusinessLogic
}

// Validate 逐实体评估业务规则并计算质量评分
func (v *BusinessRuleValidator) Validate(ctx context.Context) ([]models.ValidationResult, []models.ValidationMetric, error) {
	var results []models.ValidationResult
	var metrics []models.ValidationMetric

	for _, entityType := range v.config.EntityTypes {
		if err := ctx.Err(); err != nil {
			return results, metrics, err
		}

		rules := v.config.EntityRulesFor(entityType)
		if len(rules.BusinessRules) == 0 {
			continue
		}

		records, err := v.store.Sample(ctx, entityType, v.config.SampleSize)
		if err != nil {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				Severity:       models.SeverityError,
				ValidationType: models.ValidationTypeBusinessLogic,
				RuleName:       "sample_fetch",
				Message:        fmt.Sprintf("实体 %s 抽样失败: %v", entityType, err),
			})
			continue
		}
		if len(records) == 0 {
			continue
		}

		for _, rule := range rules.BusinessRules {
			results = append(results, v.evaluateRule(entityType, rule, records)...)
		}
	}

	score := ComputeQualityScore(results, v.config.QualityWeights)
	metrics = append(metrics, models.ValidationMetric{
		MetricName:     "quality_score",
		MetricCategory: models.MetricCategoryBusiness,
		MetricUnit:     models.MetricUnitPercentage,
		MetricValue:    score,
	})

	if v.config.TrendEnabled {
		metrics = append(metrics, v.trendSnapshots(results, score)...)
	}

	slog.Info("业务规则校验完成", "results", len(results), "quality_score", score)
	return results, metrics, nil
}

// evaluateRule 按规则类型分派评估
func (v *BusinessRuleValidator) evaluateRule(entityType string, rule BusinessRule, records []map[string]interface{}) []models.ValidationResult {
	switch r := rule.(type) {
	case *StatusTransitionRule:
		return v.evaluateStatusTransition(entityType, r, records)
	case *DateRangeRule:
		return v.evaluateDateRange(entityType, r, records)
	case *CapacityLimitRule:
		return v.evaluateCapacityLimit(entityType, r, records)
	case *BusinessConstraintRule:
		return v.evaluateBusinessConstraint(entityType, r, records)
	case *CrossFieldRule:
		return v.evaluateCrossField(entityType, r, records)
	case *WorkflowRule:
		return v.evaluateWorkflow(entityType, r, records)
	case *CustomScriptRule:
		return v.evaluateCustomScript(entityType, r, records)
	default:
		slog.Warn("未知业务规则类型，已跳过", "rule", rule.RuleName(), "kind", rule.Kind())
		return nil
	}
}

// evaluateStatusTransition 状态值必须在已知状态集中，流转图暂不参与评估
func (v *BusinessRuleValidator) evaluateStatusTransition(entityType string, rule *StatusTransitionRule, records []map[string]interface{}) []models.ValidationResult {
	var results []models.ValidationResult
	for _, record := range records {
		value := record[rule.StatusField]
		if isBlank(value) {
			continue
		}
		status := cast.ToString(value)
		if !containsString(rule.KnownStatuses, status) {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				EntityID:       recordID(record),
				FieldName:      rule.StatusField,
				Severity:       rule.Severity,
				ValidationType: models.ValidationTypeBusinessLogic,
				RuleName:       rule.Name,
				Message:        fmt.Sprintf("实体 %s 记录 %s 状态值未知: %s", entityType, recordID(record), status),
				ActualValue:    status,
			})
		}
	}
	return results
}

// evaluateDateRange 开始早于结束，时长落在 [min, max] 天之间，三项检查各自产出结果
func (v *BusinessRuleValidator) evaluateDateRange(entityType string, rule *DateRangeRule, records []map[string]interface{}) []models.ValidationResult {
	var results []models.ValidationResult
	rangeField := fmt.Sprintf("%s_%s", rule.StartField, rule.EndField)

	for _, record := range records {
		start, startOK := parseDateValue(record[rule.StartField])
		end, endOK := parseDateValue(record[rule.EndField])
		if !startOK || !endOK {
			continue
		}

		if !start.Before(end) {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				EntityID:       recordID(record),
				FieldName:      rangeField,
				Severity:       rule.Severity,
				ValidationType: models.ValidationTypeBusinessLogic,
				RuleName:       rule.Name,
				Message: fmt.Sprintf("实体 %s 记录 %s 开始时间不早于结束时间: %s >= %s",
					entityType, recordID(record), start.Format("2006-01-02"), end.Format("2006-01-02")),
				ExpectedValue: fmt.Sprintf("%s < %s", rule.StartField, rule.EndField),
			})
			continue
		}

		durationDays := int(end.Sub(start).Hours() / 24)
		if durationDays < rule.MinDurationDays {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				EntityID:       recordID(record),
				FieldName:      rangeField,
				Severity:       rule.Severity,
				ValidationType: models.ValidationTypeBusinessLogic,
				RuleName:       rule.Name,
				Message: fmt.Sprintf("实体 %s 记录 %s 时长 %d 天低于下限 %d 天",
					entityType, recordID(record), durationDays, rule.MinDurationDays),
			})
		}
		if rule.MaxDurationDays > 0 && durationDays > rule.MaxDurationDays {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				EntityID:       recordID(record),
				FieldName:      rangeField,
				Severity:       rule.Severity,
				ValidationType: models.ValidationTypeBusinessLogic,
				RuleName:       rule.Name,
				Message: fmt.Sprintf("实体 %s 记录 %s 时长 %d 天超过上限 %d 天",
					entityType, recordID(record), durationDays, rule.MaxDurationDays),
			})
		}
	}
	return results
}

// evaluateCapacityLimit 当前人数不得超容量；利用率超过告警线或容量本身异常时告警
func (v *BusinessRuleValidator) evaluateCapacityLimit(entityType string, rule *CapacityLimitRule, records []map[string]interface{}) []models.ValidationResult {
	var results []models.ValidationResult
	for _, record := range records {
		capacityValue := record[rule.CapacityField]
		currentValue := record[rule.CurrentField]
		if isBlank(capacityValue) {
			continue
		}
		capacity, err := cast.ToFloat64E(capacityValue)
		if err != nil {
			continue
		}
		current := cast.ToFloat64(currentValue)

		if capacity < 1 || capacity > float64(v.config.MaxCapacity) {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				EntityID:       recordID(record),
				FieldName:      rule.CapacityField,
				Severity:       models.SeverityWarning,
				ValidationType: models.ValidationTypeBusinessLogic,
				RuleName:       rule.Name,
				Message: fmt.Sprintf("实体 %s 记录 %s 容量值异常: %.0f (允许 1-%d)",
					entityType, recordID(record), capacity, v.config.MaxCapacity),
				ActualValue: fmt.Sprintf("%.0f", capacity),
			})
		}

		if current > capacity {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				EntityID:       recordID(record),
				FieldName:      rule.CurrentField,
				Severity:       rule.Severity,
				ValidationType: models.ValidationTypeBusinessLogic,
				RuleName:       rule.Name,
				Message: fmt.Sprintf("实体 %s 记录 %s 当前人数 %.0f 超过容量 %.0f",
					entityType, recordID(record), current, capacity),
				ExpectedValue: fmt.Sprintf("<= %.0f", capacity),
				ActualValue:   fmt.Sprintf("%.0f", current),
			})
		} else if capacity > 0 && current/capacity*100 > capacityUtilizationWarning {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				EntityID:       recordID(record),
				FieldName:      rule.CurrentField,
				Severity:       models.SeverityWarning,
				ValidationType: models.ValidationTypeBusinessLogic,
				RuleName:       rule.Name,
				Message: fmt.Sprintf("实体 %s 记录 %s 容量利用率 %.1f%% 超过告警线",
					entityType, recordID(record), current/capacity*100),
			})
		}
	}
	return results
}

// evaluateBusinessConstraint 单字段通用约束：必填、枚举、长度、数值范围
func (v *BusinessRuleValidator) evaluateBusinessConstraint(entityType string, rule *BusinessConstraintRule, records []map[string]interface{}) []models.ValidationResult {
	var results []models.ValidationResult
	for _, record := range records {
		value := record[rule.Field]

		if isBlank(value) {
			if rule.Required {
				results = append(results, models.ValidationResult{
					EntityType:     entityType,
					EntityID:       recordID(record),
					FieldName:      rule.Field,
					Severity:       rule.Severity,
					ValidationType: models.ValidationTypeBusinessLogic,
					RuleName:       rule.Name,
					Message:        fmt.Sprintf("实体 %s 记录 %s 缺少必填字段 %s", entityType, recordID(record), rule.Field),
				})
			}
			continue
		}

		s := cast.ToString(value)
		var problem string
		switch {
		case len(rule.AllowedValues) > 0 && !containsString(rule.AllowedValues, s):
			problem = fmt.Sprintf("值 %s 不在允许值范围内", s)
		case rule.MinLength != nil && len(s) < *rule.MinLength:
			problem = fmt.Sprintf("长度 %d 小于最小长度 %d", len(s), *rule.MinLength)
		case rule.MaxLength != nil && len(s) > *rule.MaxLength:
			problem = fmt.Sprintf("长度 %d 超过最大长度 %d", len(s), *rule.MaxLength)
		}
		if problem == "" && (rule.MinValue != nil || rule.MaxValue != nil) {
			if n, err := cast.ToFloat64E(value); err == nil {
				if rule.MinValue != nil && n < *rule.MinValue {
					problem = fmt.Sprintf("值 %v 小于最小值 %v", n, *rule.MinValue)
				} else if rule.MaxValue != nil && n > *rule.MaxValue {
					problem = fmt.Sprintf("值 %v 大于最大值 %v", n, *rule.MaxValue)
				}
			}
		}
		if problem != "" {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				EntityID:       recordID(record),
				FieldName:      rule.Field,
				Severity:       rule.Severity,
				ValidationType: models.ValidationTypeBusinessLogic,
				RuleName:       rule.Name,
				Message:        fmt.Sprintf("实体 %s 记录 %s 字段 %s %s", entityType, recordID(record), rule.Field, problem),
				ActualValue:    s,
			})
		}
	}
	return results
}

// evaluateCrossField 条件字段命中时依赖字段必须存在且落在可选数值范围内
// 全部通过时补一条规则级通过结果
func (v *BusinessRuleValidator) evaluateCrossField(entityType string, rule *CrossFieldRule, records []map[string]interface{}) []models.ValidationResult {
	var results []models.ValidationResult
	violations := 0

	for _, record := range records {
		if cast.ToString(record[rule.IfField]) != rule.IfValue {
			continue
		}

		thenValue := record[rule.ThenField]
		if isBlank(thenValue) {
			violations++
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				EntityID:       recordID(record),
				FieldName:      rule.ThenField,
				Severity:       rule.Severity,
				ValidationType: models.ValidationTypeBusinessLogic,
				RuleName:       rule.Name,
				Message: fmt.Sprintf("实体 %s 记录 %s 满足 %s=%s 但缺少 %s",
					entityType, recordID(record), rule.IfField, rule.IfValue, rule.ThenField),
			})
			continue
		}

		if rule.MinValue != nil || rule.MaxValue != nil {
			n, err := cast.ToFloat64E(thenValue)
			if err != nil || (rule.MinValue != nil && n < *rule.MinValue) || (rule.MaxValue != nil && n > *rule.MaxValue) {
				violations++
				results = append(results, models.ValidationResult{
					EntityType:     entityType,
					EntityID:       recordID(record),
					FieldName:      rule.ThenField,
					Severity:       rule.Severity,
					ValidationType: models.ValidationTypeBusinessLogic,
					RuleName:       rule.Name,
					Message: fmt.Sprintf("实体 %s 记录 %s 字段 %s 值超出条件规则范围: %v",
						entityType, recordID(record), rule.ThenField, thenValue),
					ActualValue: cast.ToString(thenValue),
				})
			}
		}
	}

	if violations == 0 {
		results = append(results, models.ValidationResult{
			EntityType:     entityType,
			FieldName:      rule.ThenField,
			Severity:       models.SeverityInfo,
			ValidationType: models.ValidationTypeBusinessLogic,
			RuleName:       rule.Name,
			Message:        fmt.Sprintf("实体 %s 跨字段规则 %s 全部通过", entityType, rule.Name),
		})
	}
	return results
}

// evaluateWorkflow 每步必填字段非空；有依赖步骤时其完成标志字段必须为真
func (v *BusinessRuleValidator) evaluateWorkflow(entityType string, rule *WorkflowRule, records []map[string]interface{}) []models.ValidationResult {
	var results []models.ValidationResult
	for _, record := range records {
		for _, step := range rule.Steps {
			for _, field := range step.RequiredFields {
				if isBlank(record[field]) {
					results = append(results, models.ValidationResult{
						EntityType:     entityType,
						EntityID:       recordID(record),
						FieldName:      field,
						Severity:       rule.Severity,
						ValidationType: models.ValidationTypeBusinessLogic,
						RuleName:       rule.Name,
						Message: fmt.Sprintf("实体 %s 记录 %s 工作流步骤 %s 缺少字段 %s",
							entityType, recordID(record), step.Name, field),
					})
				}
			}

			if step.DependsOn != "" {
				flagField := fmt.Sprintf("%s_Completed__c", step.DependsOn)
				if !cast.ToBool(record[flagField]) {
					results = append(results, models.ValidationResult{
						EntityType:     entityType,
						EntityID:       recordID(record),
						FieldName:      flagField,
						Severity:       rule.Severity,
						ValidationType: models.ValidationTypeBusinessLogic,
						RuleName:       rule.Name,
						Message: fmt.Sprintf("实体 %s 记录 %s 步骤 %s 的前置步骤 %s 未完成",
							entityType, recordID(record), step.Name, step.DependsOn),
					})
				}
			}
		}
	}
	return results
}

// evaluateCustomScript 逐记录执行规则脚本，脚本编译失败时跳过整条规则
func (v *BusinessRuleValidator) evaluateCustomScript(entityType string, rule *CustomScriptRule, records []map[string]interface{}) []models.ValidationResult {
	var results []models.ValidationResult
	for _, record := range records {
		passed, message, err := v.scripts.Execute(rule.Script, record)
		if err != nil {
			slog.Warn("规则脚本执行失败，跳过该规则", "rule", rule.Name, "error", err)
			return results
		}
		if !passed {
			results = append(results, models.ValidationResult{
				EntityType:     entityType,
				EntityID:       recordID(record),
				Severity:       rule.Severity,
				ValidationType: models.ValidationTypeBusinessLogic,
				RuleName:       rule.Name,
				Message:        fmt.Sprintf("实体 %s 记录 %s 自定义规则不通过: %s", entityType, recordID(record), message),
			})
		}
	}
	return results
}

// trendSnapshots 生成趋势快照指标，不关联运行，保留周期清理不会删除
func (v *BusinessRuleValidator) trendSnapshots(results []models.ValidationResult, score float64) []models.ValidationMetric {
	counts := map[models.Severity]int{}
	for _, result := range results {
		counts[result.Severity]++
	}

	metrics := []models.ValidationMetric{
		{
			MetricName:      "trend_quality_score",
			MetricCategory:  models.MetricCategoryBusiness,
			MetricUnit:      models.MetricUnitPercentage,
			MetricValue:     score,
			AggregationType: "snapshot",
			TrendPeriod:     "daily",
		},
	}
	for severity, name := range map[models.Severity]string{
		models.SeverityWarning:  "trend_warning_count",
		models.SeverityError:    "trend_error_count",
		models.SeverityCritical: "trend_critical_count",
	} {
		metrics = append(metrics, models.ValidationMetric{
			MetricName:      name,
			MetricCategory:  models.MetricCategoryBusiness,
			MetricUnit:      models.MetricUnitErrors,
			MetricValue:     float64(counts[severity]),
			AggregationType: "snapshot",
			TrendPeriod:     "daily",
		})
	}
	return metrics
}

// ComputeQualityScore 按严重级别加权扣分计算质量评分，基准100分，下限0分
func ComputeQualityScore(results []models.ValidationResult, weights QualityWeights) float64 {
	score := 100.0
	for _, result := range results {
		score -= weights.ForSeverity(result.Severity)
	}
	return math.Max(0, score)
}
