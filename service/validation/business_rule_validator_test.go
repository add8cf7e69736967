/*
 * @module service/validation/business_rule_validator_test
 * @description 业务规则校验器单元测试
 * @architecture 测试层 - 单元测试
 */

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-validation-service/service/models"
)

func newBusinessRuleValidator() *BusinessRuleValidator {
	return &BusinessRuleValidator{
		config:  DefaultConfig(),
		scripts: NewScriptExecutor(),
	}
}

// TestEvaluateStatusTransition 未知状态值按规则配置级别产出结果
func TestEvaluateStatusTransition(t *testing.T) {
	v := newBusinessRuleValidator()
	rule := &StatusTransitionRule{
		Name:          "volunteer_status_values",
		StatusField:   "Volunteer_Status__c",
		KnownStatuses: []string{"Prospective", "Active", "Inactive"},
		Severity:      models.SeverityWarning,
	}
	records := []map[string]interface{}{
		{"id": "v001", "Volunteer_Status__c": "Active"},
		{"id": "v002", "Volunteer_Status__c": "Retired"},
		{"id": "v003", "Volunteer_Status__c": ""},
	}

	results := v.evaluateStatusTransition("volunteer", rule, records)

	require.Len(t, results, 1)
	assert.Equal(t, "v002", results[0].EntityID)
	assert.Equal(t, models.SeverityWarning, results[0].Severity)
	assert.Equal(t, "Retired", results[0].ActualValue)
}

// TestEvaluateDateRange 开始必须早于结束，时长落在上下限之间
func TestEvaluateDateRange(t *testing.T) {
	v := newBusinessRuleValidator()
	rule := &DateRangeRule{
		Name:            "event_date_range",
		StartField:      "Start_Date__c",
		EndField:        "End_Date__c",
		MinDurationDays: 0,
		MaxDurationDays: 30,
		Severity:        models.SeverityError,
	}
	records := []map[string]interface{}{
		{"id": "e001", "Start_Date__c": "2026-08-01", "End_Date__c": "2026-08-03"},
		// 开始不早于结束
		{"id": "e002", "Start_Date__c": "2026-08-10", "End_Date__c": "2026-08-10"},
		// 时长超上限
		{"id": "e003", "Start_Date__c": "2026-01-01", "End_Date__c": "2026-06-01"},
		// 日期无法解析，跳过
		{"id": "e004", "Start_Date__c": "soon", "End_Date__c": "2026-08-03"},
	}

	results := v.evaluateDateRange("event", rule, records)

	require.Len(t, results, 2)
	assert.Equal(t, "e002", results[0].EntityID)
	assert.Equal(t, models.SeverityError, results[0].Severity)
	assert.Equal(t, "Start_Date__c_End_Date__c", results[0].FieldName)
	assert.Equal(t, "e003", results[1].EntityID)
	assert.Contains(t, results[1].Message, "超过上限")
}

// TestEvaluateCapacityLimit 超容量按规则级别产出，利用率超90%为 warning
func TestEvaluateCapacityLimit(t *testing.T) {
	v := newBusinessRuleValidator()
	rule := &CapacityLimitRule{
		Name:          "event_capacity",
		CapacityField: "Capacity__c",
		CurrentField:  "Current_Registrations__c",
		Severity:      models.SeverityError,
	}
	records := []map[string]interface{}{
		{"id": "e001", "Capacity__c": 100, "Current_Registrations__c": 50},
		{"id": "e002", "Capacity__c": 100, "Current_Registrations__c": 120},
		{"id": "e003", "Capacity__c": 100, "Current_Registrations__c": 95},
		// 容量异常
		{"id": "e004", "Capacity__c": 0, "Current_Registrations__c": 0},
		// 容量为空，跳过
		{"id": "e005", "Current_Registrations__c": 10},
	}

	results := v.evaluateCapacityLimit("event", rule, records)

	require.Len(t, results, 3)
	assert.Equal(t, "e002", results[0].EntityID)
	assert.Equal(t, models.SeverityError, results[0].Severity)
	assert.Equal(t, "e003", results[1].EntityID)
	assert.Equal(t, models.SeverityWarning, results[1].Severity)
	assert.Equal(t, "e004", results[2].EntityID)
	assert.Contains(t, results[2].Message, "容量值异常")
}

// TestEvaluateBusinessConstraint 必填、枚举、长度、数值范围约束
func TestEvaluateBusinessConstraint(t *testing.T) {
	v := newBusinessRuleValidator()
	maxLen := 5
	minVal := 0.0
	rule := &BusinessConstraintRule{
		Name:      "grade_constraint",
		Field:     "Grade__c",
		Required:  true,
		MaxLength: &maxLen,
		MinValue:  &minVal,
		Severity:  models.SeverityWarning,
	}
	records := []map[string]interface{}{
		{"id": "s001", "Grade__c": "9"},
		{"id": "s002", "Grade__c": ""},
		{"id": "s003", "Grade__c": "twelfth"},
		{"id": "s004", "Grade__c": "-1"},
	}

	results := v.evaluateBusinessConstraint("student", rule, records)

	require.Len(t, results, 3)
	assert.Contains(t, results[0].Message, "缺少必填字段")
	assert.Contains(t, results[1].Message, "超过最大长度")
	assert.Contains(t, results[2].Message, "小于最小值")
}

// TestEvaluateCrossField 条件命中缺依赖字段为违规，全部通过补一条 info
func TestEvaluateCrossField(t *testing.T) {
	v := newBusinessRuleValidator()
	rule := &CrossFieldRule{
		Name:      "active_requires_hours",
		IfField:   "Volunteer_Status__c",
		IfValue:   "Active",
		ThenField: "Hours__c",
		Severity:  models.SeverityWarning,
	}

	t.Run("存在违规", func(t *testing.T) {
		records := []map[string]interface{}{
			{"id": "v001", "Volunteer_Status__c": "Active", "Hours__c": 12},
			{"id": "v002", "Volunteer_Status__c": "Active"},
			{"id": "v003", "Volunteer_Status__c": "Inactive"},
		}
		results := v.evaluateCrossField("volunteer", rule, records)
		require.Len(t, results, 1)
		assert.Equal(t, "v002", results[0].EntityID)
		assert.Equal(t, models.SeverityWarning, results[0].Severity)
	})

	t.Run("全部通过补一条info", func(t *testing.T) {
		records := []map[string]interface{}{
			{"id": "v001", "Volunteer_Status__c": "Active", "Hours__c": 12},
		}
		results := v.evaluateCrossField("volunteer", rule, records)
		require.Len(t, results, 1)
		assert.Equal(t, models.SeverityInfo, results[0].Severity)
		assert.Contains(t, results[0].Message, "全部通过")
	})
}

// TestEvaluateWorkflow 步骤必填字段与前置步骤完成标志
func TestEvaluateWorkflow(t *testing.T) {
	v := newBusinessRuleValidator()
	rule := &WorkflowRule{
		Name: "volunteer_onboarding",
		Steps: []WorkflowStep{
			{Name: "application", RequiredFields: []string{"Application_Date__c"}},
			{Name: "background_check", RequiredFields: []string{"Check_Date__c"}, DependsOn: "Application"},
		},
		Severity: models.SeverityWarning,
	}
	records := []map[string]interface{}{
		{
			"id":                       "v001",
			"Application_Date__c":      "2026-01-10",
			"Check_Date__c":            "2026-01-20",
			"Application_Completed__c": true,
		},
		// 缺步骤字段且前置未完成
		{"id": "v002", "Application_Date__c": "2026-02-01"},
	}

	results := v.evaluateWorkflow("volunteer", rule, records)

	require.Len(t, results, 2)
	assert.Equal(t, "Check_Date__c", results[0].FieldName)
	assert.Equal(t, "Application_Completed__c", results[1].FieldName)
	assert.Contains(t, results[1].Message, "未完成")
}

// TestEvaluateCustomScript 脚本逐记录执行，编译失败跳过整条规则
func TestEvaluateCustomScript(t *testing.T) {
	v := newBusinessRuleValidator()

	t.Run("脚本判定失败产出结果", func(t *testing.T) {
		rule := &CustomScriptRule{
			Name:     "email_domain",
			Severity: models.SeverityError,
			Script: `import "strings"

func Run(record map[string]interface{}) (bool, string) {
	email, _ := record["Email"].(string)
	if strings.HasSuffix(email, "@example.org") {
		return true, ""
	}
	return false, "邮箱域名不符"
}`,
		}
		records := []map[string]interface{}{
			{"id": "v001", "Email": "jane@example.org"},
			{"id": "v002", "Email": "john@other.com"},
		}

		results := v.evaluateCustomScript("volunteer", rule, records)

		require.Len(t, results, 1)
		assert.Equal(t, "v002", results[0].EntityID)
		assert.Equal(t, models.SeverityError, results[0].Severity)
		assert.Contains(t, results[0].Message, "邮箱域名不符")
	})

	t.Run("编译失败跳过规则", func(t *testing.T) {
		rule := &CustomScriptRule{
			Name:     "broken",
			Severity: models.SeverityError,
			Script:   "func Run(record map[string]interface{}) (bool, string) {",
		}
		records := []map[string]interface{}{{"id": "v001"}}

		results := v.evaluateCustomScript("volunteer", rule, records)

		assert.Empty(t, results)
	})
}

// TestRuleSeverityFromConfig 规则配置的级别贯穿评估结果
func TestRuleSeverityFromConfig(t *testing.T) {
	v := newBusinessRuleValidator()
	records := []map[string]interface{}{
		{"id": "v001", "Volunteer_Status__c": "Retired"},
	}

	rule := &StatusTransitionRule{
		Name:          "volunteer_status_values",
		StatusField:   "Volunteer_Status__c",
		KnownStatuses: []string{"Active", "Inactive"},
		Severity:      models.SeverityCritical,
	}
	results := v.evaluateStatusTransition("volunteer", rule, records)
	require.Len(t, results, 1)
	assert.Equal(t, models.SeverityCritical, results[0].Severity)

	constraint := &BusinessConstraintRule{
		Name:     "status_required",
		Field:    "Email",
		Required: true,
		Severity: models.SeverityError,
	}
	results = v.evaluateBusinessConstraint("volunteer", constraint, records)
	require.Len(t, results, 1)
	assert.Equal(t, models.SeverityError, results[0].Severity)
}

// TestComputeQualityScore 按级别加权扣分，下限0分
func TestComputeQualityScore(t *testing.T) {
	weights := DefaultConfig().QualityWeights

	results := []models.ValidationResult{
		{Severity: models.SeverityCritical},
		{Severity: models.SeverityWarning},
		{Severity: models.SeverityWarning},
	}
	// 100 - 10 - 2 - 2
	assert.InDelta(t, 86.0, ComputeQualityScore(results, weights), 0.001)

	assert.InDelta(t, 100.0, ComputeQualityScore(nil, weights), 0.001)

	var many []models.ValidationResult
	for i := 0; i < 50; i++ {
		many = append(many, models.ValidationResult{Severity: models.SeverityCritical})
	}
	assert.InDelta(t, 0.0, ComputeQualityScore(many, weights), 0.001, "评分不低于0")
}

// TestTrendSnapshots 快照指标不关联运行
func TestTrendSnapshots(t *testing.T) {
	v := newBusinessRuleValidator()
	results := []models.ValidationResult{
		{Severity: models.SeverityWarning},
		{Severity: models.SeverityError},
		{Severity: models.SeverityError},
	}

	metrics := v.trendSnapshots(results, 88.5)

	require.Len(t, metrics, 4)
	byName := map[string]models.ValidationMetric{}
	for _, m := range metrics {
		assert.Equal(t, "snapshot", m.AggregationType)
		byName[m.MetricName] = m
	}
	assert.InDelta(t, 88.5, byName["trend_quality_score"].MetricValue, 0.001)
	assert.InDelta(t, 1, byName["trend_warning_count"].MetricValue, 0.001)
	assert.InDelta(t, 2, byName["trend_error_count"].MetricValue, 0.001)
	assert.InDelta(t, 0, byName["trend_critical_count"].MetricValue, 0.001)
}
