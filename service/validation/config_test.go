/*
 * @module service/validation/config_test
 * @description 校验引擎配置单元测试
 * @architecture 测试层 - 单元测试
 */

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-validation-service/service/models"
	"vms-validation-service/testutil"
)

// TestDefaultConfig 默认配置覆盖全部内置实体类型
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.InDelta(t, 5.0, cfg.CountTolerance, 0.001)
	assert.InDelta(t, 95.0, cfg.MinCompleteness, 0.001)
	assert.InDelta(t, 99.0, cfg.MinAccuracy, 0.001)
	assert.Equal(t, 100, cfg.SampleSize)
	assert.True(t, cfg.ContinueOnError)
	assert.Equal(t, 90, cfg.RetentionDays)

	require.Len(t, cfg.EntityTypes, 5)
	for _, entityType := range cfg.EntityTypes {
		rules, exists := cfg.Entities[entityType]
		require.True(t, exists, "实体 %s 缺少规则表", entityType)
		assert.NotEmpty(t, rules.RequiredFields, "实体 %s 必填字段为空", entityType)
	}

	require.NoError(t, cfg.Validate())
}

// TestLoadFromEnv 环境变量覆盖全局阈值
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VALIDATION_COUNT_TOLERANCE", "8.5")
	t.Setenv("VALIDATION_MIN_COMPLETENESS", "90")
	t.Setenv("VALIDATION_SAMPLE_SIZE", "250")
	t.Setenv("VALIDATION_CONTINUE_ON_ERROR", "false")
	t.Setenv("VALIDATION_STRICT_MODE", "true")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.InDelta(t, 8.5, cfg.CountTolerance, 0.001)
	assert.InDelta(t, 90.0, cfg.MinCompleteness, 0.001)
	assert.Equal(t, 250, cfg.SampleSize)
	assert.False(t, cfg.ContinueOnError)
	assert.True(t, cfg.StrictMode)
}

// TestLoadFromEnvInvalid 非法环境变量值保持默认
func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("VALIDATION_COUNT_TOLERANCE", "plenty")
	t.Setenv("VALIDATION_SAMPLE_SIZE", "-10")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.InDelta(t, 5.0, cfg.CountTolerance, 0.001)
	assert.Equal(t, 100, cfg.SampleSize)
}

// TestConfigValidate 严格模式下配置问题返回错误
func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CountTolerance = -1

	require.NoError(t, cfg.Validate(), "宽松模式降级为日志")

	cfg.StrictMode = true
	assert.Error(t, cfg.Validate())
}

// TestEntityRulesFor 未知实体类型返回空表
func TestEntityRulesFor(t *testing.T) {
	cfg := DefaultConfig()

	rules := cfg.EntityRulesFor("volunteer")
	assert.NotEmpty(t, rules.RequiredFields)

	unknown := cfg.EntityRulesFor("galaxy")
	require.NotNil(t, unknown)
	assert.Empty(t, unknown.RequiredFields)
}

// TestDecodeBusinessRule 模板逻辑解码为类型化规则变体
func TestDecodeBusinessRule(t *testing.T) {
	t.Run("status_transition", func(t *testing.T) {
		rule, err := DecodeBusinessRule(RuleKindStatusTransition, "s1", models.SeverityWarning, map[string]interface{}{
			"status_field":   "Volunteer_Status__c",
			"known_statuses": []interface{}{"Active", "Inactive"},
			"transitions":    map[string]interface{}{"Active": []interface{}{"Inactive"}},
		})
		require.NoError(t, err)
		st := rule.(*StatusTransitionRule)
		assert.Equal(t, "Volunteer_Status__c", st.StatusField)
		assert.Equal(t, models.SeverityWarning, st.Severity)
		assert.Equal(t, []string{"Active", "Inactive"}, st.KnownStatuses)
		assert.Equal(t, []string{"Inactive"}, st.Transitions["Active"])

		_, err = DecodeBusinessRule(RuleKindStatusTransition, "s2", models.SeverityWarning, map[string]interface{}{})
		assert.Error(t, err, "缺少 status_field")
	})

	t.Run("date_range", func(t *testing.T) {
		rule, err := DecodeBusinessRule(RuleKindDateRange, "d1", models.SeverityError, map[string]interface{}{
			"start_field":       "Start_Date__c",
			"end_field":         "End_Date__c",
			"max_duration_days": 14,
		})
		require.NoError(t, err)
		dr := rule.(*DateRangeRule)
		assert.Equal(t, 14, dr.MaxDurationDays)
		assert.Equal(t, models.SeverityError, dr.Severity, "携带模板级别")

		_, err = DecodeBusinessRule(RuleKindDateRange, "d2", models.SeverityError, map[string]interface{}{
			"start_field": "Start_Date__c",
		})
		assert.Error(t, err)
	})

	t.Run("capacity_limit", func(t *testing.T) {
		rule, err := DecodeBusinessRule(RuleKindCapacityLimit, "c1", models.SeverityError, map[string]interface{}{
			"capacity_field": "Capacity__c",
			"current_field":  "Registered_Attendees__c",
		})
		require.NoError(t, err)
		assert.Equal(t, "Capacity__c", rule.(*CapacityLimitRule).CapacityField)

		_, err = DecodeBusinessRule(RuleKindCapacityLimit, "c2", models.SeverityError, map[string]interface{}{
			"capacity_field": "Capacity__c",
		})
		assert.Error(t, err)
	})

	t.Run("business_constraint", func(t *testing.T) {
		rule, err := DecodeBusinessRule(RuleKindBusinessConstraint, "b1", models.SeverityWarning, map[string]interface{}{
			"field":      "Grade__c",
			"required":   true,
			"min_value":  0,
			"max_value":  12,
			"max_length": 2,
		})
		require.NoError(t, err)
		bc := rule.(*BusinessConstraintRule)
		assert.True(t, bc.Required)
		require.NotNil(t, bc.MinValue)
		assert.InDelta(t, 0.0, *bc.MinValue, 0.001)
		require.NotNil(t, bc.MaxLength)
		assert.Equal(t, 2, *bc.MaxLength)

		_, err = DecodeBusinessRule(RuleKindBusinessConstraint, "b2", models.SeverityWarning, map[string]interface{}{})
		assert.Error(t, err)
	})

	t.Run("cross_field", func(t *testing.T) {
		rule, err := DecodeBusinessRule(RuleKindCrossField, "x1", models.SeverityWarning, map[string]interface{}{
			"if_field":   "Status__c",
			"if_value":   "Active",
			"then_field": "Email",
		})
		require.NoError(t, err)
		cf := rule.(*CrossFieldRule)
		assert.Equal(t, "Email", cf.ThenField)
		assert.Nil(t, cf.MinValue)

		_, err = DecodeBusinessRule(RuleKindCrossField, "x2", models.SeverityWarning, map[string]interface{}{
			"if_field": "Status__c",
		})
		assert.Error(t, err)
	})

	t.Run("workflow", func(t *testing.T) {
		rule, err := DecodeBusinessRule(RuleKindWorkflow, "w1", models.SeverityWarning, map[string]interface{}{
			"steps": []interface{}{
				map[string]interface{}{"name": "application", "required_fields": []interface{}{"Application_Date__c"}},
				map[string]interface{}{"name": "orientation", "depends_on": "application"},
			},
		})
		require.NoError(t, err)
		wf := rule.(*WorkflowRule)
		require.Len(t, wf.Steps, 2)
		assert.Equal(t, "application", wf.Steps[1].DependsOn)

		_, err = DecodeBusinessRule(RuleKindWorkflow, "w2", models.SeverityWarning, map[string]interface{}{})
		assert.Error(t, err, "缺少 steps")

		_, err = DecodeBusinessRule(RuleKindWorkflow, "w3", models.SeverityWarning, map[string]interface{}{
			"steps": []interface{}{map[string]interface{}{"required_fields": []interface{}{"X"}}},
		})
		assert.Error(t, err, "未命名步骤")
	})

	t.Run("custom_script", func(t *testing.T) {
		rule, err := DecodeBusinessRule(RuleKindCustomScript, "cs1", models.SeverityWarning, map[string]interface{}{
			"script":   "func Run(record map[string]interface{}) (bool, string) { return true, \"\" }",
			"severity": "error",
		})
		require.NoError(t, err)
		cs := rule.(*CustomScriptRule)
		assert.Equal(t, models.SeverityError, cs.Severity)

		rule, err = DecodeBusinessRule(RuleKindCustomScript, "cs2", models.SeverityWarning, map[string]interface{}{
			"script": "func Run(record map[string]interface{}) (bool, string) { return true, \"\" }",
		})
		require.NoError(t, err)
		assert.Equal(t, models.SeverityWarning, rule.(*CustomScriptRule).Severity, "无覆盖时取模板级别")

		_, err = DecodeBusinessRule(RuleKindCustomScript, "cs3", models.SeverityWarning, map[string]interface{}{})
		assert.Error(t, err)
	})

	t.Run("未知类型", func(t *testing.T) {
		_, err := DecodeBusinessRule("teleport", "t1", models.SeverityWarning, map[string]interface{}{})
		assert.Error(t, err)
	})
}

// TestLoadTemplates 启用的模板合并进规则表，严格模式下解码失败报错
func TestLoadTemplates(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()
	factory := testutil.NewTestDataFactory(tdb.DB)

	factory.CreateRuleTemplate(func(tpl *models.ValidationRuleTemplate) {
		tpl.Name = "student_grade_bound"
		tpl.RuleType = RuleKindBusinessConstraint
		tpl.EntityType = "student"
		tpl.RuleLogic = models.JSONB{"field": "Current_Grade__c", "min_value": 0, "max_value": 12}
		tpl.Severity = models.SeverityCritical
	})
	// 禁用的模板不加载
	factory.CreateRuleTemplate(func(tpl *models.ValidationRuleTemplate) {
		tpl.Name = "disabled_rule"
		tpl.RuleType = RuleKindBusinessConstraint
		tpl.EntityType = "student"
		tpl.RuleLogic = models.JSONB{"field": "X"}
		tpl.IsEnabled = false
	})

	cfg := DefaultConfig()
	before := len(cfg.EntityRulesFor("student").BusinessRules)
	require.NoError(t, cfg.LoadTemplates(tdb.DB))
	loaded := cfg.EntityRulesFor("student").BusinessRules
	require.Len(t, loaded, before+1)
	assert.Equal(t, models.SeverityCritical, loaded[before].(*BusinessConstraintRule).Severity, "模板级别进入解码规则")

	t.Run("解码失败宽松模式跳过", func(t *testing.T) {
		tdb.CleanDB()
		factory.CreateRuleTemplate(func(tpl *models.ValidationRuleTemplate) {
			tpl.Name = "broken_rule"
			tpl.RuleType = RuleKindBusinessConstraint
			tpl.RuleLogic = models.JSONB{}
		})

		lax := DefaultConfig()
		require.NoError(t, lax.LoadTemplates(tdb.DB))

		strict := DefaultConfig()
		strict.StrictMode = true
		assert.Error(t, strict.LoadTemplates(tdb.DB))
	})
}
