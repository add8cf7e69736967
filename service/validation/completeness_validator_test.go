/*
 * @module service/validation/completeness_validator_test
 * @description 字段完整性校验器单元测试
 * @architecture 测试层 - 单元测试
 */

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-validation-service/service/models"
)

// TestCompletenessSeverity 完整率按阈值、阈值-10、阈值-25分级
func TestCompletenessSeverity(t *testing.T) {
	config := DefaultConfig()
	config.MinCompleteness = 95.0
	v := &CompletenessValidator{config: config}

	cases := []struct {
		completeness float64
		expected     models.Severity
	}{
		{100, models.SeverityInfo},
		{95.0, models.SeverityInfo},
		{94.99, models.SeverityWarning},
		{85.0, models.SeverityWarning},
		{84.99, models.SeverityError},
		{70.0, models.SeverityError},
		{69.99, models.SeverityCritical},
		{0, models.SeverityCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, v.completenessSeverity(tc.completeness),
			"完整率 %.2f 分级错误", tc.completeness)
	}
}

// TestCompletenessCheckEntity 完整率按必填字段非空统计，格式错误只进示例列表
func TestCompletenessCheckEntity(t *testing.T) {
	config := DefaultConfig()
	config.MinCompleteness = 95.0
	v := &CompletenessValidator{config: config}

	rules := &EntityRules{
		RequiredFields: []string{"FirstName", "LastName", "Email"},
		FormatRules: []FormatRule{
			{Field: "Email", Format: "email"},
		},
	}
	records := []map[string]interface{}{
		{"id": "v001", "FirstName": "Jane", "LastName": "Doe", "Email": "jane@example.org"},
		// 邮箱格式错误：字段已填充，完整率不受影响，但进入示例错误
		{"id": "v002", "FirstName": "John", "LastName": "Roe", "Email": "broken-email"},
		// 缺少 Email
		{"id": "v003", "FirstName": "Ann", "LastName": "Poe", "Email": ""},
	}

	result, metric := v.checkEntity("volunteer", rules, records)

	// 9次检查中8个字段有值
	assert.InDelta(t, 88.9, metric.MetricValue, 0.1)
	assert.Equal(t, "volunteer_completeness", metric.MetricName)
	assert.Equal(t, models.SeverityWarning, result.Severity)
	assert.Equal(t, "field_completeness", result.RuleName)

	assert.Equal(t, 3, result.Metadata["sample_size"])
	assert.Equal(t, 9, result.Metadata["total_checks"])
	assert.Equal(t, 8, result.Metadata["populated_count"])

	errors, ok := result.Metadata["example_errors"].([]fieldError)
	require.True(t, ok)
	require.Len(t, errors, 2)
	assert.Equal(t, "v002", errors[0].RecordID)
	assert.Equal(t, "Email", errors[0].Field)
	assert.Equal(t, "v003", errors[1].RecordID)
	assert.Equal(t, "必填字段为空", errors[1].Error)
}

// TestCompletenessExampleCap 示例错误最多保留10条
func TestCompletenessExampleCap(t *testing.T) {
	config := DefaultConfig()
	v := &CompletenessValidator{config: config}

	rules := &EntityRules{RequiredFields: []string{"Email"}}
	var records []map[string]interface{}
	for i := 0; i < 25; i++ {
		records = append(records, map[string]interface{}{"id": "x", "Email": ""})
	}

	result, metric := v.checkEntity("volunteer", rules, records)

	assert.InDelta(t, 0, metric.MetricValue, 0.001)
	assert.Equal(t, models.SeverityCritical, result.Severity)
	errors := result.Metadata["example_errors"].([]fieldError)
	assert.Len(t, errors, maxExampleRecords)
}

// TestRecordID 主键提取兼容本地库和CRM命名
func TestRecordID(t *testing.T) {
	assert.Equal(t, "a1", recordID(map[string]interface{}{"id": "a1"}))
	assert.Equal(t, "a2", recordID(map[string]interface{}{"Id": "a2"}))
	assert.Equal(t, "a3", recordID(map[string]interface{}{"salesforce_individual_id": "a3"}))
	assert.Equal(t, "", recordID(map[string]interface{}{"name": "no-id"}))
	assert.Equal(t, "a4", recordID(map[string]interface{}{"id": "", "Id": "a4"}), "空值主键跳过")
}
