/*
 * @module service/validation/datatype_validator_test
 * @description 数据类型准确性校验器单元测试
 * @architecture 测试层 - 单元测试
 */

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-validation-service/service/models"
)

// TestAccuracySeverity 准确率按阈值、阈值-5、阈值-15分级
func TestAccuracySeverity(t *testing.T) {
	config := DefaultConfig()
	config.MinAccuracy = 99.0
	v := &DataTypeValidator{config: config}

	cases := []struct {
		accuracy float64
		expected models.Severity
	}{
		{100, models.SeverityInfo},
		{99.0, models.SeverityInfo},
		{98.99, models.SeverityWarning},
		{94.0, models.SeverityWarning},
		{93.99, models.SeverityError},
		{84.0, models.SeverityError},
		{83.99, models.SeverityCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, v.accuracySeverity(tc.accuracy),
			"准确率 %.2f 分级错误", tc.accuracy)
	}
}

// TestDataTypeCheckEntity 空值且非必填跳过不计入总数，类型错误计入示例
func TestDataTypeCheckEntity(t *testing.T) {
	config := DefaultConfig()
	config.MinAccuracy = 99.0
	v := &DataTypeValidator{config: config}

	rules := &EntityRules{
		TypeRules: []FieldTypeRule{
			{Field: "Email", DataType: "email", Required: true},
			{Field: "Age__c", DataType: "integer"},
		},
	}
	records := []map[string]interface{}{
		{"id": "v001", "Email": "jane@example.org", "Age__c": "30"},
		// Age__c 空且非必填，跳过
		{"id": "v002", "Email": "john@example.org", "Age__c": ""},
		// 邮箱格式错误
		{"id": "v003", "Email": "not-an-email", "Age__c": "not-a-number"},
	}

	result, metric := v.checkEntity("volunteer", rules, records)

	// 5次检查（v002的Age__c跳过），3次通过
	assert.Equal(t, 5, result.Metadata["checked_count"])
	assert.Equal(t, 3, result.Metadata["valid_count"])
	assert.InDelta(t, 60.0, metric.MetricValue, 0.001)
	assert.Equal(t, "volunteer_type_accuracy", metric.MetricName)
	assert.Equal(t, "data_type_accuracy", result.RuleName)
	assert.Equal(t, models.SeverityCritical, result.Severity)

	errors, ok := result.Metadata["example_errors"].([]fieldError)
	require.True(t, ok)
	require.Len(t, errors, 2)
	assert.Equal(t, "v003", errors[0].RecordID)
	assert.Equal(t, "Email", errors[0].Field)
	assert.Equal(t, "Age__c", errors[1].Field)
}

// TestDataTypeRequiredBlank 必填字段空值计入检查并判定失败
func TestDataTypeRequiredBlank(t *testing.T) {
	config := DefaultConfig()
	v := &DataTypeValidator{config: config}

	rules := &EntityRules{
		TypeRules: []FieldTypeRule{{Field: "Email", DataType: "email", Required: true}},
	}
	records := []map[string]interface{}{
		{"id": "v001", "Email": nil},
	}

	result, _ := v.checkEntity("volunteer", rules, records)

	assert.Equal(t, 1, result.Metadata["checked_count"])
	assert.Equal(t, 0, result.Metadata["valid_count"])
	errors := result.Metadata["example_errors"].([]fieldError)
	require.Len(t, errors, 1)
	assert.Equal(t, "v001", errors[0].RecordID)
}
