/*
 * @module service/validation/field_checks_test
 * @description 字段级检查工具单元测试
 * @architecture 测试层 - 单元测试
 */

package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestIsBlank 空值判断
func TestIsBlank(t *testing.T) {
	assert.True(t, isBlank(nil))
	assert.True(t, isBlank(""))
	assert.True(t, isBlank("   "))
	assert.False(t, isBlank("x"))
	assert.False(t, isBlank(0), "数值0转为字符串后非空")
	assert.False(t, isBlank(false))
}

// TestCheckFormat 格式检查
func TestCheckFormat(t *testing.T) {
	cases := []struct {
		name   string
		rule   FormatRule
		value  interface{}
		passed bool
	}{
		{"合法邮箱", FormatRule{Field: "Email", Format: "email"}, "jane@example.org", true},
		{"非法邮箱", FormatRule{Field: "Email", Format: "email"}, "not-an-email", false},
		{"合法电话", FormatRule{Field: "Phone", Format: "phone"}, "+1 (555) 123-4567", true},
		{"过短电话", FormatRule{Field: "Phone", Format: "phone"}, "12345", false},
		{"合法URL", FormatRule{Field: "Website", Format: "url"}, "https://example.org/about", true},
		{"非法URL", FormatRule{Field: "Website", Format: "url"}, "ftp://example.org", false},
		{"15位ID", FormatRule{Field: "AccountId", Format: "salesforce_id"}, "001000000000001", true},
		{"18位ID", FormatRule{Field: "AccountId", Format: "salesforce_id"}, "001000000000001AAA", true},
		{"非法ID长度", FormatRule{Field: "AccountId", Format: "salesforce_id"}, "001-int", false},
		{"合法日期", FormatRule{Field: "Birthdate", Format: "date"}, "1990-05-12", true},
		{"非法日期", FormatRule{Field: "Birthdate", Format: "date"}, "12/05/1990", false},
		{"合法时间戳", FormatRule{Field: "Start_Date__c", Format: "datetime"}, "2026-03-01T09:00:00", true},
		{"自定义正则匹配", FormatRule{Field: "Code", Format: "regex", Pattern: `^[A-Z]{3}$`}, "ABC", true},
		{"自定义正则不匹配", FormatRule{Field: "Code", Format: "regex", Pattern: `^[A-Z]{3}$`}, "abc", false},
		// 规则自身的正则无效时降级为通过
		{"无效正则降级通过", FormatRule{Field: "Code", Format: "regex", Pattern: `([`}, "anything", true},
		{"未知格式降级通过", FormatRule{Field: "X", Format: "uuid"}, "anything", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			passed, message := checkFormat(tc.rule, tc.value)
			assert.Equal(t, tc.passed, passed)
			if !tc.passed {
				assert.NotEmpty(t, message, "失败时应有消息")
			}
		})
	}
}

// TestCheckRange 范围检查
func TestCheckRange(t *testing.T) {
	cases := []struct {
		name   string
		rule   RangeRule
		value  interface{}
		passed bool
	}{
		{"长度在范围内", RangeRule{Field: "Name", MinLength: intPtr(1), MaxLength: intPtr(5)}, "abc", true},
		{"长度过短", RangeRule{Field: "Name", MinLength: intPtr(2)}, "a", false},
		{"长度过长", RangeRule{Field: "Name", MaxLength: intPtr(3)}, "abcd", false},
		{"数值在范围内", RangeRule{Field: "Grade", MinValue: floatPtr(0), MaxValue: floatPtr(12)}, 7, true},
		{"数值低于下限", RangeRule{Field: "Grade", MinValue: floatPtr(0)}, -1, false},
		{"数值高于上限", RangeRule{Field: "Grade", MaxValue: floatPtr(12)}, "13", false},
		{"非数值触发范围检查失败", RangeRule{Field: "Grade", MinValue: floatPtr(0)}, "seven", false},
		{"枚举命中", RangeRule{Field: "Status", AllowedValues: []string{"Active", "Inactive"}}, "Active", true},
		{"枚举未命中", RangeRule{Field: "Status", AllowedValues: []string{"Active", "Inactive"}}, "Paused", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			passed, _ := checkRange(tc.rule, tc.value)
			assert.Equal(t, tc.passed, passed)
		})
	}
}

// TestCheckFieldType 类型检查：空值按必填性分流，未知检查器降级为通过
func TestCheckFieldType(t *testing.T) {
	cases := []struct {
		name   string
		rule   FieldTypeRule
		value  interface{}
		passed bool
	}{
		{"必填字段空值失败", FieldTypeRule{Field: "Email", DataType: "email", Required: true}, "", false},
		{"非必填字段空值通过", FieldTypeRule{Field: "Phone", DataType: "phone"}, nil, true},
		{"字符串超长", FieldTypeRule{Field: "Name", DataType: "string", MaxLength: intPtr(3)}, "abcdef", false},
		{"整数合法", FieldTypeRule{Field: "Count", DataType: "integer"}, "42", true},
		{"整数非法", FieldTypeRule{Field: "Count", DataType: "integer"}, "4.5x", false},
		{"浮点合法", FieldTypeRule{Field: "Rate", DataType: "float"}, "3.14", true},
		{"布尔合法", FieldTypeRule{Field: "Flag", DataType: "boolean"}, "true", true},
		{"布尔非法", FieldTypeRule{Field: "Flag", DataType: "boolean"}, "yes?", false},
		{"日期time类型", FieldTypeRule{Field: "Birthdate", DataType: "date"}, time.Now(), true},
		{"邮箱非法", FieldTypeRule{Field: "Email", DataType: "email"}, "bad@", false},
		{"枚举未命中", FieldTypeRule{Field: "Status", DataType: "enum", AllowedValues: []string{"A", "B"}}, "C", false},
		{"正则不匹配", FieldTypeRule{Field: "Code", DataType: "regex", Pattern: `^\d+$`}, "x1", false},
		{"无效正则降级通过", FieldTypeRule{Field: "Code", DataType: "regex", Pattern: `([`}, "x1", true},
		{"未知类型检查器降级通过", FieldTypeRule{Field: "X", DataType: "geolocation"}, "whatever", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			passed, _ := checkFieldType(tc.rule, tc.value)
			assert.Equal(t, tc.passed, passed)
		})
	}
}

// TestParseDateValue 日期解析的多布局兼容
func TestParseDateValue(t *testing.T) {
	for _, input := range []string{
		"2026-03-01",
		"2026-03-01T09:00:00Z",
		"2026-03-01T09:00:00",
		"2026-03-01 09:00:00",
	} {
		_, ok := parseDateValue(input)
		assert.True(t, ok, "应能解析 %s", input)
	}

	_, ok := parseDateValue("03/01/2026")
	assert.False(t, ok)
	_, ok = parseDateValue(nil)
	assert.False(t, ok)
}
