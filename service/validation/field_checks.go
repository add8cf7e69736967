/*
 * @module service/validation/field_checks
 * @description 字段级检查工具：空值判断、格式校验、范围校验、类型校验
 * @architecture 分层架构 - 校验服务层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 被完整性、数据类型、关系校验器共享调用
 * @rules 检查函数返回 (是否通过, 失败消息)；检查器自身异常降级为通过并记录告警
 * @dependencies regexp, spf13/cast
 * @refs service/validation/completeness_validator.go, service/validation/datatype_validator.go
 */

package validation

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^\+?[0-9().\-\s]{7,20}$`)
	urlRegex   = regexp.MustCompile(`^https?://\S+$`)
	sfIDRegex  = regexp.MustCompile(`^[a-zA-Z0-9]{15}([a-zA-Z0-9]{3})?$`)
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// isBlank 判断字段值是否为空（nil、空串、纯空白）
func isBlank(value interface{}) bool {
	if value == nil {
		return true
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return false
	}
	return strings.TrimSpace(s) == ""
}

// checkFormat 按格式规则校验字段值，返回 (是否通过, 失败消息)
func checkFormat(rule FormatRule, value interface{}) (bool, string) {
	s := cast.ToString(value)
	switch rule.Format {
	case "email":
		if !emailRegex.MatchString(s) {
			return false, fmt.Sprintf("字段 %s 邮箱格式无效: %s", rule.Field, s)
		}
	case "phone":
		if !phoneRegex.MatchString(s) {
			return false, fmt.Sprintf("字段 %s 电话格式无效: %s", rule.Field, s)
		}
	case "url":
		if !urlRegex.MatchString(s) {
			return false, fmt.Sprintf("字段 %s URL格式无效: %s", rule.Field, s)
		}
	case "salesforce_id":
		if !sfIDRegex.MatchString(s) {
			return false, fmt.Sprintf("字段 %s Salesforce ID格式无效: %s", rule.Field, s)
		}
	case "date", "datetime":
		if _, ok := parseDateValue(value); !ok {
			return false, fmt.Sprintf("字段 %s 日期格式无效: %s", rule.Field, s)
		}
	case "regex":
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			// 规则自身的正则无效，降级为通过，记录告警
			slog.Warn("格式规则正则无效，跳过检查", "field", rule.Field, "pattern", rule.Pattern, "error", err)
			return true, ""
		}
		if !re.MatchString(s) {
			return false, fmt.Sprintf("字段 %s 不匹配模式 %s: %s", rule.Field, rule.Pattern, s)
		}
	default:
		slog.Warn("未知格式规则类型，跳过检查", "field", rule.Field, "format", rule.Format)
	}
	return true, ""
}

// checkRange 按范围规则校验字段值
func checkRange(rule RangeRule, value interface{}) (bool, string) {
	s := cast.ToString(value)

	if rule.MinLength != nil && len(s) < *rule.MinLength {
		return false, fmt.Sprintf("字段 %s 长度 %d 小于最小长度 %d", rule.Field, len(s), *rule.MinLength)
	}
	if rule.MaxLength != nil && len(s) > *rule.MaxLength {
		return false, fmt.Sprintf("字段 %s 长度 %d 超过最大长度 %d", rule.Field, len(s), *rule.MaxLength)
	}

	if rule.MinValue != nil || rule.MaxValue != nil {
		n, err := cast.ToFloat64E(value)
		if err != nil {
			return false, fmt.Sprintf("字段 %s 值无法转为数值: %v", rule.Field, value)
		}
		if rule.MinValue != nil && n < *rule.MinValue {
			return false, fmt.Sprintf("字段 %s 值 %v 小于最小值 %v", rule.Field, n, *rule.MinValue)
		}
		if rule.MaxValue != nil && n > *rule.MaxValue {
			return false, fmt.Sprintf("字段 %s 值 %v 大于最大值 %v", rule.Field, n, *rule.MaxValue)
		}
	}

	if len(rule.AllowedValues) > 0 && !containsString(rule.AllowedValues, s) {
		return false, fmt.Sprintf("字段 %s 值 %s 不在允许值范围内", rule.Field, s)
	}
	return true, ""
}

// checkFieldType 按类型规则校验字段值，返回 (是否通过, 失败消息)
// 空值且非必填直接跳过；未知类型检查器降级为通过并记录告警
func checkFieldType(rule FieldTypeRule, value interface{}) (bool, string) {
	if isBlank(value) {
		if rule.Required {
			return false, fmt.Sprintf("字段 %s 为必填但值为空", rule.Field)
		}
		return true, ""
	}

	s := cast.ToString(value)
	switch rule.DataType {
	case "string":
		if rule.MaxLength != nil && len(s) > *rule.MaxLength {
			return false, fmt.Sprintf("字段 %s 长度 %d 超过最大长度 %d", rule.Field, len(s), *rule.MaxLength)
		}
	case "integer":
		if _, err := cast.ToInt64E(value); err != nil {
			return false, fmt.Sprintf("字段 %s 期望整数类型，实际值: %v", rule.Field, value)
		}
	case "float", "number":
		if _, err := cast.ToFloat64E(value); err != nil {
			return false, fmt.Sprintf("字段 %s 期望数值类型，实际值: %v", rule.Field, value)
		}
	case "boolean":
		if _, err := cast.ToBoolE(value); err != nil {
			return false, fmt.Sprintf("字段 %s 期望布尔类型，实际值: %v", rule.Field, value)
		}
	case "date", "datetime":
		if _, ok := parseDateValue(value); !ok {
			return false, fmt.Sprintf("字段 %s 期望日期类型，实际值: %v", rule.Field, value)
		}
	case "email":
		if !emailRegex.MatchString(s) {
			return false, fmt.Sprintf("字段 %s 期望邮箱格式，实际值: %v", rule.Field, value)
		}
	case "phone":
		if !phoneRegex.MatchString(s) {
			return false, fmt.Sprintf("字段 %s 期望电话格式，实际值: %v", rule.Field, value)
		}
	case "url":
		if !urlRegex.MatchString(s) {
			return false, fmt.Sprintf("字段 %s 期望URL格式，实际值: %v", rule.Field, value)
		}
	case "enum":
		if len(rule.AllowedValues) > 0 && !containsString(rule.AllowedValues, s) {
			return false, fmt.Sprintf("字段 %s 值 %s 不在枚举范围内", rule.Field, s)
		}
	case "regex":
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			slog.Warn("类型规则正则无效，降级为通过", "field", rule.Field, "pattern", rule.Pattern, "error", err)
			return true, ""
		}
		if !re.MatchString(s) {
			return false, fmt.Sprintf("字段 %s 不匹配模式 %s: %s", rule.Field, rule.Pattern, s)
		}
	default:
		slog.Warn("未知类型检查器，降级为通过", "field", rule.Field, "data_type", rule.DataType)
	}
	return true, ""
}

// parseDateValue 尝试按已知布局解析日期值
func parseDateValue(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	}
	s := cast.ToString(value)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func containsString(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
