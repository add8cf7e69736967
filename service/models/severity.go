/*
 * @module service/models/severity
 * @description 校验结果严重级别定义，提供有序级别比较和字符串转换
 * @architecture 数据模型层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 校验器产生级别 -> 汇总统计 -> 质量评分加权
 * @rules 级别严格有序 info < warning < error < critical，比较只通过 AtLeast 进行
 * @dependencies database/sql/driver
 * @refs service/validation/
 */

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Severity 校验结果严重级别，按严重程度升序排列
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityInfo:     "info",
	SeverityWarning:  "warning",
	SeverityError:    "error",
	SeverityCritical: "critical",
}

// String 返回级别的字符串表示
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "info"
}

// AtLeast 判断是否达到指定级别
func (s Severity) AtLeast(other Severity) bool {
	return s >= other
}

// ParseSeverity 从字符串解析严重级别
func ParseSeverity(value string) (Severity, error) {
	for s, name := range severityNames {
		if name == value {
			return s, nil
		}
	}
	return SeverityInfo, fmt.Errorf("未知的严重级别: %s", value)
}

// 实现 Scanner 接口，数据库中按字符串存储
func (s *Severity) Scan(value interface{}) error {
	if value == nil {
		*s = SeverityInfo
		return nil
	}

	var str string
	switch v := value.(type) {
	case []byte:
		str = string(v)
	case string:
		str = v
	default:
		return fmt.Errorf("类型断言失败: 不是 []byte 或 string")
	}

	parsed, err := ParseSeverity(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// 实现 Valuer 接口
func (s Severity) Value() (driver.Value, error) {
	return s.String(), nil
}

// MarshalJSON JSON序列化为字符串
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON 从字符串反序列化
func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseSeverity(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
