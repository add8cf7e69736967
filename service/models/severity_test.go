/*
 * @module service/models/severity_test
 * @description 严重级别单元测试
 * @architecture 测试层 - 单元测试
 */

package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseSeverity 测试字符串解析
func TestParseSeverity(t *testing.T) {
	cases := map[string]Severity{
		"info":     SeverityInfo,
		"warning":  SeverityWarning,
		"error":    SeverityError,
		"critical": SeverityCritical,
	}
	for input, expected := range cases {
		parsed, err := ParseSeverity(input)
		require.NoError(t, err, "解析 %s 不应报错", input)
		assert.Equal(t, expected, parsed)
	}

	_, err := ParseSeverity("fatal")
	assert.Error(t, err, "未知级别应返回错误")
}

// TestSeverityOrdering 测试级别有序比较
func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityError))
	assert.True(t, SeverityError.AtLeast(SeverityWarning))
	assert.True(t, SeverityWarning.AtLeast(SeverityInfo))
	assert.True(t, SeverityWarning.AtLeast(SeverityWarning))

	assert.False(t, SeverityInfo.AtLeast(SeverityWarning))
	assert.False(t, SeverityError.AtLeast(SeverityCritical))
}

// TestSeverityString 测试字符串表示
func TestSeverityString(t *testing.T) {
	assert.Equal(t, "info", SeverityInfo.String())
	assert.Equal(t, "critical", SeverityCritical.String())
	assert.Equal(t, "info", Severity(99).String(), "越界值回退为 info")
}

// TestSeverityJSON 测试JSON序列化按字符串
func TestSeverityJSON(t *testing.T) {
	data, err := json.Marshal(SeverityError)
	require.NoError(t, err)
	assert.Equal(t, `"error"`, string(data))

	var parsed Severity
	require.NoError(t, json.Unmarshal([]byte(`"warning"`), &parsed))
	assert.Equal(t, SeverityWarning, parsed)

	assert.Error(t, json.Unmarshal([]byte(`"unknown"`), &parsed))
}

// TestSeverityScan 测试数据库Scanner
func TestSeverityScan(t *testing.T) {
	var s Severity
	require.NoError(t, s.Scan("error"))
	assert.Equal(t, SeverityError, s)

	require.NoError(t, s.Scan([]byte("critical")))
	assert.Equal(t, SeverityCritical, s)

	require.NoError(t, s.Scan(nil))
	assert.Equal(t, SeverityInfo, s)

	assert.Error(t, s.Scan(42))
}
