/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, testify, time
 * @refs service/models
 */

package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vms-validation-service/service/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.ValidationRun{},
		&models.ValidationResult{},
		&models.ValidationMetric{},
		&models.ValidationRuleTemplate{},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
	// 清空所有表的数据
	tables := []string{
		"validation_results",
		"validation_metrics",
		"validation_runs",
		"validation_rule_templates",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// ValidationRunOption 校验运行选项函数类型
type ValidationRunOption func(*models.ValidationRun)

// CreateValidationRun 创建测试校验运行
func (f *TestDataFactory) CreateValidationRun(opts ...ValidationRunOption) *models.ValidationRun {
	run := &models.ValidationRun{
		ID:          generateID("run"),
		RunType:     models.RunTypeFast,
		Name:        "测试校验运行",
		Description: "这是一个测试校验运行",
		Status:      models.RunStatusRunning,
		StartedAt:   time.Now(),
		CreatedBy:   "test",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(run)
	}

	err := f.DB.Create(run).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test validation run: %v", err))
	}

	return run
}

// WithRunStatus 设置运行状态
func WithRunStatus(status string) ValidationRunOption {
	return func(run *models.ValidationRun) {
		run.Status = status
	}
}

// WithRunStartedAt 设置运行开始时间
func WithRunStartedAt(startedAt time.Time) ValidationRunOption {
	return func(run *models.ValidationRun) {
		run.StartedAt = startedAt
	}
}

// ValidationResultOption 校验结果选项函数类型
type ValidationResultOption func(*models.ValidationResult)

// CreateValidationResult 创建测试校验结果
func (f *TestDataFactory) CreateValidationResult(runID string, opts ...ValidationResultOption) *models.ValidationResult {
	result := &models.ValidationResult{
		ID:             generateID("vr"),
		RunID:          runID,
		EntityType:     "volunteer",
		Severity:       models.SeverityInfo,
		ValidationType: models.ValidationTypeCount,
		RuleName:       "count_discrepancy",
		Message:        "测试校验结果",
		Timestamp:      time.Now(),
		CreatedAt:      time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(result)
	}

	err := f.DB.Create(result).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test validation result: %v", err))
	}

	return result
}

// WithResultSeverity 设置结果严重级别
func WithResultSeverity(severity models.Severity) ValidationResultOption {
	return func(result *models.ValidationResult) {
		result.Severity = severity
	}
}

// WithResultEntityType 设置结果实体类型
func WithResultEntityType(entityType string) ValidationResultOption {
	return func(result *models.ValidationResult) {
		result.EntityType = entityType
	}
}

// ValidationMetricOption 质量指标选项函数类型
type ValidationMetricOption func(*models.ValidationMetric)

// CreateValidationMetric 创建测试质量指标
func (f *TestDataFactory) CreateValidationMetric(runID *string, opts ...ValidationMetricOption) *models.ValidationMetric {
	metric := &models.ValidationMetric{
		ID:             generateID("vm"),
		RunID:          runID,
		MetricName:     "volunteer_completeness",
		MetricCategory: models.MetricCategoryQuality,
		MetricUnit:     models.MetricUnitPercentage,
		MetricValue:    95.0,
		EntityType:     "volunteer",
		Timestamp:      time.Now(),
		CreatedAt:      time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(metric)
	}

	err := f.DB.Create(metric).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test validation metric: %v", err))
	}

	return metric
}

// WithMetricName 设置指标名称
func WithMetricName(name string) ValidationMetricOption {
	return func(metric *models.ValidationMetric) {
		metric.MetricName = name
	}
}

// WithMetricValue 设置指标值
func WithMetricValue(value float64) ValidationMetricOption {
	return func(metric *models.ValidationMetric) {
		metric.MetricValue = value
	}
}

// WithMetricTimestamp 设置指标时间戳
func WithMetricTimestamp(timestamp time.Time) ValidationMetricOption {
	return func(metric *models.ValidationMetric) {
		metric.Timestamp = timestamp
	}
}

// WithAggregationType 设置汇总类型
func WithAggregationType(aggregationType string) ValidationMetricOption {
	return func(metric *models.ValidationMetric) {
		metric.AggregationType = aggregationType
	}
}

// RuleTemplateOption 规则模板选项函数类型
type RuleTemplateOption func(*models.ValidationRuleTemplate)

// CreateRuleTemplate 创建测试规则模板
func (f *TestDataFactory) CreateRuleTemplate(opts ...RuleTemplateOption) *models.ValidationRuleTemplate {
	template := &models.ValidationRuleTemplate{
		ID:          generateID("rt"),
		Name:        "test_rule_" + generateSuffix(),
		RuleType:    "business_constraint",
		Description: "这是一个测试规则模板",
		EntityType:  "volunteer",
		RuleLogic: models.JSONB{
			"constraint_type": "required_together",
			"fields":          []interface{}{"FirstName", "LastName"},
		},
		Severity:  models.SeverityWarning,
		IsEnabled: true,
		Priority:  50,
		Version:   "1.0",
		CreatedBy: "test",
		UpdatedBy: "test",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(template)
	}

	err := f.DB.Create(template).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test rule template: %v", err))
	}

	return template
}

// 辅助函数
func generateID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), generateSuffix())
}

func generateSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano()%100000)
}

// HTTPTestHelper HTTP测试辅助工具
type HTTPTestHelper struct{}

// NewHTTPTestHelper 创建HTTP测试辅助工具
func NewHTTPTestHelper() *HTTPTestHelper {
	return &HTTPTestHelper{}
}

// CreateJSONRequest 创建JSON请求
func (h *HTTPTestHelper) CreateJSONRequest(method, url string, body interface{}) (*http.Request, error) {
	var reqBody io.Reader

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}
