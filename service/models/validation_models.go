/*
 * @module service/models/validation_models
 * @description 数据校验模型，包含校验运行记录、校验结果和质量指标模型
 * @architecture 数据模型层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 校验运行创建 -> 校验器执行 -> 结果/指标落库 -> 汇总统计更新
 * @rules 运行记录的 total_checks 恒等于五类计数之和；结果和指标创建后不可变
 * @dependencies gorm.io/gorm, github.com/google/uuid, github.com/lib/pq
 * @refs service/validation/
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// 运行类型
const (
	RunTypeFast          = "fast"
	RunTypeSlow          = "slow"
	RunTypeRealtime      = "realtime"
	RunTypeCustom        = "custom"
	RunTypeComprehensive = "comprehensive"
)

// 运行状态
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// 校验类型
const (
	ValidationTypeCount         = "count"
	ValidationTypeCompleteness  = "completeness"
	ValidationTypeDataType      = "data_type"
	ValidationTypeRelationship  = "relationship"
	ValidationTypeBusinessLogic = "business_logic"
	// 校验器自身执行失败时合成的结果类型，汇总统计时计入 failed
	ValidationTypeExecution = "execution"
)

// ValidationRun 校验运行记录模型，一次校验会话
type ValidationRun struct {
	ID                   string     `gorm:"type:varchar(50);primaryKey" json:"id"`
	RunType              string     `gorm:"type:varchar(30);not null;index" json:"run_type"` // fast, slow, realtime, custom, comprehensive
	Name                 string     `gorm:"type:varchar(200);not null" json:"name"`
	Description          string     `gorm:"type:text" json:"description"`
	Status               string     `gorm:"type:varchar(20);not null;index" json:"status"` // running, completed, failed, cancelled
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	ProgressPercentage   float64    `gorm:"default:0" json:"progress_percentage"` // 0-100
	TotalChecks          int        `gorm:"default:0" json:"total_checks"`
	PassedChecks         int        `gorm:"default:0" json:"passed_checks"`
	FailedChecks         int        `gorm:"default:0" json:"failed_checks"`
	WarningCount         int        `gorm:"default:0" json:"warning_count"`
	ErrorCount           int        `gorm:"default:0" json:"error_count"`
	CriticalIssues       int        `gorm:"default:0" json:"critical_issues"`
	ExecutionTimeSeconds float64    `json:"execution_time_seconds"`
	MemoryUsageMB        float64    `json:"memory_usage_mb"`
	CreatedBy            string     `gorm:"type:varchar(50)" json:"created_by"`
	ErrorMessage         string     `gorm:"type:text" json:"error_message,omitempty"`

	Results []ValidationResult `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"results,omitempty"`
	Metrics []ValidationMetric `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"metrics,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (ValidationRun) TableName() string {
	return "validation_runs"
}

// BeforeCreate 创建前钩子
func (r *ValidationRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedBy == "" {
		r.CreatedBy = "system"
	}
	return nil
}

// IsTerminal 判断运行是否处于终态
func (r *ValidationRun) IsTerminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed || r.Status == RunStatusCancelled
}

// UpdateSummaryStats 根据结果集重算汇总计数
// 校验器执行失败合成的结果计入 failed，其余按严重级别归类，
// 保证 total_checks == passed + failed + warnings + errors + critical
func (r *ValidationRun) UpdateSummaryStats(results []ValidationResult) {
	r.TotalChecks = len(results)
	r.PassedChecks = 0
	r.FailedChecks = 0
	r.WarningCount = 0
	r.ErrorCount = 0
	r.CriticalIssues = 0

	for _, result := range results {
		if result.ValidationType == ValidationTypeExecution {
			r.FailedChecks++
			continue
		}
		switch result.Severity {
		case SeverityInfo:
			r.PassedChecks++
		case SeverityWarning:
			r.WarningCount++
		case SeverityError:
			r.ErrorCount++
		case SeverityCritical:
			r.CriticalIssues++
		}
	}
}

// ValidationResult 单条校验发现模型
type ValidationResult struct {
	ID             string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	RunID          string    `gorm:"type:varchar(50);not null;index" json:"run_id"`
	EntityType     string    `gorm:"type:varchar(50);not null;index" json:"entity_type"` // volunteer, organization, event, student, teacher...
	EntityID       string    `gorm:"type:varchar(100)" json:"entity_id"`
	FieldName      string    `gorm:"type:varchar(100)" json:"field_name"`
	Severity       Severity  `gorm:"type:varchar(20);not null;index" json:"severity"`
	ValidationType string    `gorm:"type:varchar(30);not null;index" json:"validation_type"`
	RuleName       string    `gorm:"type:varchar(100)" json:"rule_name"`
	Message        string    `gorm:"type:text;not null" json:"message"`
	ExpectedValue  string    `gorm:"type:text" json:"expected_value"`
	ActualValue    string    `gorm:"type:text" json:"actual_value"`
	Timestamp      time.Time `json:"timestamp"`
	Metadata       JSONB     `gorm:"type:jsonb" json:"metadata"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName 指定表名
func (ValidationResult) TableName() string {
	return "validation_results"
}

// BeforeCreate 创建前钩子
func (v *ValidationResult) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now()
	}
	return nil
}

// 指标类别
const (
	MetricCategoryPerformance = "performance"
	MetricCategoryQuality     = "quality"
	MetricCategoryBusiness    = "business"
	MetricCategoryTechnical   = "technical"
	MetricCategorySystem      = "system"
)

// 指标单位
const (
	MetricUnitPercentage = "percentage"
	MetricUnitCount      = "count"
	MetricUnitSeconds    = "seconds"
	MetricUnitBytes      = "bytes"
	MetricUnitErrors     = "errors"
)

// ValidationMetric 质量指标模型，一条数值测量
// 趋势汇总指标不关联运行（RunID 为空），保留周期清理不会级联删除历史趋势数据
type ValidationMetric struct {
	ID              string   `gorm:"type:varchar(50);primaryKey" json:"id"`
	RunID           *string  `gorm:"type:varchar(50);index" json:"run_id,omitempty"`
	MetricName      string   `gorm:"type:varchar(100);not null;index" json:"metric_name"`
	MetricCategory  string   `gorm:"type:varchar(30);not null" json:"metric_category"` // performance, quality, business, technical, system
	MetricUnit      string   `gorm:"type:varchar(30);not null" json:"metric_unit"`     // percentage, count, seconds, bytes, errors
	MetricValue     float64  `json:"metric_value"`
	MetricThreshold *float64 `json:"metric_threshold,omitempty"`
	EntityType      string   `gorm:"type:varchar(50);index" json:"entity_type"`
	EntityID        string   `gorm:"type:varchar(100)" json:"entity_id"`
	FieldName       string   `gorm:"type:varchar(100)" json:"field_name"`

	Timestamp time.Time `gorm:"index" json:"timestamp"`

	// 趋势分析字段
	TrendPeriod      string  `gorm:"type:varchar(20)" json:"trend_period"`
	TrendDirection   string  `gorm:"type:varchar(20)" json:"trend_direction"` // improving, declining, stable
	TrendMagnitude   float64 `json:"trend_magnitude"`
	TrendConfidence  float64 `json:"trend_confidence"`
	BaselineValue    float64 `json:"baseline_value"`
	ChangePercentage float64 `json:"change_percentage"`

	// 汇总字段
	AggregationType   string     `gorm:"type:varchar(20)" json:"aggregation_type"`
	AggregationPeriod string     `gorm:"type:varchar(20)" json:"aggregation_period"` // hourly, daily, weekly, monthly
	PeriodStart       *time.Time `json:"period_start,omitempty"`
	PeriodEnd         *time.Time `json:"period_end,omitempty"`
	AggregationCount  int        `json:"aggregation_count"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (ValidationMetric) TableName() string {
	return "validation_metrics"
}

// BeforeCreate 创建前钩子
func (m *ValidationMetric) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return nil
}

// 低值优先的指标单位：错误数、耗时、体积、计数类指标值越小越好
var lowerIsBetterUnits = map[string]bool{
	MetricUnitCount:   true,
	MetricUnitSeconds: true,
	MetricUnitBytes:   true,
	MetricUnitErrors:  true,
}

// MeetsThreshold 判断指标是否达标，计算得出不落库
// 无阈值时恒为达标；百分比类指标值越大越好，错误/计数/耗时/体积类指标值越小越好
func (m *ValidationMetric) MeetsThreshold() bool {
	if m.MetricThreshold == nil {
		return true
	}
	if lowerIsBetterUnits[m.MetricUnit] {
		return m.MetricValue <= *m.MetricThreshold
	}
	return m.MetricValue >= *m.MetricThreshold
}

// ValidationRuleTemplate 校验规则模板模型，按实体类型配置业务规则和关系规则
type ValidationRuleTemplate struct {
	ID                    string         `gorm:"type:varchar(50);primaryKey" json:"id"`
	Name                  string         `gorm:"type:varchar(100);not null" json:"name"`
	RuleType              string         `gorm:"type:varchar(30);not null;index" json:"rule_type"` // status_transition, date_range, capacity_limit, business_constraint, cross_field, workflow, custom_script
	Description           string         `gorm:"type:text" json:"description"`
	EntityType            string         `gorm:"type:varchar(50);not null;index" json:"entity_type"`
	ApplicableEntityTypes pq.StringArray `gorm:"type:text[]" json:"applicable_entity_types"`
	RuleLogic             JSONB          `gorm:"type:jsonb;not null" json:"rule_logic"`
	Severity              Severity       `gorm:"type:varchar(20);default:'warning'" json:"severity"`
	IsBuiltIn             bool           `gorm:"default:false" json:"is_built_in"`
	IsEnabled             bool           `gorm:"default:true" json:"is_enabled"`
	Priority              int            `gorm:"default:50" json:"priority"`
	Version               string         `gorm:"type:varchar(20);default:'1.0'" json:"version"`
	CreatedBy             string         `gorm:"type:varchar(50)" json:"created_by"`
	UpdatedBy             string         `gorm:"type:varchar(50)" json:"updated_by"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// TableName 指定表名
func (ValidationRuleTemplate) TableName() string {
	return "validation_rule_templates"
}

// BeforeCreate 创建前钩子
func (t *ValidationRuleTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedBy == "" {
		t.CreatedBy = "system"
	}
	if t.UpdatedBy == "" {
		t.UpdatedBy = "system"
	}
	return nil
}
