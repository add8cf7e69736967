/*
 * @module service/validation/config
 * @description 校验引擎配置，包含全局阈值、质量评分权重和按实体类型的规则表
 * @architecture 分层架构 - 配置层，启动时构造一次后按引用传入各校验器
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 默认配置构造 -> 环境变量覆盖 -> 数据库模板合并 -> 启动校验
 * @rules 规则按 rule_type 在加载时解码为类型化变体，执行期不再按字符串分支
 * @dependencies github.com/spf13/cast, service/models
 * @refs service/validation/business_rule_validator.go, service/init.go
 */

package validation

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"vms-validation-service/service/models"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// 支持的实体类型
var DefaultEntityTypes = []string{"volunteer", "organization", "event", "student", "teacher"}

// QualityWeights 质量评分按严重级别的扣分权重
type QualityWeights struct {
	Critical float64 `json:"critical"`
	Error    float64 `json:"error"`
	Warning  float64 `json:"warning"`
	Info     float64 `json:"info"`
}

// ForSeverity 返回指定级别的权重
func (w QualityWeights) ForSeverity(s models.Severity) float64 {
	switch s {
	case models.SeverityCritical:
		return w.Critical
	case models.SeverityError:
		return w.Error
	case models.SeverityWarning:
		return w.Warning
	default:
		return w.Info
	}
}

// FormatRule 字段格式规则
type FormatRule struct {
	Field   string `json:"field"`
	Format  string `json:"format"` // email, phone, url, date, datetime, regex
	Pattern string `json:"pattern,omitempty"`
}

// RangeRule 字段取值范围规则
type RangeRule struct {
	Field         string   `json:"field"`
	MinValue      *float64 `json:"min_value,omitempty"`
	MaxValue      *float64 `json:"max_value,omitempty"`
	MinLength     *int     `json:"min_length,omitempty"`
	MaxLength     *int     `json:"max_length,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
}

// FieldTypeRule 字段数据类型规则
type FieldTypeRule struct {
	Field         string   `json:"field"`
	DataType      string   `json:"data_type"` // email, phone, url, date, datetime, enum, string, regex
	Required      bool     `json:"required"`
	AllowedValues []string `json:"allowed_values,omitempty"`
	MaxLength     *int     `json:"max_length,omitempty"`
	Pattern       string   `json:"pattern,omitempty"`
}

// RelationshipRule 关系字段规则
type RelationshipRule struct {
	Field          string          `json:"field"`
	Kind           string          `json:"kind"` // lookup, picklist
	Required       bool            `json:"required"`
	Severity       models.Severity `json:"severity"`
	PicklistValues []string        `json:"picklist_values,omitempty"`
}

// EntityRules 单个实体类型的规则表
type EntityRules struct {
	RequiredFields       []string           `json:"required_fields"`
	FormatRules          []FormatRule       `json:"format_rules"`
	RangeRules           []RangeRule        `json:"range_rules"`
	TypeRules            []FieldTypeRule    `json:"type_rules"`
	Relationships        []RelationshipRule `json:"relationships"`
	BusinessRules        []BusinessRule     `json:"-"`
	MaxRelationshipDepth int                `json:"max_relationship_depth"`
}

// Config 校验引擎配置，进程启动时构造一次
type Config struct {
	// 数量比对容差百分比，默认 5%
	CountTolerance float64
	// 字段完整率最低阈值，默认 95%
	MinCompleteness float64
	// 数据类型准确率最低阈值，默认 99%
	MinAccuracy float64
	// 每个实体类型的抽样数量，默认 100
	SampleSize int
	// 校验器失败时是否继续执行后续校验器
	ContinueOnError bool
	// 严格模式：配置校验失败直接报错而不是降级为日志
	StrictMode bool
	// 是否生成趋势快照指标
	TrendEnabled bool
	// 趋势回看窗口天数，默认 30
	TrendWindowDays int
	// 趋势计算最少数据点数，默认 3
	MinTrendPoints int
	// 运行记录保留天数，默认 90
	RetentionDays int
	// 容量字段允许的上限
	MaxCapacity int
	// 质量评分权重
	QualityWeights QualityWeights
	// 参与校验的实体类型
	EntityTypes []string
	// 按实体类型的规则表
	Entities map[string]*EntityRules
}

// DefaultConfig 构造默认配置，内置各实体类型的规则表
func DefaultConfig() *Config {
	cfg := &Config{
		CountTolerance:  5.0,
		MinCompleteness: 95.0,
		MinAccuracy:     99.0,
		SampleSize:      100,
		ContinueOnError: true,
		StrictMode:      false,
		TrendEnabled:    true,
		TrendWindowDays: 30,
		MinTrendPoints:  3,
		RetentionDays:   90,
		MaxCapacity:     10000,
		QualityWeights: QualityWeights{
			Critical: 10.0,
			Error:    5.0,
			Warning:  2.0,
			Info:     0.5,
		},
		EntityTypes: append([]string{}, DefaultEntityTypes...),
		Entities:    builtinEntityRules(),
	}
	return cfg
}

// LoadFromEnv 从环境变量覆盖全局阈值
func (c *Config) LoadFromEnv() {
	if val := os.Getenv("VALIDATION_COUNT_TOLERANCE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.CountTolerance = f
		}
	}
	if val := os.Getenv("VALIDATION_MIN_COMPLETENESS"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.MinCompleteness = f
		}
	}
	if val := os.Getenv("VALIDATION_MIN_ACCURACY"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.MinAccuracy = f
		}
	}
	if val := os.Getenv("VALIDATION_SAMPLE_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.SampleSize = n
		}
	}
	if val := os.Getenv("VALIDATION_RETENTION_DAYS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.RetentionDays = n
		}
	}
	if val := os.Getenv("VALIDATION_CONTINUE_ON_ERROR"); val != "" {
		c.ContinueOnError = cast.ToBool(val)
	}
	if val := os.Getenv("VALIDATION_STRICT_MODE"); val != "" {
		c.StrictMode = cast.ToBool(val)
	}
}

// LoadTemplates 合并数据库中启用的规则模板到按实体类型的规则表
func (c *Config) LoadTemplates(db *gorm.DB) error {
	var templates []models.ValidationRuleTemplate
	if err := db.Where("is_enabled = ?", true).Order("priority DESC").Find(&templates).Error; err != nil {
		return fmt.Errorf("加载校验规则模板失败: %w", err)
	}

	for _, template := range templates {
		entityTypes := []string{template.EntityType}
		if len(template.ApplicableEntityTypes) > 0 {
			entityTypes = template.ApplicableEntityTypes
		}

		rule, err := DecodeBusinessRule(template.RuleType, template.Name, template.Severity, template.RuleLogic)
		if err != nil {
			if c.StrictMode {
				return fmt.Errorf("规则模板 %s 解码失败: %w", template.Name, err)
			}
			slog.Warn("规则模板解码失败，已跳过", "template", template.Name, "error", err)
			continue
		}

		for _, entityType := range entityTypes {
			rules, exists := c.Entities[entityType]
			if !exists {
				rules = &EntityRules{}
				c.Entities[entityType] = rules
			}
			rules.BusinessRules = append(rules.BusinessRules, rule)
		}
	}

	return nil
}

// Validate 启动时的配置校验
// 严格模式下返回错误终止启动，否则记录日志并继续
func (c *Config) Validate() error {
	var problems []string

	if c.CountTolerance <= 0 {
		problems = append(problems, fmt.Sprintf("数量比对容差必须为正数: %.1f", c.CountTolerance))
	}
	if c.MinCompleteness < 0 || c.MinCompleteness > 100 {
		problems = append(problems, fmt.Sprintf("完整率阈值超出 [0,100]: %.1f", c.MinCompleteness))
	}
	if c.MinAccuracy < 0 || c.MinAccuracy > 100 {
		problems = append(problems, fmt.Sprintf("准确率阈值超出 [0,100]: %.1f", c.MinAccuracy))
	}
	if c.SampleSize <= 0 {
		problems = append(problems, fmt.Sprintf("抽样数量必须为正数: %d", c.SampleSize))
	}
	if c.TrendWindowDays <= 0 || c.MinTrendPoints < 2 {
		problems = append(problems, "趋势窗口或最小数据点数配置无效")
	}
	for _, entityType := range c.EntityTypes {
		if _, exists := c.Entities[entityType]; !exists {
			problems = append(problems, fmt.Sprintf("实体类型 %s 缺少规则表", entityType))
		}
	}

	if len(problems) == 0 {
		return nil
	}

	for _, problem := range problems {
		slog.Error("配置校验失败", "problem", problem)
	}
	if c.StrictMode {
		return fmt.Errorf("配置校验发现 %d 个问题: %s", len(problems), problems[0])
	}
	return nil
}

// EntityRulesFor 返回实体类型的规则表，不存在时返回空表
func (c *Config) EntityRulesFor(entityType string) *EntityRules {
	if rules, exists := c.Entities[entityType]; exists {
		return rules
	}
	return &EntityRules{}
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

// builtinEntityRules 内置规则表，覆盖本地库与CRM共有的核心实体
func builtinEntityRules() map[string]*EntityRules {
	return map[string]*EntityRules{
		"volunteer": {
			RequiredFields: []string{"FirstName", "LastName", "Email"},
			FormatRules: []FormatRule{
				{Field: "Email", Format: "email"},
				{Field: "Phone", Format: "phone"},
				{Field: "Birthdate", Format: "date"},
			},
			RangeRules: []RangeRule{
				{Field: "FirstName", MinLength: intPtr(1), MaxLength: intPtr(40)},
				{Field: "LastName", MinLength: intPtr(1), MaxLength: intPtr(80)},
				{Field: "Volunteer_Status__c", AllowedValues: []string{"Prospect", "Active", "Inactive", "Alumni"}},
			},
			TypeRules: []FieldTypeRule{
				{Field: "Email", DataType: "email", Required: true},
				{Field: "Phone", DataType: "phone"},
				{Field: "Birthdate", DataType: "date"},
				{Field: "Volunteer_Status__c", DataType: "enum", AllowedValues: []string{"Prospect", "Active", "Inactive", "Alumni"}},
				{Field: "FirstName", DataType: "string", Required: true, MaxLength: intPtr(40)},
			},
			Relationships: []RelationshipRule{
				{Field: "AccountId", Kind: "lookup", Required: true, Severity: models.SeverityError},
				{Field: "npsp__Primary_Affiliation__c", Kind: "lookup", Required: false, Severity: models.SeverityWarning},
				{Field: "Volunteer_Status__c", Kind: "picklist", Required: false, Severity: models.SeverityWarning,
					PicklistValues: []string{"Prospect", "Active", "Inactive", "Alumni"}},
			},
			BusinessRules: []BusinessRule{
				&StatusTransitionRule{
					Name:        "volunteer_status_lifecycle",
					StatusField: "Volunteer_Status__c",
					KnownStatuses: []string{
						"Prospect", "Active", "Inactive", "Alumni",
					},
					Transitions: map[string][]string{
						"Prospect": {"Active", "Inactive"},
						"Active":   {"Inactive", "Alumni"},
						"Inactive": {"Active", "Alumni"},
					},
					Severity: models.SeverityWarning,
				},
				&CrossFieldRule{
					Name:      "active_volunteer_requires_email",
					IfField:   "Volunteer_Status__c",
					IfValue:   "Active",
					ThenField: "Email",
					Severity:  models.SeverityWarning,
				},
				&WorkflowRule{
					Name: "volunteer_onboarding",
					Steps: []WorkflowStep{
						{Name: "Background_Check", RequiredFields: []string{"Background_Check_Date__c"}},
						{Name: "Orientation", RequiredFields: []string{"Orientation_Date__c"}, DependsOn: "Background_Check"},
					},
					Severity: models.SeverityWarning,
				},
			},
			MaxRelationshipDepth: 3,
		},
		"organization": {
			RequiredFields: []string{"Name"},
			FormatRules: []FormatRule{
				{Field: "Website", Format: "url"},
				{Field: "Phone", Format: "phone"},
			},
			RangeRules: []RangeRule{
				{Field: "Name", MinLength: intPtr(1), MaxLength: intPtr(255)},
				{Field: "Type", AllowedValues: []string{"Business", "Nonprofit", "School District", "Government"}},
			},
			TypeRules: []FieldTypeRule{
				{Field: "Name", DataType: "string", Required: true, MaxLength: intPtr(255)},
				{Field: "Website", DataType: "url"},
				{Field: "Type", DataType: "enum", AllowedValues: []string{"Business", "Nonprofit", "School District", "Government"}},
			},
			Relationships: []RelationshipRule{
				{Field: "ParentId", Kind: "lookup", Required: false, Severity: models.SeverityWarning},
			},
			BusinessRules: []BusinessRule{
				&BusinessConstraintRule{
					Name:      "organization_name_present",
					Field:     "Name",
					Required:  true,
					MinLength: intPtr(1),
					MaxLength: intPtr(255),
					Severity:  models.SeverityWarning,
				},
			},
			MaxRelationshipDepth: 2,
		},
		"event": {
			RequiredFields: []string{"Name", "Start_Date__c"},
			FormatRules: []FormatRule{
				{Field: "Start_Date__c", Format: "datetime"},
				{Field: "End_Date__c", Format: "datetime"},
			},
			RangeRules: []RangeRule{
				{Field: "Capacity__c", MinValue: floatPtr(0)},
				{Field: "Session_Status__c", AllowedValues: []string{"Draft", "Published", "Completed", "Cancelled"}},
			},
			TypeRules: []FieldTypeRule{
				{Field: "Name", DataType: "string", Required: true, MaxLength: intPtr(255)},
				{Field: "Start_Date__c", DataType: "datetime", Required: true},
				{Field: "End_Date__c", DataType: "datetime"},
				{Field: "Session_Status__c", DataType: "enum", AllowedValues: []string{"Draft", "Published", "Completed", "Cancelled"}},
			},
			Relationships: []RelationshipRule{
				{Field: "School__c", Kind: "lookup", Required: false, Severity: models.SeverityWarning},
				{Field: "Session_Status__c", Kind: "picklist", Required: false, Severity: models.SeverityWarning,
					PicklistValues: []string{"Draft", "Published", "Completed", "Cancelled"}},
			},
			BusinessRules: []BusinessRule{
				&StatusTransitionRule{
					Name:          "event_status_lifecycle",
					StatusField:   "Session_Status__c",
					KnownStatuses: []string{"Draft", "Published", "Completed", "Cancelled"},
					Transitions: map[string][]string{
						"Draft":     {"Published", "Cancelled"},
						"Published": {"Completed", "Cancelled"},
					},
					Severity: models.SeverityWarning,
				},
				&DateRangeRule{
					Name:            "event_date_order",
					StartField:      "Start_Date__c",
					EndField:        "End_Date__c",
					MinDurationDays: 0,
					MaxDurationDays: 30,
					Severity:        models.SeverityError,
				},
				&CapacityLimitRule{
					Name:          "event_capacity",
					CapacityField: "Capacity__c",
					CurrentField:  "Registered_Attendees__c",
					Severity:      models.SeverityError,
				},
			},
			MaxRelationshipDepth: 2,
		},
		"student": {
			RequiredFields: []string{"FirstName", "LastName"},
			FormatRules: []FormatRule{
				{Field: "Birthdate", Format: "date"},
			},
			RangeRules: []RangeRule{
				{Field: "Current_Grade__c", MinValue: floatPtr(0), MaxValue: floatPtr(12)},
			},
			TypeRules: []FieldTypeRule{
				{Field: "FirstName", DataType: "string", Required: true, MaxLength: intPtr(40)},
				{Field: "LastName", DataType: "string", Required: true, MaxLength: intPtr(80)},
				{Field: "Birthdate", DataType: "date"},
			},
			Relationships: []RelationshipRule{
				{Field: "AccountId", Kind: "lookup", Required: true, Severity: models.SeverityError},
			},
			BusinessRules: []BusinessRule{
				&CrossFieldRule{
					Name:      "graded_student_requires_grade",
					IfField:   "Student_Type__c",
					IfValue:   "Enrolled",
					ThenField: "Current_Grade__c",
					MinValue:  floatPtr(0),
					MaxValue:  floatPtr(12),
					Severity:  models.SeverityWarning,
				},
			},
			MaxRelationshipDepth: 2,
		},
		"teacher": {
			RequiredFields: []string{"FirstName", "LastName", "Email"},
			FormatRules: []FormatRule{
				{Field: "Email", Format: "email"},
				{Field: "Phone", Format: "phone"},
			},
			RangeRules: []RangeRule{
				{Field: "LastName", MinLength: intPtr(1), MaxLength: intPtr(80)},
			},
			TypeRules: []FieldTypeRule{
				{Field: "Email", DataType: "email", Required: true},
				{Field: "Phone", DataType: "phone"},
			},
			Relationships: []RelationshipRule{
				{Field: "AccountId", Kind: "lookup", Required: true, Severity: models.SeverityError},
				{Field: "School__c", Kind: "lookup", Required: false, Severity: models.SeverityWarning},
			},
			BusinessRules: []BusinessRule{
				&BusinessConstraintRule{
					Name:     "teacher_email_present",
					Field:    "Email",
					Required: true,
					Severity: models.SeverityWarning,
				},
			},
			MaxRelationshipDepth: 2,
		},
	}
}
