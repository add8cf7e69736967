/*
 * @module service/validation/business_rules
 * @description 业务规则类型化定义，每种规则一个变体，配置加载时解码一次
 * @architecture 分层架构 - 规则模型层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 规则模板 JSONB -> DecodeBusinessRule -> 类型化规则 -> 校验器按类型分派
 * @rules 规则变体只携带自身评估所需的字段，执行期不做 map 取值
 * @dependencies github.com/spf13/cast
 * @refs service/validation/business_rule_validator.go, service/validation/config.go
 */

package validation

import (
	"fmt"

	"vms-validation-service/service/models"

	"github.com/spf13/cast"
)

// 业务规则类型
const (
	RuleKindStatusTransition   = "status_transition"
	RuleKindDateRange          = "date_range"
	RuleKindCapacityLimit      = "capacity_limit"
	RuleKindBusinessConstraint = "business_constraint"
	RuleKindCrossField         = "cross_field"
	RuleKindWorkflow           = "workflow"
	RuleKindCustomScript       = "custom_script"
)

// BusinessRule 业务规则变体接口
type BusinessRule interface {
	Kind() string
	RuleName() string
}

// StatusTransitionRule 状态流转规则
// 当前仅校验状态值在已知状态集中，流转图保留用于后续扩展
type StatusTransitionRule struct {
	Name          string
	StatusField   string
	KnownStatuses []string
	Transitions   map[string][]string
	Severity      models.Severity
}

func (r *StatusTransitionRule) Kind() string     { return RuleKindStatusTransition }
func (r *StatusTransitionRule) RuleName() string { return r.Name }

// DateRangeRule 日期范围规则：开始早于结束，时长在 [min, max] 天之间
type DateRangeRule struct {
	Name            string
	StartField      string
	EndField        string
	MinDurationDays int
	MaxDurationDays int
	Severity        models.Severity
}

func (r *DateRangeRule) Kind() string     { return RuleKindDateRange }
func (r *DateRangeRule) RuleName() string { return r.Name }

// CapacityLimitRule 容量限制规则
type CapacityLimitRule struct {
	Name          string
	CapacityField string
	CurrentField  string
	Severity      models.Severity
}

func (r *CapacityLimitRule) Kind() string     { return RuleKindCapacityLimit }
func (r *CapacityLimitRule) RuleName() string { return r.Name }

// BusinessConstraintRule 通用字段约束规则：必填/枚举/长度/数值范围
type BusinessConstraintRule struct {
	Name          string
	Field         string
	Required      bool
	AllowedValues []string
	MinLength     *int
	MaxLength     *int
	MinValue      *float64
	MaxValue      *float64
	Severity      models.Severity
}

func (r *BusinessConstraintRule) Kind() string     { return RuleKindBusinessConstraint }
func (r *BusinessConstraintRule) RuleName() string { return r.Name }

// CrossFieldRule 跨字段条件规则：条件字段等于条件值时，依赖字段必须存在且可选地落在数值范围内
type CrossFieldRule struct {
	Name      string
	IfField   string
	IfValue   string
	ThenField string
	MinValue  *float64
	MaxValue  *float64
	Severity  models.Severity
}

func (r *CrossFieldRule) Kind() string     { return RuleKindCrossField }
func (r *CrossFieldRule) RuleName() string { return r.Name }

// WorkflowStep 工作流步骤
type WorkflowStep struct {
	Name           string
	RequiredFields []string
	DependsOn      string
}

// WorkflowRule 工作流依赖规则：每步必填字段非空，依赖步骤的 <Step>_Completed__c 标志为真
type WorkflowRule struct {
	Name     string
	Steps    []WorkflowStep
	Severity models.Severity
}

func (r *WorkflowRule) Kind() string     { return RuleKindWorkflow }
func (r *WorkflowRule) RuleName() string { return r.Name }

// CustomScriptRule 自定义脚本规则，通过 yaegi 解释执行
// 脚本需提供 Run(record map[string]interface{}) (bool, string) 入口
type CustomScriptRule struct {
	Name     string
	Script   string
	Severity models.Severity
}

func (r *CustomScriptRule) Kind() string     { return RuleKindCustomScript }
func (r *CustomScriptRule) RuleName() string { return r.Name }

// DecodeBusinessRule 将规则模板的 JSONB 逻辑解码为类型化规则变体
// severity 取模板配置的级别，custom_script 可在 logic 中以 severity 键覆盖
func DecodeBusinessRule(ruleType, name string, severity models.Severity, logic map[string]interface{}) (BusinessRule, error) {
	switch ruleType {
	case RuleKindStatusTransition:
		rule := &StatusTransitionRule{
			Name:          name,
			StatusField:   cast.ToString(logic["status_field"]),
			KnownStatuses: cast.ToStringSlice(logic["known_statuses"]),
			Transitions:   map[string][]string{},
			Severity:      severity,
		}
		if rule.StatusField == "" {
			return nil, fmt.Errorf("status_transition 规则缺少 status_field")
		}
		for from, to := range cast.ToStringMap(logic["transitions"]) {
			rule.Transitions[from] = cast.ToStringSlice(to)
		}
		return rule, nil

	case RuleKindDateRange:
		rule := &DateRangeRule{
			Name:            name,
			StartField:      cast.ToString(logic["start_field"]),
			EndField:        cast.ToString(logic["end_field"]),
			MinDurationDays: cast.ToInt(logic["min_duration_days"]),
			MaxDurationDays: cast.ToInt(logic["max_duration_days"]),
			Severity:        severity,
		}
		if rule.StartField == "" || rule.EndField == "" {
			return nil, fmt.Errorf("date_range 规则缺少 start_field/end_field")
		}
		return rule, nil

	case RuleKindCapacityLimit:
		rule := &CapacityLimitRule{
			Name:          name,
			CapacityField: cast.ToString(logic["capacity_field"]),
			CurrentField:  cast.ToString(logic["current_field"]),
			Severity:      severity,
		}
		if rule.CapacityField == "" || rule.CurrentField == "" {
			return nil, fmt.Errorf("capacity_limit 规则缺少 capacity_field/current_field")
		}
		return rule, nil

	case RuleKindBusinessConstraint:
		rule := &BusinessConstraintRule{
			Name:          name,
			Field:         cast.ToString(logic["field"]),
			Required:      cast.ToBool(logic["required"]),
			AllowedValues: cast.ToStringSlice(logic["allowed_values"]),
			Severity:      severity,
		}
		if rule.Field == "" {
			return nil, fmt.Errorf("business_constraint 规则缺少 field")
		}
		if v, exists := logic["min_length"]; exists {
			rule.MinLength = intPtr(cast.ToInt(v))
		}
		if v, exists := logic["max_length"]; exists {
			rule.MaxLength = intPtr(cast.ToInt(v))
		}
		if v, exists := logic["min_value"]; exists {
			rule.MinValue = floatPtr(cast.ToFloat64(v))
		}
		if v, exists := logic["max_value"]; exists {
			rule.MaxValue = floatPtr(cast.ToFloat64(v))
		}
		return rule, nil

	case RuleKindCrossField:
		rule := &CrossFieldRule{
			Name:      name,
			IfField:   cast.ToString(logic["if_field"]),
			IfValue:   cast.ToString(logic["if_value"]),
			ThenField: cast.ToString(logic["then_field"]),
			Severity:  severity,
		}
		if rule.IfField == "" || rule.ThenField == "" {
			return nil, fmt.Errorf("cross_field 规则缺少 if_field/then_field")
		}
		if v, exists := logic["min_value"]; exists {
			rule.MinValue = floatPtr(cast.ToFloat64(v))
		}
		if v, exists := logic["max_value"]; exists {
			rule.MaxValue = floatPtr(cast.ToFloat64(v))
		}
		return rule, nil

	case RuleKindWorkflow:
		rule := &WorkflowRule{Name: name, Severity: severity}
		steps, ok := logic["steps"].([]interface{})
		if !ok || len(steps) == 0 {
			return nil, fmt.Errorf("workflow 规则缺少 steps")
		}
		for _, raw := range steps {
			stepMap := cast.ToStringMap(raw)
			step := WorkflowStep{
				Name:           cast.ToString(stepMap["name"]),
				RequiredFields: cast.ToStringSlice(stepMap["required_fields"]),
				DependsOn:      cast.ToString(stepMap["depends_on"]),
			}
			if step.Name == "" {
				return nil, fmt.Errorf("workflow 规则存在未命名步骤")
			}
			rule.Steps = append(rule.Steps, step)
		}
		return rule, nil

	case RuleKindCustomScript:
		rule := &CustomScriptRule{
			Name:     name,
			Script:   cast.ToString(logic["script"]),
			Severity: severity,
		}
		if rule.Script == "" {
			return nil, fmt.Errorf("custom_script 规则缺少 script")
		}
		if v, exists := logic["severity"]; exists {
			if parsed, err := models.ParseSeverity(cast.ToString(v)); err == nil {
				rule.Severity = parsed
			}
		}
		return rule, nil

	default:
		return nil, fmt.Errorf("不支持的业务规则类型: %s", ruleType)
	}
}
