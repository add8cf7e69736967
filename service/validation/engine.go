/*
 * @module service/validation/engine
 * @description 校验引擎编排器，在单次运行下顺序执行校验器，聚合结果并维护运行簿记
 * @architecture 分层架构 - 核心服务层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 创建运行(running) -> 顺序执行校验器并更新进度 -> 单事务落库 -> 汇总统计 -> 终态
 * @rules 校验器严格按列表顺序执行；取消为协作式，只在校验器之间检查；结果在全部校验器完成后一次性落库
 * @dependencies gorm.io/gorm, client, service/localstore, service/models
 * @refs api/controllers/validation_controller.go, cmd/validation-cli
 */

package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"vms-validation-service/client"
	"vms-validation-service/service/localstore"
	"vms-validation-service/service/metrics"
	"vms-validation-service/service/models"
)

// ErrRunNotFound 运行记录不存在
var ErrRunNotFound = errors.New("校验运行不存在")

// ErrRunNotActive 运行不在活跃注册表中
var ErrRunNotActive = errors.New("校验运行不在执行中")

// activeRun 活跃运行的注册表项，取消标志由注册表锁保护
type activeRun struct {
	run       *models.ValidationRun
	cancelled bool
}

// Engine 校验引擎编排器
type Engine struct {
	db      *gorm.DB
	config  *Config
	store   *localstore.Store
	sf      *client.SalesforceClient
	scripts *ScriptExecutor

	mu     sync.Mutex
	active map[string]*activeRun
}

// NewEngine 创建校验引擎
func NewEngine(db *gorm.DB, config *Config, store *localstore.Store, sf *client.SalesforceClient) *Engine {
	return &Engine{
		db:      db,
		config:  config,
		store:   store,
		sf:      sf,
		scripts: NewScriptExecutor(),
		active:  make(map[string]*activeRun),
	}
}

// CreateRun 插入一条 running 状态的运行记录并注册到活跃注册表
func (e *Engine) CreateRun(ctx context.Context, runType, name, description, userID string) (*models.ValidationRun, error) {
	run := &models.ValidationRun{
		RunType:     runType,
		Name:        name,
		Description: description,
		Status:      models.RunStatusRunning,
		StartedAt:   time.Now(),
		CreatedBy:   userID,
	}
	if err := e.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("创建校验运行失败: %w", err)
	}

	e.mu.Lock()
	e.active[run.ID] = &activeRun{run: run}
	e.mu.Unlock()

	slog.Info("校验运行已创建", "run_id", run.ID, "run_type", runType, "created_by", userID)
	return run, nil
}

// RunFast 快速校验，仅执行数量比对
func (e *Engine) RunFast(ctx context.Context, userID string) (*models.ValidationRun, error) {
	validators := []Validator{
		NewCountValidator(e.config, e.store, e.sf),
	}
	return e.runWithValidators(ctx, validators, models.RunTypeFast, "快速校验", userID)
}

// RunSlow 完整校验，按固定顺序执行全部五个校验器
func (e *Engine) RunSlow(ctx context.Context, userID string) (*models.ValidationRun, error) {
	return e.runWithValidators(ctx, e.buildAllValidators(e.config), models.RunTypeSlow, "完整校验", userID)
}

// RunCustom 调用方自备校验器列表的运行
func (e *Engine) RunCustom(ctx context.Context, validators []Validator, runType, name, userID string) (*models.ValidationRun, error) {
	if len(validators) == 0 {
		return nil, errors.New("校验器列表为空")
	}
	return e.runWithValidators(ctx, validators, runType, name, userID)
}

// RunComprehensive 针对单个实体类型构建全量校验器集合
func (e *Engine) RunComprehensive(ctx context.Context, entityType, userID string) (*models.ValidationRun, error) {
	scoped, err := e.scopedConfig(entityType)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("实体 %s 综合校验", entityType)
	return e.runWithValidators(ctx, e.buildAllValidators(scoped), models.RunTypeComprehensive, name, userID)
}

// RunRealtime 同步完成事件触发的实时校验，校验器集合与综合校验一致，按 realtime 类型记账
func (e *Engine) RunRealtime(ctx context.Context, entityType, userID string) (*models.ValidationRun, error) {
	scoped, err := e.scopedConfig(entityType)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("实体 %s 实时校验", entityType)
	return e.runWithValidators(ctx, e.buildAllValidators(scoped), models.RunTypeRealtime, name, userID)
}

// RunScoped 针对单个实体类型执行按校验类型名称选择的校验器子集
func (e *Engine) RunScoped(ctx context.Context, entityType string, validatorNames []string, userID string) (*models.ValidationRun, error) {
	scoped, err := e.scopedConfig(entityType)
	if err != nil {
		return nil, err
	}
	validators, err := e.buildValidatorsByName(scoped, validatorNames)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("实体 %s 定制校验", entityType)
	return e.RunCustom(ctx, validators, models.RunTypeCustom, name, userID)
}

// CancelRun 标记活跃运行为取消，协作式，不打断正在执行的校验器
func (e *Engine) CancelRun(ctx context.Context, runID string) error {
	e.mu.Lock()
	entry, exists := e.active[runID]
	if exists {
		entry.cancelled = true
	}
	e.mu.Unlock()

	if !exists {
		return ErrRunNotActive
	}
	slog.Info("校验运行已标记取消", "run_id", runID)
	return nil
}

// GetRun 按ID查询运行记录
func (e *Engine) GetRun(ctx context.Context, runID string) (*models.ValidationRun, error) {
	var run models.ValidationRun
	if err := e.db.WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("查询校验运行失败: %w", err)
	}
	return &run, nil
}

// GetRecentRuns 查询最近的运行记录
func (e *Engine) GetRecentRuns(ctx context.Context, limit int) ([]models.ValidationRun, error) {
	if limit <= 0 {
		limit = 10
	}
	var runs []models.ValidationRun
	if err := e.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("查询最近运行失败: %w", err)
	}
	return runs, nil
}

// GetResults 按运行ID查询结果，可选按级别和实体类型过滤
func (e *Engine) GetResults(ctx context.Context, runID string, severity *models.Severity, entityType string) ([]models.ValidationResult, error) {
	query := e.db.WithContext(ctx).Where("run_id = ?", runID).Order("timestamp ASC")
	if severity != nil {
		query = query.Where("severity = ?", *severity)
	}
	if entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	var results []models.ValidationResult
	if err := query.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("查询校验结果失败: %w", err)
	}
	return results, nil
}

// ActiveRunIDs 返回当前活跃运行的ID列表
func (e *Engine) ActiveRunIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	return ids
}

// scopedConfig 复制配置并收窄到单个实体类型
func (e *Engine) scopedConfig(entityType string) (*Config, error) {
	if _, exists := e.config.Entities[entityType]; !exists {
		return nil, fmt.Errorf("未知实体类型: %s", entityType)
	}
	scoped := *e.config
	scoped.EntityTypes = []string{entityType}
	return &scoped, nil
}

// buildValidatorsByName 按校验类型名称构建校验器，名称与结果的 validation_type 一致
func (e *Engine) buildValidatorsByName(config *Config, names []string) ([]Validator, error) {
	var validators []Validator
	for _, name := range names {
		switch name {
		case models.ValidationTypeCount:
			validators = append(validators, NewCountValidator(config, e.store, e.sf))
		case models.ValidationTypeCompleteness:
			validators = append(validators, NewCompletenessValidator(config, e.store))
		case models.ValidationTypeDataType:
			validators = append(validators, NewDataTypeValidator(config, e.store))
		case models.ValidationTypeRelationship:
			validators = append(validators, NewRelationshipValidator(config, e.store))
		case models.ValidationTypeBusinessLogic:
			validators = append(validators, NewBusinessRuleValidator(config, e.store, e.scripts))
		default:
			return nil, fmt.Errorf("未知校验类型: %s", name)
		}
	}
	return validators, nil
}

// buildAllValidators 构建固定顺序的全量校验器集合
func (e *Engine) buildAllValidators(config *Config) []Validator {
	return []Validator{
		NewCountValidator(config, e.store, e.sf),
		NewCompletenessValidator(config, e.store),
		NewDataTypeValidator(config, e.store),
		NewRelationshipValidator(config, e.store),
		NewBusinessRuleValidator(config, e.store, e.scripts),
	}
}

// runWithValidators 创建运行并同步执行校验器列表
func (e *Engine) runWithValidators(ctx context.Context, validators []Validator, runType, name, userID string) (*models.ValidationRun, error) {
	run, err := e.CreateRun(ctx, runType, name, "", userID)
	if err != nil {
		return nil, err
	}
	if err := e.execute(ctx, run, validators); err != nil {
		return run, err
	}
	return run, nil
}

// execute 顺序执行校验器，全部完成后单事务落库并终结运行
// 注册表清理在任何退出路径上都会执行
func (e *Engine) execute(ctx context.Context, run *models.ValidationRun, validators []Validator) error {
	defer func() {
		e.mu.Lock()
		delete(e.active, run.ID)
		e.mu.Unlock()
	}()

	var allResults []models.ValidationResult
	var allMetrics []models.ValidationMetric
	var totalDuration time.Duration
	var peakMemoryMB float64

	total := len(validators)
	for i, validator := range validators {
		if e.isCancelled(run.ID) {
			return e.finalizeCancelled(run)
		}
		if err := ctx.Err(); err != nil {
			return e.finalizeFailed(run, fmt.Errorf("运行上下文已终止: %w", err))
		}

		results, metrics, timing, err := ValidateWithTiming(ctx, validator)
		totalDuration += timing.Duration
		if timing.MemoryMB > peakMemoryMB {
			peakMemoryMB = timing.MemoryMB
		}

		allResults = append(allResults, results...)
		allMetrics = append(allMetrics, metrics...)

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return e.finalizeFailed(run, fmt.Errorf("校验器 %s 被上下文中断: %w", validator.Name(), err))
			}
			if client.IsAuthError(err) {
				return e.finalizeFailed(run, fmt.Errorf("数据源不可用: %w", err))
			}

			slog.Error("校验器执行失败", "run_id", run.ID, "validator", validator.Name(), "error", err)
			allResults = append(allResults, models.ValidationResult{
				Severity:       models.SeverityError,
				ValidationType: models.ValidationTypeExecution,
				RuleName:       validator.Name(),
				Message:        fmt.Sprintf("校验器 %s 执行失败: %v", validator.Name(), err),
			})
			if !e.config.ContinueOnError {
				return e.finalizeFailed(run, fmt.Errorf("校验器 %s 执行失败: %w", validator.Name(), err))
			}
		}

		progress := float64(i+1) / float64(total) * 100.0
		run.ProgressPercentage = progress
		if err := e.db.Model(&models.ValidationRun{}).Where("id = ?", run.ID).
			Update("progress_percentage", progress).Error; err != nil {
			slog.Warn("更新运行进度失败", "run_id", run.ID, "error", err)
		}
	}

	if e.isCancelled(run.ID) {
		return e.finalizeCancelled(run)
	}

	return e.persistAndComplete(run, allResults, allMetrics, totalDuration, peakMemoryMB)
}

// persistAndComplete 单事务写入全部结果和指标并把运行置为 completed
// 事务失败时回滚并向调用方传播，运行状态保持落库前的样子
func (e *Engine) persistAndComplete(run *models.ValidationRun, results []models.ValidationResult, metricItems []models.ValidationMetric, duration time.Duration, memoryMB float64) error {
	err := e.db.Transaction(func(tx *gorm.DB) error {
		for i := range results {
			results[i].RunID = run.ID
		}
		if len(results) > 0 {
			if err := tx.CreateInBatches(results, 200).Error; err != nil {
				return fmt.Errorf("写入校验结果失败: %w", err)
			}
		}

		// 快照和聚合指标不关联运行，保留清理不会级联删除
		for i := range metricItems {
			if metricItems[i].AggregationType == "" {
				runID := run.ID
				metricItems[i].RunID = &runID
			}
		}
		if len(metricItems) > 0 {
			if err := tx.CreateInBatches(metricItems, 200).Error; err != nil {
				return fmt.Errorf("写入校验指标失败: %w", err)
			}
		}

		run.UpdateSummaryStats(results)
		now := time.Now()
		run.Status = models.RunStatusCompleted
		run.CompletedAt = &now
		run.ProgressPercentage = 100
		run.ExecutionTimeSeconds = duration.Seconds()
		run.MemoryUsageMB = memoryMB

		if err := tx.Model(&models.ValidationRun{}).Where("id = ?", run.ID).Updates(map[string]interface{}{
			"status":                 run.Status,
			"completed_at":           run.CompletedAt,
			"progress_percentage":    run.ProgressPercentage,
			"total_checks":           run.TotalChecks,
			"passed_checks":          run.PassedChecks,
			"failed_checks":          run.FailedChecks,
			"warning_count":          run.WarningCount,
			"error_count":            run.ErrorCount,
			"critical_issues":        run.CriticalIssues,
			"execution_time_seconds": run.ExecutionTimeSeconds,
			"memory_usage_mb":        run.MemoryUsageMB,
		}).Error; err != nil {
			return fmt.Errorf("更新运行汇总失败: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.Error("校验结果落库失败", "run_id", run.ID, "error", err)
		return err
	}

	metrics.ObserveRun(run)
	for _, item := range metricItems {
		if item.MetricName == "quality_score" {
			metrics.ObserveQualityScore(item.MetricValue)
			break
		}
	}

	slog.Info("校验运行完成", "run_id", run.ID,
		"total_checks", run.TotalChecks, "errors", run.ErrorCount, "critical", run.CriticalIssues)
	return nil
}

// finalizeFailed 把运行置为 failed 并记录失败原因
func (e *Engine) finalizeFailed(run *models.ValidationRun, cause error) error {
	now := time.Now()
	run.Status = models.RunStatusFailed
	run.CompletedAt = &now
	run.ErrorMessage = cause.Error()

	if err := e.db.Model(&models.ValidationRun{}).Where("id = ?", run.ID).Updates(map[string]interface{}{
		"status":        run.Status,
		"completed_at":  run.CompletedAt,
		"error_message": run.ErrorMessage,
	}).Error; err != nil {
		slog.Error("标记运行失败状态时出错", "run_id", run.ID, "error", err)
	}

	metrics.ObserveRun(run)
	slog.Error("校验运行失败", "run_id", run.ID, "error", cause)
	return cause
}

// finalizeCancelled 把运行置为 cancelled，已收集但未落库的结果随之丢弃
func (e *Engine) finalizeCancelled(run *models.ValidationRun) error {
	now := time.Now()
	run.Status = models.RunStatusCancelled
	run.CompletedAt = &now

	if err := e.db.Model(&models.ValidationRun{}).Where("id = ?", run.ID).Updates(map[string]interface{}{
		"status":       run.Status,
		"completed_at": run.CompletedAt,
	}).Error; err != nil {
		slog.Error("标记运行取消状态时出错", "run_id", run.ID, "error", err)
	}

	metrics.ObserveRun(run)
	slog.Info("校验运行已取消", "run_id", run.ID)
	return nil
}

// isCancelled 检查活跃注册表中的取消标志
func (e *Engine) isCancelled(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, exists := e.active[runID]; exists {
		return entry.cancelled
	}
	return false
}
