/*
 * @module service/cleanup/run_cleanup_service
 * @description 运行记录保留清理服务，定期删除超过保留期的校验运行及其关联结果和指标
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 定时触发 -> 分布式锁防重 -> 删除过期运行的结果/指标/运行行 -> 记录结果
 * @rules 不关联运行的趋势汇总指标(run_id为空)不清理，历史趋势数据跨运行保留
 * @dependencies gorm.io/gorm, github.com/robfig/cron/v3, service/distributed_lock
 * @refs service/validation/trend_analyzer.go, service/init.go
 */

package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"vms-validation-service/service/distributed_lock"
	"vms-validation-service/service/models"
)

// 清理任务锁的key和TTL
const (
	cleanupLockKey = "run_cleanup"
	cleanupLockTTL = 10 * time.Minute
)

// RunCleanupService 运行记录保留清理服务
type RunCleanupService struct {
	db            *gorm.DB
	retentionDays int
	lockExecutor  *distributed_lock.LockExecutor
	cron          *cron.Cron
	ctx           context.Context
	cancel        context.CancelFunc
	started       bool
}

// NewRunCleanupService 创建清理服务实例，lockExecutor 为空时单实例直接执行
func NewRunCleanupService(db *gorm.DB, retentionDays int, lockExecutor *distributed_lock.LockExecutor) *RunCleanupService {
	ctx, cancel := context.WithCancel(context.Background())

	return &RunCleanupService{
		db:            db,
		retentionDays: retentionDays,
		lockExecutor:  lockExecutor,
		cron:          cron.New(cron.WithSeconds()),
		ctx:           ctx,
		cancel:        cancel,
		started:       false,
	}
}

// CleanupExpiredRuns 删除超过保留期的运行及其关联数据，返回删除的运行数
// 结果和关联指标在同一事务中显式删除，不依赖数据库级联
func (s *RunCleanupService) CleanupExpiredRuns(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	slog.Info("开始清理过期校验运行", "retention_days", s.retentionDays, "cutoff", cutoff.Format("2006-01-02"))
	startTime := time.Now()

	var expiredIDs []string
	if err := s.db.WithContext(ctx).Model(&models.ValidationRun{}).
		Where("started_at < ?", cutoff).
		Pluck("id", &expiredIDs).Error; err != nil {
		return 0, fmt.Errorf("查询过期运行失败: %w", err)
	}
	if len(expiredIDs) == 0 {
		slog.Info("没有需要清理的过期运行")
		return 0, nil
	}

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id IN ?", expiredIDs).
			Delete(&models.ValidationResult{}).Error; err != nil {
			return fmt.Errorf("删除过期校验结果失败: %w", err)
		}
		// run_id 为空的趋势汇总指标不在删除范围内
		if err := tx.Where("run_id IN ?", expiredIDs).
			Delete(&models.ValidationMetric{}).Error; err != nil {
			return fmt.Errorf("删除过期校验指标失败: %w", err)
		}

		result := tx.Where("id IN ?", expiredIDs).Delete(&models.ValidationRun{})
		if result.Error != nil {
			return fmt.Errorf("删除过期运行失败: %w", result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.Info("过期运行清理完成",
		"deleted_runs", deleted,
		"duration_ms", time.Since(startTime).Milliseconds())
	return deleted, nil
}

// runCleanup 带分布式锁的清理入口
func (s *RunCleanupService) runCleanup() {
	execute := func() error {
		_, err := s.CleanupExpiredRuns(s.ctx)
		return err
	}

	var err error
	if s.lockExecutor != nil {
		err = s.lockExecutor.ExecuteWithLock(s.ctx, cleanupLockKey, cleanupLockTTL, execute)
	} else {
		err = execute()
	}
	if err != nil {
		slog.Error("定时运行清理任务失败", "error", err)
	}
}

// StartScheduledCleanup 启动定时清理，每天凌晨3点执行
func (s *RunCleanupService) StartScheduledCleanup() error {
	if s.started {
		return fmt.Errorf("运行清理调度器已经启动")
	}

	slog.Info("启动运行清理调度器")

	// Cron表达式：秒 分 时 日 月 周
	_, err := s.cron.AddFunc("0 0 3 * * *", func() {
		slog.Info("开始执行定时运行清理任务")
		s.runCleanup()
	})
	if err != nil {
		return fmt.Errorf("添加定时任务失败: %w", err)
	}

	s.cron.Start()
	s.started = true

	slog.Info("运行清理调度器启动成功，将于每天凌晨3点执行")
	return nil
}

// StopScheduledCleanup 停止定时清理任务
func (s *RunCleanupService) StopScheduledCleanup() {
	if !s.started {
		return
	}

	slog.Info("停止运行清理调度器")
	s.cancel()
	if s.cron != nil {
		s.cron.Stop()
	}
	s.started = false
}
