/*
 * @module service/scheduler/validation_scheduler
 * @description 校验调度器，按Cron周期触发快速和完整校验，分布式锁防止多实例重复执行
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 定时触发 -> 获取分布式锁 -> 调用引擎执行运行 -> 发布完成通知
 * @rules 快速校验默认每小时，完整校验默认每天凌晨1点半；锁被占用时静默跳过
 * @dependencies github.com/robfig/cron/v3, service/validation, service/distributed_lock
 * @refs service/notification/kafka_notifier.go, service/init.go
 */

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"vms-validation-service/service/distributed_lock"
	"vms-validation-service/service/models"
	"vms-validation-service/service/validation"
)

// 调度锁的key和TTL
const (
	fastLockKey = "scheduled_fast_validation"
	slowLockKey = "scheduled_slow_validation"
	fastLockTTL = 10 * time.Minute
	slowLockTTL = 2 * time.Hour
	// 慢速运行期间的锁续期间隔
	slowLockRefresh = 30 * time.Minute
)

// RunNotifier 运行完成通知接口
type RunNotifier interface {
	NotifyRunCompleted(ctx context.Context, run *models.ValidationRun) error
}

// ValidationScheduler 校验调度器
type ValidationScheduler struct {
	engine       *validation.Engine
	lockExecutor *distributed_lock.LockExecutor
	notifier     RunNotifier
	cron         *cron.Cron
	ctx          context.Context
	cancel       context.CancelFunc
	started      bool
}

// NewValidationScheduler 创建校验调度器，lockExecutor 和 notifier 均可为空
func NewValidationScheduler(engine *validation.Engine, lockExecutor *distributed_lock.LockExecutor, notifier RunNotifier) *ValidationScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &ValidationScheduler{
		engine:       engine,
		lockExecutor: lockExecutor,
		notifier:     notifier,
		cron:         cron.New(cron.WithSeconds()),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start 注册定时任务并启动调度器
// Cron表达式可通过 VALIDATION_FAST_CRON / VALIDATION_SLOW_CRON 覆盖
func (s *ValidationScheduler) Start() error {
	if s.started {
		return fmt.Errorf("校验调度器已经启动")
	}

	fastSpec := getEnvWithDefault("VALIDATION_FAST_CRON", "0 0 * * * *")
	slowSpec := getEnvWithDefault("VALIDATION_SLOW_CRON", "0 30 1 * * *")

	if _, err := s.cron.AddFunc(fastSpec, func() {
		s.runLocked(fastLockKey, fastLockTTL, 0, func() (*models.ValidationRun, error) {
			return s.engine.RunFast(s.ctx, "scheduler")
		})
	}); err != nil {
		return fmt.Errorf("注册快速校验任务失败: %w", err)
	}

	if _, err := s.cron.AddFunc(slowSpec, func() {
		s.runLocked(slowLockKey, slowLockTTL, slowLockRefresh, func() (*models.ValidationRun, error) {
			return s.engine.RunSlow(s.ctx, "scheduler")
		})
	}); err != nil {
		return fmt.Errorf("注册完整校验任务失败: %w", err)
	}

	s.cron.Start()
	s.started = true

	slog.Info("校验调度器启动成功", "fast_cron", fastSpec, "slow_cron", slowSpec)
	return nil
}

// Stop 停止调度器
func (s *ValidationScheduler) Stop() {
	if !s.started {
		return
	}

	slog.Info("停止校验调度器")
	s.cancel()
	if s.cron != nil {
		s.cron.Stop()
	}
	s.started = false
}

// runLocked 在分布式锁保护下执行一次运行并发布完成通知
func (s *ValidationScheduler) runLocked(lockKey string, ttl, refreshInterval time.Duration, execute func() (*models.ValidationRun, error)) {
	task := func() error {
		run, err := execute()
		if err != nil {
			return err
		}
		s.notify(run)
		return nil
	}

	var err error
	switch {
	case s.lockExecutor == nil:
		err = task()
	case refreshInterval > 0:
		err = s.lockExecutor.ExecuteWithLockAndRefresh(s.ctx, lockKey, ttl, refreshInterval, task)
	default:
		err = s.lockExecutor.ExecuteWithLock(s.ctx, lockKey, ttl, task)
	}
	if err != nil {
		slog.Error("定时校验任务失败", "lock_key", lockKey, "error", err)
	}
}

// notify 发布运行完成通知，通知失败只记日志不影响运行结果
func (s *ValidationScheduler) notify(run *models.ValidationRun) {
	if s.notifier == nil || run == nil {
		return
	}
	if err := s.notifier.NotifyRunCompleted(s.ctx, run); err != nil {
		slog.Error("发布运行完成通知失败", "run_id", run.ID, "error", err)
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
