/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、迁移、内置规则模板和全局服务装配
 * @architecture 分层架构 - 服务层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 应用启动时执行：数据库连接 -> 迁移 -> 模板种子 -> 配置加载 -> 服务装配 -> 调度启动
 * @rules 所有依赖服务初始化完成后才提供API服务；Redis/Kafka/MQTT不可用时降级运行
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres
 * @refs main.go, api/routes.go
 */

package service

import (
	"fmt"
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"vms-validation-service/client"
	"vms-validation-service/service/cleanup"
	"vms-validation-service/service/distributed_lock"
	"vms-validation-service/service/localstore"
	"vms-validation-service/service/models"
	"vms-validation-service/service/notification"
	"vms-validation-service/service/realtime"
	"vms-validation-service/service/scheduler"
	"vms-validation-service/service/validation"
)

var (
	DB                   *gorm.DB
	GlobalConfig         *validation.Config
	GlobalEngine         *validation.Engine
	GlobalTrendAnalyzer  *validation.TrendAnalyzer
	GlobalScheduler      *scheduler.ValidationScheduler
	GlobalCleanupService *cleanup.RunCleanupService
	GlobalNotifier       *notification.KafkaNotifier
	GlobalMQTTTrigger    *realtime.MQTTTrigger
)

func init() {
	initDatabase()
	runMigrations()
	initServices()
}

// initDatabase 初始化数据库连接
func initDatabase() {
	var dsn string

	// 优先使用DATABASE_URL环境变量
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		dsn = databaseURL
	} else {
		host := getEnvWithDefault("DB_HOST", "localhost")
		port := getEnvWithDefault("DB_PORT", "5432")
		user := getEnvWithDefault("DB_USER", "postgres")
		password := getEnvWithDefault("DB_PASSWORD", "postgres")
		dbname := getEnvWithDefault("DB_NAME", "vms_validation")
		sslmode := getEnvWithDefault("DB_SSLMODE", "disable")
		schema := getEnvWithDefault("DB_SCHEMA", "public")

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s",
			host, port, user, password, dbname, sslmode, schema)
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	log.Println("数据库连接成功")
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// runMigrations 运行数据库迁移并写入内置规则模板
func runMigrations() {
	log.Println("开始运行数据库迁移...")

	if err := DB.AutoMigrate(
		&models.ValidationRun{},
		&models.ValidationResult{},
		&models.ValidationMetric{},
		&models.ValidationRuleTemplate{},
	); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	log.Println("数据库表结构迁移完成")

	if err := seedRuleTemplates(DB); err != nil {
		log.Fatalf("内置规则模板初始化失败: %v", err)
	}
	log.Println("内置规则模板初始化完成")
}

// seedRuleTemplates 写入内置规则模板，按名称幂等
func seedRuleTemplates(db *gorm.DB) error {
	templates := []models.ValidationRuleTemplate{
		{
			Name:        "contact_name_length",
			RuleType:    validation.RuleKindBusinessConstraint,
			Description: "联系人姓氏长度约束",
			EntityType:  "volunteer",
			ApplicableEntityTypes: []string{
				"volunteer", "student", "teacher",
			},
			RuleLogic: models.JSONB{
				"field":      "LastName",
				"required":   true,
				"max_length": 80,
			},
			Severity:  models.SeverityWarning,
			IsBuiltIn: true,
			IsEnabled: true,
			Priority:  40,
		},
		{
			Name:        "event_registration_window",
			RuleType:    validation.RuleKindDateRange,
			Description: "课程会话报名窗口合理性",
			EntityType:  "event",
			RuleLogic: models.JSONB{
				"start_field":       "Registration_Start__c",
				"end_field":         "Registration_End__c",
				"min_duration_days": 1,
				"max_duration_days": 90,
			},
			Severity:  models.SeverityWarning,
			IsBuiltIn: true,
			IsEnabled: true,
			Priority:  30,
		},
	}

	for _, template := range templates {
		var existing models.ValidationRuleTemplate
		err := db.Where("name = ?", template.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		if err := db.Create(&template).Error; err != nil {
			return err
		}
	}
	return nil
}

// initServices 装配全局服务
func initServices() {
	GlobalConfig = validation.DefaultConfig()
	GlobalConfig.LoadFromEnv()
	if err := GlobalConfig.LoadTemplates(DB); err != nil {
		log.Fatalf("加载规则模板失败: %v", err)
	}
	if err := GlobalConfig.Validate(); err != nil {
		log.Fatalf("配置校验失败: %v", err)
	}

	store := localstore.NewStore(DB)
	sfClient := client.GetClient(false)

	GlobalEngine = validation.NewEngine(DB, GlobalConfig, store, sfClient)
	GlobalTrendAnalyzer = validation.NewTrendAnalyzer(DB, GlobalConfig)

	// 分布式锁不可用时调度和清理在单实例模式下直接执行
	var lockExecutor *distributed_lock.LockExecutor
	if redisLock, err := distributed_lock.NewRedisLock(); err != nil {
		log.Printf("Redis分布式锁不可用，调度任务降级为单实例模式: %v", err)
	} else {
		lockExecutor = distributed_lock.NewLockExecutor(redisLock)
	}

	GlobalNotifier = notification.NewKafkaNotifier()

	var notifier scheduler.RunNotifier
	if GlobalNotifier != nil {
		notifier = GlobalNotifier
	}
	GlobalScheduler = scheduler.NewValidationScheduler(GlobalEngine, lockExecutor, notifier)
	if err := GlobalScheduler.Start(); err != nil {
		log.Printf("启动校验调度器失败: %v", err)
	}

	GlobalCleanupService = cleanup.NewRunCleanupService(DB, GlobalConfig.RetentionDays, lockExecutor)
	if err := GlobalCleanupService.StartScheduledCleanup(); err != nil {
		log.Printf("启动运行清理调度器失败: %v", err)
	}

	if trigger, err := realtime.NewMQTTTrigger(GlobalEngine); err != nil {
		log.Printf("MQTT实时触发器初始化失败: %v", err)
	} else {
		GlobalMQTTTrigger = trigger
	}

	log.Println("服务初始化完成")
}

// Shutdown 停止后台任务并释放外部连接，进程退出前调用
func Shutdown() {
	if GlobalScheduler != nil {
		GlobalScheduler.Stop()
	}
	if GlobalCleanupService != nil {
		GlobalCleanupService.StopScheduledCleanup()
	}
	if GlobalMQTTTrigger != nil {
		GlobalMQTTTrigger.Close()
	}
	if GlobalNotifier != nil {
		if err := GlobalNotifier.Close(); err != nil {
			log.Printf("关闭Kafka通知器失败: %v", err)
		}
	}
	log.Println("后台任务已停止")
}
