/*
 * @module client/redis_count_cache
 * @description 基于 Redis 的 CRM 计数共享缓存，多实例部署时减少对 CRM 的重复计数查询
 * @architecture 工具层 - 提供跨实例缓存能力
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 查询缓存 -> 命中返回；未命中 -> 实时查询后回填
 * @rules 缓存不可用时静默降级为内存缓存，不影响校验流程
 * @dependencies github.com/go-redis/redis/v8
 * @refs client/salesforce_client.go
 */

package client

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const countCacheKeyPrefix = "vms:crm:count:"

// RedisCountCache Redis 计数缓存
type RedisCountCache struct {
	client *redis.Client
}

// NewRedisCountCache 创建 Redis 计数缓存，配置从环境变量读取
func NewRedisCountCache() (*RedisCountCache, error) {
	host := getEnvWithDefault("REDIS_HOST", "")
	if host == "" {
		return nil, fmt.Errorf("未配置 REDIS_HOST")
	}
	port := getEnvWithDefault("REDIS_PORT", "6379")
	password := os.Getenv("REDIS_PASSWORD")
	db := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		fmt.Sscanf(dbStr, "%d", &db)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis连接失败: %w", err)
	}

	slog.Info("Redis 计数缓存初始化成功", "redis_host", host, "redis_port", port)
	return &RedisCountCache{client: client}, nil
}

// GetCount 读取缓存的计数
func (r *RedisCountCache) GetCount(ctx context.Context, entityType string) (int64, bool) {
	value, err := r.client.Get(ctx, countCacheKeyPrefix+entityType).Result()
	if err != nil {
		return 0, false
	}
	count, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return count, true
}

// SetCount 写入计数缓存
func (r *RedisCountCache) SetCount(ctx context.Context, entityType string, count int64, ttl time.Duration) {
	if err := r.client.Set(ctx, countCacheKeyPrefix+entityType, count, ttl).Err(); err != nil {
		slog.Warn("写入 Redis 计数缓存失败", "entity_type", entityType, "error", err)
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
