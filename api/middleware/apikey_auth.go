/*
 * @module api/middleware/apikey_auth
 * @description API Key鉴权中间件，基于bcrypt哈希校验X-API-Key请求头
 * @architecture 中间件模式 - HTTP请求拦截和验证
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow Key提取 -> bcrypt比对 -> 缓存验证结果 -> 下一个处理器
 * @rules 未配置API_KEY_HASH时鉴权关闭；健康检查和指标端点走白名单
 * @dependencies net/http, golang.org/x/crypto/bcrypt, github.com/go-chi/render
 * @refs api/routes.go
 */

package middleware

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/render"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyAuthMiddleware API Key认证中间件
type APIKeyAuthMiddleware struct {
	keyHash []byte
	// bcrypt比对开销较大，成功验证过的Key短期缓存
	verified      map[string]time.Time
	verifiedMutex sync.RWMutex
	cacheTTL      time.Duration
	// 白名单路径（不需要鉴权）
	whitelistPaths []string
}

// NewAPIKeyAuthMiddleware 创建API Key认证中间件实例
// 环境变量API_KEY_HASH为空时返回nil，表示鉴权关闭
func NewAPIKeyAuthMiddleware() *APIKeyAuthMiddleware {
	keyHash := os.Getenv("API_KEY_HASH")
	if keyHash == "" {
		return nil
	}

	return &APIKeyAuthMiddleware{
		keyHash:  []byte(keyHash),
		verified: make(map[string]time.Time),
		cacheTTL: 5 * time.Minute,
		whitelistPaths: []string{
			"/health",  // 健康检查
			"/ready",   // 就绪检查
			"/metrics", // Prometheus指标
			"/swagger", // Swagger文档
		},
	}
}

// AddWhitelistPath 添加白名单路径
func (m *APIKeyAuthMiddleware) AddWhitelistPath(path string) {
	m.whitelistPaths = append(m.whitelistPaths, path)
}

// IsWhitelistPath 检查路径是否在白名单中
func (m *APIKeyAuthMiddleware) IsWhitelistPath(path string) bool {
	for _, whitelistPath := range m.whitelistPaths {
		// 支持前缀匹配
		if strings.HasPrefix(path, whitelistPath) {
			return true
		}
	}
	return false
}

// Middleware 认证中间件处理函数
func (m *APIKeyAuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.IsWhitelistPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			m.respondUnauthorized(w, r, "缺少X-API-Key请求头")
			return
		}

		// 先检查缓存
		if m.isVerified(apiKey) {
			next.ServeHTTP(w, r)
			return
		}

		if err := bcrypt.CompareHashAndPassword(m.keyHash, []byte(apiKey)); err != nil {
			m.respondUnauthorized(w, r, "API Key无效")
			return
		}

		m.markVerified(apiKey)
		next.ServeHTTP(w, r)
	})
}

// isVerified 检查Key是否在缓存有效期内
func (m *APIKeyAuthMiddleware) isVerified(apiKey string) bool {
	m.verifiedMutex.RLock()
	defer m.verifiedMutex.RUnlock()

	expiresAt, exists := m.verified[apiKey]
	if !exists {
		return false
	}
	return time.Now().Before(expiresAt)
}

// markVerified 缓存验证通过的Key
func (m *APIKeyAuthMiddleware) markVerified(apiKey string) {
	m.verifiedMutex.Lock()
	defer m.verifiedMutex.Unlock()

	m.verified[apiKey] = time.Now().Add(m.cacheTTL)
}

// ClearExpiredCache 清理过期缓存（可以定期调用）
func (m *APIKeyAuthMiddleware) ClearExpiredCache() int {
	m.verifiedMutex.Lock()
	defer m.verifiedMutex.Unlock()

	now := time.Now()
	clearedCount := 0
	for key, expiresAt := range m.verified {
		if now.After(expiresAt) {
			delete(m.verified, key)
			clearedCount++
		}
	}
	return clearedCount
}

// respondUnauthorized 返回401未授权响应
func (m *APIKeyAuthMiddleware) respondUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	render.JSON(w, r, map[string]interface{}{
		"status":  http.StatusUnauthorized,
		"message": message,
		"error":   "Unauthorized",
	})
}
