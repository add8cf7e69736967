/*
 * @module client/salesforce_client
 * @description Salesforce CRM 客户端，提供按实体类型的记录数统计和抽样查询
 * @architecture 适配器模式 - 封装外部 CRM REST 接口，提供缓存、限速和重试能力
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 缓存命中 -> 直接返回；未命中 -> 限速等待 -> 重试包装的实时查询 -> 回填缓存
 * @rules 计数缓存5分钟，样本缓存60秒；实时查询间隔不低于100ms；瞬时错误重试3次指数退避，认证失败不重试
 * @dependencies net/http, github.com/go-redis/redis/v8
 * @refs service/validation/count_validator.go
 */

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	countCacheTTL   = 5 * time.Minute
	sampleCacheTTL  = 60 * time.Second
	minQueryGap     = 100 * time.Millisecond
	maxRetries      = 3
	retryBaseDelay  = time.Second
	defaultAPIPath  = "/services/data/v58.0"
	defaultHTTPWait = 30 * time.Second
)

// AuthError 认证失败错误，不进行重试
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("Salesforce 认证失败 (HTTP %d): %s", e.StatusCode, e.Message)
}

// IsAuthError 判断是否为认证错误
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// 实体类型到 Salesforce 对象的查询映射
type sobjectQuery struct {
	SObject string
	Where   string
	Fields  []string
}

var entityQueries = map[string]sobjectQuery{
	"volunteer": {
		SObject: "Contact",
		Where:   "Contact_Type__c = 'Volunteer'",
		Fields: []string{"Id", "FirstName", "LastName", "Email", "Phone", "Birthdate",
			"AccountId", "npsp__Primary_Affiliation__c", "Volunteer_Status__c",
			"Background_Check_Date__c", "Orientation_Date__c"},
	},
	"organization": {
		SObject: "Account",
		Fields:  []string{"Id", "Name", "Type", "Website", "Phone", "ParentId"},
	},
	"event": {
		SObject: "Session__c",
		Fields: []string{"Id", "Name", "Start_Date__c", "End_Date__c", "Session_Status__c",
			"Capacity__c", "Registered_Attendees__c", "School__c"},
	},
	"student": {
		SObject: "Contact",
		Where:   "Contact_Type__c = 'Student'",
		Fields: []string{"Id", "FirstName", "LastName", "Birthdate", "AccountId",
			"Current_Grade__c", "Student_Type__c"},
	},
	"teacher": {
		SObject: "Contact",
		Where:   "Contact_Type__c = 'Teacher'",
		Fields:  []string{"Id", "FirstName", "LastName", "Email", "Phone", "AccountId", "School__c"},
	},
}

type cachedCount struct {
	value     int64
	fetchedAt time.Time
}

type cachedSample struct {
	records   []map[string]interface{}
	fetchedAt time.Time
}

// SalesforceClient Salesforce CRM 客户端
type SalesforceClient struct {
	baseURL     string
	accessToken string
	apiPath     string
	httpClient  *http.Client
	sharedCache *RedisCountCache // 可选的跨实例共享计数缓存

	mu           sync.Mutex
	countCache   map[string]cachedCount
	sampleCache  map[string]cachedSample
	lastQueryAt  time.Time
}

// 进程级客户端缓存，构造幂等，可通过 forceNew 强制重建
var (
	clientMu      sync.Mutex
	defaultClient *SalesforceClient
)

// GetClient 获取进程级共享客户端实例
func GetClient(forceNew bool) *SalesforceClient {
	clientMu.Lock()
	defer clientMu.Unlock()

	if defaultClient == nil || forceNew {
		defaultClient = NewSalesforceClient()
	}
	return defaultClient
}

// NewSalesforceClient 创建 Salesforce 客户端，配置从环境变量读取
func NewSalesforceClient() *SalesforceClient {
	baseURL := os.Getenv("SF_INSTANCE_URL")
	if baseURL == "" {
		baseURL = "https://login.salesforce.com"
	}

	apiPath := defaultAPIPath
	if version := os.Getenv("SF_API_VERSION"); version != "" {
		apiPath = "/services/data/" + version
	}

	client := &SalesforceClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: os.Getenv("SF_ACCESS_TOKEN"),
		apiPath:     apiPath,
		httpClient:  &http.Client{Timeout: defaultHTTPWait},
		countCache:  make(map[string]cachedCount),
		sampleCache: make(map[string]cachedSample),
	}

	// 共享缓存不可用时降级为纯内存缓存
	if sharedCache, err := NewRedisCountCache(); err != nil {
		slog.Warn("Redis 共享计数缓存不可用，使用内存缓存", "error", err)
	} else {
		client.sharedCache = sharedCache
	}

	return client
}

// NewSalesforceClientForEndpoint 创建指向指定端点的客户端，不接共享缓存，用于测试和本地调试
func NewSalesforceClientForEndpoint(baseURL, accessToken string) *SalesforceClient {
	return &SalesforceClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		apiPath:     defaultAPIPath,
		httpClient:  &http.Client{Timeout: defaultHTTPWait},
		countCache:  make(map[string]cachedCount),
		sampleCache: make(map[string]cachedSample),
	}
}

// SupportedEntityTypes 返回客户端支持的实体类型
func SupportedEntityTypes() []string {
	types := make([]string, 0, len(entityQueries))
	for entityType := range entityQueries {
		types = append(types, entityType)
	}
	return types
}

// GetEntityCount 获取实体类型的 CRM 记录数，带缓存和限速
func (c *SalesforceClient) GetEntityCount(ctx context.Context, entityType string) (int64, error) {
	query, exists := entityQueries[entityType]
	if !exists {
		return 0, fmt.Errorf("未知的实体类型: %s", entityType)
	}

	c.mu.Lock()
	if cached, ok := c.countCache[entityType]; ok && time.Since(cached.fetchedAt) < countCacheTTL {
		c.mu.Unlock()
		return cached.value, nil
	}
	c.mu.Unlock()

	// 共享缓存命中时同样回填内存缓存
	if c.sharedCache != nil {
		if value, ok := c.sharedCache.GetCount(ctx, entityType); ok {
			c.storeCount(entityType, value)
			return value, nil
		}
	}

	soql := fmt.Sprintf("SELECT COUNT() FROM %s", query.SObject)
	if query.Where != "" {
		soql += " WHERE " + query.Where
	}

	var count int64
	err := c.withRetry(ctx, func() error {
		result, err := c.runQuery(ctx, soql)
		if err != nil {
			return err
		}
		count = result.TotalSize
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.storeCount(entityType, count)
	if c.sharedCache != nil {
		c.sharedCache.SetCount(ctx, entityType, count, countCacheTTL)
	}
	return count, nil
}

// GetEntitySample 获取实体类型的 CRM 抽样记录，带缓存和限速
func (c *SalesforceClient) GetEntitySample(ctx context.Context, entityType string, limit int) ([]map[string]interface{}, error) {
	query, exists := entityQueries[entityType]
	if !exists {
		return nil, fmt.Errorf("未知的实体类型: %s", entityType)
	}

	cacheKey := fmt.Sprintf("%s:%d", entityType, limit)
	c.mu.Lock()
	if cached, ok := c.sampleCache[cacheKey]; ok && time.Since(cached.fetchedAt) < sampleCacheTTL {
		c.mu.Unlock()
		return cached.records, nil
	}
	c.mu.Unlock()

	soql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(query.Fields, ", "), query.SObject)
	if query.Where != "" {
		soql += " WHERE " + query.Where
	}
	soql += fmt.Sprintf(" LIMIT %d", limit)

	var records []map[string]interface{}
	err := c.withRetry(ctx, func() error {
		result, err := c.runQuery(ctx, soql)
		if err != nil {
			return err
		}
		records = result.Records
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sampleCache[cacheKey] = cachedSample{records: records, fetchedAt: time.Now()}
	c.mu.Unlock()
	return records, nil
}

// HealthCheck 检查 CRM 连通性
func (c *SalesforceClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/services/data", nil)
	if err != nil {
		return fmt.Errorf("创建健康检查请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("CRM 健康检查失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("CRM 服务不可用 (HTTP %d)", resp.StatusCode)
	}
	return nil
}

// InvalidateCache 清空本地缓存（用于测试和手动刷新）
func (c *SalesforceClient) InvalidateCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.countCache = make(map[string]cachedCount)
	c.sampleCache = make(map[string]cachedSample)
}

func (c *SalesforceClient) storeCount(entityType string, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.countCache[entityType] = cachedCount{value: value, fetchedAt: time.Now()}
}

// throttle 保证实时查询之间的最小间隔
func (c *SalesforceClient) throttle() {
	c.mu.Lock()
	elapsed := time.Since(c.lastQueryAt)
	var wait time.Duration
	if elapsed < minQueryGap {
		wait = minQueryGap - elapsed
	}
	c.lastQueryAt = time.Now().Add(wait)
	c.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
}

// withRetry 实时查询的重试包装：瞬时错误指数退避重试，认证错误立即传播
func (c *SalesforceClient) withRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	delay := retryBaseDelay

	for attempt := 1; attempt <= maxRetries; attempt++ {
		c.throttle()

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if IsAuthError(lastErr) {
			return lastErr
		}

		if attempt < maxRetries {
			slog.Warn("CRM 查询失败，准备重试",
				"attempt", attempt,
				"delay", delay.String(),
				"error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("CRM 查询重试 %d 次后仍失败: %w", maxRetries, lastErr)
}

type queryResult struct {
	TotalSize int64                    `json:"totalSize"`
	Done      bool                     `json:"done"`
	Records   []map[string]interface{} `json:"records"`
}

// runQuery 执行一次 SOQL 查询
func (c *SalesforceClient) runQuery(ctx context.Context, soql string) (*queryResult, error) {
	values := url.Values{}
	values.Add("q", soql)

	endpoint := c.baseURL + c.apiPath + "/query?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("创建查询请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送查询请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("查询失败 (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var result queryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析查询响应失败: %w", err)
	}

	// 记录中携带的 attributes 元数据对校验无用，去掉以免干扰字段遍历
	for _, record := range result.Records {
		delete(record, "attributes")
	}

	return &result, nil
}
