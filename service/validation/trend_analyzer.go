/*
 * @module service/validation/trend_analyzer
 * @description 指标趋势分析器，基于最小二乘回归计算趋势方向与置信度，支持周期桶均值聚合
 * @architecture 分层架构 - 校验服务层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 按指标名取回看窗口内的历史点 -> OLS 回归 -> 方向/置信度 -> 产出趋势汇总指标
 * @rules 数据点不足最小点数时不产出趋势；置信度 = min(1, R² × 点数/10)
 * @dependencies gorm.io/gorm, service/models
 * @refs service/validation/engine.go, service/metrics
 */

package validation

import (
	"context"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"vms-validation-service/service/models"
)

// 斜率在该绝对值之内视为持平
const trendSlopeEpsilon = 0.01

// 趋势方向
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// TrendPoint 回归输入点，天数为距首个采样点的天数
type TrendPoint struct {
	DaysSinceFirst float64
	Value          float64
}

// TrendResult 回归输出
type TrendResult struct {
	Direction  string
	Slope      float64
	Intercept  float64
	RSquared   float64
	Confidence float64
	DataPoints int
}

// TrendAnalyzer 指标趋势分析器
type TrendAnalyzer struct {
	db     *gorm.DB
	config *Config
}

// NewTrendAnalyzer 创建趋势分析器
func NewTrendAnalyzer(db *gorm.DB, config *Config) *TrendAnalyzer {
	return &TrendAnalyzer{db: db, config: config}
}

// AnalyzeMetric 对指定指标名计算回看窗口内的趋势，产出一条不关联运行的趋势指标
// 数据点不足时返回 nil
func (a *TrendAnalyzer) AnalyzeMetric(ctx context.Context, metricName, entityType string) (*models.ValidationMetric, error) {
	since := time.Now().AddDate(0, 0, -a.config.TrendWindowDays)

	query := a.db.WithContext(ctx).Model(&models.ValidationMetric{}).
		Where("metric_name = ? AND timestamp >= ?", metricName, since).
		Order("timestamp ASC")
	if entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}

	var history []models.ValidationMetric
	if err := query.Find(&history).Error; err != nil {
		return nil, fmt.Errorf("查询指标历史失败: %w", err)
	}
	if len(history) < a.config.MinTrendPoints {
		return nil, nil
	}

	first := history[0]
	points := make([]TrendPoint, 0, len(history))
	for _, m := range history {
		points = append(points, TrendPoint{
			DaysSinceFirst: m.Timestamp.Sub(first.Timestamp).Hours() / 24,
			Value:          m.MetricValue,
		})
	}

	trend := ComputeTrend(points)
	last := history[len(history)-1]

	changePct := 0.0
	if first.MetricValue != 0 {
		changePct = (last.MetricValue - first.MetricValue) / first.MetricValue * 100.0
	}

	metric := &models.ValidationMetric{
		MetricName:       fmt.Sprintf("%s_trend", metricName),
		MetricCategory:   models.MetricCategoryQuality,
		MetricUnit:       first.MetricUnit,
		MetricValue:      last.MetricValue,
		EntityType:       entityType,
		TrendPeriod:      fmt.Sprintf("%dd", a.config.TrendWindowDays),
		TrendDirection:   trend.Direction,
		TrendMagnitude:   trend.Slope,
		TrendConfidence:  trend.Confidence,
		BaselineValue:    first.MetricValue,
		ChangePercentage: changePct,
	}
	return metric, nil
}

// Aggregate 按周期桶对指标历史做均值聚合，供看板绘图
func (a *TrendAnalyzer) Aggregate(ctx context.Context, metricName, period string) ([]models.ValidationMetric, error) {
	bucketSize, err := periodDuration(period)
	if err != nil {
		return nil, err
	}

	since := time.Now().AddDate(0, 0, -a.config.TrendWindowDays)
	var history []models.ValidationMetric
	if err := a.db.WithContext(ctx).Model(&models.ValidationMetric{}).
		Where("metric_name = ? AND timestamp >= ?", metricName, since).
		Order("timestamp ASC").
		Find(&history).Error; err != nil {
		return nil, fmt.Errorf("查询指标历史失败: %w", err)
	}
	if len(history) == 0 {
		return nil, nil
	}

	type bucket struct {
		start time.Time
		sum   float64
		count int
	}
	var buckets []*bucket
	var current *bucket

	for _, m := range history {
		start := m.Timestamp.Truncate(bucketSize)
		if current == nil || !current.start.Equal(start) {
			current = &bucket{start: start}
			buckets = append(buckets, current)
		}
		current.sum += m.MetricValue
		current.count++
	}

	aggregated := make([]models.ValidationMetric, 0, len(buckets))
	for _, b := range buckets {
		end := b.start.Add(bucketSize)
		aggregated = append(aggregated, models.ValidationMetric{
			MetricName:        metricName,
			MetricCategory:    history[0].MetricCategory,
			MetricUnit:        history[0].MetricUnit,
			MetricValue:       b.sum / float64(b.count),
			AggregationType:   "mean",
			AggregationPeriod: period,
			PeriodStart:       &b.start,
			PeriodEnd:         &end,
			AggregationCount:  b.count,
			Timestamp:         b.start,
		})
	}
	return aggregated, nil
}

// ComputeTrend 闭式最小二乘回归
func ComputeTrend(points []TrendPoint) TrendResult {
	n := float64(len(points))
	result := TrendResult{Direction: TrendStable, DataPoints: len(points)}
	if len(points) < 2 {
		return result
	}

	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		sumX += p.DaysSinceFirst
		sumY += p.Value
		sumXY += p.DaysSinceFirst * p.Value
		sumXX += p.DaysSinceFirst * p.DaysSinceFirst
	}

	denominator := n*sumXX - sumX*sumX
	if denominator == 0 {
		return result
	}

	result.Slope = (n*sumXY - sumX*sumY) / denominator
	result.Intercept = (sumY - result.Slope*sumX) / n

	meanY := sumY / n
	var ssRes, ssTot float64
	for _, p := range points {
		predicted := result.Intercept + result.Slope*p.DaysSinceFirst
		ssRes += (p.Value - predicted) * (p.Value - predicted)
		ssTot += (p.Value - meanY) * (p.Value - meanY)
	}
	if ssTot > 0 {
		result.RSquared = 1 - ssRes/ssTot
	}

	result.Confidence = math.Min(1, result.RSquared*n/10)

	switch {
	case result.Slope > trendSlopeEpsilon:
		result.Direction = TrendImproving
	case result.Slope < -trendSlopeEpsilon:
		result.Direction = TrendDeclining
	}
	return result
}

// periodDuration 周期名到桶宽的映射
func periodDuration(period string) (time.Duration, error) {
	switch period {
	case "hourly":
		return time.Hour, nil
	case "daily":
		return 24 * time.Hour, nil
	case "weekly":
		return 7 * 24 * time.Hour, nil
	case "monthly":
		return 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("不支持的聚合周期: %s", period)
	}
}
