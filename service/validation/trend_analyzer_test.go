/*
 * @module service/validation/trend_analyzer_test
 * @description 趋势分析器单元测试
 * @architecture 测试层 - 单元测试
 */

package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-validation-service/testutil"
)

// TestComputeTrend 最小二乘回归的斜率、方向与置信度
func TestComputeTrend(t *testing.T) {
	t.Run("完全线性上升", func(t *testing.T) {
		// y = 2x + 1
		points := []TrendPoint{
			{0, 1}, {1, 3}, {2, 5}, {3, 7}, {4, 9},
		}
		trend := ComputeTrend(points)
		assert.InDelta(t, 2.0, trend.Slope, 0.001)
		assert.InDelta(t, 1.0, trend.Intercept, 0.001)
		assert.InDelta(t, 1.0, trend.RSquared, 0.001)
		assert.Equal(t, TrendImproving, trend.Direction)
		// R²=1，5个点: 1 × 5/10
		assert.InDelta(t, 0.5, trend.Confidence, 0.001)
		assert.Equal(t, 5, trend.DataPoints)
	})

	t.Run("下降趋势", func(t *testing.T) {
		points := []TrendPoint{
			{0, 98}, {1, 96}, {2, 93}, {3, 90},
		}
		trend := ComputeTrend(points)
		assert.Equal(t, TrendDeclining, trend.Direction)
		assert.Less(t, trend.Slope, 0.0)
	})

	t.Run("常数序列为持平", func(t *testing.T) {
		points := []TrendPoint{
			{0, 95}, {1, 95}, {2, 95},
		}
		trend := ComputeTrend(points)
		assert.Equal(t, TrendStable, trend.Direction)
		assert.InDelta(t, 0.0, trend.Slope, 0.001)
		assert.InDelta(t, 0.0, trend.RSquared, 0.001)
	})

	t.Run("点数不足返回持平", func(t *testing.T) {
		trend := ComputeTrend([]TrendPoint{{0, 95}})
		assert.Equal(t, TrendStable, trend.Direction)
		assert.Equal(t, 1, trend.DataPoints)
	})

	t.Run("同一天多点无法回归", func(t *testing.T) {
		points := []TrendPoint{{0, 90}, {0, 95}}
		trend := ComputeTrend(points)
		assert.Equal(t, TrendStable, trend.Direction)
		assert.InDelta(t, 0.0, trend.Slope, 0.001)
	})
}

// TestAnalyzeMetric 回看窗口内的历史点回归并产出趋势指标
func TestAnalyzeMetric(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()
	factory := testutil.NewTestDataFactory(tdb.DB)

	config := DefaultConfig()
	config.MinTrendPoints = 3
	a := NewTrendAnalyzer(tdb.DB, config)

	t.Run("数据点不足返回nil", func(t *testing.T) {
		tdb.CleanDB()
		factory.CreateValidationMetric(nil,
			testutil.WithMetricName("volunteer_completeness"),
			testutil.WithMetricValue(90))

		metric, err := a.AnalyzeMetric(context.Background(), "volunteer_completeness", "")
		require.NoError(t, err)
		assert.Nil(t, metric)
	})

	t.Run("上升序列产出improving趋势", func(t *testing.T) {
		tdb.CleanDB()
		now := time.Now()
		for i, value := range []float64{90, 92, 94, 96} {
			factory.CreateValidationMetric(nil,
				testutil.WithMetricName("volunteer_completeness"),
				testutil.WithMetricValue(value),
				testutil.WithMetricTimestamp(now.AddDate(0, 0, i-3)))
		}

		metric, err := a.AnalyzeMetric(context.Background(), "volunteer_completeness", "volunteer")
		require.NoError(t, err)
		require.NotNil(t, metric)

		assert.Equal(t, "volunteer_completeness_trend", metric.MetricName)
		assert.Equal(t, TrendImproving, metric.TrendDirection)
		assert.InDelta(t, 96, metric.MetricValue, 0.001, "趋势指标取最新值")
		assert.InDelta(t, 90, metric.BaselineValue, 0.001)
		// (96-90)/90
		assert.InDelta(t, 6.67, metric.ChangePercentage, 0.01)
		assert.Nil(t, metric.RunID)
		assert.Greater(t, metric.TrendConfidence, 0.0)
	})

	t.Run("窗口外的历史点不参与", func(t *testing.T) {
		tdb.CleanDB()
		now := time.Now()
		// 窗口外2点 + 窗口内2点，不足最小点数
		for i, value := range []float64{50, 55} {
			factory.CreateValidationMetric(nil,
				testutil.WithMetricName("quality_score"),
				testutil.WithMetricValue(value),
				testutil.WithMetricTimestamp(now.AddDate(0, 0, -config.TrendWindowDays-5+i)))
		}
		for i, value := range []float64{88, 90} {
			factory.CreateValidationMetric(nil,
				testutil.WithMetricName("quality_score"),
				testutil.WithMetricValue(value),
				testutil.WithMetricTimestamp(now.AddDate(0, 0, i-1)))
		}

		metric, err := a.AnalyzeMetric(context.Background(), "quality_score", "")
		require.NoError(t, err)
		assert.Nil(t, metric)
	})
}

// TestAggregate 按周期桶做均值聚合
func TestAggregate(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()
	factory := testutil.NewTestDataFactory(tdb.DB)

	config := DefaultConfig()
	a := NewTrendAnalyzer(tdb.DB, config)

	day1 := time.Now().AddDate(0, 0, -2).Truncate(24 * time.Hour)
	day2 := day1.Add(24 * time.Hour)
	// 第一天两个点，第二天一个点
	factory.CreateValidationMetric(nil,
		testutil.WithMetricName("quality_score"),
		testutil.WithMetricValue(80),
		testutil.WithMetricTimestamp(day1.Add(2*time.Hour)))
	factory.CreateValidationMetric(nil,
		testutil.WithMetricName("quality_score"),
		testutil.WithMetricValue(90),
		testutil.WithMetricTimestamp(day1.Add(8*time.Hour)))
	factory.CreateValidationMetric(nil,
		testutil.WithMetricName("quality_score"),
		testutil.WithMetricValue(70),
		testutil.WithMetricTimestamp(day2.Add(3*time.Hour)))

	aggregated, err := a.Aggregate(context.Background(), "quality_score", "daily")
	require.NoError(t, err)
	require.Len(t, aggregated, 2)

	assert.InDelta(t, 85.0, aggregated[0].MetricValue, 0.001)
	assert.Equal(t, 2, aggregated[0].AggregationCount)
	assert.Equal(t, "mean", aggregated[0].AggregationType)
	assert.Equal(t, "daily", aggregated[0].AggregationPeriod)
	assert.InDelta(t, 70.0, aggregated[1].MetricValue, 0.001)

	empty, err := a.Aggregate(context.Background(), "unknown_metric", "daily")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

// TestPeriodDuration 周期名映射
func TestPeriodDuration(t *testing.T) {
	d, err := periodDuration("hourly")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)

	d, err = periodDuration("weekly")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	_, err = periodDuration("quarterly")
	assert.Error(t, err)
}
