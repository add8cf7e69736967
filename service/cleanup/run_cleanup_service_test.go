/*
 * @module service/cleanup/run_cleanup_service_test
 * @description 运行记录保留清理服务单元测试
 * @architecture 测试层 - 单元测试
 */

package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-validation-service/service/models"
	"vms-validation-service/testutil"
)

// TestCleanupExpiredRuns 过期运行及其关联结果和指标被删除，趋势汇总指标保留
func TestCleanupExpiredRuns(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()
	factory := testutil.NewTestDataFactory(tdb.DB)

	expired := factory.CreateValidationRun(
		testutil.WithRunStatus(models.RunStatusCompleted),
		testutil.WithRunStartedAt(time.Now().AddDate(0, 0, -100)))
	factory.CreateValidationResult(expired.ID)
	factory.CreateValidationMetric(&expired.ID)

	recent := factory.CreateValidationRun(
		testutil.WithRunStatus(models.RunStatusCompleted),
		testutil.WithRunStartedAt(time.Now().AddDate(0, 0, -5)))
	factory.CreateValidationResult(recent.ID)
	factory.CreateValidationMetric(&recent.ID)

	// 不关联运行的趋势快照指标
	factory.CreateValidationMetric(nil,
		testutil.WithMetricName("trend_quality_score"),
		testutil.WithAggregationType("snapshot"),
		testutil.WithMetricTimestamp(time.Now().AddDate(0, 0, -100)))

	s := NewRunCleanupService(tdb.DB, 90, nil)
	deleted, err := s.CleanupExpiredRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var runCount int64
	tdb.DB.Model(&models.ValidationRun{}).Count(&runCount)
	assert.Equal(t, int64(1), runCount)

	var remaining models.ValidationRun
	require.NoError(t, tdb.DB.First(&remaining, "id = ?", recent.ID).Error)

	var resultCount int64
	tdb.DB.Model(&models.ValidationResult{}).Count(&resultCount)
	assert.Equal(t, int64(1), resultCount, "过期运行的结果被删除")

	var metricCount int64
	tdb.DB.Model(&models.ValidationMetric{}).Count(&metricCount)
	assert.Equal(t, int64(2), metricCount, "趋势快照指标不随运行清理")

	var orphanMetric models.ValidationMetric
	require.NoError(t, tdb.DB.First(&orphanMetric, "metric_name = ?", "trend_quality_score").Error)
	assert.Nil(t, orphanMetric.RunID)
}

// TestCleanupNoExpiredRuns 没有过期运行时不动任何数据
func TestCleanupNoExpiredRuns(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()
	factory := testutil.NewTestDataFactory(tdb.DB)

	run := factory.CreateValidationRun(testutil.WithRunStartedAt(time.Now().AddDate(0, 0, -1)))
	factory.CreateValidationResult(run.ID)

	s := NewRunCleanupService(tdb.DB, 90, nil)
	deleted, err := s.CleanupExpiredRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	var resultCount int64
	tdb.DB.Model(&models.ValidationResult{}).Count(&resultCount)
	assert.Equal(t, int64(1), resultCount)
}

// TestScheduledCleanupLifecycle 重复启动拒绝，停止后可安全重复停止
func TestScheduledCleanupLifecycle(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	s := NewRunCleanupService(tdb.DB, 90, nil)
	require.NoError(t, s.StartScheduledCleanup())
	assert.Error(t, s.StartScheduledCleanup(), "重复启动报错")

	s.StopScheduledCleanup()
	s.StopScheduledCleanup()
}
