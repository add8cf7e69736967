/*
 * @module service/metrics/prometheus
 * @description Prometheus运行指标，暴露校验运行次数、耗时、结果分布和质量评分
 * @architecture 分层架构 - 可观测层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 运行终结时由引擎上报 -> /metrics 端点暴露给抓取器
 * @rules 动态指标名先经过合法性校验再注册，非法名称丢弃并记日志
 * @dependencies github.com/prometheus/client_golang, github.com/prometheus/common
 * @refs service/validation/engine.go, main.go
 */

package metrics

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/model"

	"vms-validation-service/service/models"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validation_runs_total",
		Help: "校验运行总数，按运行类型和终态分类",
	}, []string{"run_type", "status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "validation_run_duration_seconds",
		Help:    "校验运行耗时分布",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"run_type"})

	resultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validation_results_total",
		Help: "校验结果总数，按严重级别分类",
	}, []string{"severity"})

	qualityScoreGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "validation_quality_score",
		Help: "最近一次运行的质量评分，0-100",
	})
)

// ObserveRun 在运行终结时上报运行级指标
func ObserveRun(run *models.ValidationRun) {
	if run == nil {
		return
	}
	runsTotal.WithLabelValues(run.RunType, run.Status).Inc()
	if run.Status == models.RunStatusCompleted {
		runDuration.WithLabelValues(run.RunType).Observe(run.ExecutionTimeSeconds)

		resultsTotal.WithLabelValues(models.SeverityInfo.String()).Add(float64(run.PassedChecks))
		resultsTotal.WithLabelValues(models.SeverityWarning.String()).Add(float64(run.WarningCount))
		resultsTotal.WithLabelValues(models.SeverityError.String()).Add(float64(run.ErrorCount))
		resultsTotal.WithLabelValues(models.SeverityCritical.String()).Add(float64(run.CriticalIssues))
	}
}

// ObserveQualityScore 上报最近一次运行的质量评分
func ObserveQualityScore(score float64) {
	qualityScoreGauge.Set(score)
}

// IsValidMetricName 校验动态指标名是否符合Prometheus命名规则
func IsValidMetricName(name string) bool {
	valid := model.IsValidMetricName(model.LabelValue(name))
	if !valid {
		slog.Warn("指标名不符合命名规则，已丢弃", "metric_name", name)
	}
	return valid
}
