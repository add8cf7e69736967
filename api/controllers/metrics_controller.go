/*
 * @module api/controllers/metrics_controller
 * @description 质量指标控制器，提供趋势分析、周期聚合与规则模板查询接口
 * @architecture MVC架构 - 控制器层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow HTTP请求 -> 趋势分析器查询历史指标 -> 返回趋势或聚合数据
 * @rules 趋势分析数据点不足时返回空结果而非错误；聚合周期限定hourly/daily/weekly/monthly
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render, service/validation
 * @refs api/routes.go
 */

package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"vms-validation-service/service"
	"vms-validation-service/service/metrics"
	"vms-validation-service/service/models"
	"vms-validation-service/service/validation"
)

// MetricsController 质量指标控制器
type MetricsController struct {
	analyzer *validation.TrendAnalyzer
}

// NewMetricsController 创建质量指标控制器实例
func NewMetricsController() *MetricsController {
	return &MetricsController{analyzer: service.GlobalTrendAnalyzer}
}

// GetMetricTrend 查询指标趋势
// @Summary 查询指标趋势
// @Description 基于历史快照做线性回归，返回趋势指标；数据点不足时data为空
// @Tags 质量指标
// @Param metric_name path string true "指标名称"
// @Param entity_type query string false "实体类型过滤"
// @Produce json
// @Success 200 {object} APIResponse
// @Router /validation/metrics/{metric_name}/trend [get]
func (c *MetricsController) GetMetricTrend(w http.ResponseWriter, r *http.Request) {
	metricName := chi.URLParam(r, "metric_name")
	if !metrics.IsValidMetricName(metricName) {
		render.JSON(w, r, BadRequestResponse("指标名称无效", nil))
		return
	}

	trend, err := c.analyzer.AnalyzeMetric(r.Context(), metricName, r.URL.Query().Get("entity_type"))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("趋势分析失败", err))
		return
	}
	if trend == nil {
		render.JSON(w, r, SuccessResponse("历史数据点不足，无法分析趋势", nil))
		return
	}
	render.JSON(w, r, SuccessResponse("趋势分析成功", trend))
}

// GetMetricAggregate 查询指标周期聚合
// @Summary 查询指标周期聚合
// @Tags 质量指标
// @Param metric_name path string true "指标名称"
// @Param period query string false "聚合周期，默认daily"
// @Produce json
// @Success 200 {object} APIResponse
// @Router /validation/metrics/{metric_name}/aggregate [get]
func (c *MetricsController) GetMetricAggregate(w http.ResponseWriter, r *http.Request) {
	metricName := chi.URLParam(r, "metric_name")
	if !metrics.IsValidMetricName(metricName) {
		render.JSON(w, r, BadRequestResponse("指标名称无效", nil))
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = "daily"
	}
	switch period {
	case "hourly", "daily", "weekly", "monthly":
	default:
		render.JSON(w, r, BadRequestResponse("聚合周期无效", nil))
		return
	}

	aggregates, err := c.analyzer.Aggregate(r.Context(), metricName, period)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("指标聚合失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("指标聚合成功", aggregates))
}

// GetRuleTemplates 查询校验规则模板列表
// @Summary 查询规则模板
// @Tags 质量指标
// @Param enabled query string false "仅返回启用模板，传true生效"
// @Produce json
// @Success 200 {object} APIResponse
// @Router /validation/rule-templates [get]
func (c *MetricsController) GetRuleTemplates(w http.ResponseWriter, r *http.Request) {
	var templates []models.ValidationRuleTemplate
	query := service.DB.WithContext(r.Context()).Order("name ASC")
	if r.URL.Query().Get("enabled") == "true" {
		query = query.Where("is_enabled = ?", true)
	}
	if err := query.Find(&templates).Error; err != nil {
		render.JSON(w, r, InternalErrorResponse("查询规则模板失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询规则模板成功", templates))
}
