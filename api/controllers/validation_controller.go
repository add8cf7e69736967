/*
 * @module api/controllers/validation_controller
 * @description 校验运行控制器，提供发起、查询、取消校验运行的REST接口
 * @architecture MVC架构 - 控制器层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow HTTP请求 -> 引擎同步执行运行 -> 返回运行汇总
 * @rules 运行同步执行，响应即包含终态汇总；结果查询支持按级别和实体类型过滤
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render, service/validation
 * @refs api/routes.go
 */

package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"vms-validation-service/service"
	"vms-validation-service/service/models"
	"vms-validation-service/service/validation"
)

// ValidationController 校验运行控制器
type ValidationController struct {
	engine *validation.Engine
}

// NewValidationController 创建校验运行控制器实例
func NewValidationController() *ValidationController {
	return &ValidationController{engine: service.GlobalEngine}
}

// requestUser 从请求头提取调用方标识
func requestUser(r *http.Request) string {
	if user := r.Header.Get("X-User-Name"); user != "" {
		return user
	}
	return "api"
}

// RunFast 发起快速校验
// @Summary 发起快速校验
// @Description 仅执行记录数量比对，同步返回运行汇总
// @Tags 校验运行
// @Produce json
// @Success 200 {object} APIResponse
// @Router /validation/fast [post]
func (c *ValidationController) RunFast(w http.ResponseWriter, r *http.Request) {
	run, err := c.engine.RunFast(r.Context(), requestUser(r))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("快速校验执行失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("快速校验完成", run))
}

// RunSlow 发起完整校验
// @Summary 发起完整校验
// @Description 按固定顺序执行全部五个校验器，同步返回运行汇总
// @Tags 校验运行
// @Produce json
// @Success 200 {object} APIResponse
// @Router /validation/slow [post]
func (c *ValidationController) RunSlow(w http.ResponseWriter, r *http.Request) {
	run, err := c.engine.RunSlow(r.Context(), requestUser(r))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("完整校验执行失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("完整校验完成", run))
}

// RunComprehensive 对单个实体类型发起综合校验
// @Summary 发起单实体综合校验
// @Tags 校验运行
// @Param entity_type path string true "实体类型"
// @Produce json
// @Success 200 {object} APIResponse
// @Router /validation/comprehensive/{entity_type} [post]
func (c *ValidationController) RunComprehensive(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entity_type")
	if entityType == "" {
		render.JSON(w, r, BadRequestResponse("缺少实体类型参数", nil))
		return
	}

	run, err := c.engine.RunComprehensive(r.Context(), entityType, requestUser(r))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("综合校验执行失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("综合校验完成", run))
}

// RunScoped 对单个实体类型发起指定校验器子集的定制校验
// @Summary 发起单实体定制校验
// @Description validators 参数为逗号分隔的校验类型名称 (count/completeness/data_type/relationship/business_logic)
// @Tags 校验运行
// @Param entity_type path string true "实体类型"
// @Param validators query string true "校验类型名称，逗号分隔"
// @Produce json
// @Success 200 {object} APIResponse
// @Router /validation/custom/{entity_type} [post]
func (c *ValidationController) RunScoped(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entity_type")
	if entityType == "" {
		render.JSON(w, r, BadRequestResponse("缺少实体类型参数", nil))
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("validators"))
	if raw == "" {
		render.JSON(w, r, BadRequestResponse("缺少validators参数", nil))
		return
	}
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	run, err := c.engine.RunScoped(r.Context(), entityType, names, requestUser(r))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("定制校验执行失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("定制校验完成", run))
}

// GetRun 查询单个运行
// @Summary 查询校验运行
// @Tags 校验运行
// @Param id path string true "运行ID"
// @Produce json
// @Success 200 {object} APIResponse
// @Router /validation/runs/{id} [get]
func (c *ValidationController) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	run, err := c.engine.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, validation.ErrRunNotFound) {
			render.JSON(w, r, NotFoundResponse("校验运行不存在"))
			return
		}
		render.JSON(w, r, InternalErrorResponse("查询校验运行失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询校验运行成功", run))
}

// GetRecentRuns 查询最近运行列表
// @Summary 查询最近校验运行
// @Tags 校验运行
// @Param limit query int false "返回条数，默认10"
// @Produce json
// @Success 200 {object} APIResponse
// @Router /validation/runs [get]
func (c *ValidationController) GetRecentRuns(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := c.engine.GetRecentRuns(r.Context(), limit)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询最近运行失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询最近运行成功", runs))
}

// GetResults 查询运行的结果列表，支持按级别和实体类型过滤
// @Summary 查询校验结果
// @Tags 校验运行
// @Param id path string true "运行ID"
// @Param severity query string false "严重级别过滤"
// @Param entity_type query string false "实体类型过滤"
// @Produce json
// @Success 200 {object} APIResponse
// @Router /validation/runs/{id}/results [get]
func (c *ValidationController) GetResults(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	var severity *models.Severity
	if severityStr := r.URL.Query().Get("severity"); severityStr != "" {
		parsed, err := models.ParseSeverity(severityStr)
		if err != nil {
			render.JSON(w, r, BadRequestResponse("严重级别参数无效", err))
			return
		}
		severity = &parsed
	}
	entityType := r.URL.Query().Get("entity_type")

	results, err := c.engine.GetResults(r.Context(), runID, severity, entityType)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询校验结果失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询校验结果成功", results))
}

// CancelRun 取消活跃运行
// @Summary 取消校验运行
// @Description 标记活跃运行为取消，不打断正在执行的校验器
// @Tags 校验运行
// @Param id path string true "运行ID"
// @Produce json
// @Success 200 {object} APIResponse
// @Router /validation/runs/{id}/cancel [post]
func (c *ValidationController) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	if err := c.engine.CancelRun(r.Context(), runID); err != nil {
		if errors.Is(err, validation.ErrRunNotActive) {
			render.JSON(w, r, NotFoundResponse("校验运行不在执行中"))
			return
		}
		render.JSON(w, r, InternalErrorResponse("取消校验运行失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("校验运行已标记取消", nil))
}

// GetActiveRuns 查询当前活跃运行ID
// @Summary 查询活跃校验运行
// @Tags 校验运行
// @Produce json
// @Success 200 {object} APIResponse
// @Router /validation/active [get]
func (c *ValidationController) GetActiveRuns(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, SuccessResponse("查询活跃运行成功", c.engine.ActiveRunIDs()))
}
