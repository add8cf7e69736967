/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs service/validation/engine.go
 */

package api

import (
	"vms-validation-service/api/controllers"
	apimiddleware "vms-validation-service/api/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-API-Key", "X-User-Name"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API Key鉴权，环境变量未配置时关闭
	if auth := apimiddleware.NewAPIKeyAuthMiddleware(); auth != nil {
		r.Use(auth.Middleware)
	}

	// 健康检查
	healthController := controllers.NewHealthController()
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// 校验运行管理
	r.Route("/validation", func(r chi.Router) {
		validationController := controllers.NewValidationController()
		metricsController := controllers.NewMetricsController()

		// 发起校验
		r.Post("/fast", validationController.RunFast)
		r.Post("/slow", validationController.RunSlow)
		r.Post("/comprehensive/{entity_type}", validationController.RunComprehensive)
		r.Post("/custom/{entity_type}", validationController.RunScoped)

		// 运行查询与控制
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", validationController.GetRecentRuns)
			r.Get("/{id}", validationController.GetRun)
			r.Get("/{id}/results", validationController.GetResults)
			r.Post("/{id}/cancel", validationController.CancelRun)
		})
		r.Get("/active", validationController.GetActiveRuns)

		// 质量指标与趋势
		r.Route("/metrics", func(r chi.Router) {
			r.Get("/{metric_name}/trend", metricsController.GetMetricTrend)
			r.Get("/{metric_name}/aggregate", metricsController.GetMetricAggregate)
		})

		// 规则模板
		r.Get("/rule-templates", metricsController.GetRuleTemplates)
	})
}
