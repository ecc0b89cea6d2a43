package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/taskdeck/internal/auth"
	"github.com/hitoshi/taskdeck/internal/metrics"
	"github.com/hitoshi/taskdeck/internal/middleware"
	"github.com/hitoshi/taskdeck/internal/subscribe"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     auth.Verifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// webhook
	WebhookService WebhookUserService
	WebhookSecret  string

	// ユーザー
	UserService UserServiceInterface

	// タスク
	TaskService TaskServiceInterface

	// 購読
	Engine            *subscribe.Engine
	HeartbeatInterval time.Duration

	// メトリクス
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Metrics → Logging → CORS → [認証ルートのみ] Auth → RateLimit(General)
//
// webhookルート、/healthz、/metricsは認証境界の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	var recorder MutationRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}

	webhookHandler := NewWebhookHandler(deps.WebhookService, deps.WebhookSecret)
	userHandler := NewUserHandler(deps.UserService, recorder)
	taskHandler := NewTaskHandler(deps.TaskService, recorder)
	subHandler := NewSubscribeHandler(deps.Engine, deps.UserService, deps.TaskService, deps.HeartbeatInterval)

	// --- 認証不要のルート ---

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.Gatherer != nil {
		r.Get("/metrics", metrics.Handler(deps.Gatherer).ServeHTTP)
	}

	// 外部IdPライフサイクルイベント（共有シークレット署名で保護）
	r.Post("/webhooks/identity", webhookHandler.HandleEvent)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		mutation := deps.RateLimiter.MutationMiddleware()

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Get("/me", userHandler.Me)
			r.Get("/{id}", userHandler.GetProfile)
			r.With(mutation).Patch("/{id}", userHandler.UpdateProfile)
		})

		// タスク管理
		r.Route("/api/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.ListTasks)
			r.With(mutation).Post("/", taskHandler.CreateTask)

			r.Route("/{id}", func(r chi.Router) {
				r.With(mutation).Patch("/", taskHandler.UpdateTask)
				r.With(mutation).Post("/toggle", taskHandler.ToggleTask)
				r.With(mutation).Delete("/", taskHandler.DeleteTask)
			})
		})

		// ライブクエリ購読（SSE）
		r.Get("/api/subscribe", subHandler.Stream)
	})

	return r
}
