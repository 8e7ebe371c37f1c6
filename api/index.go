package handler

import (
	"net/http"
	"time"

	"board-collab-backend/pkg/access"
	"board-collab-backend/pkg/cache"
	"board-collab-backend/pkg/config"
	"board-collab-backend/pkg/database"
	"board-collab-backend/pkg/handlers"
	"board-collab-backend/pkg/invite"
	customMiddleware "board-collab-backend/pkg/middleware"
	"board-collab-backend/pkg/notify"
	"board-collab-backend/pkg/position"
	"board-collab-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler 是serverless函数的入口点
// 采用"单体路由模式"，所有API端点集中在一个Chi路由器中管理
func Handler(w http.ResponseWriter, r *http.Request) {
	// 加载配置
	cfg := config.GetCached()

	// 验证配置
	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}

	// 获取数据库连接（单例连接池）
	db := database.GetDatabase(database.DatabaseConfig{
		UseLocalDB:  cfg.UseLocalDB,
		PostgresDSN: cfg.PostgresDSN,
		Debug:       cfg.Debug,
	})
	// 注意：连接由连接池管理，无需手动关闭

	// 创建Chi路由器
	router := chi.NewRouter()

	// 设置全局中间件
	setupMiddleware(router, cfg)

	// 设置路由
	setupRoutes(router, cfg, db)

	// 将请求传递给Chi路由器处理
	router.ServeHTTP(w, r)
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config) {
	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.Logger(cfg))
	router.Use(middleware.Recoverer)

	// CORS中间件
	router.Use(customMiddleware.CORS(cfg))

	// 超时中间件
	router.Use(middleware.Timeout(25 * time.Second))

	// 压缩中间件
	router.Use(middleware.Compress(5))

	// 开发环境额外中间件
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, cfg *config.Config, db database.DatabaseInterface) {
	// 组装核心组件：排序引擎、访问解析器、邀请协调器
	engine := position.NewEngine(cfg.PositionGap)
	resolver := access.NewResolver(access.NewLookup(db), db, cfg.AdminBypass)

	inviteTTL := time.Duration(cfg.InviteTTLSeconds) * time.Second
	inviteCache := cache.NewMemoryTTLCache(4096, inviteTTL)
	broker := invite.NewBroker(db, inviteCache, notify.NewConsoleSender(), inviteTTL, cfg.BaseURL)

	// 创建处理器
	authHandler := handlers.NewAuthHandler(cfg, db)
	workspacesHandler := handlers.NewWorkspacesHandler(cfg, db, resolver)
	boardsHandler := handlers.NewBoardsHandler(cfg, db, resolver, broker)
	invitationsHandler := handlers.NewInvitationsHandler(cfg, broker)
	listsHandler := handlers.NewListsHandler(cfg, db, resolver, engine)
	cardsHandler := handlers.NewCardsHandler(cfg, db, resolver, engine)

	// 健康检查端点
	router.Get("/", authHandler.HealthCheck)

	// 数据库连接池状态端点（调试用）
	if cfg.IsDevelopment() {
		router.Get("/debug/db-pool", func(w http.ResponseWriter, r *http.Request) {
			utils.WriteSuccessResponse(w, database.GetConnectionStats())
		})
	}

	// API路由组
	router.Route("/api", func(r chi.Router) {
		// 公开路由（不需要认证）
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.RefreshToken)
		})

		// 邀请验证是公开路由：收到链接的人在登录前就能看到邀请内容
		r.Get("/invitations/{token}", invitationsHandler.Verify)

		// 需要认证的路由
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.AuthMiddleware(cfg))

			r.Get("/me", authHandler.Me)

			// Workspaces
			r.Route("/workspaces", func(r chi.Router) {
				r.Get("/", workspacesHandler.ListMine)
				r.Post("/", workspacesHandler.Create)
				r.Get("/{id}", workspacesHandler.Get)
				r.Get("/{id}/members", workspacesHandler.ListMembers)
				r.Post("/{id}/members", workspacesHandler.AddMember)
				r.Post("/{id}/respond", workspacesHandler.RespondMembership)
				r.Get("/{id}/boards", boardsHandler.ListByWorkspace)
				r.Post("/{id}/boards", boardsHandler.Create)
			})

			// Boards
			r.Route("/boards", func(r chi.Router) {
				r.Get("/{id}", boardsHandler.Get)
				r.Get("/{id}/members", boardsHandler.ListMembers)
				r.Put("/{id}/members/{userID}", boardsHandler.UpdateMember)
				r.Post("/{id}/invitations", boardsHandler.Invite)
				r.Get("/{id}/invitations", boardsHandler.ListInvitations)
				r.Post("/{id}/invite-link", boardsHandler.RotateInviteLink)
				r.Delete("/{id}/invite-link", boardsHandler.RevokeInviteLink)
				r.Post("/join/{token}", boardsHandler.JoinByLink)
				r.Get("/{id}/lists", listsHandler.ListByBoard)
				r.Post("/{id}/lists", listsHandler.Create)
			})

			// Lists & Cards
			r.Route("/lists", func(r chi.Router) {
				r.Put("/{id}/position", listsHandler.Reorder)
				r.Get("/{id}/cards", cardsHandler.ListByList)
				r.Post("/{id}/cards", cardsHandler.Create)
			})
			r.Route("/cards", func(r chi.Router) {
				r.Get("/{id}", cardsHandler.Get)
				r.Put("/{id}/position", cardsHandler.Move)
			})

			// 单次邀请的接受（需要登录）
			r.Post("/invitations/{token}/accept", invitationsHandler.Accept)
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, "Endpoint not found")
	})
}
