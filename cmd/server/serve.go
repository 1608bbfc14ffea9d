package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"smart-notebook-go/internal/handler"
	"smart-notebook-go/internal/middleware"
	"smart-notebook-go/pkg/kafka"
	"smart-notebook-go/pkg/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the document indexing consumer",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := bootstrap()
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目

	a, err := newApp(cfg)
	if err != nil {
		log.Error("初始化依赖失败", err)
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 内存索引不持久化，启动时从数据库重新加载
	if cfg.VectorStore.Backend == "memory" {
		n, err := a.adminService.WarmIndex(ctx)
		if err != nil {
			return err
		}
		log.Infof("内存向量索引已加载 %d 条向量", n)
	}

	// 7. 启动后台 Kafka 消费者
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		kafka.NewConsumer(cfg.Kafka, a.processor, a.taskState).Run(ctx)
	}()

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), middleware.Metrics(), middleware.CORS(cfg.Server.CORSOrigins), gin.Recovery())
	registerRoutes(r, a)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止消费者并等待当前任务退出
	cancel()
	<-consumerDone
	log.Info("服务已优雅关闭")
	return nil
}

// registerRoutes 注册全部 HTTP 路由。
func registerRoutes(r *gin.Engine, a *app) {
	notebookHandler := handler.NewNotebookHandler(a.notebookService)
	documentHandler := handler.NewDocumentHandler(a.documentService)
	uploadHandler := handler.NewUploadHandler(a.uploadService, a.cfg.Server.MaxUploadBytes)
	chatHandler := handler.NewChatHandler(a.chatService, a.jwt)
	conversationHandler := handler.NewConversationHandler(a.conversationService)
	searchHandler := handler.NewSearchHandler(a.searchService, a.documentService)
	studioHandler := handler.NewStudioHandler(a.studioService, a.prompts)
	adminHandler := handler.NewAdminHandler(a.adminService)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	// Chat 路由 (WebSocket)，token 放在路径中
	r.GET("/chat/ws/:token", chatHandler.Handle)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(a.jwt))
	{
		apiV1.GET("/users/me", handler.NewUserHandler().Me)
		apiV1.GET("/upload/supported-types", uploadHandler.GetSupportedFileTypes)

		notebooks := apiV1.Group("/notebooks")
		{
			notebooks.POST("", notebookHandler.Create)
			notebooks.GET("", notebookHandler.List)
			notebooks.DELETE("/:id", notebookHandler.Delete)
			notebooks.GET("/:id/summary", notebookHandler.Summary)
			notebooks.GET("/:id/documents", documentHandler.List)
			notebooks.POST("/:id/documents", uploadHandler.Upload)
			notebooks.POST("/:id/chat", chatHandler.Chat)
			notebooks.GET("/:id/messages", conversationHandler.GetConversations)
			notebooks.GET("/:id/search", searchHandler.Search)

			studio := notebooks.Group("/:id/studio")
			{
				studio.POST("/mindmap", studioHandler.MindMap)
				studio.POST("/flashcards", studioHandler.Flashcards)
				studio.POST("/quiz", studioHandler.Quiz)
				studio.POST("/report", studioHandler.Report)
				studio.POST("/audio", studioHandler.Audio)
				studio.POST("/infographic", studioHandler.Infographic)
			}
		}
		apiV1.GET("/studio/report-types", studioHandler.ReportTypes)

		documents := apiV1.Group("/documents")
		{
			documents.DELETE("/:id", documentHandler.Delete)
			documents.POST("/:id/reindex", documentHandler.Reindex)
			documents.GET("/:id/download", documentHandler.Download)
		}

		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin := apiV1.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware())
		{
			admin.POST("/sweep", adminHandler.Sweep)
			admin.POST("/warm-index", adminHandler.WarmIndex)
		}
	}
}
