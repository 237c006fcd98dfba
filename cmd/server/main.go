// Package main 是应用程序的入口点。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"ragchat-go/internal/config"
	"ragchat-go/internal/handler"
	"ragchat-go/internal/middleware"
	"ragchat-go/internal/model"
	"ragchat-go/internal/repository"
	"ragchat-go/internal/service"
	"ragchat-go/pkg/database"
	"ragchat-go/pkg/embedding"
	"ragchat-go/pkg/kafka"
	"ragchat-go/pkg/llm"
	"ragchat-go/pkg/log"
	"ragchat-go/pkg/storage"
	"ragchat-go/pkg/vectorstore"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、MinIO 与向量库。
	// 向量库索引的维度直接取自 embedding 配置，二者不可能漂移；
	// 维度类配置错误在这一步立即失败，不会带病启动。
	database.InitMySQL(cfg.MySQL.DSN)
	database.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	storageClient := storage.NewClient(cfg.MinIO)

	store, err := vectorstore.NewStore(cfg.Elasticsearch, cfg.Embedding.Dimensions, cfg.RAG.TopK)
	if err != nil {
		log.Fatal("向量库客户端初始化失败", err)
	}
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.Ping(startupCtx); err != nil {
		cancelStartup()
		log.Fatal("向量库连通性检查失败", err)
	}
	if err := store.EnsureIndex(startupCtx); err != nil {
		cancelStartup()
		log.Fatal("向量库索引初始化失败", err)
	}
	cancelStartup()
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	conversationRepo := repository.NewConversationRepository(database.RDB)
	documentRepo := repository.NewDocumentRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	ingestService := service.NewIngestService(
		embeddingClient, store, storageClient, documentRepo,
		cfg.Embedding.Model, kafka.ProduceIngestTask,
	)
	chatService := service.NewChatService(embeddingClient, store, llmClient, conversationRepo, cfg.RAG)

	// 6. 启动后台 Kafka 消费者处理异步入库任务
	go kafka.StartConsumer(cfg.Kafka, ingestService)

	// 7. 初始化导入 seeddata 目录中的样例文档（幂等，已入库则跳过）
	seedCtx, cancelSeed := context.WithCancel(context.Background())
	defer cancelSeed()
	go seedDocuments(seedCtx, "seeddata", ingestService, documentRepo)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	chatHandler := handler.NewChatHandler(chatService)
	documentHandler := handler.NewDocumentHandler(ingestService)
	healthHandler := handler.NewHealthHandler(store, cfg.LLM.APIKey != "")

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/chat", chatHandler.Chat)
		apiV1.GET("/health", healthHandler.Check)

		documents := apiV1.Group("/documents")
		{
			documents.POST("", documentHandler.Ingest)
			documents.POST("/async", documentHandler.IngestAsync)
			documents.GET("", documentHandler.List)
			documents.DELETE("/:id", documentHandler.Delete)
		}
	}
	// Chat 流式路由 (WebSocket)
	r.GET("/chat/stream", chatHandler.HandleStream)

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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}

// seedDocuments 扫描目录下的 JSON 文件并通过标准入库流程导入（幂等）。
// 每个文件是一个 Document 数组；已有台账记录的文档跳过。
func seedDocuments(ctx context.Context, dir string, ingestSvc service.IngestService, documentRepo repository.DocumentRepository) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("seedDocuments: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warnf("seedDocuments: 读取目录失败: %v", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("seedDocuments: 读取文件失败: %s, err=%v", path, err)
			continue
		}

		var docs []model.Document
		if err := json.Unmarshal(data, &docs); err != nil {
			log.Warnf("seedDocuments: 解析文件失败: %s, err=%v", path, err)
			continue
		}

		// 幂等检查：只导入没有台账记录的文档
		var pending []model.Document
		for _, doc := range docs {
			record, err := documentRepo.FindByID(doc.ID)
			if err != nil {
				log.Warnf("seedDocuments: 查询台账失败, id=%s, err=%v", doc.ID, err)
				continue
			}
			if record != nil {
				log.Infof("seedDocuments: 已存在，跳过: %s", doc.ID)
				continue
			}
			pending = append(pending, doc)
		}
		if len(pending) == 0 {
			continue
		}

		count, err := ingestSvc.Ingest(ctx, pending)
		if err != nil {
			log.Warnf("seedDocuments: 导入失败, file=%s, 已导入 %d 篇, err=%v", path, count, err)
			continue
		}
		log.Infof("seedDocuments: 导入完成: %s, 共 %d 篇文档", path, count)
	}
}
