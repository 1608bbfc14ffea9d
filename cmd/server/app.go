package main

import (
	"fmt"
	"time"

	"smart-notebook-go/internal/config"
	"smart-notebook-go/internal/model"
	"smart-notebook-go/internal/pipeline"
	"smart-notebook-go/internal/prompt"
	"smart-notebook-go/internal/repository"
	"smart-notebook-go/internal/service"
	"smart-notebook-go/internal/vectorstore"
	"smart-notebook-go/pkg/database"
	"smart-notebook-go/pkg/embedding"
	"smart-notebook-go/pkg/es"
	"smart-notebook-go/pkg/kafka"
	"smart-notebook-go/pkg/llm"
	"smart-notebook-go/pkg/log"
	"smart-notebook-go/pkg/metrics"
	"smart-notebook-go/pkg/provider"
	"smart-notebook-go/pkg/speech"
	"smart-notebook-go/pkg/storage"
	"smart-notebook-go/pkg/tika"
	"smart-notebook-go/pkg/token"
)

// app 持有进程内所有已初始化的依赖。
type app struct {
	cfg      config.Config
	prompts  *prompt.Catalog
	store    vectorstore.Store
	producer *kafka.Producer
	jwt      *token.JWTManager

	notebookRepo repository.NotebookRepository
	docRepo      repository.DocumentRepository
	chunkRepo    repository.ChunkRepository
	embRepo      repository.EmbeddingRepository
	chatRepo     repository.ChatRepository
	taskState    repository.TaskStateRepository

	processor           *pipeline.Processor
	notebookService     service.NotebookService
	documentService     service.DocumentService
	uploadService       service.UploadService
	searchService       service.SearchService
	chatService         service.ChatService
	conversationService service.ConversationService
	studioService       service.StudioService
	adminService        service.AdminService
}

// bootstrap 加载配置并初始化日志，所有子命令都先调用它。
func bootstrap() config.Config {
	// 1. 初始化配置
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	log.Info("日志记录器初始化成功")
	return cfg
}

// openDatabase 连接关系库并迁移全部模型。
func openDatabase(cfg config.Config) error {
	database.InitDB(cfg.Database.Driver, cfg.Database.DSN)
	return database.AutoMigrate(database.DB,
		&model.Notebook{}, &model.Document{}, &model.Chunk{}, &model.EmbeddingRecord{}, &model.ChatMessage{},
	)
}

// openVectorStore 按 vector_store.backend 选择向量索引后端。
func openVectorStore(cfg config.Config) (vectorstore.Store, error) {
	switch cfg.VectorStore.Backend {
	case "memory":
		return vectorstore.NewMemory(), nil
	case "elasticsearch":
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return nil, fmt.Errorf("创建 Elasticsearch 客户端失败: %w", err)
		}
		return es.NewStore(client, cfg.Elasticsearch.IndexName, cfg.Embedding.Dimensions)
	case "pgvector":
		if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "postgresql" {
			return nil, fmt.Errorf("pgvector backend requires the postgres driver, got %q", cfg.Database.Driver)
		}
		return vectorstore.NewPGVector(database.DB)
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.VectorStore.Backend)
	}
}

// newApp 初始化数据库、Redis、MinIO、Kafka、模型客户端以及全部服务。
func newApp(cfg config.Config) (*app, error) {
	// 3. 初始化数据库和 Redis
	if err := openDatabase(cfg); err != nil {
		return nil, err
	}
	database.InitRedis(cfg.Database.Redis)
	blobs, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		return nil, err
	}
	store, err := openVectorStore(cfg)
	if err != nil {
		return nil, err
	}
	log.Infof("向量索引后端: %s", cfg.VectorStore.Backend)

	prompts := prompt.Default()
	if cfg.Studio.PromptsPath != "" {
		if prompts, err = prompt.Load(cfg.Studio.PromptsPath); err != nil {
			return nil, err
		}
	}
	metrics.Register()

	a := &app{
		cfg:      cfg,
		prompts:  prompts,
		store:    store,
		producer: kafka.NewProducer(cfg.Kafka),
		jwt:      token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours),

		notebookRepo: repository.NewNotebookRepository(database.DB),
		docRepo:      repository.NewDocumentRepository(database.DB),
		chunkRepo:    repository.NewChunkRepository(database.DB),
		embRepo:      repository.NewEmbeddingRepository(database.DB),
		chatRepo:     repository.NewChatRepository(database.DB),
		taskState:    repository.NewTaskStateRepository(database.RDB),
	}

	// 4. 初始化模型客户端
	limits := provider.NewLimits(cfg.Provider)
	var embedder embedding.Client = embedding.NewClient(cfg.Embedding, limits)
	if cfg.Embedding.CacheTTL > 0 {
		embedder = embedding.NewCachedClient(embedder, database.RDB, cfg.Embedding.Model, time.Duration(cfg.Embedding.CacheTTL)*time.Hour)
	}
	llmClient := llm.NewClient(cfg.LLM, limits)
	speechClient := speech.NewClient(cfg.Speech, limits)
	imageClient := llm.NewImageClient(cfg.Image, limits)
	tikaClient := tika.NewClient(cfg.Tika)

	// 5. 初始化 Service (依赖注入)
	a.notebookService = service.NewNotebookService(a.notebookRepo, a.docRepo, store, blobs)
	a.documentService = service.NewDocumentService(a.notebookRepo, a.docRepo, store, blobs, a.producer)
	a.uploadService = service.NewUploadService(a.notebookRepo, a.docRepo, blobs, a.producer, cfg.Server.MaxUploadBytes)
	a.searchService = service.NewSearchService(embedder, store, cfg.VectorStore, cfg.Chat)
	a.chatService = service.NewChatService(a.searchService, llmClient, a.notebookRepo, a.docRepo, a.chatRepo, prompts, cfg.Chat, cfg.LLM.Generation)
	a.conversationService = service.NewConversationService(a.notebookRepo, a.chatRepo)
	a.studioService = service.NewStudioService(a.notebookRepo, a.docRepo, a.embRepo, llmClient, speechClient, imageClient,
		prompts, cfg.Studio, cfg.Speech.Voice, cfg.LLM.Generation)
	a.adminService = service.NewAdminService(a.chunkRepo, a.embRepo, store)

	// 6. 初始化文件处理管道 (Processor)
	a.processor = pipeline.NewProcessor(
		tikaClient,
		embedder,
		llmClient,
		blobs,
		a.taskState,
		a.docRepo,
		a.chunkRepo,
		a.embRepo,
		store,
		prompts,
		cfg.Indexer,
		cfg.Embedding.Model,
	)
	return a, nil
}

func (a *app) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
}
