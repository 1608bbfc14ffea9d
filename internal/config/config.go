// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Provider      ProviderConfig      `mapstructure:"provider"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Speech        SpeechConfig        `mapstructure:"speech"`
	Image         ImageConfig         `mapstructure:"image"`
	VectorStore   VectorStoreConfig   `mapstructure:"vector_store"`
	Indexer       IndexerConfig       `mapstructure:"indexer"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Studio        StudioConfig        `mapstructure:"studio"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	Driver string      `mapstructure:"driver"` // mysql | postgres | sqlite
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// ProviderConfig 是所有模型调用（embedding / llm / speech / image）共享的限制。
type ProviderConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	CacheTTL   int    `mapstructure:"cache_ttl_hours"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// SpeechConfig 存储语音合成相关的配置。
type SpeechConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Voice      string `mapstructure:"voice"`
	SampleRate int    `mapstructure:"sample_rate"`
}

// ImageConfig 存储信息图生成相关的配置。
type ImageConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	Size    string `mapstructure:"size"`
}

// VectorStoreConfig 选择向量索引后端并配置检索参数。
type VectorStoreConfig struct {
	Backend   string  `mapstructure:"backend"` // memory | elasticsearch | pgvector
	Threshold float64 `mapstructure:"threshold"`
	TopK      int     `mapstructure:"top_k"`
}

// IndexerConfig 配置文档索引流程。
type IndexerConfig struct {
	ChunkSize        int `mapstructure:"chunk_size"`
	ChunkOverlap     int `mapstructure:"chunk_overlap"`
	EmbedConcurrency int `mapstructure:"embed_concurrency"`
	SummaryMaxChars  int `mapstructure:"summary_max_chars"`
	MaxTags          int `mapstructure:"max_tags"`
}

// ChatConfig 配置问答编排。
type ChatConfig struct {
	HistoryTurns  int `mapstructure:"history_turns"`
	ExcerptChars  int `mapstructure:"excerpt_chars"`
	OverviewLimit int `mapstructure:"overview_limit"`
}

// StudioConfig 配置各类学习产物的内容上限。
type StudioConfig struct {
	MindMapContentChars int    `mapstructure:"mindmap_content_chars"`
	MindMapSampleChunks int    `mapstructure:"mindmap_sample_chunks"`
	ReportRowChars      int    `mapstructure:"report_row_chars"`
	ReportContentChars  int    `mapstructure:"report_content_chars"`
	AudioContentChars   int    `mapstructure:"audio_content_chars"`
	AudioSampleRows     int    `mapstructure:"audio_sample_rows"`
	StudyContentChars   int    `mapstructure:"study_content_chars"`
	StudySampleChunks   int    `mapstructure:"study_sample_chunks"`
	PromptsPath         string `mapstructure:"prompts_path"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
// 同目录或工作目录下的 .env 会先被加载，环境变量优先于 YAML。
func Init(configPath string) {
	_ = godotenv.Load()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
	Conf.ApplyDefaults()
}

// ApplyDefaults 为未配置（零值）的键填充默认值。
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8081"
	}
	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = 50 << 20
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "smart-notebook-indexer"
	}
	if c.Provider.TimeoutSeconds <= 0 {
		c.Provider.TimeoutSeconds = 60
	}
	if c.Speech.Voice == "" {
		c.Speech.Voice = "alloy"
	}
	if c.Speech.SampleRate <= 0 {
		c.Speech.SampleRate = 24000
	}
	if c.Image.Size == "" {
		c.Image.Size = "1536x1024"
	}
	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = "memory"
	}
	if c.VectorStore.Threshold == 0 {
		c.VectorStore.Threshold = 0.3
	}
	if c.VectorStore.TopK <= 0 {
		c.VectorStore.TopK = 8
	}
	if c.Indexer.ChunkSize <= 0 {
		c.Indexer.ChunkSize = 1000
	}
	if c.Indexer.ChunkOverlap < 0 || c.Indexer.ChunkOverlap >= c.Indexer.ChunkSize {
		c.Indexer.ChunkOverlap = 0
	}
	if c.Indexer.EmbedConcurrency <= 0 {
		c.Indexer.EmbedConcurrency = 4
	}
	if c.Indexer.SummaryMaxChars <= 0 {
		c.Indexer.SummaryMaxChars = 15000
	}
	if c.Indexer.MaxTags <= 0 {
		c.Indexer.MaxTags = 8
	}
	if c.Chat.HistoryTurns <= 0 {
		c.Chat.HistoryTurns = 6
	}
	if c.Chat.ExcerptChars <= 0 {
		c.Chat.ExcerptChars = 150
	}
	if c.Chat.OverviewLimit <= 0 {
		c.Chat.OverviewLimit = 5
	}
	if c.Studio.MindMapContentChars <= 0 {
		c.Studio.MindMapContentChars = 8000
	}
	if c.Studio.MindMapSampleChunks <= 0 {
		c.Studio.MindMapSampleChunks = 10
	}
	if c.Studio.ReportRowChars <= 0 {
		c.Studio.ReportRowChars = 2000
	}
	if c.Studio.ReportContentChars <= 0 {
		c.Studio.ReportContentChars = 150000
	}
	if c.Studio.AudioContentChars <= 0 {
		c.Studio.AudioContentChars = 12000
	}
	if c.Studio.AudioSampleRows <= 0 {
		c.Studio.AudioSampleRows = 20
	}
	if c.Studio.StudyContentChars <= 0 {
		c.Studio.StudyContentChars = 12000
	}
	if c.Studio.StudySampleChunks <= 0 {
		c.Studio.StudySampleChunks = 30
	}
}
