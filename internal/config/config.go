package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AI        AIConfig        `mapstructure:"ai"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	XAI       XAIConfig       `mapstructure:"xai"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// AIConfig 在线大模型（OpenAI 兼容接口，如 DeepSeek）
type AIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	TimeoutSeconds time.Duration `mapstructure:"timeout_seconds"`
}

// OllamaConfig 本地大模型（Ollama 的 OpenAI 兼容 /v1 接口）
type OllamaConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	TimeoutSeconds time.Duration `mapstructure:"timeout_seconds"`
}

// XAIConfig 答案解析引擎参数
type XAIConfig struct {
	CacheVersion    string `mapstructure:"cache_version"`    // 解析缓存版本号，修改生成策略时递增
	EvidenceTopK    int    `mapstructure:"evidence_top_k"`   // 证据检索返回条数上限
	FluencyPass     bool   `mapstructure:"fluency_pass"`     // 是否让模型润色模板文本
	LectureTruncate int    `mapstructure:"lecture_truncate"` // 注入对话上下文的讲义截断长度
}

// ChatConfig 聊天路由参数
type ChatConfig struct {
	ReplyMaxLength    int           `mapstructure:"reply_max_length"`    // 回复长度硬上限
	SessionTTLMinutes time.Duration `mapstructure:"session_ttl_minutes"` // 内存会话过期时间
	HistoryLimit      int           `mapstructure:"history_limit"`       // 每个会话保留的最大轮数
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("MCQ_TUTOR")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// Redis
	viper.BindEnv("redis.enabled", "REDIS_ENABLED")
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")
	viper.BindEnv("server.port", "SERVER_PORT")

	// 在线模型
	viper.BindEnv("ai.base_url", "AI_BASE_URL")
	viper.BindEnv("ai.api_key", "AI_API_KEY")
	viper.BindEnv("ai.model", "AI_MODEL")

	// 本地模型
	viper.BindEnv("ollama.base_url", "OLLAMA_BASE_URL")
	viper.BindEnv("ollama.model", "OLLAMA_MODEL")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.AI.TimeoutSeconds = cfg.AI.TimeoutSeconds * time.Second
	cfg.Ollama.TimeoutSeconds = cfg.Ollama.TimeoutSeconds * time.Second
	cfg.Chat.SessionTTLMinutes = cfg.Chat.SessionTTLMinutes * time.Minute

	applyDefaults(&cfg)

	// release 模式下配置了在线模型却没有 key 属于部署错误，直接拒绝启动
	if cfg.Server.Mode == "release" && cfg.AI.BaseURL != "" && cfg.AI.APIKey == "" {
		return nil, fmt.Errorf("ai.api_key is required in release mode when ai.base_url is set")
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.XAI.CacheVersion == "" {
		cfg.XAI.CacheVersion = "v2"
	}
	if cfg.XAI.EvidenceTopK <= 0 {
		cfg.XAI.EvidenceTopK = 3
	}
	if cfg.XAI.LectureTruncate <= 0 {
		cfg.XAI.LectureTruncate = 4000
	}
	if cfg.Chat.ReplyMaxLength <= 0 {
		cfg.Chat.ReplyMaxLength = 1200
	}
	if cfg.Chat.SessionTTLMinutes <= 0 {
		cfg.Chat.SessionTTLMinutes = 2 * time.Hour
	}
	if cfg.Chat.HistoryLimit <= 0 {
		cfg.Chat.HistoryLimit = 50
	}
	if cfg.AI.TimeoutSeconds <= 0 {
		cfg.AI.TimeoutSeconds = 30 * time.Second
	}
	if cfg.Ollama.TimeoutSeconds <= 0 {
		cfg.Ollama.TimeoutSeconds = 60 * time.Second
	}
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = "llama3.2"
	}
}
