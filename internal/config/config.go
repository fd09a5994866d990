package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	AI       AIConfig       `mapstructure:"ai"`
	Memory   MemoryConfig   `mapstructure:"memory"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`      // 是否自动迁移表结构
	SlowQueryMillis int    `mapstructure:"slow_query_ms"`     // 慢查询告警阈值,默认 200ms
}

// RedisConfig Redis 配置(任务队列使用)
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// AIConfig AI 模型配置
type AIConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig OpenAI 兼容接入点配置
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	ChatModel      string `mapstructure:"chat_model"`      // 默认 gpt-4o-mini
	EmbeddingModel string `mapstructure:"embedding_model"` // 默认 text-embedding-3-small
	MaxRetries     int    `mapstructure:"max_retries"`
}

// MemoryConfig 记忆管线参数
type MemoryConfig struct {
	SearchTopK          int     `mapstructure:"search_top_k"`          // 投票检索每条事实取的近邻数,默认 10
	SearchThreshold     float64 `mapstructure:"search_threshold"`      // 相似度下限,默认 0.4
	CandidateLimit      int     `mapstructure:"candidate_limit"`       // 送入仲裁的候选档案数,默认 5
	ExampleFactsPerDoc  int     `mapstructure:"example_facts_per_doc"` // 仲裁提示词中每个候选展示的事实数,默认 5
	ContextTokenBudget  int     `mapstructure:"context_token_budget"`  // 上下文装配 Token 预算,默认 4000
	EmbeddingDimensions int     `mapstructure:"embedding_dimensions"`  // 向量维度,默认 1536
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	// 设置配置文件名和路径
	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP") // 环境变量前缀：APP_
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 支持嵌套配置：APP_DATABASE_HOST

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.Memory.applyDefaults()

	globalConfig = &cfg
	return &cfg, nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// applyDefaults 填充记忆管线的默认参数
func (c *MemoryConfig) applyDefaults() {
	if c.SearchTopK <= 0 {
		c.SearchTopK = 10
	}
	if c.SearchThreshold <= 0 {
		c.SearchThreshold = 0.4
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 5
	}
	if c.ExampleFactsPerDoc <= 0 {
		c.ExampleFactsPerDoc = 5
	}
	if c.ContextTokenBudget <= 0 {
		c.ContextTokenBudget = 4000
	}
	if c.EmbeddingDimensions <= 0 {
		c.EmbeddingDimensions = 1536
	}
}
