package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"deskmemo/internal/logger"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Report    ReportConfig    `mapstructure:"report"`
	Capture   CaptureConfig   `mapstructure:"capture"`
}

type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`  // empty disables auth
	TokenTTL string `mapstructure:"token_ttl"` // session token lifetime
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type StorageConfig struct {
	DBPath    string    `mapstructure:"db_path"`
	ImagePath string    `mapstructure:"image_path"`
	InboxPath string    `mapstructure:"inbox_path"` // watched drop directory, empty disables
	LogPath   string    `mapstructure:"log_path"`
	Log       LogConfig `mapstructure:"log"`
}

type LogConfig struct {
	Level        string `mapstructure:"level"`
	Format       string `mapstructure:"format"`
	RotationTime string `mapstructure:"rotation_time"`
	MaxSize      int    `mapstructure:"max_size"`
	MaxBackups   int    `mapstructure:"max_backups"`
	MaxAge       int    `mapstructure:"max_age"`
	Compress     bool   `mapstructure:"compress"`
}

type AnalyzerConfig struct {
	BaseURL      string `mapstructure:"base_url"` // OpenAI-compatible endpoint
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	SummaryModel string `mapstructure:"summary_model"`
	MaxTokens    int    `mapstructure:"max_tokens"`
	Timeout      string `mapstructure:"timeout"`
	// ImageBaseURL is where the analyzer can fetch stored images from,
	// normally http://<public host>/files. Setting it mounts /files without
	// authentication. When empty, images are sent inline as base64 data URLs.
	ImageBaseURL      string `mapstructure:"image_base_url"`
	PromptPath        string `mapstructure:"prompt_path"`
	SummaryPromptPath string `mapstructure:"summary_prompt_path"`

	// 运行时从文件加载
	PromptContent        string `mapstructure:"-"`
	SummaryPromptContent string `mapstructure:"-"`
}

func (c *AnalyzerConfig) GetTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 120 * time.Second, nil
	}
	return time.ParseDuration(c.Timeout)
}

type EmbeddingConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	VectorSize int    `mapstructure:"vector_size"`
}

type QdrantConfig struct {
	URL        string `mapstructure:"url"` // empty disables semantic search
	Collection string `mapstructure:"collection"`
}

type PipelineConfig struct {
	SimilarityThreshold int    `mapstructure:"similarity_threshold"`
	MaxAttempts         int    `mapstructure:"max_attempts"`
	ErrorMaxLength      int    `mapstructure:"error_max_length"`
	ReconcileInterval   string `mapstructure:"reconcile_interval"`
}

func (c *PipelineConfig) GetReconcileInterval() (time.Duration, error) {
	if c.ReconcileInterval == "" {
		return 0, fmt.Errorf("reconcile interval not configured")
	}
	return time.ParseDuration(c.ReconcileInterval)
}

type ReportConfig struct {
	Timezone   string `mapstructure:"timezone"`
	HourlyCron string `mapstructure:"hourly_cron"`
	DailyCron  string `mapstructure:"daily_cron"`
	// MinutesPerItem converts an activity count into "minutes". It should
	// match the capture interval; the result is an approximation.
	MinutesPerItem int `mapstructure:"minutes_per_item"`
	SampleSize     int `mapstructure:"sample_size"`
}

// Location loads the reference zone used for all window math.
func (c *ReportConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type CaptureConfig struct {
	ServerURL string `mapstructure:"server_url"`
	Interval  string `mapstructure:"interval"`
	Display   int    `mapstructure:"display"`
	Password  string `mapstructure:"password"`
}

func (c *CaptureConfig) GetIntervalDuration() (time.Duration, error) {
	if c.Interval == "" {
		return 0, fmt.Errorf("interval not configured")
	}
	return time.ParseDuration(c.Interval)
}

// Validate checks values that would otherwise fail much later at runtime.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.Pipeline.SimilarityThreshold < 0 || c.Pipeline.SimilarityThreshold > 64 {
		errs = append(errs, fmt.Errorf("pipeline.similarity_threshold must be in 0..64, got %d", c.Pipeline.SimilarityThreshold))
	}
	if c.Pipeline.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_attempts must be positive, got %d", c.Pipeline.MaxAttempts))
	}
	if c.Pipeline.ErrorMaxLength <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.error_max_length must be positive, got %d", c.Pipeline.ErrorMaxLength))
	}
	if _, err := c.Pipeline.GetReconcileInterval(); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.reconcile_interval: %w", err))
	}
	if _, err := c.Analyzer.GetTimeout(); err != nil {
		errs = append(errs, fmt.Errorf("analyzer.timeout: %w", err))
	}
	if _, err := c.Report.Location(); err != nil {
		errs = append(errs, fmt.Errorf("report.timezone: %w", err))
	}
	if c.Report.MinutesPerItem <= 0 {
		errs = append(errs, fmt.Errorf("report.minutes_per_item must be positive, got %d", c.Report.MinutesPerItem))
	}
	if c.Report.SampleSize <= 0 {
		errs = append(errs, fmt.Errorf("report.sample_size must be positive, got %d", c.Report.SampleSize))
	}
	if c.Qdrant.URL != "" && c.Embedding.VectorSize <= 0 {
		errs = append(errs, fmt.Errorf("embedding.vector_size must be positive when qdrant is enabled"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.password", "")
	v.SetDefault("server.token_ttl", "168h")

	v.SetDefault("storage.db_path", "./data/db/deskmemo.db")
	v.SetDefault("storage.image_path", "./data/screenshots")
	v.SetDefault("storage.inbox_path", "")
	v.SetDefault("storage.log_path", "")
	v.SetDefault("storage.log.level", "info")
	v.SetDefault("storage.log.format", "text")
	v.SetDefault("storage.log.rotation_time", "24h")
	v.SetDefault("storage.log.max_size", 100)
	v.SetDefault("storage.log.max_backups", 3)
	v.SetDefault("storage.log.max_age", 28)
	v.SetDefault("storage.log.compress", true)

	v.SetDefault("analyzer.base_url", "https://api.openai.com/v1")
	v.SetDefault("analyzer.model", "gpt-4o-mini")
	v.SetDefault("analyzer.summary_model", "gpt-4o-mini")
	v.SetDefault("analyzer.max_tokens", 500)
	v.SetDefault("analyzer.timeout", "120s")
	v.SetDefault("analyzer.image_base_url", "")
	v.SetDefault("analyzer.prompt_path", "")
	v.SetDefault("analyzer.summary_prompt_path", "")

	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.vector_size", 1536)

	v.SetDefault("qdrant.url", "")
	v.SetDefault("qdrant.collection", "activities")

	v.SetDefault("pipeline.similarity_threshold", 10)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.error_max_length", 500)
	v.SetDefault("pipeline.reconcile_interval", "5s")

	v.SetDefault("report.timezone", "Asia/Shanghai")
	v.SetDefault("report.hourly_cron", "0 5 * * * *") // 每小时第5分钟
	v.SetDefault("report.daily_cron", "0 0 1 * * *")  // 每天凌晨1点
	v.SetDefault("report.minutes_per_item", 1)
	v.SetDefault("report.sample_size", 10)

	v.SetDefault("capture.server_url", "http://localhost:8000")
	v.SetDefault("capture.interval", "1m")
	v.SetDefault("capture.display", 0)
	v.SetDefault("capture.password", "")
}

// Load reads configuration from configPath (or the default search paths),
// a .env file in the working directory, and DESKMEMO_* environment variables.
func Load(configPath string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DESKMEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		if execPath, err := os.Executable(); err == nil {
			execDir := filepath.Dir(execPath)
			v.AddConfigPath(filepath.Join(execDir, "config"))
			v.AddConfigPath(execDir)
		}
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".deskmemo"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Analyzer.APIKey == "" {
		cfg.Analyzer.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = cfg.Analyzer.BaseURL
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.Analyzer.APIKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	configDir := "."
	if used := v.ConfigFileUsed(); used != "" {
		configDir = filepath.Dir(used)
	}
	if err := loadPrompts(&cfg.Analyzer, configDir); err != nil {
		return nil, fmt.Errorf("failed to load prompt files: %w", err)
	}

	if err := normalizePaths(&cfg); err != nil {
		return nil, fmt.Errorf("failed to normalize paths: %w", err)
	}

	if err := initLogger(&cfg.Storage); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &cfg, nil
}

func (c *StorageConfig) EnsureDBPath() error {
	dir := filepath.Dir(c.DBPath)
	if dir != "." && dir != "" {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

func (c *StorageConfig) EnsureImagePath() error {
	return os.MkdirAll(c.ImagePath, 0755)
}

func normalizePaths(cfg *Config) error {
	baseDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get base directory: %w", err)
	}

	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}

	cfg.Storage.DBPath = abs(cfg.Storage.DBPath)
	cfg.Storage.ImagePath = abs(cfg.Storage.ImagePath)
	cfg.Storage.InboxPath = abs(cfg.Storage.InboxPath)

	// 日志路径为目录时追加默认文件名
	if cfg.Storage.LogPath != "" {
		cfg.Storage.LogPath = abs(cfg.Storage.LogPath)
		if info, err := os.Stat(cfg.Storage.LogPath); err == nil && info.IsDir() {
			cfg.Storage.LogPath = filepath.Join(cfg.Storage.LogPath, "deskmemo.log")
		} else if os.IsNotExist(err) && filepath.Ext(cfg.Storage.LogPath) == "" {
			cfg.Storage.LogPath = filepath.Join(cfg.Storage.LogPath, "deskmemo.log")
		}
	}

	return nil
}

func initLogger(storage *StorageConfig) error {
	return logger.Init(logger.LogConfig{
		Level:        storage.Log.Level,
		Format:       storage.Log.Format,
		FilePath:     storage.LogPath,
		RotationTime: storage.Log.RotationTime,
		MaxSize:      storage.Log.MaxSize,
		MaxBackups:   storage.Log.MaxBackups,
		MaxAge:       storage.Log.MaxAge,
		Compress:     storage.Log.Compress,
	})
}

// loadPrompts reads optional prompt override files. Relative paths resolve
// against the directory of the config file.
func loadPrompts(cfg *AnalyzerConfig, configDir string) error {
	var err error
	if cfg.PromptContent, err = loadPromptFile(cfg.PromptPath, configDir); err != nil {
		return err
	}
	if cfg.SummaryPromptContent, err = loadPromptFile(cfg.SummaryPromptPath, configDir); err != nil {
		return err
	}
	return nil
}

func loadPromptFile(path, configDir string) (string, error) {
	if path == "" {
		return "", nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(configDir, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file %s: %w", path, err)
	}
	return string(content), nil
}
