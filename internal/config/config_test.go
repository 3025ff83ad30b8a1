package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8000},
		Analyzer: AnalyzerConfig{
			Timeout: "120s",
		},
		Pipeline: PipelineConfig{
			SimilarityThreshold: 10,
			MaxAttempts:         3,
			ErrorMaxLength:      500,
			ReconcileInterval:   "5s",
		},
		Report: ReportConfig{
			Timezone:       "Asia/Shanghai",
			MinutesPerItem: 1,
			SampleSize:     10,
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "有效配置 - 默认值",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "无效配置 - 端口越界",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "无效配置 - 相似度阈值超过指纹位宽",
			mutate:  func(c *Config) { c.Pipeline.SimilarityThreshold = 65 },
			wantErr: true,
		},
		{
			name:    "有效配置 - 阈值为0关闭去重",
			mutate:  func(c *Config) { c.Pipeline.SimilarityThreshold = 0 },
			wantErr: false,
		},
		{
			name:    "无效配置 - 最大尝试次数为0",
			mutate:  func(c *Config) { c.Pipeline.MaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "无效配置 - 扫描间隔格式错误",
			mutate:  func(c *Config) { c.Pipeline.ReconcileInterval = "five seconds" },
			wantErr: true,
		},
		{
			name:    "无效配置 - 时区不存在",
			mutate:  func(c *Config) { c.Report.Timezone = "Mars/Olympus" },
			wantErr: true,
		},
		{
			name:    "无效配置 - 启用qdrant但向量维度为0",
			mutate:  func(c *Config) { c.Qdrant.URL = "http://localhost:6333" },
			wantErr: true,
		},
		{
			name: "有效配置 - 启用qdrant",
			mutate: func(c *Config) {
				c.Qdrant.URL = "http://localhost:6333"
				c.Embedding.VectorSize = 768
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
pipeline:
  similarity_threshold: 6
storage:
  db_path: db/test.db
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("DESKMEMO_ANALYZER_MODEL", "vision-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Pipeline.SimilarityThreshold != 6 {
		t.Errorf("Pipeline.SimilarityThreshold = %d, want 6", cfg.Pipeline.SimilarityThreshold)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Errorf("Pipeline.MaxAttempts = %d, want 3", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Pipeline.ErrorMaxLength != 500 {
		t.Errorf("Pipeline.ErrorMaxLength = %d, want 500", cfg.Pipeline.ErrorMaxLength)
	}
	if cfg.Report.Timezone != "Asia/Shanghai" {
		t.Errorf("Report.Timezone = %q, want Asia/Shanghai", cfg.Report.Timezone)
	}
	if cfg.Analyzer.Model != "vision-test" {
		t.Errorf("Analyzer.Model = %q, want vision-test (env override)", cfg.Analyzer.Model)
	}
	if !filepath.IsAbs(cfg.Storage.DBPath) {
		t.Errorf("Storage.DBPath = %q, want absolute path", cfg.Storage.DBPath)
	}

	timeout, err := cfg.Analyzer.GetTimeout()
	if err != nil || timeout.Seconds() != 120 {
		t.Errorf("Analyzer.GetTimeout() = %v, %v, want 120s", timeout, err)
	}
	if cfg.Embedding.BaseURL != cfg.Analyzer.BaseURL {
		t.Errorf("Embedding.BaseURL = %q, want analyzer endpoint %q", cfg.Embedding.BaseURL, cfg.Analyzer.BaseURL)
	}
}

func TestLoad_PromptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "prompt.txt"), []byte("describe the screen"), 0644); err != nil {
		t.Fatalf("failed to write prompt: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("analyzer:\n  prompt_path: prompt.txt\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Analyzer.PromptContent != "describe the screen" {
		t.Errorf("PromptContent = %q, want file content", cfg.Analyzer.PromptContent)
	}
}

func TestLoad_MissingPromptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("analyzer:\n  prompt_path: missing.txt\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for missing prompt file")
	}
}

func TestReportConfig_Location(t *testing.T) {
	c := ReportConfig{Timezone: "Asia/Shanghai"}
	loc, err := c.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc.String() != "Asia/Shanghai" {
		t.Errorf("Location() = %s, want Asia/Shanghai", loc)
	}
}
