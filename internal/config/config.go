// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Gemini    GeminiConfig    `mapstructure:"gemini" yaml:"gemini"`
	Ingestion IngestionConfig `mapstructure:"ingestion" yaml:"ingestion"`
	Graph     GraphConfig     `mapstructure:"graph" yaml:"graph"`
	Chat      ChatConfig      `mapstructure:"chat" yaml:"chat"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// GeminiConfig configures the remote model and retrieval-index client.
type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	ChatModel         string        `mapstructure:"chat_model" yaml:"chat_model"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	StorePrefix       string        `mapstructure:"store_prefix" yaml:"store_prefix"`
	SystemPrompt      string        `mapstructure:"system_prompt" yaml:"system_prompt"`
}

// IngestionConfig carries the externally supplied ignore rules consumed by
// the scanner, the graph builder, and the retrieval upload pipeline.
type IngestionConfig struct {
	IgnoredDirectories []string          `mapstructure:"ignored_directories" yaml:"ignored_directories"`
	IgnoredFiles       []string          `mapstructure:"ignored_files" yaml:"ignored_files"`
	AllowedExtensions  []string          `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`
	MimeTypeMap        map[string]string `mapstructure:"mime_type_map" yaml:"mime_type_map"`
	UseGitignore       bool              `mapstructure:"use_gitignore" yaml:"use_gitignore"`
	PollInterval       time.Duration     `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// GraphConfig controls knowledge graph construction and storage.
type GraphConfig struct {
	// DataDir is where graph JSON documents live. "~" expands to the home dir.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	// QualifiedIDs switches node ids from bare names (legacy behavior,
	// first-write-wins on collision) to file::scope::name qualified ids.
	QualifiedIDs bool `mapstructure:"qualified_ids" yaml:"qualified_ids"`
}

// ChatConfig bounds the conversation loop.
type ChatConfig struct {
	MaxToolRounds  int           `mapstructure:"max_tool_rounds" yaml:"max_tool_rounds"`
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryBaseWait  time.Duration `mapstructure:"retry_base_wait" yaml:"retry_base_wait"`
	ListFilesLimit int           `mapstructure:"list_files_limit" yaml:"list_files_limit"`
}

// DatabaseConfig locates the conversation transcript database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

var loaded *Config

// Load reads the config file (or defaults), applies AURORA_* environment
// overrides, and caches the result for Get.
func Load(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("AURORA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// The API key usually arrives through the environment, not the file.
	_ = viper.BindEnv("gemini.api_key", "GEMINI_API_KEY", "AURORA_GEMINI_API_KEY")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env carry the day.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := expandPaths(&cfg); err != nil {
		return err
	}

	loaded = &cfg
	return nil
}

// Get returns the loaded configuration. Callers before Load see defaults.
func Get() *Config {
	if loaded == nil {
		cfg := defaults()
		loaded = &cfg
	}
	return loaded
}

// ResetForTest clears the cached config and viper state between tests.
func ResetForTest() {
	loaded = nil
	viper.Reset()
}

func setDefaults() {
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("logger.service_name", "aurora")
	viper.SetDefault("logger.max_size", 10)
	viper.SetDefault("logger.max_backups", 3)
	viper.SetDefault("logger.max_age", 14)
	viper.SetDefault("logger.colors.debug", "cyan")
	viper.SetDefault("logger.colors.info", "green")
	viper.SetDefault("logger.colors.warn", "yellow")
	viper.SetDefault("logger.colors.error", "red")
	viper.SetDefault("logger.colors.fatal", "magenta")

	viper.SetDefault("gemini.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("gemini.chat_model", "gemini-2.5-flash")
	viper.SetDefault("gemini.api_timeout", 5*time.Minute)
	viper.SetDefault("gemini.requests_per_minute", 30)
	viper.SetDefault("gemini.store_prefix", "Aurora Store")
	viper.SetDefault("gemini.system_prompt",
		"You are Aurora, a code analysis assistant. Answer questions about the "+
			"active repository using the indexed documents and the local tools. "+
			"Prefer search_knowledge_graph for structural questions and read_file "+
			"for exact source content.")

	viper.SetDefault("ingestion.ignored_directories", []string{
		".git", "node_modules", "__pycache__", "venv", ".venv",
		"dist", "build", ".idea", ".vscode",
	})
	viper.SetDefault("ingestion.ignored_files", []string{".DS_Store"})
	viper.SetDefault("ingestion.allowed_extensions", []string{
		".py", ".md", ".txt", ".yaml", ".yml", ".json", ".toml", ".cfg",
	})
	viper.SetDefault("ingestion.mime_type_map", map[string]string{
		".py":   "text/plain",
		".md":   "text/markdown",
		".json": "application/json",
	})
	viper.SetDefault("ingestion.use_gitignore", true)
	viper.SetDefault("ingestion.poll_interval", 4*time.Second)

	viper.SetDefault("graph.data_dir", "~/.aurora/graphs")
	viper.SetDefault("graph.qualified_ids", false)

	viper.SetDefault("chat.max_tool_rounds", 8)
	viper.SetDefault("chat.max_attempts", 3)
	viper.SetDefault("chat.retry_base_wait", 10*time.Second)
	viper.SetDefault("chat.list_files_limit", 50000)

	viper.SetDefault("database.path", "~/.aurora/aurora.db")
}

func defaults() Config {
	viper.Reset()
	setDefaults()
	var cfg Config
	_ = viper.Unmarshal(&cfg)
	_ = expandPaths(&cfg)
	return cfg
}

// expandPaths resolves "~" prefixes in the on-disk locations.
func expandPaths(cfg *Config) error {
	var err error
	if cfg.Graph.DataDir, err = homedir.Expand(cfg.Graph.DataDir); err != nil {
		return fmt.Errorf("failed to expand graph data dir: %w", err)
	}
	if cfg.Database.Path, err = homedir.Expand(cfg.Database.Path); err != nil {
		return fmt.Errorf("failed to expand database path: %w", err)
	}
	cfg.Graph.DataDir = filepath.Clean(cfg.Graph.DataDir)
	return nil
}
