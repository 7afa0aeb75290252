package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Retrieval  RetrievalConfig
	Reasoning  ReasoningConfig
	Compliance ComplianceConfig
	Pipeline   PipelineConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
}

type SQLiteConfig struct {
	Path string
}

type RetrievalConfig struct {
	WeatherAPIURL string
	WeatherAPIKey string
	TimeoutSec    int
}

type ReasoningConfig struct {
	Provider    string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
}

// ComplianceConfig carries the policy constants behind the regulation scans.
// These are configuration, not algorithm: thresholds and windows may be tuned
// per deployment without touching the rule implementations.
type ComplianceConfig struct {
	DataSizeViolationBytes int
	DataSizeWarningBytes   int
	RetentionDays          int
}

type PipelineConfig struct {
	DefaultRegulations  []string
	LatencyThresholdSec float64
	EnableLearning      bool
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/dataguard")

	viper.SetEnvPrefix("DATAGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)
	viper.SetDefault("server.allowedOrigins", []string{})

	viper.SetDefault("sqlite.path", "./data/agent_memory.db")

	viper.SetDefault("retrieval.weatherAPIURL", "http://api.openweathermap.org/data/2.5")
	viper.SetDefault("retrieval.weatherAPIKey", "")
	viper.SetDefault("retrieval.timeoutSec", 10)

	viper.SetDefault("reasoning.provider", "heuristic")
	viper.SetDefault("reasoning.model", "gpt-4")
	viper.SetDefault("reasoning.temperature", 0.2)
	viper.SetDefault("reasoning.maxTokens", 1024)

	viper.SetDefault("compliance.dataSizeViolationBytes", 2000)
	viper.SetDefault("compliance.dataSizeWarningBytes", 1000)
	viper.SetDefault("compliance.retentionDays", 30)

	viper.SetDefault("pipeline.defaultRegulations", []string{"hipaa", "gdpr"})
	viper.SetDefault("pipeline.latencyThresholdSec", 5.0)
	viper.SetDefault("pipeline.enableLearning", true)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
