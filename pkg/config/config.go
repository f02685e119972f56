package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	API       APIConfig
	Analysis  AnalysisConfig
	LLM       LLMConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLHours int
}

// APIConfig describes the university planning API that publishes faculty and
// evaluation activities per subject and academic year.
type APIConfig struct {
	BaseURL       string
	PlanCode      string
	Semester      string
	TimeoutSec    int
	MaxAttempts   int
	InitialDelay  int
	Workers       int
	CacheDir      string
	RequestPaceMS int
}

type AnalysisConfig struct {
	TrendMode string
	Alpha     float64
	Metric    string
}

type LLMConfig struct {
	Enabled     bool
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or from the standard search paths
// when path is empty.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/dasos")
	}

	v.SetEnvPrefix("DASOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Analysis.TrendMode {
	case "auto", "basic", "advanced":
	default:
		return fmt.Errorf("invalid analysis.trendMode %q", c.Analysis.TrendMode)
	}
	if c.Analysis.Alpha <= 0 || c.Analysis.Alpha >= 1 {
		return fmt.Errorf("analysis.alpha must be in (0,1), got %v", c.Analysis.Alpha)
	}
	switch c.Analysis.Metric {
	case "performance_rate", "success_rate", "absenteeism_rate":
	default:
		return fmt.Errorf("invalid analysis.metric %q", c.Analysis.Metric)
	}
	if c.API.Workers < 1 {
		return fmt.Errorf("api.workers must be positive, got %d", c.API.Workers)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.development", false)

	v.SetDefault("sqlite.path", "./academic_data.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlHours", 24*30)

	v.SetDefault("api.baseURL", "https://www.upm.es/comun_gauss/publico/api")
	v.SetDefault("api.planCode", "10II")
	v.SetDefault("api.semester", "2S")
	v.SetDefault("api.timeoutSec", 10)
	v.SetDefault("api.maxAttempts", 3)
	v.SetDefault("api.initialDelay", 500)
	v.SetDefault("api.workers", 4)
	v.SetDefault("api.cacheDir", "./api_cache")
	v.SetDefault("api.requestPaceMS", 0)

	v.SetDefault("analysis.trendMode", "auto")
	v.SetDefault("analysis.alpha", 0.05)
	v.SetDefault("analysis.metric", "performance_rate")

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.maxTokens", 600)
	v.SetDefault("llm.timeoutSec", 60)

	v.SetDefault("rateLimit.requestsPerMinute", 120)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
	v.SetDefault("logging.maxSizeMB", 100)
	v.SetDefault("logging.maxBackups", 5)
	v.SetDefault("logging.maxAgeDays", 30)
}
