// Package config loads application configuration from YAML and environment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TrainConfig holds autoencoder training settings.
type TrainConfig struct {
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	Patience     int     `yaml:"patience"`
	Seed         int64   `yaml:"seed"`
}

// Config represents the application configuration
type Config struct {
	Server struct {
		Port          string `yaml:"port"`
		MaxUploadSize int64  `yaml:"max_upload_size"`
	} `yaml:"server"`

	Redis struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"redis"`

	Elasticsearch struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"elasticsearch"`

	Detection struct {
		ArtifactDir      string      `yaml:"artifact_dir"`
		WindowLength     int         `yaml:"window_length"`
		DefaultThreshold float64     `yaml:"default_threshold"`
		TestFraction     float64     `yaml:"test_fraction"`
		TargetFPR        float64     `yaml:"target_fpr"`
		Train            TrainConfig `yaml:"train"`
	} `yaml:"detection"`

	Security struct {
		RateLimit      int `yaml:"rate_limit"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"security"`

	// Runtime configuration
	RedisURL           string
	ElasticsearchAddrs []string
	ElasticsearchUser  string
	ElasticsearchPass  string
	ElasticsearchIndex string
	MailHost           string
	MailPort           int
	MailUser           string
	MailPass           string
	AlertEmail         string
}

// LoadConfig loads the configuration from a file
func LoadConfig() (*Config, error) {
	// Default config file path
	configPath := "config/config.yaml"

	// Check if config path is set in environment
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}

	var cfg Config
	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %v", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = 32 << 20
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 720 * time.Hour
	}
	if cfg.Detection.ArtifactDir == "" {
		cfg.Detection.ArtifactDir = "model"
	}
	if cfg.Detection.WindowLength == 0 {
		cfg.Detection.WindowLength = 10
	}
	if cfg.Detection.DefaultThreshold == 0 {
		cfg.Detection.DefaultThreshold = 0.12
	}
	if cfg.Detection.TestFraction == 0 {
		cfg.Detection.TestFraction = 0.2
	}
	if cfg.Detection.TargetFPR == 0 {
		cfg.Detection.TargetFPR = 0.10
	}
	if cfg.Detection.Train.Epochs == 0 {
		cfg.Detection.Train.Epochs = 50
	}
	if cfg.Detection.Train.BatchSize == 0 {
		cfg.Detection.Train.BatchSize = 32
	}
	if cfg.Detection.Train.LearningRate == 0 {
		cfg.Detection.Train.LearningRate = 0.001
	}
	if cfg.Detection.Train.Patience == 0 {
		cfg.Detection.Train.Patience = 10
	}
	if cfg.Detection.Train.Seed == 0 {
		cfg.Detection.Train.Seed = 42
	}
	if cfg.Security.RateLimit == 0 {
		cfg.Security.RateLimit = 10
	}
	if cfg.Security.RateLimitBurst == 0 {
		cfg.Security.RateLimitBurst = 20
	}
}

func (cfg *Config) applyEnv() {
	cfg.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379")

	cfg.ElasticsearchAddrs = []string{getEnv("ELASTICSEARCH_URL", "http://localhost:9200")}
	cfg.ElasticsearchUser = os.Getenv("ELASTICSEARCH_USER")
	cfg.ElasticsearchPass = os.Getenv("ELASTICSEARCH_PASS")
	cfg.ElasticsearchIndex = getEnv("ELASTICSEARCH_INDEX", "iot-scans")

	cfg.MailHost = getEnv("MAIL_HOST", "smtp.gmail.com")
	cfg.MailPort = 465
	cfg.MailUser = os.Getenv("MAIL_USER")
	cfg.MailPass = os.Getenv("MAIL_PASS")
	cfg.AlertEmail = os.Getenv("ALERT_EMAIL")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
