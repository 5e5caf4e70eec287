package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config represents the entire application configuration
type Config struct {
	Env       string          `json:"env"`
	Port      int             `json:"port"`
	AppName   string          `json:"app_name"`
	MongoDB   MongoDBConfig   `json:"mongodb"`
	Redis     RedisConfig     `json:"redis"`
	RabbitMQ  RabbitMQConfig  `json:"rabbitmq"`
	GenAI     GenAIConfig     `json:"genai"`
	S3        S3Config        `json:"s3"`
	Optimizer OptimizerConfig `json:"optimizer"`
	Logging   LoggingConfig   `json:"logging"`
	CORS      CORSConfig      `json:"cors"`
}

// MongoDBConfig contains MongoDB connection details
type MongoDBConfig struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       string `json:"db"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
	// BatchTTLSeconds bounds staleness of cached batch detail responses
	BatchTTLSeconds int `json:"batch_ttl_seconds"`
}

// RabbitMQConfig contains the broker connection and topology settings
type RabbitMQConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	VHost         string `json:"vhost"`
	ExchangeName  string `json:"exchange_name"`
	QueueName     string `json:"queue_name"`
	PrefetchCount int    `json:"prefetch_count"`
}

// GenAIConfig contains generation API settings
type GenAIConfig struct {
	APIKey            string `json:"api_key"`
	BaseURL           string `json:"base_url"`
	RequestsPerMinute int    `json:"requests_per_minute"`
	TimeoutSeconds    int    `json:"timeout_seconds"`
}

// S3Config contains report export settings
type S3Config struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
}

// OptimizerConfig contains batch engine defaults and review policy
type OptimizerConfig struct {
	DefaultBatchSize       int    `json:"default_batch_size"`
	DefaultReviewFrequency int    `json:"default_review_frequency"`
	DefaultTargetWordCount int    `json:"default_target_word_count"`
	DefaultModel           string `json:"default_model"`
	// ReviewDeviationPct flags a version for manual review when the
	// generated word count deviates from target by more than this fraction
	ReviewDeviationPct float64 `json:"review_deviation_pct"`
}

// LoggingConfig contains logging-related configurations
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age,omitempty"`
}

// LoadConfig reads configuration from the specified file path
func LoadConfig(filePath string) (*Config, error) {
	configData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(c *Config) {
	if c.Optimizer.DefaultBatchSize == 0 {
		c.Optimizer.DefaultBatchSize = 50
	}
	if c.Optimizer.DefaultReviewFrequency == 0 {
		c.Optimizer.DefaultReviewFrequency = 10
	}
	if c.Optimizer.DefaultTargetWordCount == 0 {
		c.Optimizer.DefaultTargetWordCount = 300
	}
	if c.Optimizer.ReviewDeviationPct == 0 {
		c.Optimizer.ReviewDeviationPct = 0.25
	}
	if c.Redis.BatchTTLSeconds == 0 {
		c.Redis.BatchTTLSeconds = 5
	}
	if c.GenAI.TimeoutSeconds == 0 {
		c.GenAI.TimeoutSeconds = 60
	}
	if c.GenAI.RequestsPerMinute == 0 {
		c.GenAI.RequestsPerMinute = 30
	}
}
