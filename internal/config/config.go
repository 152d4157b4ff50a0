package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config represents the entire application configuration
type Config struct {
	Env      string         `json:"env"`
	Port     int            `json:"port"`
	AppName  string         `json:"app_name"`
	IATI     IATIConfig     `json:"iati"`
	MongoDB  MongoDBConfig  `json:"mongodb"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
	AWS      AWSConfig      `json:"aws"`
	Batch    BatchConfig    `json:"batch"`
	Logging  LoggingConfig  `json:"logging"`
	CORS     CORSConfig     `json:"cors"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age,omitempty"` // Optional, seconds that preflight requests can be cached
}

// IATIConfig contains IATI registry/datastore API configurations
type IATIConfig struct {
	DatastoreURL      string `json:"datastore_url"`
	RegistryURL       string `json:"registry_url"`
	APIKey            string `json:"api_key"`
	RequestsPerMinute int    `json:"requests_per_minute"`
	Cache             bool   `json:"cache"`
	DefaultCacheTTL   int    `json:"default_cache_ttl"` // seconds
}

// MongoDBConfig contains MongoDB connection details
type MongoDBConfig struct {
	URI      string                 `json:"uri"`
	Username string                 `json:"username"`
	Password string                 `json:"password"`
	DB       string                 `json:"db"`
	Options  map[string]interface{} `json:"options"`
}

// RabbitMQConfig contains RabbitMQ connection and topology details
type RabbitMQConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	VHost         string `json:"vhost"`
	ExchangeName  string `json:"exchange_name"`
	RunQueueName  string `json:"run_queue_name"`
	PrefetchCount int    `json:"prefetch_count"`
}

// AWSConfig contains S3 credentials for the report archive
type AWSConfig struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
}

// BatchConfig tunes the chunked import orchestrator
type BatchConfig struct {
	ChunkSize         int `json:"chunk_size"`
	ChunkRetries      int `json:"chunk_retries"`
	RetryDelaySeconds int `json:"retry_delay_seconds"`
}

// RetryDelay returns the configured delay between chunk retry attempts
func (b BatchConfig) RetryDelay() time.Duration {
	return time.Duration(b.RetryDelaySeconds) * time.Second
}

// LoggingConfig contains logging-related configurations
type LoggingConfig struct {
	Level     string `json:"level"`
	Format    string `json:"format"`
	Directory string `json:"directory"`
}

// Defaults applied when the batch section is missing or zero-valued
const (
	DefaultChunkSize    = 10
	DefaultChunkRetries = 1
	DefaultRetryDelay   = 2
)

// LoadConfig reads configuration from the specified file path
func LoadConfig(filePath string) (*Config, error) {
	// Read the configuration file
	configData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Seed batch defaults before parsing so an omitted setting keeps its
	// default while explicit zero retries/delay survive. A non-positive
	// chunk size is invalid and falls back in applyBatchDefaults.
	config := Config{
		Batch: BatchConfig{
			ChunkSize:         DefaultChunkSize,
			ChunkRetries:      DefaultChunkRetries,
			RetryDelaySeconds: DefaultRetryDelay,
		},
	}

	// Unmarshal the JSON data into the Config struct
	if err := json.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyBatchDefaults(&config.Batch)

	return &config, nil
}

func applyBatchDefaults(b *BatchConfig) {
	if b.ChunkSize <= 0 {
		b.ChunkSize = DefaultChunkSize
	}
	if b.ChunkRetries < 0 {
		b.ChunkRetries = DefaultChunkRetries
	}
	if b.RetryDelaySeconds < 0 {
		b.RetryDelaySeconds = DefaultRetryDelay
	}
}
