package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	domainconfig "loom-backend/domain/config"
)

// Features holds the runtime-toggleable feature flags. They load from
// the environment and can be overridden by the dynamic config file.
type Features struct {
	EnableRegeneration   bool `json:"enableRegeneration" yaml:"enableRegeneration"`
	EnableSearchIndexing bool `json:"enableSearchIndexing" yaml:"enableSearchIndexing"`
	EnableSummaries      bool `json:"enableSummaries" yaml:"enableSummaries"`
}

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// AWS configuration
	AWSRegion     string
	DynamoDBTable string
	IndexName     string
	EventBusName  string

	// Lambda configuration
	IsLambda bool

	// Generation provider
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	GenerationModel   string
	SummaryModel      string
	GenerationTimeout time.Duration

	// Search index
	WeaviateHost   string
	WeaviateScheme string
	WeaviateAPIKey string
	IndexQueueSize int

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Logging
	LogLevel string

	// Hot-reloadable file configuration; empty disables the watcher
	DynamicConfigPath string

	// Infrastructure toggles
	EnableMetrics   bool
	EnableTracing   bool
	TracingEndpoint string
	EnableCORS      bool

	// Feature flags
	Features Features

	// Domain tuning, derived from the environment profile
	Domain *domainconfig.DomainConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	environment := getEnv("ENVIRONMENT", "development")

	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   environment,
		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("TABLE_NAME", "loom"),
		IndexName:     getEnv("INDEX_NAME", "GSI1"),
		EventBusName:  getEnv("EVENT_BUS_NAME", "loom-events"),

		IsLambda: getEnvBool("IS_LAMBDA", os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""),

		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		GenerationModel:   getEnv("GENERATION_MODEL", "gpt-4o"),
		SummaryModel:      getEnv("SUMMARY_MODEL", "gpt-4o-mini"),
		GenerationTimeout: time.Duration(getEnvInt("GENERATION_TIMEOUT_MS", 90000)) * time.Millisecond,

		WeaviateHost:   getEnv("WEAVIATE_HOST", "localhost:8091"),
		WeaviateScheme: getEnv("WEAVIATE_SCHEME", "http"),
		WeaviateAPIKey: getEnv("WEAVIATE_API_KEY", ""),
		IndexQueueSize: getEnvInt("INDEX_QUEUE_SIZE", 256),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "loom-backend"),

		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DynamicConfigPath: getEnv("DYNAMIC_CONFIG_PATH", ""),
		EnableMetrics:     getEnvBool("ENABLE_METRICS", false),
		EnableTracing:     getEnvBool("ENABLE_TRACING", false),
		TracingEndpoint:   getEnv("TRACING_ENDPOINT", "localhost:4317"),
		EnableCORS:        getEnvBool("ENABLE_CORS", true),

		Features: Features{
			EnableRegeneration:   getEnvBool("ENABLE_REGENERATION", true),
			EnableSearchIndexing: getEnvBool("ENABLE_SEARCH_INDEXING", false),
			EnableSummaries:      getEnvBool("ENABLE_SUMMARIES", true),
		},

		Domain: domainconfig.LoadDomainConfig(environment),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT_MS must be positive")
	}
	if c.IndexQueueSize < 1 {
		return fmt.Errorf("INDEX_QUEUE_SIZE must be at least 1")
	}
	if err := c.Domain.Validate(); err != nil {
		return fmt.Errorf("domain config invalid: %w", err)
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.DynamoDBTable == "" {
			return fmt.Errorf("TABLE_NAME is required")
		}
		if c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required in production")
		}
		if c.Features.EnableSearchIndexing && c.WeaviateHost == "" {
			return fmt.Errorf("WEAVIATE_HOST is required when search indexing is enabled")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
