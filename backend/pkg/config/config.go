package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port       string
	EditorPort string
	Env        string
	CORSOrigin string

	// Neo4j (prompt store server only)
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Remote prompt store, as seen by the structure editor
	PromptAPIURL     string
	PromptAPITimeout time.Duration

	// AI
	LiteLLMURL       string
	ModelID          string
	OpenRouterAPIKey string

	// Layout
	VerticalSpacing   float64
	HorizontalSpacing float64
	RootDefaultX      float64
	RootDefaultY      float64

	// Circuit breakers guarding each remote call class
	BreakerFailureThreshold float64
	BreakerMinRequests      uint32
	BreakerTimeout          time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		EditorPort:              getEnv("EDITOR_PORT", "8090"),
		Env:                     getEnv("ENV", "development"),
		CORSOrigin:              getEnv("CORS_ORIGIN", "*"),
		Neo4jURI:                getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:               getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:           getEnv("NEO4J_PASSWORD", "password"),
		PromptAPIURL:            getEnv("PROMPT_API_URL", "http://localhost:8080"),
		PromptAPITimeout:        time.Duration(getEnvInt("PROMPT_API_TIMEOUT_MS", 10000)) * time.Millisecond,
		LiteLLMURL:              getEnv("LITELLM_URL", ""),
		ModelID:                 getEnv("MODEL_ID", "gpt-3.5-turbo"),
		OpenRouterAPIKey:        getEnv("OPENROUTER_API_KEY", ""),
		VerticalSpacing:         getEnvFloat("LAYOUT_VERTICAL_SPACING", 220),
		HorizontalSpacing:       getEnvFloat("LAYOUT_HORIZONTAL_SPACING", 250),
		RootDefaultX:            getEnvFloat("ROOT_DEFAULT_X", 250),
		RootDefaultY:            getEnvFloat("ROOT_DEFAULT_Y", 5),
		BreakerFailureThreshold: getEnvFloat("BREAKER_FAILURE_THRESHOLD", 0.8),
		BreakerMinRequests:      uint32(getEnvInt("BREAKER_MIN_REQUESTS", 5)),
		BreakerTimeout:          time.Duration(getEnvInt("BREAKER_TIMEOUT_SEC", 60)) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the values every binary depends on
func (c *Config) Validate() error {
	if c.PromptAPIURL == "" {
		return fmt.Errorf("PROMPT_API_URL is required")
	}
	if c.PromptAPITimeout <= 0 {
		return fmt.Errorf("PROMPT_API_TIMEOUT_MS must be positive")
	}
	if c.VerticalSpacing <= 0 || c.HorizontalSpacing <= 0 {
		return fmt.Errorf("layout spacing must be positive")
	}
	if c.BreakerFailureThreshold <= 0 || c.BreakerFailureThreshold > 1 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be in (0, 1]")
	}
	return nil
}

// ValidateStore checks the values only the prompt store server needs
func (c *Config) ValidateStore() error {
	if c.Neo4jURI == "" {
		return fmt.Errorf("NEO4J_URI is required")
	}
	if c.Neo4jUser == "" {
		return fmt.Errorf("NEO4J_USER is required")
	}
	if c.Neo4jPassword == "" {
		return fmt.Errorf("NEO4J_PASSWORD is required")
	}
	// LiteLLM is optional: without it /prompts/execute reports unavailable
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
