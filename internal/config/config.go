package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port         string
	Env          string
	WriteTimeout time.Duration // 0 leaves long generations unbounded
	// TrustProxy honours X-Forwarded-For / X-Real-IP. Only enable behind a
	// proxy that overwrites them.
	TrustProxy bool

	// Logging
	LogLevel  string
	LogFormat string

	// Model
	ModelBackend      string
	ModelName         string
	ModelURL          string
	GeminiAPIKey      string
	ModelConcurrency  int
	ModelLoadTimeout  time.Duration
	GenerationTimeout time.Duration

	// Redis (optional, shared rate limit)
	RedisURL string

	// Access control
	RateLimitPerMin int
	JWTSecret       string

	// Frontend
	AllowedOrigins []string
}

var backends = map[string]bool{
	"tgi":    true,
	"ollama": true,
	"gemini": true,
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	backend := strings.ToLower(getEnvOrDefault("MODEL_BACKEND", "tgi"))

	cfg := &Config{
		Port:              getEnvOrDefault("PORT", "5000"),
		Env:               getEnvOrDefault("ENV", "development"),
		WriteTimeout:      getEnvAsDurationOrDefault("WRITE_TIMEOUT", 0),
		TrustProxy:        getEnvAsBoolOrDefault("TRUST_PROXY", false),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "console"),
		ModelBackend:      backend,
		ModelName:         getEnvOrDefault("MODEL_NAME", defaultModelFor(backend)),
		ModelURL:          strings.TrimRight(getEnvOrDefault("MODEL_URL", "http://127.0.0.1:8080"), "/"),
		GeminiAPIKey:      getEnvOrDefault("GEMINI_API_KEY", ""),
		ModelConcurrency:  getEnvAsIntOrDefault("MODEL_CONCURRENCY", 0),
		ModelLoadTimeout:  getEnvAsDurationOrDefault("MODEL_LOAD_TIMEOUT", 2*time.Minute),
		GenerationTimeout: getEnvAsDurationOrDefault("GENERATION_TIMEOUT", 0),
		RedisURL:          getEnvOrDefault("REDIS_URL", ""),
		RateLimitPerMin:   getEnvAsIntOrDefault("RATE_LIMIT_PER_MINUTE", 0),
		JWTSecret:         getEnvOrDefault("JWT_SECRET", ""),
		AllowedOrigins:    getEnvAsListOrDefault("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	return cfg
}

// Validate reports settings that cannot work together. It is called once at
// startup; a non-nil error is fatal.
func (c *Config) Validate() error {
	if !backends[c.ModelBackend] {
		return fmt.Errorf("unknown MODEL_BACKEND %q (want tgi, ollama or gemini)", c.ModelBackend)
	}
	if c.ModelName == "" {
		return fmt.Errorf("MODEL_NAME must not be empty")
	}
	if c.ModelBackend == "gemini" && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when MODEL_BACKEND=gemini")
	}
	if c.ModelBackend != "gemini" && c.ModelURL == "" {
		return fmt.Errorf("MODEL_URL is required when MODEL_BACKEND=%s", c.ModelBackend)
	}
	if c.ModelConcurrency < 0 {
		return fmt.Errorf("MODEL_CONCURRENCY must be >= 0, got %d", c.ModelConcurrency)
	}
	if c.RateLimitPerMin < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be >= 0, got %d", c.RateLimitPerMin)
	}
	return nil
}

// defaultModelFor returns the model loaded when MODEL_NAME is unset. The
// hosted Gemini API has no gpt2.
func defaultModelFor(backend string) string {
	if backend == "gemini" {
		return "gemini-2.0-flash"
	}
	return "gpt2"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvAsListOrDefault splits a comma separated value, dropping blanks.
func getEnvAsListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
