// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIOrganization string
	OpenAIRPS          float64
	OpenAIBurst        int
	OpenAIImageFormat  string
	DefaultTimeoutSecs int
	DefaultMaxRetries  int
	HTTPAddr           string
	PublicBaseURL      string
	ImageDir           string
	ImageLinkSecret    string
	ImageLinkTTL       time.Duration
	PreviewMaxBytes    int
	DBPath             string
	NATSURL            string
	NATSSubject        string
	ProgressFlush      time.Duration
	ProgressQueueSize  int
	TraceStdout        bool
	LogLevel           string
	Environment        string
}

// Load reads configuration from environment variables or .env file.
func Load() *Config {
	env := os.Getenv("ENV")
	if strings.ToLower(env) != "production" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found; continuing with environment variables")
		}
	}

	return &Config{
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		OpenAIOrganization: getEnv("OPENAI_ORG_ID", ""),
		OpenAIRPS:          getEnvAsFloat("OPENAI_RPS", 2),
		OpenAIBurst:        getEnvAsInt("OPENAI_BURST", 4),
		OpenAIImageFormat:  getEnv("OPENAI_IMAGE_FORMAT", "url"),
		DefaultTimeoutSecs: getEnvAsInt("DEFAULT_TIMEOUT_SECONDS", 60),
		DefaultMaxRetries:  getEnvAsInt("DEFAULT_MAX_RETRIES", 3),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		ImageDir:           getEnv("IMAGE_DIR", "original_images"),
		ImageLinkSecret:    getEnv("IMAGE_LINK_SECRET", ""),
		ImageLinkTTL:       time.Duration(getEnvAsInt("IMAGE_LINK_TTL_MINUTES", 60)) * time.Minute,
		PreviewMaxBytes:    getEnvAsInt("PREVIEW_MAX_BYTES", 512*1024),
		DBPath:             getEnv("DB_PATH", "mcp-openai.db"),
		NATSURL:            getEnv("NATS_URL", ""),
		NATSSubject:        getEnv("NATS_SUBJECT", "mcp_openai.progress"),
		ProgressFlush:      time.Duration(getEnvAsInt("PROGRESS_FLUSH_TIMEOUT_MS", 2000)) * time.Millisecond,
		ProgressQueueSize:  getEnvAsInt("PROGRESS_QUEUE_SIZE", 16),
		TraceStdout:        getEnvAsBool("TRACE_STDOUT", false),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		Environment:        env,
	}
}

// Validate reports every problem at once. A missing API key is fatal at
// startup and never retried.
func (c *Config) Validate() error {
	var errs []error
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.DefaultTimeoutSecs < 30 || c.DefaultTimeoutSecs > 300 {
		errs = append(errs, fmt.Errorf("DEFAULT_TIMEOUT_SECONDS %d outside [30,300]", c.DefaultTimeoutSecs))
	}
	if c.DefaultMaxRetries < 0 || c.DefaultMaxRetries > 5 {
		errs = append(errs, fmt.Errorf("DEFAULT_MAX_RETRIES %d outside [0,5]", c.DefaultMaxRetries))
	}
	if c.PreviewMaxBytes <= 0 {
		errs = append(errs, errors.New("PREVIEW_MAX_BYTES must be positive"))
	}
	if c.ProgressFlush <= 0 {
		errs = append(errs, errors.New("PROGRESS_FLUSH_TIMEOUT_MS must be positive"))
	}
	if c.ProgressQueueSize <= 0 {
		errs = append(errs, errors.New("PROGRESS_QUEUE_SIZE must be positive"))
	}
	if c.ImageLinkSecret != "" && c.ImageLinkTTL <= 0 {
		errs = append(errs, errors.New("IMAGE_LINK_TTL_MINUTES must be positive"))
	}
	return errors.Join(errs...)
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an env var as an integer, with a fallback.
func getEnvAsInt(key string, defaultValue int) int {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as integer. Using default value.", key)
		return defaultValue
	}
	return intValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as float. Using default value.", key)
		return defaultValue
	}
	return f
}

func getEnvAsBool(key string, defaultValue bool) bool {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as bool. Using default value.", key)
		return defaultValue
	}
	return b
}
