package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort       string
	LogLevel       string
	StorageBackend string
	DatabaseURL    string
	StorageTimeout time.Duration
	JWTSecret      string
	TokenTTL       time.Duration
	GeminiAPIKey   string
	ChatModel      string
	GoogleClientID string
	CORSOrigins    []string
}

var AppConfig Config

// ErrMissingJWTSecret is returned by RequireJWTSecret when tokens cannot be signed.
var ErrMissingJWTSecret = errors.New("JWT_SECRET environment variable is required")

var validBackends = map[string]bool{"bolt": true, "sqlite": true, "memory": true}

func LoadConfig() error {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Could not read .env file: %v", err)
	}

	cfg := Config{
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", "bolt")),
		DatabaseURL:    getEnv("DATABASE_URL", "data/mindfulspace.db"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		ChatModel:      getEnv("CHAT_MODEL", "gemini-1.5-flash-latest"),
		GoogleClientID: getEnv("GOOGLE_CLIENT_ID", ""),
		CORSOrigins:    getEnvAsList("CORS_ORIGINS", []string{"*"}),
	}

	if cfg.StorageTimeout, err = getEnvAsDuration("STORAGE_TIMEOUT", 5*time.Second); err != nil {
		return err
	}
	if cfg.TokenTTL, err = getEnvAsDuration("TOKEN_TTL", 24*time.Hour); err != nil {
		return err
	}

	if !validBackends[cfg.StorageBackend] {
		return fmt.Errorf("STORAGE_BACKEND must be one of bolt, sqlite, memory (got %q)", cfg.StorageBackend)
	}
	AppConfig = cfg
	return nil
}

// RequireJWTSecret fails when the loaded configuration cannot sign bearer
// tokens. Only commands that serve HTTP need one.
func RequireJWTSecret() error {
	if AppConfig.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
