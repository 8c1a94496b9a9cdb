package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	DatabaseURL  string
	Host         string
	Port         string
	JwtSecret    string
	GeminiAPIKey string
	GeminiModel  string

	CORSOrigins []string

	VideoDir     string
	TempDir      string
	MaxImageSize int64

	ManimQuality string
	ManimTimeout time.Duration

	// Soft complexity thresholds for generated scripts. Exceeding them
	// triggers simplification and warnings, never a hard failure.
	MaxScriptChars int
	MaxScriptLines int
	MaxTextCalls   int

	// Credits granted to newly registered accounts.
	DefaultCredits int

	AdminEmail    string
	AdminPassword string

	// Firebase/Google project ID used as the OIDC audience for
	// Google sign-in. Sign-in is disabled when empty.
	GoogleProjectID string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found, relying on process environment")
	}

	cfg := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		Host:         getEnv("HOST", "127.0.0.1"),
		Port:         getEnv("PORT", "8080"),
		JwtSecret:    os.Getenv("JWT_SECRET"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:5173"), ","),

		VideoDir:     getEnv("VIDEO_STORAGE_PATH", "videos"),
		TempDir:      getEnv("TEMP_CODE_PATH", "temp"),
		MaxImageSize: int64(getEnvInt("MAX_IMAGE_SIZE_MB", 10)) * 1024 * 1024,

		ManimQuality: getEnv("MANIM_QUALITY", "qh"),
		ManimTimeout: time.Duration(getEnvInt("MANIM_TIMEOUT", 180)) * time.Second,

		MaxScriptChars: getEnvInt("MAX_SCRIPT_CHARS", 8000),
		MaxScriptLines: getEnvInt("MAX_SCRIPT_LINES", 220),
		MaxTextCalls:   getEnvInt("MAX_TEXT_CALLS", 15),

		DefaultCredits: getEnvInt("DEFAULT_CREDITS", 3),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		GoogleProjectID: os.Getenv("GOOGLE_PROJECT_ID"),
	}

	if cfg.JwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set. This is critical for authentication.")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	if cfg.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY is not set")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("Invalid value for %s: %q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}
