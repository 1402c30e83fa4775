package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const defaultMaxUploadBytes = 16 << 20

// Config holds everything the server and the offline commands need.
type Config struct {
	Port              string
	ModelPath         string
	MetadataPath      string
	ORTLibraryPath    string
	CascadePath       string
	UploadsDir        string
	MaxUploadBytes    int64
	AllowedExtensions []string
	DatabaseURL       string
	InferenceWorkers  int
	LogLevel          slog.Level
}

// Load reads a .env file if one exists and then the process environment.
func Load() (*Config, error) {
	// Missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{
		Port:              GetEnvValue("PORT", "8080"),
		ModelPath:         GetEnvValue("MODEL_PATH", "models/face_emotionModel.onnx"),
		MetadataPath:      GetEnvValue("MODEL_METADATA_PATH", "models/model_metadata.json"),
		ORTLibraryPath:    GetEnvValue("ONNXRUNTIME_LIB", ""),
		CascadePath:       GetEnvValue("CASCADE_PATH", "models/haarcascade_frontalface_default.xml"),
		UploadsDir:        GetEnvValue("UPLOADS_DIR", "static/uploads"),
		DatabaseURL:       GetEnvValue("DATABASE_URL", "predictions.db"),
		AllowedExtensions: ParseExtensions(GetEnvValue("ALLOWED_EXTENSIONS", "png,jpg,jpeg,gif")),
	}

	maxBytes, err := strconv.ParseInt(GetEnvValue("MAX_UPLOAD_BYTES", strconv.Itoa(defaultMaxUploadBytes)), 10, 64)
	if err != nil || maxBytes <= 0 {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %q", os.Getenv("MAX_UPLOAD_BYTES"))
	}
	cfg.MaxUploadBytes = maxBytes

	workers, err := strconv.Atoi(GetEnvValue("INFERENCE_WORKERS", "2"))
	if err != nil || workers < 1 {
		return nil, fmt.Errorf("invalid INFERENCE_WORKERS: %q", os.Getenv("INFERENCE_WORKERS"))
	}
	cfg.InferenceWorkers = workers

	if err := cfg.LogLevel.UnmarshalText([]byte(GetEnvValue("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if len(cfg.AllowedExtensions) == 0 {
		return nil, fmt.Errorf("ALLOWED_EXTENSIONS must name at least one extension")
	}

	return cfg, nil
}

// GetEnvValue returns the value of key, or fallback when the variable is unset.
func GetEnvValue(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ParseExtensions splits a comma separated list into lower-case extensions
// without leading dots.
func ParseExtensions(list string) []string {
	var exts []string
	for _, part := range strings.Split(list, ",") {
		ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(part), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	return exts
}

// MaxUploadMB is used in user facing messages.
func (c *Config) MaxUploadMB() int64 {
	return c.MaxUploadBytes >> 20
}
