package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Pin every variable so the host environment cannot leak in.
	t.Setenv("PORT", "8080")
	t.Setenv("MODEL_PATH", "models/face_emotionModel.onnx")
	t.Setenv("UPLOADS_DIR", "static/uploads")
	t.Setenv("MAX_UPLOAD_BYTES", "16777216")
	t.Setenv("ALLOWED_EXTENSIONS", "png,jpg,jpeg,gif")
	t.Setenv("DATABASE_URL", "predictions.db")
	t.Setenv("INFERENCE_WORKERS", "2")
	t.Setenv("LOG_LEVEL", "info")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(16<<20), cfg.MaxUploadBytes)
	assert.Equal(t, int64(16), cfg.MaxUploadMB())
	assert.Equal(t, []string{"png", "jpg", "jpeg", "gif"}, cfg.AllowedExtensions)
	assert.Equal(t, 2, cfg.InferenceWorkers)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("ALLOWED_EXTENSIONS", " .PNG , jpg,,")
	t.Setenv("INFERENCE_WORKERS", "4")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, []string{"png", "jpg"}, cfg.AllowedExtensions)
	assert.Equal(t, 4, cfg.InferenceWorkers)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non numeric upload size", "MAX_UPLOAD_BYTES", "lots"},
		{"zero upload size", "MAX_UPLOAD_BYTES", "0"},
		{"zero workers", "INFERENCE_WORKERS", "0"},
		{"unknown log level", "LOG_LEVEL", "chatty"},
		{"no extensions", "ALLOWED_EXTENSIONS", " , "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvValue(t *testing.T) {
	t.Setenv("FER_TEST_SET", "value")
	assert.Equal(t, "value", GetEnvValue("FER_TEST_SET", "fallback"))
	assert.Equal(t, "fallback", GetEnvValue("FER_TEST_DEFINITELY_UNSET", "fallback"))
}
