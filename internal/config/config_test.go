package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "gemini", cfg.LLMProvider)
	assert.Equal(t, []string{"admin", "editor"}, cfg.IngestRoles)
	assert.Equal(t, int64(25_000_000), cfg.MaxDownloadBytes)
	assert.Equal(t, 15*time.Second, cfg.StreamKeepAlive)
	assert.Equal(t, 78, cfg.WrapColumn)
	assert.Contains(t, cfg.FetchUserAgent, "Mozilla/5.0")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MAX_DOWNLOAD_BYTES", "2 MiB")
	t.Setenv("INGEST_ROLES", " admin , , owner")
	t.Setenv("FETCH_TIMEOUT", "3s")
	t.Setenv("IMPORT_CONCURRENCY", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, int64(2*1024*1024), cfg.MaxDownloadBytes)
	assert.Equal(t, []string{"admin", "owner"}, cfg.IngestRoles)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 1, cfg.ImportConcurrency)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{"GEMINI_API_KEY": "k"}, "JWT_SECRET"},
		{"missing gemini key", map[string]string{"JWT_SECRET": "s"}, "GEMINI_API_KEY"},
		{"unknown provider", map[string]string{"JWT_SECRET": "s", "LLM_PROVIDER": "llama"}, "LLM_PROVIDER"},
		{"gcs without bucket", map[string]string{"JWT_SECRET": "s", "GEMINI_API_KEY": "k", "OBJECT_STORE": "gcs"}, "GCS_BUCKET"},
		{"bad byte size", map[string]string{"JWT_SECRET": "s", "GEMINI_API_KEY": "k", "MAX_DOWNLOAD_BYTES": "lots"}, "MAX_DOWNLOAD_BYTES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			t.Setenv("GEMINI_API_KEY", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
