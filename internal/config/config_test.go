package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RETRIEVAL_TOP_K", "")
	t.Setenv("CHUNK_SIZE", "")
	t.Setenv("QDRANT_COLLECTION_PREFIX", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RetrievalTopK != 5 {
		t.Fatalf("expected default top k 5, got %d", cfg.RetrievalTopK)
	}
	if cfg.ChunkSize != 900 {
		t.Fatalf("expected default chunk size 900, got %d", cfg.ChunkSize)
	}
	if cfg.QdrantCollectionPrefix != "documents" {
		t.Fatalf("expected default collection prefix, got %q", cfg.QdrantCollectionPrefix)
	}
}

func TestLoadParsesEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RETRIEVAL_TOP_K", "8")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("OLLAMA_CHAT_MODEL", "qwen2.5:7b")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RetrievalTopK != 8 {
		t.Fatalf("expected top k 8, got %d", cfg.RetrievalTopK)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rate limit 2.5, got %f", cfg.APIRateLimitRPS)
	}
	if cfg.OllamaChatModel != "qwen2.5:7b" {
		t.Fatalf("expected chat model override, got %q", cfg.OllamaChatModel)
	}
}

func TestLoadYAMLFileWinsOverEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "retrieval_top_k: 11\nqdrant_collection_prefix: tenants\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RETRIEVAL_TOP_K", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RetrievalTopK != 11 {
		t.Fatalf("expected file value 11, got %d", cfg.RetrievalTopK)
	}
	if cfg.QdrantCollectionPrefix != "tenants" {
		t.Fatalf("expected file collection prefix, got %q", cfg.QdrantCollectionPrefix)
	}
}

func TestLoadMissingConfigFileFails(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
