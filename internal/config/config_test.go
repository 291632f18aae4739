package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envOf(m map[string]string) LookupEnv {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 2, cfg.Run.MaxQueries)
	assert.Equal(t, 1, cfg.Run.SearchDepth)
	assert.Equal(t, 2, cfg.Run.NumReflections)
	assert.Equal(t, 5, cfg.Run.MaxRowsFromEachSection)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 4, cfg.FanOut.MaxConcurrency)
	assert.Equal(t, "output_files", cfg.Output.Dir)

	d, err := cfg.Retry.Delay()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)
}

func TestLoad_YAML(t *testing.T) {
	path := write(t, "c.yaml", `
run:
  max_queries: 4
  num_reflections: 1
llm:
  model: gpt-4o
store:
  backend: redis
  ttl: 24h
retry:
  base_delay: 10ms
`)
	cfg, err := LoadWithEnv(path, noEnv)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Run.MaxQueries)
	assert.Equal(t, 1, cfg.Run.NumReflections)
	assert.Equal(t, 1, cfg.Run.SearchDepth, "unset values keep defaults")
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, StoreRedis, cfg.Store.Backend)

	ttl, err := cfg.Store.Expiry()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, ttl)
}

func TestLoad_JSON(t *testing.T) {
	path := write(t, "c.json", `{"fanout": {"max_concurrency": 8}, "log": {"format": "json"}}`)
	cfg, err := LoadWithEnv(path, noEnv)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.FanOut.MaxConcurrency)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_HCL(t *testing.T) {
	path := write(t, "c.hcl", `
run {
  max_rows_from_each_section = 10
}
llm {
  provider = "ollama"
  model    = "llama3"
}
`)
	cfg, err := LoadWithEnv(path, noEnv)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Run.MaxRowsFromEachSection)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 2, cfg.Run.MaxQueries)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := write(t, "c.yaml", "llm:\n  model: from-file\n")
	cfg, err := LoadWithEnv(path, envOf(map[string]string{
		"DEEPRESEARCH_LLM_MODEL":       "from-env",
		"OPENAI_API_KEY":               "sk-test",
		"TAVILY_API_KEY":               "tvly-test",
		"DEEPRESEARCH_MAX_CONCURRENCY": "2",
	}))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "tvly-test", cfg.Search.APIKey)
	assert.Equal(t, 2, cfg.FanOut.MaxConcurrency)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := LoadWithEnv(write(t, "c.yaml", "store:\n  backend: s3\n"), noEnv)
	assert.ErrorContains(t, err, "unknown store backend")

	_, err = LoadWithEnv(write(t, "c.yaml", "retry:\n  base_delay: soon\n"), noEnv)
	assert.ErrorContains(t, err, "retry.base_delay")

	_, err = LoadWithEnv(write(t, "c.toml", ""), noEnv)
	assert.ErrorContains(t, err, "unsupported config format")
}
