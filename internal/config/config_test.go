package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBHost)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, "localhost:8080", cfg.WeaviateHost)
	assert.Equal(t, "nsqlookupd:4161", cfg.NSQLookupd)
	assert.Equal(t, 100, cfg.ChunkMaxTokens)
	assert.Equal(t, 32, cfg.EmbedBatchSize)
	assert.Equal(t, 4, cfg.IngestWorkers)
	assert.Equal(t, 8081, cfg.ServerPort)
	assert.True(t, cfg.EnableAPI)
	assert.True(t, cfg.EnableSyncWorker)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("ENABLE_SYNC_WORKER", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.Equal(t, 9000, cfg.ServerPort)
	assert.False(t, cfg.EnableSyncWorker)
}

func TestValidate(t *testing.T) {
	valid := Config{
		DBHost:         "postgres",
		DBUser:         "notia",
		DBName:         "notia",
		ChunkMaxTokens: 100,
		EmbedBatchSize: 32,
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"Missing DB Host", func(c *Config) { c.DBHost = "" }, "DB_HOST"},
		{"Missing DB User", func(c *Config) { c.DBUser = "" }, "DB_USER"},
		{"Missing DB Name", func(c *Config) { c.DBName = "" }, "DB_NAME"},
		{"Zero Chunk Size", func(c *Config) { c.ChunkMaxTokens = 0 }, "CHUNK_MAX_TOKENS"},
		{"Zero Batch Size", func(c *Config) { c.EmbedBatchSize = 0 }, "EMBED_BATCH_SIZE"},
	}

	require.NoError(t, valid.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingRequired)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
