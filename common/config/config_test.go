package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("multidim")
	require.NoError(t, err)

	assert.Equal(t, "multidim", cfg.Service.Name)
	assert.Equal(t, 8080, cfg.Service.Port)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 300*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "127.0.0.1:6379", cfg.CacheAddr())
	assert.Empty(t, cfg.Access.AuthorizedChunkAccess)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MULTIDIM_ENABLE_CACHE", "false")
	t.Setenv("MULTIDIM_CACHE_HOST", "cache.internal")
	t.Setenv("MULTIDIM_CACHE_PORT", "6380")
	t.Setenv("MULTIDIM_CACHE_TTL", "90s")

	cfg, err := Load("multidim")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Service.Port)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "cache.internal:6380", cfg.CacheAddr())
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
}

func TestLoadChunkAccess(t *testing.T) {
	t.Setenv("MULTIDIM_AUTHORIZED_CHUNK_ACCESS",
		`{"s3://open-data/": {"anonymous": true}, "s3://internal/": {"from_env": true}, "s3://partner/": {"access_key_id": "AK", "secret_access_key": "SK"}}`)

	cfg, err := Load("multidim")
	require.NoError(t, err)

	access := cfg.Access.AuthorizedChunkAccess
	require.Len(t, access, 3)
	assert.True(t, access["s3://open-data/"].Anonymous)
	assert.True(t, access["s3://internal/"].FromEnv)
	assert.Equal(t, "AK", access["s3://partner/"].AccessKey)
	assert.Equal(t, "SK", access["s3://partner/"].SecretKey)
}

func TestLoadChunkAccessInvalidJSON(t *testing.T) {
	t.Setenv("MULTIDIM_AUTHORIZED_CHUNK_ACCESS", "{not json")

	_, err := Load("multidim")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MULTIDIM_AUTHORIZED_CHUNK_ACCESS")
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Service: ServiceConfig{Port: 8080},
		Cache:   CacheConfig{Enabled: true, Host: "localhost", TTL: time.Minute},
	}
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Service.Port = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Cache.Host = ""
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Cache.TTL = 0
	assert.Error(t, bad.Validate())
}
