package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/finops-gl/testing"
)

func TestInTestMode(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	t.Cleanup(RefreshTestMode)
	assert.False(t, InTestMode())
}

func TestOpenMappingCacheSkipsRedisInTestMode(t *testing.T) {
	RefreshTestMode()
	cfg := &Config{RedisAddr: "127.0.0.1:1", MappingCacheTTL: time.Minute}
	versioned, client := OpenMappingCache(context.Background(), cfg, newLogger(cfg, io.Discard))
	require.NotNil(t, versioned)
	assert.Nil(t, client)
}
