package db

import (
	"testing"

	"github.com/smallbiznis/tracechain/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialect(t *testing.T) {
	for _, kind := range []string{"postgres", "mysql", "sqlite"} {
		d, err := Dialect(Config{Type: kind, Name: "tracechain"})
		require.NoError(t, err, kind)
		assert.Equal(t, kind, d.Name())
	}

	_, err := Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.Config{DBType: "sqlite", DBName: "dev.db", DBMaxOpenConn: 3})
	assert.Equal(t, "sqlite", cfg.Type)
	assert.Equal(t, "dev.db", cfg.Name)
	assert.Equal(t, 3, cfg.MaxOpenConn)
}
