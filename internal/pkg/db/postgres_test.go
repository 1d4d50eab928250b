package db

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gaur97shiv/playknow/internal/config"
)

func TestApplySettings(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host: "localhost", Port: 5432, User: "u", Password: "p", Name: "n",
		PoolSize:        12,
		MaxConnLifetime: 5 * time.Minute,
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	require.NoError(t, err)

	applySettings(pc, cfg)

	assert.Equal(t, int32(12), pc.MaxConns)
	assert.Equal(t, int32(3), pc.MinConns)
	assert.Equal(t, defaultConnectTimeout, pc.ConnConfig.ConnectTimeout)
	assert.Equal(t, 5*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, defaultMaxConnIdleTime, pc.MaxConnIdleTime)
	assert.Equal(t, healthCheckPeriod, pc.HealthCheckPeriod)
}

func TestApplySettings_SmallPoolKeepsOneConn(t *testing.T) {
	cfg := &config.DatabaseConfig{Host: "localhost", Port: 5432, User: "u", Name: "n", PoolSize: 2}
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	require.NoError(t, err)

	applySettings(pc, cfg)
	assert.Equal(t, int32(1), pc.MinConns)
}
