package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/config"
)

func TestPoolConfig(t *testing.T) {
	pc, err := PoolConfig(config.DatabaseConfig{
		Host:            "db.internal",
		Port:            5433,
		User:            "honeypot",
		Password:        "pw",
		DBName:          "archive",
		SSLMode:         "disable",
		MaxOpenConns:    8,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	require.NoError(t, err)

	assert.Equal(t, "db.internal", pc.ConnConfig.Host)
	assert.Equal(t, uint16(5433), pc.ConnConfig.Port)
	assert.Equal(t, "archive", pc.ConnConfig.Database)
	assert.Equal(t, int32(8), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
	assert.Equal(t, applicationName, pc.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfig_IgnoresIdleAboveMax(t *testing.T) {
	pc, err := PoolConfig(config.DatabaseConfig{
		Host:         "localhost",
		Port:         5432,
		User:         "u",
		DBName:       "d",
		SSLMode:      "disable",
		MaxOpenConns: 1,
		MaxIdleConns: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), pc.MaxConns)
	assert.Equal(t, int32(0), pc.MinConns)
}
