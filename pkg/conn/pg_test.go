package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSNDefaults(t *testing.T) {
	dsn, err := Option{User: "sim", Database: "stockquest"}.dsn()
	require.NoError(t, err)
	assert.Equal(t, "postgres://sim@localhost:5432/stockquest?sslmode=disable", dsn)
}

func TestDSNWithPasswordAndParams(t *testing.T) {
	dsn, err := Option{
		Host:     "db",
		Port:     5433,
		User:     "sim",
		Password: "secret",
		Database: "stockquest",
		SSLMode:  "require",
		Params:   map[string]string{"application_name": "simd"},
	}.dsn()
	require.NoError(t, err)
	assert.Equal(t, "postgres://sim:secret@db:5433/stockquest?application_name=simd&sslmode=require", dsn)
}

func TestDSNConnStringOverrides(t *testing.T) {
	dsn, err := Option{
		ConnString: "postgres://elsewhere/other",
		Host:       "ignored",
	}.dsn()
	require.NoError(t, err)
	assert.Equal(t, "postgres://elsewhere/other", dsn)
}
