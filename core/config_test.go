package core

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setenv(t *testing.T, key, value string) {
	prev, found := os.LookupEnv(key)
	require.NoError(t, os.Setenv(key, value))
	t.Cleanup(func() {
		if found {
			_ = os.Setenv(key, prev)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func TestNewConfig_defaults(t *testing.T) {
	setenv(t, "ENV", "")

	conf := NewConfig()
	assert.Equal(t, "DEV", conf.Env)
	assert.True(t, conf.Debug)
	assert.False(t, conf.TestMode)
	assert.Equal(t, "sql", conf.Storage)
	assert.Equal(t, "postgres", conf.Database.Engine)
	assert.Equal(t, "localhost:5432", conf.Database.Address())
	assert.Equal(t, []string{"*"}, conf.Server.AllowOrigins)
	assert.True(t, decimal.NewFromInt(3).Equal(conf.Library.FeePerDay))
	assert.Equal(t, 2, conf.Library.DueSoonDays)
	assert.Equal(t, 1, conf.Library.Workers)
	assert.Zero(t, conf.Library.NotifyInterval)
	assert.Equal(t, 3, conf.Mail.MaxAttempts)
	assert.Equal(t, "School ERP Library", conf.DefaultFromEmail().Name)
	assert.Equal(t, "library@localhost", conf.DefaultFromEmail().Address)
}

func TestNewConfig_env(t *testing.T) {
	setenv(t, "ENV", "test")
	setenv(t, "TEST_STORAGE", "REST")
	setenv(t, "TEST_REST_URL", "https://db.school.test/rest/v1/")
	setenv(t, "TEST_LIBRARY_FEE_PER_DAY", "2.5")
	setenv(t, "TEST_LIBRARY_NOTIFY_INTERVAL", "1h")
	setenv(t, "TEST_DEFAULT_FROM_EMAIL", "library@school.test")
	setenv(t, "DEV_LIBRARY_WORKERS", "8") // other env: ignored

	conf := NewConfig()
	assert.Equal(t, "TEST", conf.Env)
	assert.True(t, conf.TestMode)
	assert.Equal(t, "rest", conf.Storage)
	assert.Equal(t, "https://db.school.test/rest/v1", conf.Rest.URL)
	assert.Equal(t, "2.5", conf.Library.FeePerDay.String())
	assert.Equal(t, time.Hour, conf.Library.NotifyInterval)
	assert.Equal(t, 1, conf.Library.Workers)
	assert.Equal(t, "School ERP", conf.DefaultFromEmail().Name)
}
