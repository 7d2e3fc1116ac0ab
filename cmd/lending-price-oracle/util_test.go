package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/InjectiveLabs/suplog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel(t *testing.T) {
	assert.Equal(t, log.ErrorLevel, logLevel("error"))
	assert.Equal(t, log.WarnLevel, logLevel("2"))
	assert.Equal(t, log.InfoLevel, logLevel("INFO"))
	assert.Equal(t, log.DebugLevel, logLevel("debug"))
	assert.Equal(t, log.FatalLevel, logLevel("verbose"))
}

func TestToBool(t *testing.T) {
	for _, s := range []string{"true", "TRUE", "1", "t", "yes"} {
		assert.True(t, toBool(s), s)
	}

	for _, s := range []string{"", "false", "0", "no"} {
		assert.False(t, toBool(s), s)
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 10*time.Second, duration("10s", time.Minute))
	assert.Equal(t, time.Minute, duration("ten", time.Minute))
}

func TestCheckStatsdPrefix(t *testing.T) {
	assert.Equal(t, "lending_price_oracle.", checkStatsdPrefix("lending_price_oracle"))
	assert.Equal(t, "lending_price_oracle.", checkStatsdPrefix("lending_price_oracle."))
}

func TestReadEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(
		"ORACLE_TEST_FROM_FILE=file\nORACLE_TEST_PRESET=file\n",
	), 0o600))

	t.Chdir(dir)
	t.Setenv("ORACLE_TEST_PRESET", "env")
	t.Setenv("ORACLE_TEST_FROM_FILE", "")
	require.NoError(t, os.Unsetenv("ORACLE_TEST_FROM_FILE"))

	readEnv()

	assert.Equal(t, "file", os.Getenv("ORACLE_TEST_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("ORACLE_TEST_PRESET"))
}
