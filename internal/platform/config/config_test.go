package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnv_fallbacks(t *testing.T) {
	t.Setenv("CS_TEST_STR", "")
	t.Setenv("CS_TEST_INT", "not-a-number")
	t.Setenv("CS_TEST_DUR", "soon")

	assert.Equal(t, "dflt", GetEnv("CS_TEST_STR", "dflt"))
	assert.Equal(t, 7, GetEnvInt("CS_TEST_INT", 7))
	assert.Equal(t, int64(9), GetEnvInt64("CS_TEST_INT", 9))
	assert.Equal(t, 5*time.Second, GetEnvDuration("CS_TEST_DUR", 5*time.Second))
	assert.Equal(t, []string{"a"}, GetEnvList("CS_TEST_STR", []string{"a"}))
}

func TestGetEnv_values(t *testing.T) {
	t.Setenv("CS_TEST_STR", "x")
	t.Setenv("CS_TEST_INT", "42")
	t.Setenv("CS_TEST_DUR", "1m30s")
	t.Setenv("CS_TEST_LIST", "audio/mpeg, audio/mp4 ,,")

	assert.Equal(t, "x", GetEnv("CS_TEST_STR", "dflt"))
	assert.Equal(t, 42, GetEnvInt("CS_TEST_INT", 0))
	assert.Equal(t, int64(42), GetEnvInt64("CS_TEST_INT", 0))
	assert.Equal(t, 90*time.Second, GetEnvDuration("CS_TEST_DUR", 0))
	assert.Equal(t, []string{"audio/mpeg", "audio/mp4"}, GetEnvList("CS_TEST_LIST", nil))
}

func TestLoad_dotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CS_TEST_FROM_FILE=hello\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CS_TEST_FROM_FILE") })

	require.NoError(t, Load(path))
	assert.Equal(t, "hello", GetEnv("CS_TEST_FROM_FILE", ""))
}

func TestLoad_missing_file(t *testing.T) {
	assert.NoError(t, Load(filepath.Join(t.TempDir(), "missing.env")))
}
