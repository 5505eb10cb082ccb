package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 30, cfg.Engine.ExpiryAlertDays)
	assert.InDelta(t, 1e-9, cfg.Engine.Tolerance, 0)
}

func TestLoadLayersFileDotenvAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "labcore.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
storage:
  driver: memory
blob:
  driver: s3
  s3:
    bucket: from-file
    path_style: true
engine:
  tolerance: 0.001
  expiry_alert_days: 14
log:
  level: debug
`), 0o600))
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LABCORE_HTTP_ADDR=:9999\nLABCORE_BLOB_S3_BUCKET=from-dotenv\n"), 0o600))

	t.Setenv("LABCORE_BLOB_S3_BUCKET", "from-env")
	t.Setenv("LABCORE_EXPIRY_ALERT_DAYS", "7")
	t.Cleanup(func() { _ = os.Unsetenv("LABCORE_HTTP_ADDR") })

	cfg, err := Load(LoadOptions{File: file, EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "s3", cfg.Blob.Driver)
	assert.True(t, cfg.Blob.S3.PathStyle)
	assert.Equal(t, "us-east-1", cfg.Blob.S3.Region, "defaults survive partial files")
	assert.Equal(t, "from-env", cfg.Blob.S3.Bucket, "process environment wins over dotenv")
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, 7, cfg.Engine.ExpiryAlertDays)
	assert.InDelta(t, 0.001, cfg.Engine.Tolerance, 1e-12)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFiles(t *testing.T) {
	_, err := Load(LoadOptions{File: filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)

	_, err = Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), "absent.env")})
	require.NoError(t, err, "a missing dotenv file is ignored")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"LABCORE_STORAGE_DRIVER":     "mongo",
		"LABCORE_BLOB_DRIVER":        "ftp",
		"LABCORE_LOG_LEVEL":          "loud",
		"LABCORE_METRICS_BACKEND":    "statsd",
		"LABCORE_ENGINE_TOLERANCE":   "-1",
		"LABCORE_EXPIRY_ALERT_DAYS":  "soon",
		"LABCORE_BLOB_S3_PATH_STYLE": "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load(LoadOptions{})
			assert.Error(t, err)
		})
	}
}

func TestValidateRequiresBucketForS3(t *testing.T) {
	cfg := Default()
	cfg.Blob.Driver = "s3"
	assert.Error(t, cfg.Validate())
	cfg.Blob.S3.Bucket = "archive"
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("storage: [unclosed"), 0o600))
	_, err := Load(LoadOptions{File: file})
	assert.Error(t, err)
}
