package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsFromEnvironment(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "fire_incidents.xlsx", cfg.Workbook.Path)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "fs", cfg.Blob.Driver)
	assert.Equal(t, 15*time.Minute, cfg.URLExpiry)
	assert.Empty(t, cfg.Workbook.RequiredSheets)
}

func TestLoadFileWithEnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incidentdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9000"
url_expiry: 10m
workbook:
  path: /data/fire.xlsx
  required_sheets: [Incident_Times, Personnel]
storage:
  driver: sqlite
  sqlite_path: /data/journal.db
  resume: true
blob:
  driver: s3
  s3:
    bucket: exports
    endpoint: http://minio:9000
    path_style: true
`), 0o600))
	t.Setenv("INCIDENTDB_LISTEN_ADDR", ":9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.ListenAddr)
	assert.Equal(t, 10*time.Minute, cfg.URLExpiry)
	assert.Equal(t, []string{"Incident_Times", "Personnel"}, cfg.Workbook.RequiredSheets)
	assert.True(t, cfg.Storage.Resume)

	store := cfg.StorageConfig()
	assert.Equal(t, "sqlite", store.Driver)
	assert.Equal(t, "/data/journal.db", store.SQLitePath)

	blobs := cfg.BlobConfig()
	assert.Equal(t, "s3", blobs.Driver)
	assert.Equal(t, "exports", blobs.S3.Bucket)
	assert.Equal(t, "us-east-1", blobs.S3.Region)
	assert.True(t, blobs.S3.PathStyle)
}

func TestRequiredSheetsFromEnvironment(t *testing.T) {
	t.Setenv("INCIDENTDB_REQUIRED_SHEETS", "Personnel,Apparatus")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"Personnel", "Apparatus"}, cfg.Workbook.RequiredSheets)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"postgres without dsn": func(c *Config) { c.Storage.Driver = "postgres" },
		"unknown storage":      func(c *Config) { c.Storage.Driver = "mysql" },
		"s3 without bucket":    func(c *Config) { c.Blob.Driver = "s3" },
		"negative expiry":      func(c *Config) { c.URLExpiry = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Config{}
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	ok := Config{Storage: StorageConfig{Driver: "postgres", PostgresDSN: "postgres://localhost/incidents"}}
	assert.NoError(t, ok.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestUsageListsVariables(t *testing.T) {
	assert.Contains(t, Usage(), "INCIDENTDB_WORKBOOK")
}
