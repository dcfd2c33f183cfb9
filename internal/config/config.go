// Package config reads incidentdb settings from a YAML file and INCIDENTDB_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"incidentdb/internal/blob"
	"incidentdb/internal/core"
)

type Config struct {
	ListenAddr string         `yaml:"listen_addr" env:"INCIDENTDB_LISTEN_ADDR" env-default:"127.0.0.1:8080"`
	LogLevel   string         `yaml:"log_level" env:"INCIDENTDB_LOG_LEVEL" env-default:"info"`
	URLExpiry  time.Duration  `yaml:"url_expiry" env:"INCIDENTDB_URL_EXPIRY" env-default:"15m"`
	Workbook   WorkbookConfig `yaml:"workbook"`
	Storage    StorageConfig  `yaml:"storage"`
	Blob       BlobConfig     `yaml:"blob"`
}

type WorkbookConfig struct {
	Path           string   `yaml:"path" env:"INCIDENTDB_WORKBOOK" env-default:"fire_incidents.xlsx"`
	RequiredSheets []string `yaml:"required_sheets" env:"INCIDENTDB_REQUIRED_SHEETS" env-separator:","`
}

type StorageConfig struct {
	Driver      string `yaml:"driver" env:"INCIDENTDB_STORAGE_DRIVER" env-default:"memory"`
	SQLitePath  string `yaml:"sqlite_path" env:"INCIDENTDB_SQLITE_PATH" env-default:"incidentdb.db"`
	PostgresDSN string `yaml:"postgres_dsn" env:"INCIDENTDB_POSTGRES_DSN"`
	// Resume keeps the journal contents instead of reloading the workbook.
	Resume bool `yaml:"resume" env:"INCIDENTDB_RESUME" env-default:"false"`
}

type BlobConfig struct {
	Driver    string   `yaml:"driver" env:"INCIDENTDB_BLOB_DRIVER" env-default:"fs"`
	FSRoot    string   `yaml:"fs_root" env:"INCIDENTDB_BLOB_FS_ROOT" env-default:"exports"`
	FSBaseURL string   `yaml:"fs_base_url" env:"INCIDENTDB_BLOB_FS_BASE_URL" env-default:"http://127.0.0.1:8080/api/v1/exports"`
	S3        S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket" env:"INCIDENTDB_S3_BUCKET"`
	Region          string `yaml:"region" env:"INCIDENTDB_S3_REGION" env-default:"us-east-1"`
	Endpoint        string `yaml:"endpoint" env:"INCIDENTDB_S3_ENDPOINT"`
	PathStyle       bool   `yaml:"path_style" env:"INCIDENTDB_S3_PATH_STYLE" env-default:"false"`
	AccessKeyID     string `yaml:"access_key_id" env:"INCIDENTDB_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"INCIDENTDB_S3_SECRET_ACCESS_KEY"`
	SessionToken    string `yaml:"session_token" env:"INCIDENTDB_S3_SESSION_TOKEN"`
}

// Load reads path when given, otherwise the environment alone. Environment
// variables override file values either way.
func Load(path string) (Config, error) {
	var cfg Config
	var err error
	if strings.TrimSpace(path) != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "", "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage driver postgres requires postgres_dsn")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if strings.EqualFold(c.Blob.Driver, string(blob.DriverS3)) && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("blob driver s3 requires a bucket")
	}
	if c.URLExpiry < 0 {
		return fmt.Errorf("url_expiry must not be negative")
	}
	return nil
}

// Usage describes every environment variable.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}

func (c Config) StorageConfig() core.StorageConfig {
	return core.StorageConfig{
		Driver:      c.Storage.Driver,
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver:    c.Blob.Driver,
		FSRoot:    c.Blob.FSRoot,
		FSBaseURL: c.Blob.FSBaseURL,
		S3: blob.S3Config{
			Region:          c.Blob.S3.Region,
			Bucket:          c.Blob.S3.Bucket,
			Endpoint:        c.Blob.S3.Endpoint,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
			SessionToken:    c.Blob.S3.SessionToken,
			PathStyle:       c.Blob.S3.PathStyle,
		},
	}
}
