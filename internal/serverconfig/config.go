// Package serverconfig loads the server's operator-facing configuration,
// file- or env-driven, and resolves it into the operator-tunable limits
// internal/item, internal/policy, and internal/feed need.
package serverconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/diskuto/diskuto-api/pkg/utils"
)

// Config is the unified set of server options: { data_dir, bind,
// item_max_bytes, attachment_max_bytes, default_quota_bytes,
// future_skew_minutes, page_limit }.
type Config struct {
	DataDir    string `mapstructure:"data_dir"`
	Bind       string `mapstructure:"bind"`
	ItemMaxBytes       int64 `mapstructure:"item_max_bytes"`
	AttachmentMaxBytes int64 `mapstructure:"attachment_max_bytes"`

	// DefaultQuotaBytes is the per-user budget applied to users admitted
	// only transitively and to known users with no quota override of their
	// own. A negative value means unlimited.
	DefaultQuotaBytes int64 `mapstructure:"default_quota_bytes"`

	FutureSkewMinutes int `mapstructure:"future_skew_minutes"`
	PageLimit         int `mapstructure:"page_limit"`

	WriteWorkers int `mapstructure:"write_workers"`
	ReadWorkers  int `mapstructure:"read_workers"`
}

// defaults mirrors the values an operator gets with no configuration file
// or environment overrides at all.
func defaults() Config {
	return Config{
		DataDir:            "./data",
		Bind:               ":8080",
		ItemMaxBytes:       1 << 20,  // 1 MiB
		AttachmentMaxBytes: 50 << 20, // 50 MiB
		DefaultQuotaBytes:  100 << 20,
		FutureSkewMinutes:  5,
		PageLimit:          50,
		WriteWorkers:       1,
		ReadWorkers:        4,
	}
}

// FutureSkew renders FutureSkewMinutes as a time.Duration for
// item.ValidationConfig.
func (c Config) FutureSkew() time.Duration {
	return time.Duration(c.FutureSkewMinutes) * time.Minute
}

// Load reads an optional `.env` file and an optional config file named
// "diskuto" on the given search paths, with environment variables taking
// precedence over either, and unmarshals the result over Config's
// defaults.
func Load(configPaths ...string) (*Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	v := viper.New()
	v.SetConfigName("diskuto")
	v.SetConfigType("yaml")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")

	cfg := defaults()
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("bind", cfg.Bind)
	v.SetDefault("item_max_bytes", cfg.ItemMaxBytes)
	v.SetDefault("attachment_max_bytes", cfg.AttachmentMaxBytes)
	v.SetDefault("default_quota_bytes", cfg.DefaultQuotaBytes)
	v.SetDefault("future_skew_minutes", cfg.FutureSkewMinutes)
	v.SetDefault("page_limit", cfg.PageLimit)
	v.SetDefault("write_workers", cfg.WriteWorkers)
	v.SetDefault("read_workers", cfg.ReadWorkers)

	v.SetEnvPrefix("DISKUTO")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, utils.Wrap(err, "read config file")
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// LoadFromEnv is Load with the search path taken from the DISKUTO_CONFIG_DIR
// single-variable override.
func LoadFromEnv() (*Config, error) {
	if dir := utils.EnvOrDefault("DISKUTO_CONFIG_DIR", ""); dir != "" {
		return Load(dir)
	}
	return Load()
}

// EnsureDataDirs creates DataDir, the sqlite file's parent directory, before
// store.Open is called. It does not create the blob store root; store.Open
// creates that itself.
func (c Config) EnsureDataDirs() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

// DatabasePath is the sqlite file path within DataDir.
func (c Config) DatabasePath() string {
	return c.DataDir + "/diskuto.sqlite3"
}

// BlobDir is the attachment blob store root within DataDir.
func (c Config) BlobDir() string {
	return c.DataDir + "/files"
}
