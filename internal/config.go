package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds every knob of the migration. Values come from
// takeout2immich.toml in the user config dir; CLI flags override them.
type Config struct {
	ServerURL     string        `mapstructure:"server_url"`
	APIKey        string        `mapstructure:"api_key"`
	TakeoutPath   string        `mapstructure:"takeout_path"`
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
	DryRun        bool          `mapstructure:"dry_run"`
	UseExifTool   bool          `mapstructure:"exiftool"`

	ImageExt        []string `mapstructure:"image_extensions"`
	VideoExt        []string `mapstructure:"video_extensions"`
	SidecarSuffixes []string `mapstructure:"sidecar_suffixes"`
	DescriptorNames []string `mapstructure:"album_descriptor_names"`

	LogFile       string `mapstructure:"log_file"`
	AlbumAuditLog string `mapstructure:"album_audit_log"`
	ManifestDir   string `mapstructure:"manifest_dir"`
}

func LoadConfig() (*Config, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to find user config dir: %w", err)
	}

	viper.SetConfigName("takeout2immich")
	viper.SetConfigType("toml")
	viper.AddConfigPath(filepath.Join(configDir, "takeout2immich"))

	// Set defaults:
	viper.SetDefault("server_url", "http://localhost:2283")
	viper.SetDefault("api_key", "")
	viper.SetDefault("workers", 10)
	viper.SetDefault("batch_size", 100)
	viper.SetDefault("retry_attempts", 3)
	viper.SetDefault("upload_timeout", 300*time.Second)
	viper.SetDefault("image_extensions", []string{
		".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".tif", ".heic", ".heif",
	})
	viper.SetDefault("video_extensions", []string{".mp4", ".mov", ".avi", ".mkv", ".webm"})
	viper.SetDefault("sidecar_suffixes", []string{
		".supplemental-metadata.json",
		".supplemental-metadata copy.json",
	})
	// Takeout localizes the album descriptor name; cover the common exports.
	viper.SetDefault("album_descriptor_names", []string{"metadata.json", "Metadaten.json"})
	viper.SetDefault("log_file", "migration.log")
	viper.SetDefault("album_audit_log", "album_audit.log")
	viper.SetDefault("manifest_dir", "migrations")

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found; that's OK, just use defaults
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
