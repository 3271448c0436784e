package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Storage  StorageConfig  `koanf:"storage"`
	Encoder  EncoderConfig  `koanf:"encoder"`
	Limits   LimitsConfig   `koanf:"limits"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Host        string   `koanf:"host"`
	Port        int      `koanf:"port"`
	PublicURL   string   `koanf:"public_url"`
	CORSOrigins []string `koanf:"cors_origins"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MaxConnections int    `koanf:"max_connections"`
}

type AuthConfig struct {
	JWTSecret     string `koanf:"jwt_secret"`
	JWTExpiry     string `koanf:"jwt_expiry"`
	AdminUsername string `koanf:"admin_username"`
	AdminPassword string `koanf:"admin_password"`
}

type StorageConfig struct {
	Endpoint      string `koanf:"endpoint"`
	Region        string `koanf:"region"`
	Bucket        string `koanf:"bucket"`
	AccessKey     string `koanf:"access_key"`
	SecretKey     string `koanf:"secret_key"`
	PresignExpiry string `koanf:"presign_expiry"`
	SourceTTL     string `koanf:"source_ttl"`
}

type EncoderConfig struct {
	FFmpegBinary  string `koanf:"ffmpeg_binary"`
	FFprobeBinary string `koanf:"ffprobe_binary"`
	WorkDir       string `koanf:"work_dir"`
	MaxConcurrent int    `koanf:"max_concurrent"`
	Preset        string `koanf:"preset"`
	HWAccel       bool   `koanf:"hwaccel"`
	RunTimeout    string `koanf:"run_timeout"`
}

type LimitsConfig struct {
	SubmitBurst          int    `koanf:"submit_burst"`
	SubmitWindow         string `koanf:"submit_window"`
	MaxUploadBytes       int64  `koanf:"max_upload_bytes"`
	DefaultCapacityBytes int64  `koanf:"default_capacity_bytes"`
	LinkExpiry           string `koanf:"link_expiry"`
	ShareExpiry          string `koanf:"share_expiry"`
}

type LoggingConfig struct {
	Level string `koanf:"level"`
}

// Load reads config from TOML file (if provided) then overlays env vars.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := loadDefaults(k); err != nil {
		return nil, err
	}

	// 2. Load TOML config file if provided
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, err
		}
	}

	// 3. Load env vars: CS_SERVER_PORT -> server.port
	// A .env file in the working directory is read first, if present.
	// Only set env vars that have non-empty values to avoid overriding TOML config.
	_ = godotenv.Load()
	if err := k.Load(env.ProviderWithValue("CS_", ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		mapped := strings.Replace(
			strings.ToLower(strings.TrimPrefix(key, "CS_")),
			"_", ".", -1,
		)
		return mapped, value
	}), nil); err != nil {
		return nil, err
	}

	// 4. Handle top-level convenience env vars
	if v := os.Getenv("CS_DATABASE_URL"); v != "" {
		k.Set("database.url", v)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Scratch space for encoder runs if not configured
	if cfg.Encoder.WorkDir == "" {
		cfg.Encoder.WorkDir = filepath.Join(os.TempDir(), "compshare")
	}

	return &cfg, nil
}
