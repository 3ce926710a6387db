package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Crypto   CryptoConfig   `mapstructure:"crypto"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Log      LogConfig      `mapstructure:"log"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	Port         string `mapstructure:"port"`
	AllowOrigins string `mapstructure:"allow_origins"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres or memory
	URL    string `mapstructure:"url"`

	// SeedRooms are created at startup with the memory driver, for local runs
	SeedRooms []RoomSeed `mapstructure:"seed_rooms"`
}

type RoomSeed struct {
	ID           string   `mapstructure:"id"`
	Name         string   `mapstructure:"name"`
	Participants []string `mapstructure:"participants"`
}

type CryptoConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
	HMACKey       string `mapstructure:"hmac_key"`
	AllowWeakKeys bool   `mapstructure:"allow_weak_keys"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type StorageConfig struct {
	Backend string        `mapstructure:"backend"` // local or s3
	Local   LocalConfig   `mapstructure:"local"`
	S3      S3StoreConfig `mapstructure:"s3"`
}

type LocalConfig struct {
	BasePath string `mapstructure:"base_path"`
}

type S3StoreConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

type UploadConfig struct {
	MaxSize int64 `mapstructure:"max_size"`
}

type LogConfig struct {
	HashSalt string `mapstructure:"hash_salt"`
}

// IsProduction reports whether the process runs with production settings
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.App.Env) {
	case "prod", "production":
		return true
	}
	return false
}

// Load reads config.yaml (optional) from the given directory and overlays the
// environment. Flat names such as DATABASE_URL and PORT are bound explicitly.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.env", "development")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allow_origins", "http://localhost:3000")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local.base_path", "./uploads")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("upload.max_size", 5*1024*1024)

	_ = v.BindEnv("app.env", "APP_ENV")
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.allow_origins", "ALLOW_ORIGINS")
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("crypto.encryption_key", "CHAT_ENCRYPTION_KEY")
	_ = v.BindEnv("crypto.hmac_key", "CHAT_HMAC_KEY")
	_ = v.BindEnv("crypto.allow_weak_keys", "CHAT_ALLOW_WEAK_KEYS")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("redis.address", "REDIS_ADDRESS")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("storage.backend", "STORAGE_BACKEND")
	_ = v.BindEnv("storage.local.base_path", "UPLOAD_DIR")
	_ = v.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("storage.s3.region", "S3_REGION")
	_ = v.BindEnv("storage.s3.bucket", "S3_BUCKET")
	_ = v.BindEnv("storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	_ = v.BindEnv("storage.s3.use_path_style", "S3_USE_PATH_STYLE")
	_ = v.BindEnv("log.hash_salt", "LOG_HASH_SALT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail late at runtime
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Storage.Backend {
	case "local", "s3":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required for the s3 storage backend")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	if c.Crypto.EncryptionKey == "" || c.Crypto.HMACKey == "" {
		return fmt.Errorf("CHAT_ENCRYPTION_KEY and CHAT_HMAC_KEY must be set")
	}
	if c.Crypto.AllowWeakKeys && c.IsProduction() {
		return fmt.Errorf("weak chat keys are not allowed in production")
	}
	if c.Log.HashSalt == "" && c.IsProduction() {
		return fmt.Errorf("LOG_HASH_SALT must be set in production")
	}
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload.max_size must be positive")
	}
	return nil
}
