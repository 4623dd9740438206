package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Shopify   ShopifyConfig   `mapstructure:"shopify"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

type ServerConfig struct {
	Port               string        `mapstructure:"port"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes     int64         `mapstructure:"max_upload_bytes"`
}

type DatabaseConfig struct {
	Host       string `mapstructure:"host"`
	Port       string `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Name       string `mapstructure:"name"`
	SSLMode    string `mapstructure:"sslmode"`
	SchemaPath string `mapstructure:"schema_path"`
	MaxOpen    int    `mapstructure:"max_open"`
	MaxIdle    int    `mapstructure:"max_idle"`
}

type MatchingConfig struct {
	RulesFile string `mapstructure:"rules_file"` // empty means the built-in rules
}

type ArtifactsConfig struct {
	Driver    string `mapstructure:"driver"` // local, s3 or none
	Dir       string `mapstructure:"dir"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type ShopifyConfig struct {
	StoreDomain string        `mapstructure:"store_domain"`
	AccessToken string        `mapstructure:"access_token"`
	APIVersion  string        `mapstructure:"api_version"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PageSize    int           `mapstructure:"page_size"`
}

// Load reads .env (if present) and the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.cors_allowed_origins", []string{"http://localhost:3000", "http://localhost:3001"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(20<<20))

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "cafe_inventory")
	v.SetDefault("database.password", "cafe_inventory")
	v.SetDefault("database.name", "cafe_inventory")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.schema_path", "")
	v.SetDefault("database.max_open", 10)
	v.SetDefault("database.max_idle", 5)

	v.SetDefault("matching.rules_file", "")

	v.SetDefault("artifacts.driver", "local")
	v.SetDefault("artifacts.dir", "var/imports")
	v.SetDefault("artifacts.prefix", "imports/")

	v.SetDefault("shopify.api_version", "2024-01")
	v.SetDefault("shopify.timeout", 30*time.Second)
	v.SetDefault("shopify.page_size", 250)
}

// bindEnv keeps the flat variable names used by deployments.
func bindEnv(v *viper.Viper) {
	v.BindEnv("app.log_level", "LOG_LEVEL")
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.cors_allowed_origins", "CORS_ALLOWED_ORIGINS")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.schema_path", "DB_SCHEMA_PATH")
	v.BindEnv("matching.rules_file", "MATCHING_RULES_FILE")
	v.BindEnv("artifacts.driver", "ARTIFACTS_DRIVER")
	v.BindEnv("artifacts.dir", "ARTIFACTS_DIR")
	v.BindEnv("artifacts.bucket", "ARTIFACTS_S3_BUCKET")
	v.BindEnv("artifacts.region", "ARTIFACTS_S3_REGION")
	v.BindEnv("artifacts.access_key", "AWS_ACCESS_KEY_ID")
	v.BindEnv("artifacts.secret_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("shopify.store_domain", "SHOPIFY_STORE_DOMAIN")
	v.BindEnv("shopify.access_token", "SHOPIFY_ACCESS_TOKEN")
	v.BindEnv("shopify.api_version", "SHOPIFY_API_VERSION")
}

func validateConfig(cfg *Config) error {
	if len(cfg.Server.CORSAllowedOrigins) == 1 && strings.Contains(cfg.Server.CORSAllowedOrigins[0], ",") {
		cfg.Server.CORSAllowedOrigins = strings.Split(cfg.Server.CORSAllowedOrigins[0], ",")
	}
	switch cfg.Artifacts.Driver {
	case "local":
		if cfg.Artifacts.Dir == "" {
			return errors.New("artifacts.dir is required for the local driver")
		}
	case "s3":
		if cfg.Artifacts.Bucket == "" || cfg.Artifacts.Region == "" {
			return errors.New("artifacts.bucket and artifacts.region are required for the s3 driver")
		}
	case "none":
	default:
		return fmt.Errorf("unknown artifacts driver %q", cfg.Artifacts.Driver)
	}
	if cfg.Database.Host == "" || cfg.Database.Name == "" {
		return errors.New("database host and name are required")
	}
	return nil
}
