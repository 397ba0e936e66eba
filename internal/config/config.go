// Package config loads client and server configuration from an optional YAML
// file, a .env file and the environment. Environment values override the file;
// flags applied by the caller override both.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Client configures the admin SDK and CLI.
type Client struct {
	APIBaseURL     string        `yaml:"api_base_url"    env:"TIM_API_BASE_URL"    env-default:"http://localhost:3000"`
	ConfigDir      string        `yaml:"config_dir"      env:"TIM_CONFIG_DIR"`
	RuntimeDir     string        `yaml:"runtime_dir"     env:"TIM_RUNTIME_DIR"`
	IdleThreshold  time.Duration `yaml:"idle_threshold"  env:"TIM_IDLE_THRESHOLD"  env-default:"15m"`
	IdleWarning    time.Duration `yaml:"idle_warning"    env:"TIM_IDLE_WARNING"    env-default:"30s"`
	RefreshBuffer  time.Duration `yaml:"refresh_buffer"  env:"TIM_REFRESH_BUFFER"  env-default:"5m"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"TIM_REQUEST_TIMEOUT" env-default:"30s"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"TIM_REFRESH_TIMEOUT" env-default:"10s"`
	LogLevel       string        `yaml:"log_level"       env:"TIM_LOG_LEVEL"       env-default:"warn"`
}

// Server configures the reference backend.
type Server struct {
	Addr           string        `yaml:"addr"              env:"ADDR"              env-default:":3000"`
	DatabaseURL    string        `yaml:"database_url"      env:"DATABASE_URL"      env-required:"true"`
	JWTSecret      string        `yaml:"jwt_secret"        env:"JWT_SECRET"        env-required:"true"`
	AccessTTL      time.Duration `yaml:"access_token_ttl"  env:"ACCESS_TOKEN_TTL"  env-default:"15m"`
	RefreshTTL     time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	ImagesDir      string        `yaml:"images_dir"        env:"IMAGES_DIR"        env-default:"./uploads"`
	PublicBaseURL  string        `yaml:"public_base_url"   env:"PUBLIC_BASE_URL"   env-default:"http://localhost:3000"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"  env:"MAX_UPLOAD_BYTES"  env-default:"5242880"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"    env:"RATE_LIMIT_RPS"    env-default:"20"`
	RateLimitBurst int           `yaml:"rate_limit_burst"  env:"RATE_LIMIT_BURST"  env-default:"40"`
	AdminUsername  string        `yaml:"admin_username"    env:"ADMIN_USERNAME"    env-default:"admin"`
	AdminPassword  string        `yaml:"admin_password"    env:"ADMIN_PASSWORD"`
	Login          LoginLimit    `yaml:"login"`
	S3             S3            `yaml:"s3"`
}

// LoginLimit bounds failed logins per (username, ip).
type LoginLimit struct {
	Window   time.Duration `yaml:"window"    env:"LOGIN_WINDOW"    env-default:"15m"`
	MaxFails int           `yaml:"max_fails" env:"LOGIN_MAX_FAILS" env-default:"5"`
	Block    time.Duration `yaml:"block"     env:"LOGIN_BLOCK"     env-default:"15m"`
}

// S3 selects MinIO image storage when Endpoint is set.
type S3 struct {
	Endpoint  string `yaml:"endpoint"   env:"S3_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
	Bucket    string `yaml:"bucket"     env:"S3_BUCKET"     env-default:"tim-images"`
	UseSSL    bool   `yaml:"use_ssl"    env:"S3_USE_SSL"`
	PublicURL string `yaml:"public_url" env:"S3_PUBLIC_URL"`
}

// Enabled reports whether object storage is configured.
func (s S3) Enabled() bool { return s.Endpoint != "" }

// LoadClient reads client configuration. path may be empty.
func LoadClient(path string) (*Client, error) {
	var cfg Client
	if err := read(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadServer reads server configuration. path may be empty.
func LoadServer(path string) (*Server, error) {
	var cfg Server
	if err := read(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// read loads .env from the working directory (if any), then the YAML file
// at path with environment overrides, or the environment alone.
func read(path string, dst any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file does not exist: %s", path)
		}
		if err := cleanenv.ReadConfig(path, dst); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	if err := cleanenv.ReadEnv(dst); err != nil {
		return fmt.Errorf("read env: %w", err)
	}
	return nil
}

func (c *Client) validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api base url %q must be absolute", c.APIBaseURL)
	}
	if c.IdleThreshold <= 0 {
		return errors.New("idle threshold must be > 0")
	}
	if c.IdleWarning < 0 || c.IdleWarning >= c.IdleThreshold {
		return errors.New("idle warning must be shorter than the idle threshold")
	}
	if c.RefreshBuffer < 0 {
		return errors.New("refresh buffer must be >= 0")
	}
	return nil
}

func (c *Server) validate() error {
	if c.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("jwt secret must be at least 16 bytes")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("token ttls must be > 0")
	}
	if c.Login.MaxFails <= 0 {
		return errors.New("login.max_fails must be > 0")
	}
	if c.S3.Enabled() && (c.S3.AccessKey == "" || c.S3.SecretKey == "") {
		return errors.New("s3 access and secret keys are required when s3 endpoint is set")
	}
	return nil
}
