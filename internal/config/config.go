package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                 string   `yaml:"port"`
	LogLevel             string   `yaml:"logLevel"`
	DatabaseURL          string   `yaml:"databaseURL"`
	RedisAddr            string   `yaml:"redisAddr"`
	RedisPassword        string   `yaml:"redisPassword"`
	JWTSecret            string   `yaml:"jwtSecret"`
	JWTIssuer            string   `yaml:"jwtIssuer"`
	JWTAudience          string   `yaml:"jwtAudience"`
	TokenTTL             string   `yaml:"tokenTTL"`
	MinioEndpoint        string   `yaml:"minioEndpoint"`
	MinioAccessKey       string   `yaml:"minioAccessKey"`
	MinioSecretKey       string   `yaml:"minioSecretKey"`
	MinioBucket          string   `yaml:"minioBucket"`
	MinioUseSSL          bool     `yaml:"minioUseSSL"`
	SMTPHost             string   `yaml:"smtpHost"`
	SMTPPort             string   `yaml:"smtpPort"`
	SMTPUsername         string   `yaml:"smtpUsername"`
	SMTPPassword         string   `yaml:"smtpPassword"`
	SMTPFromName         string   `yaml:"smtpFromName"`
	FeedbackRecipient    string   `yaml:"feedbackRecipient"`
	ClientOrigin         string   `yaml:"clientOrigin"`
	TrustedProxyCIDRs    []string `yaml:"trustedProxyCidrs"`
	GlobalRateLimit      int      `yaml:"globalRateLimit"`
	AuthRateLimit        int      `yaml:"authRateLimit"`
	RateWindowMinutes    int      `yaml:"rateWindowMinutes"`
	MaxUploadBytes       int64    `yaml:"maxUploadBytes"`
	MaxProfileImageBytes int64    `yaml:"maxProfileImageBytes"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		cfg.SMTPPort = v
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.SMTPUsername = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTPPassword = v
	}
	if v := os.Getenv("FEEDBACK_RECIPIENT"); v != "" {
		cfg.FeedbackRecipient = v
	}
	if v := os.Getenv("CLIENT_ORIGIN"); v != "" {
		cfg.ClientOrigin = v
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.GlobalRateLimit == 0 {
		cfg.GlobalRateLimit = 100
	}
	if cfg.AuthRateLimit == 0 {
		cfg.AuthRateLimit = 10
	}
	if cfg.RateWindowMinutes == 0 {
		cfg.RateWindowMinutes = 15
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if cfg.MaxProfileImageBytes == 0 {
		cfg.MaxProfileImageBytes = 5 << 20
	}
	if cfg.TokenTTL == "" {
		cfg.TokenTTL = "168h"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or JWT_SECRET)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml)")
	}
	if cfg.MinioAccessKey == "" {
		return errors.New("config: minioAccessKey is required (set in config.yaml)")
	}
	if cfg.MinioSecretKey == "" {
		return errors.New("config: minioSecretKey is required (set in config.yaml)")
	}
	if cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required (set in config.yaml)")
	}
	if cfg.GlobalRateLimit < 0 || cfg.AuthRateLimit < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.MaxUploadBytes <= 0 || cfg.MaxProfileImageBytes <= 0 {
		return errors.New("config: upload limits must be > 0")
	}
	if _, err := ParseTokenTTL(cfg.TokenTTL); err != nil {
		return err
	}
	return nil
}

// ParseTokenTTL parses the session token lifetime.
func ParseTokenTTL(ttl string) (time.Duration, error) {
	if ttl == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(ttl)
	if err != nil {
		return 0, fmt.Errorf("invalid tokenTTL duration: %w", err)
	}
	if dur <= 0 {
		return 0, errors.New("config: tokenTTL must be > 0")
	}
	return dur, nil
}

// RateWindow returns the fixed rate limit window.
func (c FileConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowMinutes) * time.Minute
}
