package app

import (
	"fmt"
	"time"

	"inkshelf/internal/config"
	"inkshelf/internal/token"
	"inkshelf/pkg/mail"
	"inkshelf/pkg/storage"
	"inkshelf/pkg/store"
)

// Config holds runtime configuration for the core application.
// The Store, Media, Mailer, and Tokens fields override the default
// construction and exist for tests.
type Config struct {
	DatabaseURL    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	TokenTTL       time.Duration
	SMTP           mail.SMTPConfig

	Store  store.Store
	Media  storage.MediaStore
	Mailer mail.Mailer
	Tokens *token.Manager
}

// App is the core application service wiring together storage, media,
// auth, and feedback logic.
type App struct {
	store         store.Store
	media         storage.MediaStore
	mailer        mail.Mailer
	tokens        *token.Manager
	presignExpiry time.Duration
}

// New constructs the application with database-backed metadata storage and
// MinIO-backed media storage.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	media := cfg.Media
	if media == nil {
		var err error
		media, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init media store: %w", err)
		}
	}

	mailer := cfg.Mailer
	if mailer == nil {
		var err error
		mailer, err = mail.NewSMTPMailer(cfg.SMTP)
		if err != nil {
			return nil, fmt.Errorf("init mailer: %w", err)
		}
	}

	tokens := cfg.Tokens
	if tokens == nil {
		var err error
		tokens, err = token.NewManager(cfg.JWTSecret, token.Options{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			TTL:      cfg.TokenTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("init token manager: %w", err)
		}
	}

	return &App{
		store:         dataStore,
		media:         media,
		mailer:        mailer,
		tokens:        tokens,
		presignExpiry: 15 * time.Minute,
	}, nil
}

// FromFileConfig maps the loaded file configuration onto an app Config.
func FromFileConfig(fc config.FileConfig) (Config, error) {
	ttl, err := config.ParseTokenTTL(fc.TokenTTL)
	if err != nil {
		return Config{}, err
	}
	return Config{
		DatabaseURL:    fc.DatabaseURL,
		MinioEndpoint:  fc.MinioEndpoint,
		MinioAccessKey: fc.MinioAccessKey,
		MinioSecretKey: fc.MinioSecretKey,
		MinioBucket:    fc.MinioBucket,
		MinioUseSSL:    fc.MinioUseSSL,
		JWTSecret:      fc.JWTSecret,
		JWTIssuer:      fc.JWTIssuer,
		JWTAudience:    fc.JWTAudience,
		TokenTTL:       ttl,
		SMTP: mail.SMTPConfig{
			Host:      fc.SMTPHost,
			Port:      fc.SMTPPort,
			Username:  fc.SMTPUsername,
			Password:  fc.SMTPPassword,
			FromName:  fc.SMTPFromName,
			Recipient: fc.FeedbackRecipient,
		},
	}, nil
}
