// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

// configPath is filled by the --config flag before the other flags resolve
// their TOML sources.
var configPath = "config.toml"

var configFile = altsrc.NewStringPtrSourcer(&configPath)

var (
	ErrMissingOTPSecret = errors.New("otp secret is required")
	ErrInvalidAESKey    = errors.New("AES secret key must be 64 hex characters (32 bytes)")
	ErrInvalidThreshold = errors.New("voice threshold must be in (0, 1]")
	ErrInvalidValidity  = errors.New("otp validity must be positive")
	ErrInvalidLength    = errors.New("otp length must be positive")
	ErrInvalidRate      = errors.New("voice sample rate must be positive")
)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	TLS      TLSConfig
	OTP      OTPConfig
	Crypto   CryptoConfig
	Voice    VoiceConfig
	SMTP     SMTPConfig
}

type TLSConfig struct {
	Mode     string // auto, acme, selfsigned, manual, off
	CertDir  string // Directory for auto-generated certificates
	Email    string // ACME email for Let's Encrypt
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB, voice uploads included
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

// OTPConfig holds the signing secret and code shape for one-time passcodes.
// Changing Secret invalidates every outstanding token.
type OTPConfig struct {
	Secret   string
	Validity time.Duration
	Length   int
}

type CryptoConfig struct {
	AESKey string // 64 hex characters
}

type VoiceConfig struct { //nolint:govet // fieldalignment not critical for config structs
	EmbedderURL string
	Threshold   float64
	SampleRate  int
	Timeout     time.Duration
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		OTP: OTPConfig{
			Secret:   cmd.String("otp-secret"),
			Validity: cmd.Duration("otp-validity"),
			Length:   int(cmd.Int("otp-length")),
		},
		Crypto: CryptoConfig{
			AESKey: cmd.String("aes-secret-key"),
		},
		Voice: VoiceConfig{
			EmbedderURL: cmd.String("voice-embedder-url"),
			Threshold:   cmd.Float("voice-threshold"),
			SampleRate:  int(cmd.Int("voice-sample-rate")),
			Timeout:     cmd.Duration("voice-timeout"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

// Validate checks the secrets and tunables the server cannot start without.
func (c *Config) Validate() error {
	if c.OTP.Secret == "" {
		return ErrMissingOTPSecret
	}
	if c.OTP.Validity <= 0 {
		return ErrInvalidValidity
	}
	if c.OTP.Length <= 0 {
		return ErrInvalidLength
	}
	if _, err := c.AESKeyBytes(); err != nil {
		return err
	}
	if c.Voice.Threshold <= 0 || c.Voice.Threshold > 1 {
		return ErrInvalidThreshold
	}
	if c.Voice.SampleRate <= 0 {
		return ErrInvalidRate
	}
	return nil
}

// AESKeyBytes decodes the hex-encoded AES key.
func (c *Config) AESKeyBytes() ([]byte, error) {
	if len(c.Crypto.AESKey) != 64 {
		return nil, ErrInvalidAESKey
	}
	key, err := hex.DecodeString(c.Crypto.AESKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAESKey, err)
	}
	return key, nil
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	scheme := "http"
	if shouldUseTLS(mode, host) {
		scheme = "https"
	}

	// ACME mode always uses port 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "acme", "selfsigned", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1", "0.0.0.0":
		return true
	}
	return strings.HasSuffix(host, ".localhost")
}

func source(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       "config.toml",
			Usage:       "Path to configuration file",
			Destination: &configPath,
			Sources:     cli.EnvVars("CONFIG"),
		},
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: source("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8000,
			Usage:   "Port to listen on",
			Sources: source("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: source("BASE_URL", "server.base_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   10,
			Usage:   "Maximum request body size in MB (voice uploads included)",
			Sources: source("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: source("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: source("LOG_FORMAT", "log.format"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/voiceauth.db",
			Usage:   "Database DSN",
			Sources: source("DATABASE_DSN", "database.dsn"),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "auto",
			Usage:   "TLS mode (auto, acme, selfsigned, manual, off)",
			Sources: source("TLS_MODE", "tls.mode"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for auto-generated certificates",
			Sources: source("TLS_CERT_DIR", "tls.cert_dir"),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: source("TLS_EMAIL", "tls.email"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: source("TLS_CERT_FILE", "tls.cert_file"),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: source("TLS_KEY_FILE", "tls.key_file"),
		},
		// OTP flags
		&cli.StringFlag{
			Name:    "otp-secret",
			Usage:   "HMAC secret used to sign OTP tokens",
			Sources: source("OTP_SECRET", "otp.secret"),
		},
		&cli.DurationFlag{
			Name:    "otp-validity",
			Value:   2 * time.Minute,
			Usage:   "How long an issued OTP stays valid",
			Sources: source("OTP_VALIDITY", "otp.validity"),
		},
		&cli.IntFlag{
			Name:    "otp-length",
			Value:   10,
			Usage:   "Number of characters in a generated OTP",
			Sources: source("OTP_LENGTH", "otp.length"),
		},
		// Crypto flags
		&cli.StringFlag{
			Name:    "aes-secret-key",
			Usage:   "AES-256 key for PII encryption (64 hex characters)",
			Sources: source("AES_SECRET_KEY", "crypto.aes_secret_key"),
		},
		// Voice flags
		&cli.StringFlag{
			Name:    "voice-embedder-url",
			Value:   "http://localhost:9000/embed",
			Usage:   "Endpoint of the speech embedding service",
			Sources: source("VOICE_EMBEDDER_URL", "voice.embedder_url"),
		},
		&cli.FloatFlag{
			Name:    "voice-threshold",
			Value:   0.85,
			Usage:   "Cosine similarity a voice sample must exceed to match",
			Sources: source("VOICE_THRESHOLD", "voice.threshold"),
		},
		&cli.IntFlag{
			Name:    "voice-sample-rate",
			Value:   16000,
			Usage:   "Sample rate expected by the embedding model",
			Sources: source("VOICE_SAMPLE_RATE", "voice.sample_rate"),
		},
		&cli.DurationFlag{
			Name:    "voice-timeout",
			Value:   30 * time.Second,
			Usage:   "Timeout for a single embedding request",
			Sources: source("VOICE_TIMEOUT", "voice.timeout"),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host",
			Sources: source("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: source("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: source("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: source("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address for OTP emails",
			Sources: source("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Sender display name for OTP emails",
			Sources: source("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS when talking to the SMTP server",
			Sources: source("SMTP_TLS", "smtp.tls"),
		},
	}
}
