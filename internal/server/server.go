// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires configuration, storage and services into an echo
// instance and runs it.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/voiceauth/internal/config"
	"codeberg.org/oliverandrich/voiceauth/internal/database"
	"codeberg.org/oliverandrich/voiceauth/internal/handlers"
	"codeberg.org/oliverandrich/voiceauth/internal/i18n"
	"codeberg.org/oliverandrich/voiceauth/internal/otp"
	"codeberg.org/oliverandrich/voiceauth/internal/pii"
	"codeberg.org/oliverandrich/voiceauth/internal/repository"
	"codeberg.org/oliverandrich/voiceauth/internal/services/auth"
	"codeberg.org/oliverandrich/voiceauth/internal/services/email"
	"codeberg.org/oliverandrich/voiceauth/internal/validate"
	"codeberg.org/oliverandrich/voiceauth/internal/voice"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

const shutdownTimeout = 10 * time.Second

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	db, err := database.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	if n, err := repository.New(db).CountUsers(ctx); err != nil {
		slog.Warn("failed to count users", "error", err)
	} else {
		slog.Info("database ready", "dsn", cfg.Database.DSN, "users", n)
	}

	mailer, err := email.NewService(&cfg.SMTP)
	if err != nil {
		return fmt.Errorf("failed to set up email: %w", err)
	}

	embedder := voice.NewHTTPEmbedder(cfg.Voice.EmbedderURL,
		voice.WithSampleRate(cfg.Voice.SampleRate),
		voice.WithTimeout(cfg.Voice.Timeout),
	)

	e, err := New(cfg, db, mailer, embedder)
	if err != nil {
		return err
	}

	return startWithGracefulShutdown(ctx, e, cfg)
}

// New builds the echo instance with middleware and routes. Mail delivery and
// speech embedding are passed in so tests can substitute them.
func New(cfg *config.Config, db *sqlx.DB, mailer auth.Mailer, embedder voice.Embedder) (*echo.Echo, error) {
	if err := i18n.Init(); err != nil {
		return nil, fmt.Errorf("failed to init i18n: %w", err)
	}

	key, err := cfg.AESKeyBytes()
	if err != nil {
		return nil, err
	}
	cipher, err := pii.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	issuer, err := otp.NewIssuer(cfg.OTP.Secret,
		otp.WithValidity(cfg.OTP.Validity),
		otp.WithLength(cfg.OTP.Length),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTP issuer: %w", err)
	}

	v, err := validate.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	matcher := voice.NewMatcher(embedder, cfg.Voice.Threshold)
	svc := auth.NewService(repository.New(db), mailer, matcher, issuer, cipher)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = v
	e.HTTPErrorHandler = handlers.ErrorHandler

	setupMiddleware(e, cfg)
	handlers.New(svc, int64(cfg.Server.MaxBodySize)<<20).Register(e)

	return e, nil
}

// RollbackMigration reverts the most recent schema migration of the
// configured database.
func RollbackMigration(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateDown(ctx, db.DB); err != nil {
		return err
	}
	slog.Info("migration rolled back", "dsn", cfg.Database.DSN)
	return nil
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)
	serve := func(name string, fn func() error) {
		go func() {
			if err := fn(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	var redirect *http.Server

	switch tlsResult.Mode {
	case TLSModeOff:
		serve("http", func() error { return e.Start(addr) })
	case TLSModeACME:
		serve("https", func() error { return startTLSServer(e, ":443", tlsResult.TLSConfig) })
		redirect = &http.Server{
			Addr:              ":80",
			Handler:           tlsResult.HTTPHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		serve("acme", redirect.ListenAndServe)
	case TLSModeSelfSigned, TLSModeManual:
		serve("https", func() error { return startTLSServer(e, addr, tlsResult.TLSConfig) })
	}
	slog.Info("server running", "url", cfg.Server.BaseURL, "tls", tlsResult.Mode)

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown main server", "error", err)
	}
	if redirect != nil {
		if err := redirect.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown HTTP redirect server", "error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

// startTLSServer starts the Echo server with a custom TLS configuration.
func startTLSServer(e *echo.Echo, addr string, tlsConfig *tls.Config) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, tlsConfig)
	e.TLSServer.TLSConfig = tlsConfig
	return e.TLSServer.Serve(e.TLSListener)
}
