package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubspaced/internal/app"
	"github.com/dokzlo13/hubspaced/internal/auth"
	"github.com/dokzlo13/hubspaced/internal/config"
	"github.com/dokzlo13/hubspaced/internal/db"
	"github.com/dokzlo13/hubspaced/internal/storage"
)

func main() {
	// Support both -c and --config for config path
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	login := flag.Bool("login", false, "Log into the Hubspace account and store the refresh token")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logging
	setupLogging(cfg.Log.GetLevel(), cfg.Log.UseJSON, cfg.Log.Colors)

	// One-time interactive login, then exit
	if *login {
		if err := runLogin(cfg); err != nil {
			log.Fatal().Err(err).Msg("Login failed")
		}
		return
	}

	log.Info().Str("config", configPath).Msg("Starting hubspaced")

	// Create application
	application, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()

	// Start the application
	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	// Wait for shutdown
	application.Wait()

	// Graceful shutdown
	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
}

// runLogin prompts for account credentials, runs the PKCE login flow and
// persists the refresh token for subsequent starts.
func runLogin(cfg *config.Config) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Fprint(os.Stderr, "Hubspace username (email): ")
	username, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read username: %w", err)
	}

	fmt.Fprint(os.Stderr, "Hubspace password: ")
	password, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	refreshToken, err := auth.Login(ctx,
		strings.TrimSpace(username),
		strings.TrimSpace(password),
		cfg.Hubspace.Timeout.Duration(),
	)
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	creds := storage.NewCredentialStore(database.DB)
	if err := creds.SetRefreshToken(refreshToken); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}

	log.Info().Str("database", cfg.Database.Path).Msg("Refresh token stored, start hubspaced normally")
	return nil
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		// JSON output for production
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		// Text output (with optional colors)
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
