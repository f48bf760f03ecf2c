package main

import (
	"context"
	"fmt"
	"os"
	"time"

	ryazhenka "github.com/ryazhenka-chat/ryazhenka-go"
)

// clientOptions builds client options from config and environment.
// RYAZHENKA_BASE_URL overrides the config file.
func clientOptions(cfg *Config) []ryazhenka.ClientOption {
	var opts []ryazhenka.ClientOption
	baseURL := cfg.Default.BaseURL
	if env := os.Getenv("RYAZHENKA_BASE_URL"); env != "" {
		baseURL = env
	}
	if baseURL != "" {
		opts = append(opts, ryazhenka.WithBaseURL(baseURL))
	}
	if cfg.Default.Platform != "" {
		opts = append(opts, ryazhenka.WithPlatform(cfg.Default.Platform))
	}
	return opts
}

// newEngine creates an engine wired to the configured service, with the
// device id cached under the config directory.
func newEngine(cfg *Config) (*ryazhenka.Engine, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	client := ryazhenka.NewClient(clientOptions(cfg)...)
	return ryazhenka.NewEngine(client, &ryazhenka.EngineOptions{
		DeviceIDDir: dir,
	}), nil
}

// startSession loads config, requires a stored display name, and registers
// with the service. Registration is idempotent per device, so "resuming" a
// session is just registering again with the same identity.
func startSession(ctx context.Context) (*ryazhenka.Engine, *Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Auth.DisplayName == "" {
		return nil, nil, fmt.Errorf("no identity configured; run 'ryazhenka register <display-name>' first")
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return nil, nil, err
	}

	regCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := engine.Register(regCtx, cfg.Auth.DisplayName); err != nil {
		engine.Close()
		return nil, nil, fmt.Errorf("login failed (%s): %w", ryazhenka.StatusText(err), err)
	}
	return engine, cfg, nil
}
