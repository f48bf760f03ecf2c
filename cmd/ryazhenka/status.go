package main

import (
	"context"
	"fmt"
	"time"

	ryazhenka "github.com/ryazhenka-chat/ryazhenka-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and service status",
	Long:  "Display the local identity, the configured endpoint, and live service counters.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Base URL:  %s\n", valueOrDefault(cfg.Default.BaseURL, ryazhenka.DefaultBaseURL))
		fmt.Printf("  Platform:  %s\n", valueOrDefault(cfg.Default.Platform, ryazhenka.DefaultPlatform))

		fmt.Println()
		fmt.Println("Identity:")
		if cfg.Auth.DisplayName != "" {
			fmt.Printf("  Display name: %s\n", cfg.Auth.DisplayName)
			fmt.Printf("  User ID:      %s\n", cfg.Auth.UserID)
			fmt.Printf("  Device ID:    %s\n", cfg.Auth.DeviceID)
		} else {
			fmt.Println("  (not registered)")
		}

		// Stats need no session, so reach for the service regardless.
		fmt.Println()
		fmt.Println("Service:")

		client := ryazhenka.NewClient(clientOptions(cfg)...)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		stats, err := client.Stats(ctx)
		if err != nil {
			fmt.Printf("  Unreachable (%s): %v\n", ryazhenka.StatusText(err), err)
			return nil
		}

		fmt.Printf("  Registered users: %d\n", stats.TotalUsers)
		fmt.Printf("  Online now:       %d\n", stats.OnlineUsers)
		fmt.Printf("  Total messages:   %d\n", stats.TotalMessages)
		fmt.Printf("  Uptime:           %s\n", (time.Duration(stats.ServerUptime) * time.Second).String())
		return nil
	},
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
