package main

import (
	"context"
	"fmt"
	"time"

	ryazhenka "github.com/ryazhenka-chat/ryazhenka-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(registerCmd)
}

var registerCmd = &cobra.Command{
	Use:   "register <display-name>",
	Short: "Register a chat identity",
	Long:  "Register a display name with the chat service and store the identity locally.\nThe device id is derived from this machine, so registering again resumes the same account.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		displayName := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := engine.Register(ctx, displayName); err != nil {
			return fmt.Errorf("registration failed (%s): %w", ryazhenka.StatusText(err), err)
		}

		session, _ := engine.Session()
		cfg.Auth.DisplayName = session.DisplayName
		cfg.Auth.UserID = session.UserID
		cfg.Auth.DeviceID = session.DeviceID

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Println("Registration successful!")
		fmt.Printf("  Display name: %s\n", session.DisplayName)
		fmt.Printf("  User ID:      %s\n", session.UserID)
		fmt.Printf("  Device ID:    %s\n", session.DeviceID)
		return nil
	},
}
