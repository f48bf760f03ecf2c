package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	usersSearchJSON bool
	usersOnlineJSON bool
)

func init() {
	usersSearchCmd.Flags().BoolVar(&usersSearchJSON, "json", false, "Print raw JSON output")
	usersOnlineCmd.Flags().BoolVar(&usersOnlineJSON, "json", false, "Print raw JSON output")
	usersCmd.AddCommand(usersSearchCmd)
	usersCmd.AddCommand(usersOnlineCmd)
	rootCmd.AddCommand(usersCmd)
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Look up other chat users",
}

var usersSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search users by name or id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]

		engine, _, err := startSession(context.Background())
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		results, err := engine.SearchUsers(ctx, query)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if usersSearchJSON {
			data, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		if len(results) == 0 {
			fmt.Printf("No users matching %q.\n", query)
			return nil
		}
		fmt.Printf("%d result(s):\n", len(results))
		for _, u := range results {
			fmt.Printf("  %-20s %s [%s]\n", u.DisplayName, u.UserID, u.Status)
			if u.Bio != "" {
				fmt.Printf("    %s\n", u.Bio)
			}
		}
		return nil
	},
}

var usersOnlineCmd = &cobra.Command{
	Use:   "online",
	Short: "List users currently online",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, err := startSession(context.Background())
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		users, err := engine.OnlineUsers(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if usersOnlineJSON {
			data, err := json.MarshalIndent(users, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("%d online:\n", len(users))
		for _, u := range users {
			fmt.Printf("  %s (%s)\n", u.DisplayName, u.UserID)
		}
		return nil
	},
}
