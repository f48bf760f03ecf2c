package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	profileAvatar string
	profileBio    string
)

func init() {
	profileSetCmd.Flags().StringVar(&profileAvatar, "avatar", "", "Avatar reference")
	profileSetCmd.Flags().StringVar(&profileBio, "bio", "", "Short profile text")
	profileCmd.AddCommand(profileSetCmd)
	rootCmd.AddCommand(profileCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage your chat profile",
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update avatar and bio",
	RunE: func(cmd *cobra.Command, args []string) error {
		if profileAvatar == "" && profileBio == "" {
			return fmt.Errorf("nothing to update; pass --avatar and/or --bio")
		}

		engine, _, err := startSession(context.Background())
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		profile, err := engine.UpdateProfile(ctx, profileAvatar, profileBio)
		if err != nil {
			return fmt.Errorf("profile update failed: %w", err)
		}

		fmt.Println("Profile updated.")
		fmt.Printf("  Display name: %s\n", profile.DisplayName)
		if profile.AvatarRef != "" {
			fmt.Printf("  Avatar:       %s\n", profile.AvatarRef)
		}
		if profile.Bio != "" {
			fmt.Printf("  Bio:          %s\n", profile.Bio)
		}
		return nil
	},
}
