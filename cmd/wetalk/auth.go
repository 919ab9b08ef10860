package main

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	wetalk "github.com/dkprivatelimited21/wetalk-frontend"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)

	registerCmd.Flags().StringVar(&registerName, "name", "", "display name for the new account")
}

var registerName string

// readPassword prompts for a password without echoing it.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("cannot read password: %w", err)
	}
	return string(raw), nil
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in and store the session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}

		client := getAnonClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		auth, err := client.Login(ctx, email, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		if err := saveAuth(auth); err != nil {
			return err
		}

		fmt.Printf("Logged in as %s (%s)\n", auth.User.Name, auth.User.ID)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <email>",
	Short: "Create an account and store the session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]
		if registerName == "" {
			return fmt.Errorf("--name is required")
		}
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}

		client := getAnonClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		auth, err := client.Register(ctx, &wetalk.RegisterOptions{
			Name:     registerName,
			Email:    email,
			Password: password,
		})
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		if err := saveAuth(auth); err != nil {
			return err
		}

		fmt.Printf("Registered as %s (%s)\n", auth.User.Name, auth.User.ID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Invalidate the session and clear stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Clear local credentials even if the server call fails; the token
		// may already be expired.
		logoutErr := client.Logout(ctx)

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Auth = ConfigAuth{}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		if logoutErr != nil {
			fmt.Printf("Local session cleared (server logout failed: %v)\n", logoutErr)
			return nil
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated user",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		user, err := client.Me(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		fmt.Printf("Name:  %s\n", user.Name)
		fmt.Printf("ID:    %s\n", user.ID)

		session := wetalk.NewSession(client)
		if exp, err := session.TokenExpiresAt(); err == nil {
			fmt.Printf("Token: expires %s\n", formatTimestamp(exp))
		}
		return nil
	},
}
