package main

import (
	"fmt"
	"os"
	"time"

	wetalk "github.com/dkprivatelimited21/wetalk-frontend"
)

// getClient creates a WeTalk client authenticated with the stored token.
func getClient() *wetalk.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "Not logged in. Run 'wetalk login' first.")
		os.Exit(1)
	}

	var opts []wetalk.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, wetalk.WithBaseURL(cfg.Default.BaseURL))
	}

	return wetalk.NewClient(cfg.Auth.Token, opts...)
}

// getAnonClient creates an unauthenticated WeTalk client for login and
// registration.
func getAnonClient() *wetalk.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var opts []wetalk.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, wetalk.WithBaseURL(cfg.Default.BaseURL))
	}

	return wetalk.NewClient("", opts...)
}

// saveAuth persists the authenticated identity to the config file.
func saveAuth(auth *wetalk.AuthData) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Auth.Token = auth.Token
	cfg.Auth.UserID = auth.User.ID
	cfg.Auth.UserName = auth.User.Name
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}
