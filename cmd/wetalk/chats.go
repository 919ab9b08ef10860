package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	wetalk "github.com/dkprivatelimited21/wetalk-frontend"
	"github.com/spf13/cobra"
)

var (
	chatsFilter string

	chatsCreateGroup bool
	chatsCreateName  string
)

func init() {
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(sendCmd)
	chatsCmd.AddCommand(chatsShowCmd)
	chatsCmd.AddCommand(chatsCreateCmd)

	chatsCmd.Flags().StringVar(&chatsFilter, "filter", "", "only show conversations whose name contains this text")
	chatsCreateCmd.Flags().BoolVar(&chatsCreateGroup, "group", false, "create a group conversation")
	chatsCreateCmd.Flags().StringVar(&chatsCreateName, "name", "", "group name (required with --group)")
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		client := getClient()
		store := wetalk.NewStore(client, nil, cfg.Auth.UserID)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := store.LoadConversations(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		chats := wetalk.FilterConversations(store.Snapshot(), cfg.Auth.UserID, chatsFilter)
		if len(chats) == 0 {
			fmt.Println("No conversations.")
			return nil
		}

		for _, c := range chats {
			name := wetalk.DisplayName(&c, cfg.Auth.UserID)
			line := fmt.Sprintf("%-24s  %s", c.ID, name)
			if c.UnreadCount > 0 {
				line += fmt.Sprintf("  (%d unread)", c.UnreadCount)
			}
			if c.LastMessage != nil {
				line += fmt.Sprintf("  | %s: %s", c.LastMessage.Sender.Name, truncate(c.LastMessage.Content, 40))
			}
			fmt.Println(line)
		}
		return nil
	},
}

var chatsShowCmd = &cobra.Command{
	Use:   "show <chat-id>",
	Short: "Show a conversation's message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID := args[0]
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		client := getClient()
		store := wetalk.NewStore(client, nil, cfg.Auth.UserID)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := store.LoadConversation(ctx, chatID); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		chat := store.Get(chatID)
		if chat == nil {
			return fmt.Errorf("conversation %s not found", chatID)
		}

		fmt.Printf("%s (%s)\n", wetalk.DisplayName(chat, cfg.Auth.UserID), wetalk.PresenceLabel(chat, cfg.Auth.UserID))
		fmt.Println(strings.Repeat("-", 60))
		for _, m := range chat.Messages {
			fmt.Printf("[%s] %s: %s\n", formatTimestamp(m.Timestamp), m.Sender.Name, m.Content)
		}
		return nil
	},
}

var chatsCreateCmd = &cobra.Command{
	Use:   "create <user-id>...",
	Short: "Create a direct or group conversation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		client := getClient()
		store := wetalk.NewStore(client, nil, cfg.Auth.UserID)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		chat, err := store.CreateConversation(ctx, args, chatsCreateGroup, chatsCreateName)
		if err != nil {
			return fmt.Errorf("create failed: %w", err)
		}

		fmt.Printf("Created conversation %s\n", chat.ID)
		fmt.Printf("  Name: %s\n", wetalk.DisplayName(chat, cfg.Auth.UserID))
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <chat-id> <message>",
	Short: "Send a message to a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, text := args[0], args[1]
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		client := getClient()
		store := wetalk.NewStore(client, nil, cfg.Auth.UserID)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		// The store refuses to send into a conversation it has not seen.
		if err := store.LoadConversation(ctx, chatID); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		msg, err := store.SendMessage(ctx, chatID, text)
		if err != nil {
			return fmt.Errorf("send failed: %w", err)
		}

		fmt.Printf("Sent message %s at %s\n", msg.ID, formatTimestamp(msg.Timestamp))
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
