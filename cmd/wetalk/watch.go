package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	wetalk "github.com/dkprivatelimited21/wetalk-frontend"
	"github.com/spf13/cobra"
)

var watchChatID string

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchChatID, "chat", "", "focus a conversation to see its typing activity")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch live activity on the realtime channel",
	Long:  "Connect to the realtime channel and print messages, typing activity, and presence changes as they arrive. Press Ctrl-C to stop.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		session := wetalk.NewSession(client)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		user, err := session.Resume(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("session invalid, log in again: %w", err)
		}

		ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
		err = session.Start(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		defer session.Close()

		store := session.Store()
		channel := session.Channel()

		if watchChatID != "" {
			if err := store.SetSelected(watchChatID); err != nil {
				return fmt.Errorf("cannot focus %s: %w", watchChatID, err)
			}
		}

		// Print after the store handler so names resolve against fresh state.
		channel.Route(func(ev wetalk.Event) {
			switch ev := ev.(type) {
			case wetalk.MessageEvent:
				chat := store.Get(ev.ChatID)
				title := ev.ChatID
				if chat != nil {
					title = wetalk.DisplayName(chat, user.ID)
				}
				fmt.Printf("[%s] %s | %s: %s\n",
					formatTimestamp(ev.Message.Timestamp), title, ev.Message.Sender.Name, ev.Message.Content)
			case wetalk.TypingEvent:
				if line := wetalk.TypingStatus(store.Selected(), store.TypingUserIDs()); line != "" {
					fmt.Println(line)
				}
			case wetalk.PresenceEvent:
				state := "offline"
				if ev.IsOnline {
					state = "online"
				}
				fmt.Printf("* %s is now %s\n", ev.UserID, state)
			}
		})
		channel.OnDisconnected(func(reason string) {
			fmt.Printf("* disconnected: %s\n", reason)
		})
		channel.OnReconnecting(func(attempt int, delay time.Duration) {
			fmt.Printf("* reconnecting (attempt %d) in %s\n", attempt, delay)
		})
		channel.OnConnected(func() {
			fmt.Println("* connected")
		})

		fmt.Printf("Watching as %s. Press Ctrl-C to stop.\n", user.Name)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		fmt.Println("\nStopping.")
		return nil
	},
}
