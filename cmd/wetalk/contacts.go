package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(contactsCmd)
	contactsCmd.AddCommand(contactsAddCmd)
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		contacts, err := client.ListContacts(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if len(contacts) == 0 {
			fmt.Println("No contacts.")
			return nil
		}
		for _, c := range contacts {
			fmt.Printf("%-24s  %-20s  %s\n", c.ID, c.Name, c.Status)
		}
		return nil
	},
}

var contactsAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Add a contact by email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		contact, err := client.AddContact(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Added %s (%s)\n", contact.Name, contact.ID)
		return nil
	},
}
