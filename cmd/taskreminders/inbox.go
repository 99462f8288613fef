package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/task-reminders/internal/keys"
	uiinbox "github.com/nhle/task-reminders/internal/ui/inbox"
)

func inboxCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Browse and dismiss a user's reminders in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				user = os.Getenv("USER")
			}
			if user == "" {
				return fmt.Errorf("--user is required")
			}

			e, err := openEngine(context.Background())
			if err != nil {
				return err
			}
			defer e.Close()

			m := uiinbox.New(e.inbox, user, keys.DefaultKeyMap(), 80, 24)
			if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
				return fmt.Errorf("running inbox: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "user whose inbox to open (default $USER)")
	return cmd
}
