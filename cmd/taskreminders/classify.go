package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/task-reminders/internal/i18n"
	"github.com/nhle/task-reminders/internal/urgency"
)

func classifyCmd() *cobra.Command {
	var (
		today    string
		title    string
		upcoming int
	)

	cmd := &cobra.Command{
		Use:   "classify [due-date]",
		Short: "Show the reminder a due date would get",
		Long: `Show the tier and rendered reminder for a due date.

Examples:
  taskreminders classify 2024-01-11 --today 2024-01-10
  taskreminders classify 2024-01-08 --title "Quarterly report"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			due, err := time.ParseInLocation(time.DateOnly, args[0], time.Local)
			if err != nil {
				return fmt.Errorf("due date must be YYYY-MM-DD: %w", err)
			}
			now := time.Now()
			if today != "" {
				if now, err = time.ParseInLocation(time.DateOnly, today, time.Local); err != nil {
					return fmt.Errorf("--today must be YYYY-MM-DD: %w", err)
				}
			}

			c, ok := urgency.Classifier{UpcomingDays: upcoming}.Classify(due, now)
			if !ok {
				fmt.Printf("%s: no reminder (%d days away)\n", args[0], urgency.DaysUntil(due, now))
				return nil
			}

			params := c.Params
			params.TaskTitle = title
			catalog := i18n.Default()
			fmt.Printf("tier:    %s\n", c.Tier)
			fmt.Printf("title:   %s\n", catalog.Render(c.TitleKey, params))
			fmt.Printf("message: %s\n", catalog.Render(c.MessageKey, params))
			return nil
		},
	}

	cmd.Flags().StringVar(&today, "today", "", "reference date (YYYY-MM-DD), default today")
	cmd.Flags().StringVar(&title, "title", "Task", "task title used in the message")
	cmd.Flags().IntVar(&upcoming, "upcoming-days", urgency.DefaultUpcomingDays, "last day count that yields an info reminder")
	return cmd
}
