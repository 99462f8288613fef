package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	var (
		at     string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.ParseInLocation(time.DateOnly, at, time.Local)
				if err != nil {
					return fmt.Errorf("--at must be YYYY-MM-DD: %w", err)
				}
				now = t
			}

			ctx := context.Background()
			e, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			report, err := e.sweeper.Sweep(ctx, now)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Printf("Swept %d tasks for %d users in %s\n", report.Tasks, report.Users, report.Duration.Round(time.Millisecond))
			fmt.Printf("  created:    %d\n", report.Created)
			fmt.Printf("  updated:    %d\n", report.Updated)
			fmt.Printf("  superseded: %d\n", report.Superseded)
			fmt.Printf("  stale:      %d\n", report.Stale)
			fmt.Printf("  duplicates: %d\n", report.Duplicates)
			fmt.Printf("  muted:      %d\n", report.Muted)
			if report.Invalid > 0 || report.Failed > 0 {
				fmt.Printf("  invalid:    %d\n", report.Invalid)
				fmt.Printf("  failed:     %d\n", report.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "classify as of this date (YYYY-MM-DD) instead of today")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output the report as JSON")
	return cmd
}

func dedupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dedup",
		Short: "Collapse duplicate active notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.sweeper.Dedup(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Dismissed %d duplicate notifications\n", n)
			return nil
		},
	}
}
