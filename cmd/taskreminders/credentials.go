package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/task-reminders/internal/credential"
)

func credentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage secrets kept in the keyring",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-dsn [dsn]",
		Short: "Store the Postgres DSN in the keyring",
		Long: `Store the Postgres DSN in the keyring. When no argument is given the
DSN is read from the first line of stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dsn string
			if len(args) == 1 {
				dsn = args[0]
			} else {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading dsn from stdin: %w", err)
				}
				dsn = strings.TrimSpace(line)
			}
			if dsn == "" {
				return fmt.Errorf("dsn must not be empty")
			}

			v, err := credential.Open(filepath.Dir(configPath))
			if err != nil {
				return err
			}
			if err := v.Set(credential.PostgresDSNKey, dsn); err != nil {
				return err
			}
			fmt.Println("Postgres DSN saved to keyring")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear-dsn",
		Short: "Remove the Postgres DSN from the keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := credential.Open(filepath.Dir(configPath))
			if err != nil {
				return err
			}
			if err := v.Delete(credential.PostgresDSNKey); err != nil {
				return err
			}
			fmt.Println("Postgres DSN removed from keyring")
			return nil
		},
	})

	return cmd
}
