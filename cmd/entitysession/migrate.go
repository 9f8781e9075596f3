package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entitykit/session/internal/sqlprovider"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the demo customers/orders tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.sqlDB.Close()

		if _, err := a.sqlDB.ExecContext(ctx, sqlprovider.CreateSchema); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Println("schema created")
		return nil
	},
}
