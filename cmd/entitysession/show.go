package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entitykit/session/internal/provider"
	"github.com/entitykit/session/internal/session"
	"github.com/entitykit/session/internal/sqlprovider"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "List customers and orders via the session's query provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.sqlDB.Close()

		// Create the session tables so rows materialized below are
		// interned through the intercepting provider rather than passed
		// through unwrapped.
		if _, err := session.GetTable[*sqlprovider.Customer](ctx, a.session, "customers"); err != nil {
			return err
		}
		if _, err := session.GetTable[*sqlprovider.Order](ctx, a.session, "orders"); err != nil {
			return err
		}

		executor := a.session.Provider().CreateExecutor()

		custCursor, err := executor.Execute(ctx, provider.Command{Text: "SELECT id, name FROM customers ORDER BY id"}, a.custEntity,
			func(row provider.Row) (any, error) {
				c := &sqlprovider.Customer{}
				if err := row.Scan(&c.ID, &c.Name); err != nil {
					return nil, err
				}
				return c, nil
			})
		if err != nil {
			return err
		}
		defer custCursor.Close()
		for custCursor.Next(ctx) {
			c := custCursor.Current().(*sqlprovider.Customer)
			fmt.Printf("customer %d: %s\n", c.ID, c.Name)
		}
		if err := custCursor.Err(); err != nil {
			return err
		}

		orderCursor, err := executor.Execute(ctx, provider.Command{Text: "SELECT id, customer_id, total FROM orders ORDER BY id"}, a.orderEntity,
			func(row provider.Row) (any, error) {
				o := &sqlprovider.Order{}
				if err := row.Scan(&o.ID, &o.CustomerID, &o.Total); err != nil {
					return nil, err
				}
				return o, nil
			})
		if err != nil {
			return err
		}
		defer orderCursor.Close()
		for orderCursor.Next(ctx) {
			o := orderCursor.Current().(*sqlprovider.Order)
			fmt.Printf("order %s: customer %d, total %d\n", o.ID, o.CustomerID, o.Total)
		}
		return orderCursor.Err()
	},
}
