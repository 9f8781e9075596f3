package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entitykit/session/internal/session"
	"github.com/entitykit/session/internal/sqlprovider"
)

var seedCustomerID int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert a demo customer and order through the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.sqlDB.Close()

		customers, err := session.GetTable[*sqlprovider.Customer](ctx, a.session, "customers")
		if err != nil {
			return err
		}
		orders, err := session.GetTable[*sqlprovider.Order](ctx, a.session, "orders")
		if err != nil {
			return err
		}

		customer := &sqlprovider.Customer{ID: seedCustomerID, Name: "Acme"}
		order := &sqlprovider.Order{ID: sqlprovider.NewOrderID(), CustomerID: customer.ID, Customer: customer, Total: 100}

		if err := customers.SetSubmitAction(customer, session.SubmitInsert); err != nil {
			return err
		}
		if err := orders.SetSubmitAction(order, session.SubmitInsert); err != nil {
			return err
		}

		if err := a.session.SubmitChanges(ctx); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		fmt.Printf("inserted customer %d and order %s\n", customer.ID, order.ID)
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedCustomerID, "customer-id", 1, "primary key for the seeded customer")
}
