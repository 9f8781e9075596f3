package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entitykit/session/internal/session"
	"github.com/entitykit/session/internal/sqlprovider"
)

var (
	renameCustomerID int
	renameNewName    string
)

var renameCmd = &cobra.Command{
	Use:   "rename",
	Short: "Load a customer, rename it, and submit the change",
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

		customer, ok, err := customers.GetByID(ctx, renameCustomerID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("rename: no customer with id %d", renameCustomerID)
		}

		if err := customers.SetSubmitAction(customer, session.SubmitPossibleUpdate); err != nil {
			return err
		}
		customer.Rename(renameNewName)

		if err := a.session.SubmitChanges(ctx); err != nil {
			return fmt.Errorf("rename: %w", err)
		}
		fmt.Printf("customer %d renamed to %q\n", customer.ID, customer.Name)
		return nil
	},
}

func init() {
	renameCmd.Flags().IntVar(&renameCustomerID, "customer-id", 1, "customer to rename")
	renameCmd.Flags().StringVar(&renameNewName, "name", "", "new customer name")
	renameCmd.MarkFlagRequired("name")
}
