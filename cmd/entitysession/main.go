// Command entitysession is a small demo CLI driving the entity session
// end to end against a real SQL backing store, in the shape of beads's
// cmd/bd: a cobra root command with persistent --config/--driver/--dsn
// flags resolved through internal/config, and one subcommand per
// operation.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entitykit/session/internal/config"
	"github.com/entitykit/session/internal/mapping"
	"github.com/entitykit/session/internal/session"
	"github.com/entitykit/session/internal/sqlprovider"
)

var (
	flagConfigPath string
	flagDriver     string
	flagDSN        string
)

func main() {
	root := &cobra.Command{
		Use:   "entitysession",
		Short: "Demo CLI for the entity session unit-of-work",
	}
	root.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&flagDriver, "driver", "", "override configured driver (sqlite|mysql)")
	root.PersistentFlags().StringVar(&flagDSN, "dsn", "", "override configured DSN")

	root.AddCommand(migrateCmd, seedCmd, renameCmd, showCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app bundles the wiring every subcommand needs: a live SQL connection,
// mapping metadata, and a session over both.
type app struct {
	sqlDB    *sql.DB
	provider *sqlprovider.Provider
	mapping  *mapping.StructMapper
	session  *session.Session

	custEntity  mapping.EntityDescriptor
	orderEntity mapping.EntityDescriptor
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return nil, err
	}
	if flagDriver != "" {
		cfg.Driver = flagDriver
	}
	if flagDSN != "" {
		cfg.DSN = flagDSN
	}

	db, err := sqlprovider.Open(ctx, sqlprovider.Config{Driver: sqlprovider.Driver(cfg.Driver), DSN: cfg.DSN})
	if err != nil {
		return nil, err
	}

	m := mapping.NewStructMapper()
	custEntity := m.Register("customers", &sqlprovider.Customer{})
	orderEntity := m.Register("orders", &sqlprovider.Order{})

	p := sqlprovider.New(db)
	if err := p.RegisterTable(custEntity, "customers", &sqlprovider.Customer{}); err != nil {
		return nil, err
	}
	if err := p.RegisterTable(orderEntity, "orders", &sqlprovider.Order{}); err != nil {
		return nil, err
	}

	return &app{
		sqlDB:       db,
		provider:    p,
		mapping:     m,
		session:     session.New(m, p),
		custEntity:  custEntity,
		orderEntity: orderEntity,
	}, nil
}
