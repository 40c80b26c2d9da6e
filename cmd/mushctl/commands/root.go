// Package commands contains the Cobra commands of mushctl.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/crystal-mush/mushkit/pkg/boltstore"
	"github.com/crystal-mush/mushkit/pkg/server"
	"github.com/crystal-mush/mushkit/pkg/sqlstore"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	conf    string
	dataDir string
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "mushctl",
		Short:        "Administer a mushkit game",
		Long:         "Offline administration for a mushkit data directory. Account and config commands are safe while the server runs.",
		Version:      server.Version,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.conf, "conf", os.Getenv("MUSHKIT_CONF"), "game config file")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "datadir", "", "data directory, overrides config")

	cmd.AddCommand(NewPlayerCommand(opts))
	cmd.AddCommand(NewTagCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))

	return cmd
}

// gameConf loads the config named by --conf and applies --datadir.
func (o *rootOptions) gameConf() (*server.GameConf, error) {
	gc, err := server.LoadGameConf(o.conf)
	if err != nil {
		return nil, err
	}
	if o.dataDir != "" {
		gc.DataDir = o.dataDir
	}
	if err := os.MkdirAll(gc.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}
	return gc, nil
}

func openAccounts(gc *server.GameConf) (*sqlstore.Store, error) {
	return sqlstore.Open(gc.DataPath(gc.AccountsFile), time.Duration(gc.SQLBusyTimeout)*time.Millisecond)
}

// withAccounts runs fn against the account store.
func (o *rootOptions) withAccounts(fn func(gc *server.GameConf, accounts *sqlstore.Store) error) error {
	gc, err := o.gameConf()
	if err != nil {
		return err
	}
	accounts, err := openAccounts(gc)
	if err != nil {
		return err
	}
	defer accounts.Close()
	return fn(gc, accounts)
}

// withGame loads the whole world. The object store is locked while a
// server runs, in which case this fails after the bolt open timeout.
func (o *rootOptions) withGame(fn func(g *server.Game) error) error {
	return o.withAccounts(func(gc *server.GameConf, accounts *sqlstore.Store) error {
		store, err := boltstore.Open(gc.DataPath(gc.BoltFile))
		if err != nil {
			return fmt.Errorf("%w (is the server running?)", err)
		}
		defer store.Close()
		if store.HasData() {
			if err := store.LoadAll(); err != nil {
				return err
			}
		}
		g := server.NewGame(store.DB(), accounts, store)
		g.ApplyGameConf(gc)
		return fn(g)
	})
}
