package commands

import (
	"fmt"

	"github.com/crystal-mush/mushkit/pkg/server"
	"github.com/crystal-mush/mushkit/pkg/sqlstore"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
)

// NewConfigCommand manages the runtime configuration values kept in the
// account database, such as default_home.
func NewConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write stored configuration values",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get KEY",
		Short: "Print a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAccounts(func(_ *server.GameConf, accounts *sqlstore.Store) error {
				v, ok, err := accounts.GetConfig(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("config key %q is not set", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAccounts(func(_ *server.GameConf, accounts *sqlstore.Store) error {
				return accounts.SetConfig(cmd.Context(), args[0], args[1])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "unset KEY",
		Short: "Remove a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAccounts(func(_ *server.GameConf, accounts *sqlstore.Store) error {
				return accounts.DeleteConfig(cmd.Context(), args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAccounts(func(_ *server.GameConf, accounts *sqlstore.Store) error {
				values, err := accounts.ListConfig(cmd.Context())
				if err != nil {
					return err
				}
				tbl := table.New("key", "value").WithWriter(cmd.OutOrStdout())
				for _, v := range values {
					tbl.AddRow(v.Key, v.Value)
				}
				tbl.Print()
				return nil
			})
		},
	})

	return cmd
}
