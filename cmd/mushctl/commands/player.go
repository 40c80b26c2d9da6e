package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/crystal-mush/mushkit/pkg/create"
	"github.com/crystal-mush/mushkit/pkg/server"
	"github.com/crystal-mush/mushkit/pkg/sqlstore"
	"github.com/dustin/go-humanize"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
)

func NewPlayerCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "player",
		Short: "Manage player accounts",
	}

	cmd.AddCommand(newPlayerListCommand(opts))
	cmd.AddCommand(newPlayerCreateCommand(opts))
	cmd.AddCommand(newPlayerPasswdCommand(opts))
	cmd.AddCommand(newPlayerSuperCommand(opts))

	return cmd
}

func newPlayerListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAccounts(func(_ *server.GameConf, accounts *sqlstore.Store) error {
				players, err := accounts.ListPlayers(cmd.Context())
				if err != nil {
					return err
				}
				tbl := table.New("id", "name", "character", "superuser", "last login").WithWriter(cmd.OutOrStdout())
				for _, p := range players {
					last := "never"
					if p.LastLogin > 0 {
						last = humanize.Time(time.Unix(p.LastLogin, 0))
					}
					tbl.AddRow(p.ID, p.Name, p.Character.String(), p.Superuser, last)
				}
				tbl.Print()
				return nil
			})
		},
	}
}

func newPlayerCreateCommand(opts *rootOptions) *cobra.Command {
	var email string
	var superuser bool
	cmd := &cobra.Command{
		Use:   "create NAME PASSWORD",
		Short: "Create an account and its character in the starting room",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withGame(func(g *server.Game) error {
				ctx := cmd.Context()
				if err := g.Seed(ctx); err != nil {
					return err
				}
				p, char, err := g.Factory.CreatePlayer(ctx, create.PlayerSpec{
					Name:      args[0],
					Email:     email,
					Password:  args[1],
					Superuser: superuser,
					Location:  g.StartingRoom(),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created player %s (id %d) with character %s\n", p.Name, p.ID, char.DBRef)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "contact address")
	cmd.Flags().BoolVar(&superuser, "superuser", false, "grant superuser")
	return cmd
}

func newPlayerPasswdCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd NAME PASSWORD",
		Short: "Set a player's password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAccounts(func(_ *server.GameConf, accounts *sqlstore.Store) error {
				p, err := findPlayer(cmd, accounts, args[0])
				if err != nil {
					return err
				}
				if err := accounts.SetPassword(cmd.Context(), p, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Password changed for %s\n", args[0])
				return nil
			})
		},
	}
}

func newPlayerSuperCommand(opts *rootOptions) *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "super NAME",
		Short: "Grant or revoke superuser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAccounts(func(_ *server.GameConf, accounts *sqlstore.Store) error {
				p, err := findPlayer(cmd, accounts, args[0])
				if err != nil {
					return err
				}
				if err := accounts.SetSuperuser(cmd.Context(), p, !revoke); err != nil {
					return err
				}
				state := "granted to"
				if revoke {
					state = "revoked from"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Superuser %s %s\n", state, args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove superuser instead")
	return cmd
}

// findPlayer resolves a player name, or a numeric account id, to an id.
func findPlayer(cmd *cobra.Command, accounts *sqlstore.Store, name string) (int64, error) {
	p, err := accounts.PlayerByName(cmd.Context(), name)
	if err == nil {
		return p.ID, nil
	}
	if id, perr := strconv.ParseInt(name, 10, 64); perr == nil {
		if p, err := accounts.PlayerByID(cmd.Context(), id); err == nil {
			return p.ID, nil
		}
	}
	return 0, fmt.Errorf("no player named %q", name)
}
