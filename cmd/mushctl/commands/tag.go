package commands

import (
	"fmt"

	"github.com/crystal-mush/mushkit/pkg/server"
	"github.com/crystal-mush/mushkit/pkg/sqlstore"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
)

func NewTagCommand(opts *rootOptions) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Tag players with key/category markers",
	}
	cmd.PersistentFlags().StringVar(&category, "category", "", "tag category")

	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME KEY",
		Short: "Tag a player",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAccounts(func(_ *server.GameConf, accounts *sqlstore.Store) error {
				id, err := findPlayer(cmd, accounts, args[0])
				if err != nil {
					return err
				}
				if err := accounts.TagPlayer(cmd.Context(), id, args[1], category); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tagged %s with %s\n", args[0], tagLabel(args[1], category))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove NAME KEY",
		Short: "Remove a tag from a player",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAccounts(func(_ *server.GameConf, accounts *sqlstore.Store) error {
				id, err := findPlayer(cmd, accounts, args[0])
				if err != nil {
					return err
				}
				if err := accounts.UntagPlayer(cmd.Context(), id, args[1], category); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", tagLabel(args[1], category), args[0])
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list NAME",
		Short: "List a player's tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAccounts(func(_ *server.GameConf, accounts *sqlstore.Store) error {
				id, err := findPlayer(cmd, accounts, args[0])
				if err != nil {
					return err
				}
				tags, err := accounts.PlayerTags(cmd.Context(), id)
				if err != nil {
					return err
				}
				tbl := table.New("key", "category").WithWriter(cmd.OutOrStdout())
				for _, tag := range tags {
					tbl.AddRow(tag.Key, tag.Category)
				}
				tbl.Print()
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "who KEY",
		Short: "List players carrying a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAccounts(func(_ *server.GameConf, accounts *sqlstore.Store) error {
				players, err := accounts.PlayersTagged(cmd.Context(), args[0], category)
				if err != nil {
					return err
				}
				for _, p := range players {
					fmt.Fprintln(cmd.OutOrStdout(), p.Name)
				}
				return nil
			})
		},
	})

	return cmd
}

func tagLabel(key, category string) string {
	if category == "" {
		return key
	}
	return category + "/" + key
}
