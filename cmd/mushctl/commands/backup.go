package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/crystal-mush/mushkit/pkg/boltstore"
	"github.com/crystal-mush/mushkit/pkg/server"
	"github.com/crystal-mush/mushkit/pkg/sqlstore"
	"github.com/spf13/cobra"
)

func NewBackupCommand(opts *rootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the object and account databases",
		Long:  "Writes both databases into a new timestamped directory under the backup dir.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAccounts(func(gc *server.GameConf, accounts *sqlstore.Store) error {
				root := dir
				if root == "" {
					root = gc.DataPath(gc.BackupDir)
				}
				dest := filepath.Join(root, time.Now().Format("20060102-150405"))
				if err := os.MkdirAll(dest, 0o755); err != nil {
					return err
				}

				store, err := boltstore.Open(gc.DataPath(gc.BoltFile))
				if err != nil {
					return fmt.Errorf("%w (is the server running?)", err)
				}
				defer store.Close()
				if err := store.Backup(filepath.Join(dest, filepath.Base(gc.BoltFile))); err != nil {
					return err
				}
				if err := accounts.Backup(cmd.Context(), filepath.Join(dest, filepath.Base(gc.AccountsFile))); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", dest)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "backup root, defaults to the configured backup_dir")
	return cmd
}
