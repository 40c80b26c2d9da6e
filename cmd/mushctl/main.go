// Command mushctl administers a mushkit data directory: accounts, tags,
// configuration values and backups.
package main

import (
	"os"

	"github.com/crystal-mush/mushkit/cmd/mushctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
