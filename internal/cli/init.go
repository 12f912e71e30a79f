package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/carewise/carestore/pkg/carestore"
	"github.com/carewise/carestore/pkg/model"
)

var initBackend string

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a store directory",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) == 1 {
			path = args[0]
		}

		client, err := carestore.Init(path, carestore.Options{
			Backend: model.BackendType(initBackend),
		})
		if err != nil {
			fmtErr("init: %v", err)
			os.Exit(1)
		}
		defer client.Close()

		if jsonOutput {
			outputJSON(map[string]any{
				"store_dir": client.StoreDir(),
				"store_id":  client.StoreID(),
				"backend":   client.BackendType(),
			})
			return
		}
		fmt.Printf("Initialized store at %s\n", client.StoreDir())
		fmt.Printf("  Store ID: %s\n", client.StoreID())
		fmt.Printf("  Backend: %s\n", client.BackendType())
	},
}

func init() {
	initCmd.Flags().StringVar(&initBackend, "backend", "file", "storage backend (file, sqlite)")
	rootCmd.AddCommand(initCmd)
}
