package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/carewise/carestore/pkg/carestore"
	"github.com/carewise/carestore/pkg/metrics"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show store information",
	Run: func(cmd *cobra.Command, args []string) {
		client := requireClient()
		defer client.Close()

		info, err := collectInfo(context.Background(), client)
		if err != nil {
			fmtErr("info: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(info)
			return
		}

		fmt.Printf("Store: %s\n", info["store_dir"])
		fmt.Printf("  Store ID: %s\n", info["store_id"])
		fmt.Printf("  Backend: %s\n", info["backend"])
		fmt.Printf("  Sessions: %d\n", info["session_count"])
		fmt.Printf("  Users: %d\n", info["user_count"])
	},
}

// collectInfo gathers the store summary shown by the info command.
func collectInfo(ctx context.Context, client *carestore.Client) (map[string]any, error) {
	sessions, err := client.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	users, err := client.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return map[string]any{
		"store_dir":     client.StoreDir(),
		"store_id":      client.StoreID(),
		"backend":       client.BackendType(),
		"session_count": len(sessions),
		"user_count":    len(users),
		"metrics":       metrics.Default.Read(),
	}, nil
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
