package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Session record operations",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List session record ids",
	Run: func(cmd *cobra.Command, args []string) {
		client := requireClient()
		defer client.Close()

		ids, err := client.ListSessions(context.Background())
		if err != nil {
			fmtErr("list sessions: %v", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(map[string]any{"sessions": ids})
			return
		}
		for _, id := range ids {
			fmt.Println(id)
		}
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := requireClient()
		defer client.Close()

		rec, err := client.LoadSession(context.Background(), args[0])
		if err != nil {
			fmtErr("load session: %v", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(rec)
			return
		}
		fmt.Printf("Session: %s\n", rec.SessionID)
		fmt.Printf("  Created: %s\n", rec.CreatedAt)
		fmt.Printf("  Last accessed: %s\n", rec.LastAccessed)
		fmt.Printf("  Payload keys: %d\n", len(rec.Payload))
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <session-id>",
	Short: "Delete a session record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := requireClient()
		defer client.Close()

		if err := client.ClearSession(context.Background(), args[0]); err != nil {
			fmtErr("clear session: %v", err)
			os.Exit(1)
		}
		if !jsonOutput {
			fmt.Printf("Cleared session %s.\n", args[0])
		}
	},
}

func init() {
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionClearCmd)
	rootCmd.AddCommand(sessionCmd)
}
