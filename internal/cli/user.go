package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User record operations",
}

var userShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show a user record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := requireClient()
		defer client.Close()

		rec, err := client.LoadUser(context.Background(), args[0])
		if err != nil {
			fmtErr("load user: %v", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(rec)
			return
		}
		fmt.Printf("User: %s\n", rec.UserID)
		fmt.Printf("  Created: %s\n", rec.CreatedAt)
		fmt.Printf("  Last updated: %s\n", rec.LastUpdated)
		fmt.Printf("  Payload keys: %d\n", len(rec.Payload))
	},
}

var userExistsCmd = &cobra.Command{
	Use:   "exists <user-id>",
	Short: "Check whether a user record exists",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := requireClient()
		defer client.Close()

		exists, err := client.UserExists(context.Background(), args[0])
		if err != nil {
			fmtErr("user exists: %v", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(map[string]any{"user_id": args[0], "exists": exists})
			return
		}
		fmt.Println(exists)
		if !exists {
			os.Exit(1)
		}
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a user record (account erasure)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := requireClient()
		defer client.Close()

		if err := client.DeleteUser(context.Background(), args[0]); err != nil {
			fmtErr("delete user: %v", err)
			os.Exit(1)
		}
		if !jsonOutput {
			fmt.Printf("Deleted user %s.\n", args[0])
		}
	},
}

func init() {
	userCmd.AddCommand(userShowCmd)
	userCmd.AddCommand(userExistsCmd)
	userCmd.AddCommand(userDeleteCmd)
	rootCmd.AddCommand(userCmd)
}
