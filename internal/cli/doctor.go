package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/carewise/carestore/internal/doctor"
)

var doctorFix bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the store for crash residue",
	Long: `Scans the store directory for stale lock markers, leftover temporary
files from interrupted writes, unparseable records, and audit chain breaks.
With --fix, stale markers and temporaries are removed and corrupt records
reset.`,
	Run: func(cmd *cobra.Command, args []string) {
		client := requireClient()
		defer client.Close()

		d := doctor.NewDoctor(client.StoreDir())
		result, err := d.Check(doctorFix)
		if err != nil {
			fmtErr("doctor: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(result)
			if !result.Healthy {
				os.Exit(1)
			}
			return
		}

		if result.Healthy {
			fmt.Println("Store is healthy.")
			return
		}
		for _, f := range result.Findings {
			fmt.Printf("[%s] %s: %s", f.Severity, f.Category, f.Description)
			if f.Path != "" {
				fmt.Printf(" (%s)", f.Path)
			}
			fmt.Println()
		}
		os.Exit(1)
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "remove stale markers, temporaries, and corrupt records")
	rootCmd.AddCommand(doctorCmd)
}
