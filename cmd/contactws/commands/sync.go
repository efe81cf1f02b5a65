package commands

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var syncJSON bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one SARH synchronization and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		if !a.policy.Enabled {
			logger.Info("contactws authentication is disabled, skipping synchronization")
			return nil
		}

		res, err := a.engine.Run(cmd.Context())
		if err != nil {
			return err
		}

		if syncJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		cmd.Printf("run %s: %d roster users, %d processed, %d missing, %d suspended, %d unsuspended\n",
			res.RunID,
			res.Stats.TotalAPIUsers,
			res.Stats.TotalProcessed,
			res.Stats.TotalMissing,
			res.Suspended,
			res.Unsuspended,
		)
		if res.MatchingSkipped {
			cmd.Println("time budget exhausted, account matching was skipped")
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncJSON, "json", false, "print the run result as JSON")
}
