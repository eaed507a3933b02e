package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eugenferber616-design/earnings-cache/internal/refresher"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the earnings index if the cached artifact is stale",
	Long: `Run the refresh pipeline once: check artifact freshness, fetch the
earnings calendar window in bulk, rebuild the symbol index, and write it only
when the content changed.

Use --force to bypass the freshness gate, --dry-run to diff without writing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		force, _ := cmd.Flags().GetBool("force")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		res, err := env.Refresher.Run(ctx, refresher.Options{Force: force, DryRun: dryRun})
		if err != nil {
			zap.L().Error("refresh failed", zap.Error(err))
			return err
		}

		fmt.Printf("%s: %d symbols (%d rows fetched, %d kept)\n",
			res.Outcome, res.Symbols, res.RowsFetched, res.RowsKept)
		if res.EmptyAnomaly {
			fmt.Println("warning: previously non-empty index became empty; check the provider")
		}
		return nil
	},
}

func init() {
	refreshCmd.Flags().Bool("force", false, "refresh even if the artifact is still fresh")
	refreshCmd.Flags().Bool("dry-run", false, "build and diff but write nothing")
	rootCmd.AddCommand(refreshCmd)
}
