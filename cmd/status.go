package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eugenferber616-design/earnings-cache/internal/cache"
	"github.com/eugenferber616-design/earnings-cache/internal/runlog"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show artifact freshness, stats, and recent run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store := cache.NewStore(cfg.Cache.OutputDir)

		lastRun, err := store.LastRun()
		if err != nil {
			zap.L().Warn("unreadable last run marker", zap.Error(err))
		}
		if lastRun == nil {
			fmt.Println("last run:  never")
		} else {
			age := time.Since(*lastRun).Round(time.Minute)
			fmt.Printf("last run:  %s (%s ago)\n", lastRun.UTC().Format(time.RFC3339), age)
		}

		mtime, err := store.IndexModTime()
		if err != nil {
			return err
		}
		if mtime == nil {
			fmt.Println("index:     missing")
		} else {
			fresh := !cache.ShouldRefresh(freshnessRef(lastRun, mtime), cfg.Cache.TTLHours, time.Now().UTC())
			fmt.Printf("index:     written %s (fresh: %v, ttl %dh)\n",
				mtime.UTC().Format(time.RFC3339), fresh, cache.NormalizeTTL(cfg.Cache.TTLHours))
		}

		stats, err := store.LoadStats()
		if err != nil {
			zap.L().Warn("unreadable stats", zap.Error(err))
		}
		if stats != nil {
			fmt.Printf("symbols:   %d (universe %d, rows %d fetched / %d kept)\n",
				stats.Symbols, stats.UniverseCount, stats.RowsFetched, stats.RowsAfterFilter)
		}

		limit, _ := cmd.Flags().GetInt("runs")
		runs, err := runlog.Open(ctx, cfg.Store.Path)
		if err != nil {
			zap.L().Warn("run log unavailable", zap.Error(err))
			return nil
		}
		defer runs.Close()

		entries, err := runs.Recent(ctx, limit)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			fmt.Println("\nrecent runs:")
			for _, e := range entries {
				outcome := string(e.Outcome)
				if outcome == "" {
					outcome = e.Status
				}
				line := fmt.Sprintf("  %s  %-9s  %d symbols", e.StartedAt.UTC().Format(time.RFC3339), outcome, e.Symbols)
				if e.EmptyAnomaly {
					line += "  [empty anomaly]"
				}
				if e.Error != "" {
					line += "  " + e.Error
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

// freshnessRef mirrors the gate's timestamp choice for display.
func freshnessRef(lastRun, mtime *time.Time) *time.Time {
	if lastRun != nil {
		return lastRun
	}
	return mtime
}

func init() {
	statusCmd.Flags().Int("runs", 10, "number of recent runs to show")
	rootCmd.AddCommand(statusCmd)
}
