package main

import (
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eugenferber616-design/earnings-cache/internal/refresher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the refresh pipeline on a cron schedule",
	Long: `Run as a daemon, executing the refresh pipeline on the configured
cron schedule. Overlapping runs are skipped: a tick that fires while the
previous run is still in flight does nothing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		schedule, _ := cmd.Flags().GetString("schedule")
		if schedule == "" {
			schedule = cfg.Watch.Schedule
		}

		log := zap.L().With(zap.String("component", "watch"))
		clog := cronLogger{log.Sugar()}

		c := cron.New(cron.WithChain(
			cron.SkipIfStillRunning(clog),
			cron.Recover(clog),
		))
		_, err = c.AddFunc(schedule, func() {
			res, err := env.Refresher.Run(ctx, refresher.Options{})
			if err != nil {
				log.Error("scheduled refresh failed", zap.Error(err))
				return
			}
			log.Info("scheduled refresh complete",
				zap.String("outcome", string(res.Outcome)),
				zap.Int("symbols", res.Symbols),
				zap.Bool("empty_anomaly", res.EmptyAnomaly),
			)
		})
		if err != nil {
			return err
		}

		log.Info("watching", zap.String("schedule", schedule))
		c.Start()

		<-ctx.Done()
		log.Info("shutting down, waiting for in-flight run")
		<-c.Stop().Done()
		return nil
	},
}

// cronLogger adapts the cron logging interface to zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.s.Infow(msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.s.Errorw(msg, append(kv, "error", err)...)
}

func init() {
	watchCmd.Flags().String("schedule", "", "cron schedule (default from config)")
	rootCmd.AddCommand(watchCmd)
}
