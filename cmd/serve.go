package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eugenferber616-design/earnings-cache/internal/cache"
	"github.com/eugenferber616-design/earnings-cache/internal/runlog"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the cached artifacts over HTTP",
	Long:  "Read-only HTTP access to the earnings index, stats, and run history. Artifact writes are atomic renames, so responses are never torn.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store := cache.NewStore(cfg.Cache.OutputDir)

		runs, err := runlog.Open(ctx, cfg.Store.Path)
		if err != nil {
			zap.L().Warn("run log unavailable", zap.Error(err))
			runs = nil
		}
		if runs != nil {
			defer runs.Close()
		}

		mux := http.NewServeMux()

		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		serveArtifact := func(name string) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				data, err := os.ReadFile(filepath.Join(store.Dir(), name))
				if os.IsNotExist(err) {
					http.Error(w, `{"error":"artifact not built yet"}`, http.StatusNotFound)
					return
				}
				if err != nil {
					zap.L().Error("failed to read artifact", zap.String("name", name), zap.Error(err))
					http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(data)
			}
		}

		mux.HandleFunc("GET /earnings.json", serveArtifact(cache.IndexFile))
		mux.HandleFunc("GET /stats.json", serveArtifact(cache.StatsFile))

		mux.HandleFunc("GET /runs", func(w http.ResponseWriter, r *http.Request) {
			if runs == nil {
				http.Error(w, `{"error":"run log unavailable"}`, http.StatusServiceUnavailable)
				return
			}
			entries, err := runs.Recent(r.Context(), 20)
			if err != nil {
				zap.L().Error("failed to list runs", zap.Error(err))
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(entries)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
