package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/viktsys/pnldash/api"
	"github.com/viktsys/pnldash/dashboard"
	"github.com/viktsys/pnldash/database"
	"github.com/viktsys/pnldash/ingest"
)

var (
	serverMemory  bool
	serverDataDir string
)

var serverCMD = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the HTTP API that accepts trade export uploads and serves daily,
monthly and per-pair FIFO P&L. With --memory no database is used and
trades live only as long as the process.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var (
			saver   ingest.TradeSaver
			source  dashboard.TradeSource
			sink    dashboard.StatsSink
			history api.HistoryReader
		)
		if serverMemory {
			store := dashboard.NewMemoryStore()
			saver, source = store, store
			a.log.Info("Running without database, uploads are kept in memory")
		} else {
			a.log.Info("Initializing database...")
			db, err := database.InitDB(a.cfg, a.log)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer database.Close(db)
			store := database.NewTradeStore(db)
			saver, source, sink, history = store, store, store, store
		}

		processor := ingest.NewProcessor(a.normalizer, saver, a.log, a.cfg.FileWorkers)
		service := dashboard.NewService(a.engine, source, sink, a.log)

		if serverDataDir != "" {
			batch, err := processor.ProcessDirectory(ctx, serverDataDir)
			if err != nil {
				return fmt.Errorf("failed to preload %s: %w", serverDataDir, err)
			}
			service.RecordIngest(batch.Report)
		}
		if _, err := service.Recompute(ctx, nil); err != nil {
			return fmt.Errorf("initial computation failed: %w", err)
		}

		maxUpload := int64(a.cfg.MaxUploadMB) << 20
		r := api.SetupRoutes(api.NewHandler(service, processor, history, maxUpload, a.log))

		srv := &http.Server{
			Addr:              ":" + a.cfg.ServerPort,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.log.WithField("port", a.cfg.ServerPort).Info("Starting server")
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to start server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		a.log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serverCMD.Flags().BoolVar(&serverMemory, "memory", false, "keep trades in memory instead of PostgreSQL")
	serverCMD.Flags().StringVar(&serverDataDir, "data-dir", "", "ingest the exports in this directory before serving")
}
