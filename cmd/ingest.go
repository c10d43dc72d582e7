package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/viktsys/pnldash/dashboard"
	"github.com/viktsys/pnldash/database"
	"github.com/viktsys/pnldash/ingest"
)

var ingestCMD = &cobra.Command{
	Use:   "ingest [data-directory]",
	Short: "Ingest trade exports from a directory into the database",
	Long: `Parse every CSV and XLSX export in the directory with parallel workers,
store the normalized trades in PostgreSQL and rebuild the stored daily P&L.
Files that were ingested before are skipped row by row.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		dataDir := args[0]
		ctx := cmd.Context()

		a.log.Info("Initializing database...")
		db, err := database.InitDB(a.cfg, a.log)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer database.Close(db)
		store := database.NewTradeStore(db)

		processor := ingest.NewProcessor(a.normalizer, store, a.log, a.cfg.FileWorkers)

		a.log.WithField("dir", dataDir).Info("Starting parallel ingestion")
		batch, err := processor.ProcessDirectory(ctx, dataDir)
		if err != nil {
			return fmt.Errorf("failed to process data: %w", err)
		}

		service := dashboard.NewService(a.engine, store, store, a.log)
		service.RecordIngest(batch.Report)
		snap, err := service.Recompute(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to rebuild daily stats: %w", err)
		}

		a.log.WithFields(logrus.Fields{
			"files":  batch.Files,
			"failed": len(batch.Failed),
			"rows":   processor.ProcessedRows(),
			"days":   len(snap.Report.Daily),
		}).Info("Data ingestion completed")
		fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d rows from %d files (%s)\n",
			processor.ProcessedRows(), batch.Files, snap.Quality.Summary())
		return nil
	},
}
