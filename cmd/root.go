package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/viktsys/pnldash/config"
	"github.com/viktsys/pnldash/ingest"
	"github.com/viktsys/pnldash/logger"
	"github.com/viktsys/pnldash/pnl"
)

var rootCMD = &cobra.Command{
	Use:   "pnldash",
	Short: "FIFO P&L dashboard for exchange trade exports",
	Long: `A CLI application for turning exchange fill exports (CSV or XLSX)
into realized FIFO profit and loss. Files can be reported on directly,
ingested into PostgreSQL, or served through a REST API.`,
	SilenceUsage: true,
}

var (
	flagTimezone string
	flagAliases  string
	flagLogLevel string
)

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCMD.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCMD.PersistentFlags().StringVar(&flagTimezone, "timezone", "", "IANA zone for day and month boundaries (default from TIMEZONE)")
	rootCMD.PersistentFlags().StringVar(&flagAliases, "aliases", "", "YAML file with extra column header aliases (default from ALIASES_FILE)")
	rootCMD.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (default from LOG_LEVEL)")

	rootCMD.AddCommand(ingestCMD, serverCMD, reportCMD)
}

// app is the wiring shared by every subcommand.
type app struct {
	cfg        *config.Config
	log        *logrus.Logger
	location   *time.Location
	normalizer *ingest.Normalizer
	engine     *pnl.Engine
}

func newApp() (*app, error) {
	cfg := config.Load()
	if flagTimezone != "" {
		cfg.Timezone = flagTimezone
	}
	if flagAliases != "" {
		cfg.AliasesFile = flagAliases
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	var extra map[ingest.Field][]string
	if cfg.AliasesFile != "" {
		extra, err = ingest.LoadAliases(cfg.AliasesFile)
		if err != nil {
			return nil, err
		}
		log.WithField("file", cfg.AliasesFile).Info("Loaded column aliases")
	}

	engine, err := pnl.NewEngine(pnl.Config{Method: pnl.MethodFIFO, Location: loc})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		log:      log,
		location: loc,
		normalizer: ingest.NewNormalizer(ingest.NewAliasResolver(extra),
			ingest.WithLocation(loc),
			ingest.WithLogger(log),
		),
		engine: engine,
	}, nil
}
