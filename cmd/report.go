package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/viktsys/pnldash/dashboard"
	"github.com/viktsys/pnldash/export"
	"github.com/viktsys/pnldash/ingest"
	"github.com/viktsys/pnldash/models"
	"github.com/viktsys/pnldash/pnl"
)

var (
	reportPairs      []string
	reportPeriod     string
	reportStart      string
	reportEnd        string
	reportProfitable bool
	reportSort       string
	reportFormat     string
)

var reportCMD = &cobra.Command{
	Use:   "report [files...]",
	Short: "Compute FIFO P&L from export files and print it",
	Long: `Parse the given CSV or XLSX exports (or every export in a directory),
replay them through FIFO lot matching and print daily P&L, per-pair totals
and a data quality summary. Nothing is stored.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		sortKey := pnl.SortKey(reportSort)
		if sortKey != pnl.SortByDate && sortKey != pnl.SortByProfit {
			return fmt.Errorf("unknown sort %q, use date or profit", reportSort)
		}

		files, err := expandInputs(args)
		if err != nil {
			return err
		}

		processor := ingest.NewProcessor(a.normalizer, nil, a.log, a.cfg.FileWorkers)
		batch, err := processor.ProcessFiles(cmd.Context(), files)
		if err != nil {
			return err
		}

		report, err := a.engine.Compute(batch.Trades, pnl.Options{Pairs: reportPairs})
		if err != nil {
			return err
		}

		period := pnl.Period(reportPeriod)
		if period == pnl.PeriodAll && (reportStart != "" || reportEnd != "") {
			period = pnl.PeriodCustom
		}
		dateRange, err := pnl.RangeForPeriod(period, time.Now().In(a.location), reportStart, reportEnd)
		if err != nil {
			return err
		}
		daily := report.Daily
		if !dateRange.IsZero() {
			if daily, err = report.FilterByRange(dateRange.Start, dateRange.End); err != nil {
				return err
			}
		}
		days := pnl.SortDays(daily, sortKey)
		if reportProfitable {
			days = pnl.ProfitableOnly(days)
		}

		out := cmd.OutOrStdout()
		switch reportFormat {
		case "csv":
			return export.WriteDaily(out, days)
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"summary":     pnl.Summarize(daily),
				"daily":       days,
				"monthly":     report.MonthsNewestFirst(),
				"pairs":       report.PairsByProfit(),
				"diagnostics": report.Diagnostics,
				"normalize":   batch.Report,
			})
		case "table":
			return printReport(out, report, days, pnl.Summarize(daily), batch)
		}
		return fmt.Errorf("unknown format %q, use table, csv or json", reportFormat)
	},
}

func init() {
	reportCMD.Flags().StringSliceVar(&reportPairs, "pairs", nil, "only these pairs (comma separated)")
	reportCMD.Flags().StringVar(&reportPeriod, "period", string(pnl.PeriodAll), "all, week, month or custom")
	reportCMD.Flags().StringVar(&reportStart, "start", "", "first day YYYY-MM-DD")
	reportCMD.Flags().StringVar(&reportEnd, "end", "", "last day YYYY-MM-DD")
	reportCMD.Flags().BoolVar(&reportProfitable, "profitable", false, "only days with positive P&L")
	reportCMD.Flags().StringVar(&reportSort, "sort", string(pnl.SortByDate), "order days by date or profit")
	reportCMD.Flags().StringVar(&reportFormat, "format", "table", "table, csv or json")
}

// expandInputs replaces directory arguments by the exports they contain.
func expandInputs(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		if ingest.SupportedExtension(arg) {
			files = append(files, arg)
			continue
		}
		found, err := ingest.FindFiles(arg)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

func printReport(out io.Writer, report *pnl.Report, days []models.DailyStat, sum pnl.Summary, batch *ingest.Batch) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintln(w, "DATE\tPROFIT\tVOLUME\tFEES\tTRADES\tWIN RATE\t")
	for _, d := range days {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s%%\t\n",
			d.Date, d.Profit.StringFixed(2), d.Volume.StringFixed(2), d.Fees.StringFixed(4), d.TotalTrades, d.WinRate.StringFixed(2))
	}
	fmt.Fprintln(w, "\t\t\t\t\t\t")
	fmt.Fprintln(w, "PAIR\tREALIZED\tCASH FLOW\tFEES\tTRADES\tOPEN\t")
	for _, p := range report.PairsByProfit() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t\n",
			p.Pair, p.RealizedProfit.StringFixed(2), p.GrossCashFlow.StringFixed(2), p.TotalFees.StringFixed(4), p.TradeCount, p.OpenPosition.Amount.String())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nTotal profit %s over %d days (%d profitable, %s%%), win rate %s%%\n",
		sum.TotalProfit.StringFixed(2), sum.TradingDays, sum.ProfitableDays, sum.ProfitableDaysPct.StringFixed(2), sum.WinRate.StringFixed(2))
	if sum.BestDay != nil && sum.WorstDay != nil {
		fmt.Fprintf(out, "Best day %s (%s), worst day %s (%s)\n",
			sum.BestDay.Date, sum.BestDay.Profit.StringFixed(2), sum.WorstDay.Date, sum.WorstDay.Profit.StringFixed(2))
	}

	var failed []string
	for file := range batch.Failed {
		failed = append(failed, file)
	}
	sort.Strings(failed)
	quality := dashboard.Quality{Normalize: batch.Report, Engine: report.Diagnostics}.Summary()
	if len(failed) > 0 {
		quality += ", skipped files: " + strings.Join(failed, ", ")
	}
	fmt.Fprintf(out, "Data quality: %s\n", quality)
	return nil
}
