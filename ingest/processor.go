package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viktsys/pnldash/models"
)

const DefaultFileWorkers = 4

// TradeSaver persists normalized trades. It is optional: without one the
// processor only parses.
type TradeSaver interface {
	SaveTrades(ctx context.Context, trades []models.Trade) (int64, error)
}

// Result is the outcome of one file. Stored is set when the trades went
// through a TradeSaver; Saved then counts the rows it did not already hold.
type Result struct {
	Source string
	Trades []models.Trade
	Report NormalizeReport
	Saved  int64
	Stored bool
}

// Ingested is the part of the report that describes newly stored data.
// A file whose rows were all stored before contributes only its duplicate
// count, so reading it again does not inflate the quality totals.
func (r *Result) Ingested() NormalizeReport {
	if !r.Stored || r.Saved > 0 {
		return r.Report
	}
	return NormalizeReport{DuplicateRows: r.Report.DuplicateRows}
}

// Batch merges the results of several files in the order they were given.
type Batch struct {
	Trades []models.Trade
	Report NormalizeReport
	Files  int
	Failed map[string]error
}

type Processor struct {
	normalizer     *Normalizer
	store          TradeSaver
	log            logrus.FieldLogger
	fileWorkers    int
	processedRows  int64
	processedFiles int64
}

func NewProcessor(normalizer *Normalizer, store TradeSaver, log logrus.FieldLogger, fileWorkers int) *Processor {
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if fileWorkers <= 0 {
		fileWorkers = DefaultFileWorkers
	}
	return &Processor{
		normalizer:  normalizer,
		store:       store,
		log:         log,
		fileWorkers: fileWorkers,
	}
}

// ProcessedRows is the number of trades normalized so far.
func (p *Processor) ProcessedRows() int64 { return atomic.LoadInt64(&p.processedRows) }

func (p *Processor) ProcessedFiles() int64 { return atomic.LoadInt64(&p.processedFiles) }

// FindFiles lists the readable exports in dataDir, sorted by name.
func FindFiles(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !SupportedExtension(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dataDir, entry.Name()))
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no CSV or XLSX files found in directory: %s", dataDir)
	}
	return files, nil
}

// ProcessDirectory processes every export found in dataDir.
func (p *Processor) ProcessDirectory(ctx context.Context, dataDir string) (*Batch, error) {
	files, err := FindFiles(dataDir)
	if err != nil {
		return nil, err
	}
	return p.ProcessFiles(ctx, files)
}

// ProcessFiles parses files concurrently, bounded by the file worker count.
// A failing file is logged and reported; the batch fails only when no file
// could be processed.
func (p *Processor) ProcessFiles(ctx context.Context, files []string) (*Batch, error) {
	startTime := time.Now()
	p.log.WithFields(logrus.Fields{"files": len(files), "workers": p.fileWorkers}).Info("Processing trade files")

	results := make([]*Result, len(files))
	errs := make([]error, len(files))

	// Create a semaphore to limit concurrent file processing
	semaphore := make(chan struct{}, p.fileWorkers)
	var wg sync.WaitGroup

	for i, file := range files {
		wg.Add(1)
		go func(i int, filename string) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-semaphore }()

			fileStart := time.Now()
			res, err := p.ProcessFile(ctx, filename)
			if err != nil {
				p.log.WithField("file", filename).WithError(err).Error("Error processing file")
				errs[i] = err
				return
			}
			results[i] = res
			p.log.WithFields(logrus.Fields{
				"file":     filename,
				"rows":     len(res.Trades),
				"duration": time.Since(fileStart),
			}).Info("Successfully processed file")
		}(i, file)
	}

	wg.Wait()

	batch := &Batch{Failed: make(map[string]error)}
	for i, res := range results {
		if errs[i] != nil {
			batch.Failed[files[i]] = errs[i]
			continue
		}
		batch.Files++
		batch.Trades = append(batch.Trades, res.Trades...)
		batch.Report.Merge(res.Ingested())
	}

	if batch.Files == 0 {
		all := make([]error, 0, len(errs))
		for _, err := range errs {
			if err != nil {
				all = append(all, err)
			}
		}
		return nil, fmt.Errorf("no file could be processed: %w", errors.Join(all...))
	}
	if len(batch.Failed) > 0 {
		p.log.WithField("failed", len(batch.Failed)).Warn("Some files had processing errors, continuing with the rest")
	}

	p.log.WithFields(logrus.Fields{
		"files":    batch.Files,
		"rows":     len(batch.Trades),
		"duration": time.Since(startTime),
	}).Info("File processing completed")

	return batch, nil
}

// ProcessFile reads, normalizes and, when a store is configured, saves one
// export file.
func (p *Processor) ProcessFile(ctx context.Context, filename string) (*Result, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	table, err := ReadTable(file, filepath.Base(filename))
	if err != nil {
		return nil, err
	}
	return p.ProcessTable(ctx, table)
}

// ProcessTable normalizes an already parsed table and saves it.
func (p *Processor) ProcessTable(ctx context.Context, table Table) (*Result, error) {
	trades, report, err := p.normalizer.Normalize(table)
	if err != nil {
		return nil, err
	}

	res := &Result{Source: table.Source, Trades: trades, Report: report}

	if p.store != nil {
		saved, err := p.store.SaveTrades(ctx, trades)
		if err != nil {
			return nil, fmt.Errorf("failed to save trades from %s: %w", table.Source, err)
		}
		res.Saved = saved
		res.Stored = true
		if dup := len(trades) - int(saved); dup > 0 {
			res.Report.DuplicateRows = dup
			p.log.WithFields(logrus.Fields{"source": table.Source, "duplicates": dup}).Info("Skipped trades that were already stored")
		}
	}

	atomic.AddInt64(&p.processedRows, int64(len(trades)))
	atomic.AddInt64(&p.processedFiles, 1)
	return res, nil
}
