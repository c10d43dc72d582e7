// Package dashboard owns the published P&L report behind the HTTP API.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viktsys/pnldash/ingest"
	"github.com/viktsys/pnldash/models"
	"github.com/viktsys/pnldash/pnl"
)

// ErrSuperseded is returned by Recompute when a newer recomputation was
// requested before this one finished. Its result is discarded.
var ErrSuperseded = errors.New("recomputation superseded by a newer request")

// TradeSource supplies the canonical trades to replay.
type TradeSource interface {
	LoadTrades(ctx context.Context, pairs []string) ([]models.Trade, error)
}

// StatsSink receives the daily projection of every published report.
type StatsSink interface {
	ReplaceDailyStats(ctx context.Context, daily map[string]models.DailyStat) error
}

// Quality summarizes the recoverable problems of the published data.
type Quality struct {
	Normalize ingest.NormalizeReport `json:"normalize"`
	Engine    pnl.Diagnostics        `json:"engine"`
}

// Summary renders the anomalies in one line.
func (q Quality) Summary() string {
	parts := []string{
		fmt.Sprintf("%d rows defaulted", q.Normalize.DefaultedRows),
		fmt.Sprintf("%d sells unmatched", q.Engine.UnmatchedSells),
	}
	if q.Engine.PartialSells > 0 {
		parts = append(parts, fmt.Sprintf("%d sells partially matched", q.Engine.PartialSells))
	}
	if q.Normalize.SkippedRows > 0 {
		parts = append(parts, fmt.Sprintf("%d rows skipped", q.Normalize.SkippedRows))
	}
	if q.Normalize.DuplicateRows > 0 {
		parts = append(parts, fmt.Sprintf("%d duplicate rows already stored", q.Normalize.DuplicateRows))
	}
	return strings.Join(parts, ", ")
}

// Snapshot is one published report. It is never modified after publishing.
type Snapshot struct {
	Ticket     uint64      `json:"ticket"`
	ComputedAt time.Time   `json:"computed_at"`
	Pairs      []string    `json:"pairs,omitempty"`
	Report     *pnl.Report `json:"report"`
	Quality    Quality     `json:"quality"`
}

// Empty reports whether the snapshot holds no trades.
func (s *Snapshot) Empty() bool {
	return s == nil || s.Report == nil || s.Report.Diagnostics.Trades == 0
}

type Service struct {
	engine *pnl.Engine
	source TradeSource
	sink   StatsSink
	log    logrus.FieldLogger
	now    func() time.Time

	requested atomic.Uint64
	persistMu sync.Mutex

	mu        sync.RWMutex
	current   *Snapshot
	normalize ingest.NormalizeReport
}

func NewService(engine *pnl.Engine, source TradeSource, sink StatsSink, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		engine: engine,
		source: source,
		sink:   sink,
		log:    log,
		now:    time.Now,
	}
}

// Engine exposes the configured engine, mainly for its location.
func (s *Service) Engine() *pnl.Engine { return s.engine }

// Current returns the latest published snapshot, or nil before the first
// recomputation.
func (s *Service) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// RecordIngest folds the normalization counts of newly ingested data into
// the quality summary.
func (s *Service) RecordIngest(report ingest.NormalizeReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.normalize.Merge(report)
}

// Recompute replays the trades of the given pairs (all when empty) and
// publishes the result unless a newer recomputation was requested
// meanwhile. Having no trades publishes an empty snapshot.
func (s *Service) Recompute(ctx context.Context, pairs []string) (*Snapshot, error) {
	ticket := s.requested.Add(1)
	log := s.log.WithField("ticket", ticket)

	trades, err := s.source.LoadTrades(ctx, pairs)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}

	start := time.Now()
	report, err := s.engine.Compute(trades, pnl.Options{Pairs: pairs})
	switch {
	case errors.Is(err, pnl.ErrEmptyInput):
		report = s.emptyReport()
	case err != nil:
		return nil, err
	}

	s.mu.Lock()
	if ticket != s.requested.Load() {
		s.mu.Unlock()
		log.Debug("Discarding superseded recomputation")
		return nil, ErrSuperseded
	}
	normalize := s.normalize
	normalize.FieldDefaults = maps.Clone(s.normalize.FieldDefaults)
	snap := &Snapshot{
		Ticket:     ticket,
		ComputedAt: s.now(),
		Pairs:      append([]string(nil), pairs...),
		Report:     report,
		Quality:    Quality{Normalize: normalize, Engine: report.Diagnostics},
	}
	s.current = snap
	s.mu.Unlock()

	log.WithFields(logrus.Fields{
		"trades":   report.Diagnostics.Trades,
		"days":     len(report.Daily),
		"pairs":    len(report.Pairs),
		"duration": time.Since(start),
	}).Info("Published report")
	if report.Diagnostics.UnmatchedSells > 0 || report.Diagnostics.PartialSells > 0 {
		log.WithField("quality", snap.Quality.Summary()).Warn("Inventory anomalies in published report")
	}

	s.persist(ctx, snap, log)
	return snap, nil
}

// persist writes the daily projection of snap unless a newer snapshot was
// published in the meantime.
func (s *Service) persist(ctx context.Context, snap *Snapshot, log logrus.FieldLogger) {
	if s.sink == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if s.Current() != snap {
		return
	}
	if err := s.sink.ReplaceDailyStats(ctx, snap.Report.Daily); err != nil {
		log.WithError(err).Warn("Failed to persist daily stats")
	}
}

func (s *Service) emptyReport() *pnl.Report {
	return &pnl.Report{
		Method:   s.engine.Method(),
		Location: s.engine.Location().String(),
		Daily:    map[string]models.DailyStat{},
		Monthly:  map[string]models.MonthlyStat{},
		Pairs:    map[string]models.PairStat{},
	}
}
