package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/viktsys/pnldash/dashboard"
	"github.com/viktsys/pnldash/export"
	"github.com/viktsys/pnldash/ingest"
	"github.com/viktsys/pnldash/models"
	"github.com/viktsys/pnldash/pnl"
)

// HistoryReader reads the persisted daily projection.
type HistoryReader interface {
	DailyAggregates(ctx context.Context, start, end string) ([]models.DailyAggregate, error)
}

type Handler struct {
	service   *dashboard.Service
	processor *ingest.Processor
	history   HistoryReader
	maxUpload int64
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewHandler wires the API. history may be nil when persistence is off.
func NewHandler(service *dashboard.Service, processor *ingest.Processor, history HistoryReader, maxUploadBytes int64, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		service:   service,
		processor: processor,
		history:   history,
		maxUpload: maxUploadBytes,
		log:       log,
		now:       time.Now,
	}
}

// DailyQuery selects and orders daily stats.
type DailyQuery struct {
	Start      string `form:"start"`
	End        string `form:"end"`
	Period     string `form:"period"`
	Profitable bool   `form:"profitable"`
	Sort       string `form:"sort"`
}

// RecomputeRequest restricts a recomputation to some pairs.
type RecomputeRequest struct {
	Pairs []string `json:"pairs"`
}

func (h *Handler) report() *pnl.Report {
	snap := h.service.Current()
	if snap == nil || snap.Report == nil {
		return &pnl.Report{
			Daily:   map[string]models.DailyStat{},
			Monthly: map[string]models.MonthlyStat{},
			Pairs:   map[string]models.PairStat{},
		}
	}
	return snap.Report
}

// selectDays applies the range, profitable filter and ordering of q.
func (h *Handler) selectDays(q DailyQuery) ([]models.DailyStat, pnl.DateRange, error) {
	report := h.report()

	period := pnl.Period(strings.ToLower(q.Period))
	if period == "" && (q.Start != "" || q.End != "") {
		period = pnl.PeriodCustom
	}
	now := h.now().In(h.service.Engine().Location())
	dateRange, err := pnl.RangeForPeriod(period, now, q.Start, q.End)
	if err != nil {
		return nil, dateRange, err
	}

	daily := report.Daily
	if !dateRange.IsZero() {
		daily, err = report.FilterByRange(dateRange.Start, dateRange.End)
		if err != nil {
			return nil, dateRange, err
		}
	}

	key := pnl.SortByDate
	switch strings.ToLower(q.Sort) {
	case "", string(pnl.SortByDate):
	case string(pnl.SortByProfit):
		key = pnl.SortByProfit
	default:
		return nil, dateRange, errors.New("sort must be date or profit")
	}

	days := pnl.SortDays(daily, key)
	if q.Profitable {
		days = pnl.ProfitableOnly(days)
	}
	return days, dateRange, nil
}

func (h *Handler) GetDailyStats(c *gin.Context) {
	var q DailyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	days, dateRange, err := h.selectDays(q)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inRange := make(map[string]models.DailyStat, len(days))
	for _, d := range days {
		inRange[d.Date] = d
	}

	c.JSON(http.StatusOK, gin.H{
		"range":   dateRange,
		"days":    days,
		"summary": pnl.Summarize(inRange),
	})
}

func (h *Handler) GetMonthlyStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"months": h.report().MonthsNewestFirst()})
}

func (h *Handler) GetPairStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pairs": h.report().PairsByProfit()})
}

func (h *Handler) GetSummary(c *gin.Context) {
	snap := h.service.Current()
	report := h.report()

	resp := gin.H{
		"empty":   snap.Empty(),
		"summary": pnl.Summarize(report.Daily),
		"method":  report.Method,
	}
	if snap != nil {
		resp["computed_at"] = snap.ComputedAt
		resp["pairs_filter"] = snap.Pairs
		resp["data_quality"] = snap.Quality.Summary()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetDiagnostics(c *gin.Context) {
	snap := h.service.Current()
	if snap == nil {
		c.JSON(http.StatusOK, gin.H{"empty": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":   snap.Quality.Summary(),
		"normalize": snap.Quality.Normalize,
		"engine":    snap.Quality.Engine,
	})
}

func (h *Handler) ExportDailyCSV(c *gin.Context) {
	var q DailyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	days, _, err := h.selectDays(q)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="daily_pnl.csv"`)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := export.WriteDaily(c.Writer, days); err != nil {
		h.log.WithError(err).Error("Failed to write daily CSV")
	}
}

func (h *Handler) ExportPairsCSV(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="pairs_pnl.csv"`)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := export.WritePairs(c.Writer, h.report().PairsByProfit()); err != nil {
		h.log.WithError(err).Error("Failed to write pairs CSV")
	}
}

func (h *Handler) Recompute(c *gin.Context) {
	var req RecomputeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if q := c.Query("pairs"); q != "" {
		req.Pairs = append(req.Pairs, strings.Split(q, ",")...)
	}

	snap, err := h.service.Recompute(c.Request.Context(), req.Pairs)
	switch {
	case errors.Is(err, dashboard.ErrSuperseded):
		c.JSON(http.StatusAccepted, gin.H{"status": "superseded"})
		return
	case err != nil:
		h.log.WithError(err).Error("Recompute failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "published",
		"ticket":       snap.Ticket,
		"empty":        snap.Empty(),
		"pairs":        len(snap.Report.Pairs),
		"days":         len(snap.Report.Daily),
		"data_quality": snap.Quality.Summary(),
	})
}

func (h *Handler) GetStoredDaily(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence is disabled"})
		return
	}
	start, end := c.Query("start"), c.Query("end")
	for _, d := range []string{start, end} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(pnl.DayLayout, d); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format. Use YYYY-MM-DD"})
			return
		}
	}

	rows, err := h.history.DailyAggregates(c.Request.Context(), start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": rows, "count": len(rows)})
}
