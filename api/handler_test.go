package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viktsys/pnldash/dashboard"
	"github.com/viktsys/pnldash/ingest"
	"github.com/viktsys/pnldash/logger"
	"github.com/viktsys/pnldash/models"
	"github.com/viktsys/pnldash/pnl"
)

const fillsCSV = "Pairs,Time,Side,Filled Price,Executed Amount,Total,Fee,Role\n" +
	"BTCUSDT,2024-01-01 10:00:00,Buy,100,1,100,0.1,Maker\n" +
	"BTCUSDT,2024-01-02 10:00:00,Sell,110,1,110,0.11,Taker\n" +
	"ETHUSDT,2024-01-03 10:00:00,Sell,10,1,10,0.01,Taker\n"

type fakeHistory struct {
	rows []models.DailyAggregate
}

func (f *fakeHistory) DailyAggregates(_ context.Context, start, end string) ([]models.DailyAggregate, error) {
	var out []models.DailyAggregate
	for _, r := range f.rows {
		if (start == "" || r.Date >= start) && (end == "" || r.Date <= end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestRouter(t *testing.T, history HistoryReader) (*gin.Engine, *Handler) {
	t.Helper()
	log := logger.Discard()

	engine, err := pnl.NewEngine(pnl.Config{})
	require.NoError(t, err)

	store := dashboard.NewMemoryStore()
	service := dashboard.NewService(engine, store, nil, log)
	normalizer := ingest.NewNormalizer(nil, ingest.WithLogger(log))
	processor := ingest.NewProcessor(normalizer, store, log, 1)

	h := NewHandler(service, processor, history, 4096, log)
	h.now = func() time.Time { return time.Date(2024, 1, 4, 12, 0, 0, 0, time.UTC) }
	return SetupRoutes(h), h
}

func upload(t *testing.T, r http.Handler, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w := get(r, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestEmptyDashboard(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	body := decode(t, get(r, "/api/summary"))
	assert.Equal(t, true, body["empty"])

	body = decode(t, get(r, "/api/stats/daily"))
	assert.Empty(t, body["days"])

	body = decode(t, get(r, "/api/diagnostics"))
	assert.Equal(t, true, body["empty"])
}

func TestUploadAndStats(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := upload(t, r, "fills.csv", fillsCSV)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(3), body["rows"])
	assert.Equal(t, float64(3), body["saved"])
	assert.Equal(t, "published", body["status"])
	assert.Equal(t, "0 rows defaulted, 1 sells unmatched", body["data_quality"])

	// the same file again stores nothing new
	body = decode(t, upload(t, r, "fills.csv", fillsCSV))
	assert.Equal(t, float64(0), body["saved"])
	assert.Equal(t, float64(3), body["duplicates"])
	assert.Equal(t, "0 rows defaulted, 1 sells unmatched, 3 duplicate rows already stored", body["data_quality"])

	body = decode(t, get(r, "/api/stats/daily"))
	days := body["days"].([]any)
	require.Len(t, days, 3)
	second := days[1].(map[string]any)
	assert.Equal(t, "2024-01-02", second["date"])
	assert.Equal(t, "9.89", second["profit"])
	summary := body["summary"].(map[string]any)
	assert.Equal(t, "9.89", summary["total_profit"])

	body = decode(t, get(r, "/api/stats/daily?start=2024-01-02&end=2024-01-02"))
	assert.Len(t, body["days"], 1)

	body = decode(t, get(r, "/api/stats/daily?period=week&profitable=true"))
	days = body["days"].([]any)
	require.Len(t, days, 1)
	assert.Equal(t, "2024-01-02", days[0].(map[string]any)["date"])

	body = decode(t, get(r, "/api/stats/daily?sort=profit"))
	days = body["days"].([]any)
	assert.Equal(t, "2024-01-02", days[0].(map[string]any)["date"])

	body = decode(t, get(r, "/api/stats/monthly"))
	months := body["months"].([]any)
	require.Len(t, months, 1)
	assert.Equal(t, "January 2024", months[0].(map[string]any)["month_label"])

	body = decode(t, get(r, "/api/stats/pairs"))
	pairs := body["pairs"].([]any)
	require.Len(t, pairs, 2)
	assert.Equal(t, "BTCUSDT", pairs[0].(map[string]any)["pair"])

	body = decode(t, get(r, "/api/diagnostics"))
	engine := body["engine"].(map[string]any)
	assert.Equal(t, float64(1), engine["unmatched_sells"])
	normalize := body["normalize"].(map[string]any)
	assert.Equal(t, float64(3), normalize["rows"], "a repeated upload is not counted twice")
	assert.Equal(t, float64(3), normalize["duplicate_rows"])
}

func TestUpload_SameNameDifferentExports(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	const header = "Pairs,Time,Side,Filled Price,Executed Amount,Total,Fee,Role\n"

	w := upload(t, r, "export.csv", header+"BTCUSDT,2024-01-01 10:00:00,Buy,100,1,100,0,Maker\n")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = upload(t, r, "export.csv", header+"BTCUSDT,2024-02-01 10:00:00,Sell,150,1,150,0,Taker\n")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(1), body["saved"])
	assert.Equal(t, float64(0), body["duplicates"])

	body = decode(t, get(r, "/api/stats/pairs"))
	pairs := body["pairs"].([]any)
	require.Len(t, pairs, 1)
	btc := pairs[0].(map[string]any)
	assert.Equal(t, "50", btc["realized_profit"])
	assert.Equal(t, float64(1), btc["sell_count"])
	assert.Equal(t, "0", btc["open_position"].(map[string]any)["amount"])
}

func TestDailyStats_BadQuery(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	for _, path := range []string{
		"/api/stats/daily?start=2024-02-01&end=2024-01-01",
		"/api/stats/daily?start=01/02/2024",
		"/api/stats/daily?period=quarter",
		"/api/stats/daily?sort=volume",
		"/api/export/daily.csv?period=quarter",
	} {
		w := get(r, path)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestUpload_Rejections(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	tests := []struct {
		name    string
		file    string
		content string
		want    int
	}{
		{"legacy workbook", "fills.xls", "binary", http.StatusUnsupportedMediaType},
		{"unknown type", "fills.txt", fillsCSV, http.StatusBadRequest},
		{"too large", "big.csv", fillsCSV + strings.Repeat("x", 5000), http.StatusRequestEntityTooLarge},
		{"not a fill history", "orders.csv", "Note,Status\nmanual,filled\n", http.StatusUnprocessableEntity},
		{"header only", "empty.csv", "Time,Side,Total\n", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := upload(t, r, tt.file, tt.content)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/upload", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecompute_PairFilter(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	require.Equal(t, http.StatusOK, upload(t, r, "fills.csv", fillsCSV).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/recompute", strings.NewReader(`{"pairs":["btcusdt"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), decode(t, w)["pairs"])

	body := decode(t, get(r, "/api/summary"))
	assert.Equal(t, []any{"btcusdt"}, body["pairs_filter"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/recompute?pairs=ETHUSDT,BTCUSDT", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["pairs"])

	req = httptest.NewRequest(http.MethodPost, "/api/recompute", strings.NewReader(`{"pairs":`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportCSV(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	require.Equal(t, http.StatusOK, upload(t, r, "fills.csv", fillsCSV).Code)

	w := get(r, "/api/export/daily.csv?start=2024-01-02&end=2024-01-03")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "date,profit,"))
	assert.True(t, strings.HasPrefix(lines[1], "2024-01-02,9.89,"))

	w = get(r, "/api/export/pairs.csv")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "BTCUSDT,9.89,")
}

func TestStoredDaily(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/api/stats/daily/stored").Code)

	history := &fakeHistory{rows: []models.DailyAggregate{{Date: "2024-01-01"}, {Date: "2024-01-02"}}}
	r, _ = newTestRouter(t, history)

	body := decode(t, get(r, "/api/stats/daily/stored?start=2024-01-02"))
	assert.Equal(t, float64(1), body["count"])

	assert.Equal(t, http.StatusBadRequest, get(r, "/api/stats/daily/stored?end=yesterday").Code)
}
