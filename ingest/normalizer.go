package ingest

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/viktsys/pnldash/models"
)

var (
	// ErrEmptyInput is returned when a table has no data rows.
	ErrEmptyInput = errors.New("input contains no trade rows")
	// ErrMissingColumns is returned when a required column cannot be resolved.
	ErrMissingColumns = errors.New("required columns not found")
)

// Table is a parsed sheet: ordered headers plus one value map per data row.
// Malformed counts lines the reader could not parse at all.
type Table struct {
	Source    string
	Headers   []string
	Rows      []map[string]string
	Malformed int
}

// NormalizeReport counts the fields that had to be defaulted.
// DuplicateRows is filled in by the processor with the rows a store
// already held.
type NormalizeReport struct {
	Rows          int              `json:"rows"`
	SkippedRows   int              `json:"skipped_rows"`
	DuplicateRows int              `json:"duplicate_rows"`
	DefaultedRows int              `json:"defaulted_rows"`
	FieldDefaults map[Field]int    `json:"field_defaults"`
	UnknownSides  int              `json:"unknown_sides"`
	Columns       map[Field]string `json:"columns,omitempty"`
}

// Merge folds another report into r. Column mappings are kept from r.
func (r *NormalizeReport) Merge(other NormalizeReport) {
	r.Rows += other.Rows
	r.SkippedRows += other.SkippedRows
	r.DuplicateRows += other.DuplicateRows
	r.DefaultedRows += other.DefaultedRows
	r.UnknownSides += other.UnknownSides
	if r.FieldDefaults == nil {
		r.FieldDefaults = make(map[Field]int)
	}
	for field, n := range other.FieldDefaults {
		r.FieldDefaults[field] += n
	}
	if r.Columns == nil && other.Columns != nil {
		r.Columns = other.Columns
	}
}

type Normalizer struct {
	resolver ColumnResolver
	location *time.Location
	now      func() time.Time
	log      logrus.FieldLogger
}

type Option func(*Normalizer)

// WithLocation sets the zone used for timestamps that carry none.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.location = loc
		}
	}
}

// WithClock overrides the ingestion instant used for unparseable times.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(n *Normalizer) { n.log = log }
}

func NewNormalizer(resolver ColumnResolver, opts ...Option) *Normalizer {
	if resolver == nil {
		resolver = NewAliasResolver(nil)
	}
	n := &Normalizer{
		resolver: resolver,
		location: time.UTC,
		now:      time.Now,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize turns a table into canonical trades. Bad field values degrade
// to defaults and are counted; only structural problems return an error.
func (n *Normalizer) Normalize(table Table) ([]models.Trade, NormalizeReport, error) {
	report := NormalizeReport{FieldDefaults: make(map[Field]int), SkippedRows: table.Malformed}

	if len(table.Rows) == 0 {
		return nil, report, fmt.Errorf("%s: %w", sourceName(table), ErrEmptyInput)
	}

	columns := ResolveColumns(n.resolver, table.Headers)
	report.Columns = columns

	var missing []string
	for _, field := range requiredFields {
		if _, ok := columns[field]; !ok {
			missing = append(missing, string(field))
		}
	}
	if len(missing) > 0 {
		return nil, report, fmt.Errorf("%s: %w: %s (headers: %s)",
			sourceName(table), ErrMissingColumns, strings.Join(missing, ", "), strings.Join(table.Headers, ", "))
	}

	log := n.log.WithField("source", sourceName(table))
	for field, header := range columns {
		log.WithFields(logrus.Fields{"field": field, "header": header}).Debug("Resolved column")
	}

	ingestedAt := n.now()
	trades := make([]models.Trade, 0, len(table.Rows))

	for i, row := range table.Rows {
		if isBlankRow(row) {
			report.SkippedRows++
			continue
		}

		trade, defaulted := n.normalizeRow(row, columns, ingestedAt)
		trade.SourceFile = table.Source
		trade.SourceRow = i + 1

		if len(defaulted) > 0 {
			report.DefaultedRows++
			for _, field := range defaulted {
				report.FieldDefaults[field]++
			}
			log.WithFields(logrus.Fields{"row": i + 1, "fields": defaulted}).Debug("Defaulted fields")
		}
		if trade.Side == models.SideUnknown {
			report.UnknownSides++
		}

		trades = append(trades, trade)
	}

	report.Rows = len(trades)
	if len(trades) == 0 {
		return nil, report, fmt.Errorf("%s: %w", sourceName(table), ErrEmptyInput)
	}
	models.AssignFingerprints(trades)

	if report.DefaultedRows > 0 {
		log.WithFields(logrus.Fields{
			"rows":           report.Rows,
			"defaulted_rows": report.DefaultedRows,
			"field_defaults": report.FieldDefaults,
		}).Warn("Some rows were normalized with default values")
	}

	return trades, report, nil
}

func (n *Normalizer) normalizeRow(row map[string]string, columns map[Field]string, ingestedAt time.Time) (models.Trade, []Field) {
	var defaulted []Field
	value := func(field Field) string {
		header, ok := columns[field]
		if !ok {
			return ""
		}
		return strings.TrimSpace(row[header])
	}

	trade := models.Trade{Pair: value(FieldPair), Role: value(FieldRole)}
	if trade.Pair == "" {
		trade.Pair = models.UnknownPair
		defaulted = append(defaulted, FieldPair)
	}

	if ts, ok := ParseTime(value(FieldTime), n.location); ok {
		trade.Time = ts
	} else {
		trade.Time = ingestedAt
		trade.TimeDefaulted = true
		defaulted = append(defaulted, FieldTime)
	}

	trade.Side = ParseSide(value(FieldSide))
	if trade.Side == models.SideUnknown {
		defaulted = append(defaulted, FieldSide)
	}

	numeric := []struct {
		field    Field
		dst      *decimal.Decimal
		optional bool
	}{
		{FieldPrice, &trade.Price, false},
		{FieldAmount, &trade.Amount, false},
		{FieldTotal, &trade.Total, false},
		{FieldFee, &trade.Fee, true},
	}
	for _, num := range numeric {
		raw := value(num.field)
		d, status := parseDecimal(raw)
		*num.dst = d
		switch {
		case status == numberOK:
		case status == numberMissing && num.optional:
		default:
			defaulted = append(defaulted, num.field)
		}
	}

	return trade, defaulted
}

func sourceName(table Table) string {
	if table.Source == "" {
		return "input"
	}
	return table.Source
}

func isBlankRow(row map[string]string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ParseSide classifies a side cell. Single letters must match exactly.
func ParseSide(raw string) models.Side {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case v == "":
		return models.SideUnknown
	case strings.Contains(v, "buy") || strings.Contains(v, "покупка") || v == "b":
		return models.SideBuy
	case strings.Contains(v, "sell") || strings.Contains(v, "продажа") || v == "s":
		return models.SideSell
	}
	return models.SideUnknown
}

type numberStatus int

const (
	numberOK numberStatus = iota
	numberMissing
	numberInvalid
	numberNegative
)

var (
	numberPrefix   = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)
	numberStripper = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", " ", "", "\u00a0", "", "\u2009", "", "'", "")
	decimalComma   = regexp.MustCompile(`^[+-]?\d+,(\d{1,2}|\d{4,})$`)
)

// parseDecimal reads the leading number of a cell, so "0.1 USDT" is 0.1.
// Commas are thousands separators unless the value looks like a decimal
// comma ("25,50"). Invalid values become zero, negatives their magnitude.
func parseDecimal(raw string) (decimal.Decimal, numberStatus) {
	s := numberStripper.Replace(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Zero, numberMissing
	}

	if decimalComma.MatchString(s) {
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	m := numberPrefix.FindString(s)
	if m == "" {
		return decimal.Zero, numberInvalid
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero, numberInvalid
	}
	if d.IsNegative() {
		return d.Abs(), numberNegative
	}
	return d, numberOK
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"02.01.2006 15:04:05",
	"01/02/2006 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006 15:04",
	"2006-01-02",
	"02.01.2006",
	"01/02/2006",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

const (
	unixSecondsMin = 1e9
	unixMillisMin  = 1e11
	serialMax      = 1e6
)

// spreadsheetEpoch is day zero of spreadsheet date serials, already
// shifted by the two days lost to the 1900 leap-year bug.
func spreadsheetEpoch(loc *time.Location) time.Time {
	return time.Date(1899, time.December, 30, 0, 0, 0, 0, loc)
}

// ParseTime accepts ISO-8601, the explicit layouts above, spreadsheet date
// serials and unix seconds/milliseconds.
func ParseTime(raw string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return time.Time{}, false
	}
	switch {
	case v >= unixMillisMin:
		return time.UnixMilli(int64(v)).In(loc), true
	case v >= unixSecondsMin:
		return time.Unix(int64(v), 0).In(loc), true
	case v < serialMax:
		days := math.Floor(v)
		millis := math.Round((v - days) * 24 * 60 * 60 * 1000)
		t := spreadsheetEpoch(loc).AddDate(0, 0, int(days)).Add(time.Duration(millis) * time.Millisecond)
		return t, true
	}
	return time.Time{}, false
}
