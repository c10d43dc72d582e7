package ingest

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCSV_CommaDelimited(t *testing.T) {
	data := "\ufeffPairs,Time,Side,Filled Price,Executed Amount,Total,Fee,Role\n" +
		"BTCUSDT,2024-01-01 10:00:00,Buy,100,1,100,0.1,Taker\n" +
		"\n" +
		"BTCUSDT,2024-01-02 10:00:00,Sell,110,1,110\n" +
		"BTCUSDT,2024-01-02 11:00:00,Sell,\"1,100\",1,\"1,100\",0.11,Maker\n"

	table, err := ReadCSV(strings.NewReader(data), "fills.csv")
	require.NoError(t, err)

	assert.Equal(t, "fills.csv", table.Source)
	assert.Equal(t, "Pairs", table.Headers[0])
	require.Len(t, table.Rows, 3)
	assert.Zero(t, table.Malformed)
	assert.Equal(t, "1,100", table.Rows[2]["Filled Price"])
	assert.Equal(t, "Maker", table.Rows[2]["Role"])
}

func TestReadCSV_RaggedRowsKeepTheirValues(t *testing.T) {
	data := "Pairs,Time,Side,Filled Price,Executed Amount,Total,Fee,Role\n" +
		"BTCUSDT,2024-01-01 10:00:00,Buy,100,1,100,0.1,Taker,\n" +
		"BTCUSDT,2024-01-02 10:00:00,Sell,110,1,110,0.11\n"

	table, err := ReadCSV(strings.NewReader(data), "fills.csv")
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Zero(t, table.Malformed)

	assert.Equal(t, "Taker", table.Rows[0]["Role"])
	assert.Len(t, table.Rows[0], 8)

	short := table.Rows[1]
	assert.Equal(t, "Sell", short["Side"])
	assert.Equal(t, "0.11", short["Fee"])
	assert.Equal(t, "", short["Role"])

	trades, report, err := newTestNormalizer(time.Now()).Normalize(table)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Zero(t, report.SkippedRows)
	assert.Equal(t, "110", trades[1].Total.String())
}

func TestReadCSV_SniffsDelimiter(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"semicolon", "Time;Side;Total;Fee\n01.02.2024 10:00:00;Покупка;25,50;0,01\n"},
		{"tab", "Time\tSide\tTotal\tFee\n01.02.2024 10:00:00\tПокупка\t25,50\t0,01\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ReadCSV(strings.NewReader(tt.data), "export.csv")
			require.NoError(t, err)
			assert.Equal(t, []string{"Time", "Side", "Total", "Fee"}, table.Headers)
			require.Len(t, table.Rows, 1)
			assert.Equal(t, "25,50", table.Rows[0]["Total"])
		})
	}
}

func TestReadCSV_Empty(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(""), "empty.csv")
	require.NoError(t, err)
	assert.Empty(t, table.Headers)
	assert.Empty(t, table.Rows)
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Pairs", "Time", "Side", "Filled Price", "Executed Amount", "Total", "Fee"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"ETHUSDT", 45292.5, "Buy", 2000, 0.5, 1000, 1}))
	require.NoError(t, f.SetSheetRow(sheet, "A5", &[]interface{}{"ETHUSDT", "2024-01-03 09:00:00", "Sell", 2100, 0.5}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	table, err := ReadXLSX(bytes.NewReader(buf.Bytes()), "fills.xlsx")
	require.NoError(t, err)

	assert.Equal(t, "Pairs", table.Headers[0])
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "45292.5", table.Rows[0]["Time"])
	assert.Equal(t, "0.5", table.Rows[0]["Executed Amount"])
	assert.Equal(t, "", table.Rows[1]["Total"])

	n := newTestNormalizer(time.Now())
	trades, _, err := n.Normalize(table)
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).Equal(trades[0].Time))
}

func TestReadTable_Dispatch(t *testing.T) {
	_, err := ReadTable(strings.NewReader("Time,Side,Total\n"), "upload.CSV")
	require.NoError(t, err)

	_, err = ReadTable(strings.NewReader("binary"), "legacy.xls")
	require.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = ReadTable(strings.NewReader("not a zip"), "broken.xlsx")
	require.Error(t, err)

	assert.True(t, SupportedExtension("a.xlsx"))
	assert.True(t, SupportedExtension("a.Csv"))
	assert.False(t, SupportedExtension("a.xls"))
	assert.False(t, SupportedExtension("notes.txt"))
}
