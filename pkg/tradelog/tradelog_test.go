package tradelog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.log")

	w, err := New(path)
	require.NoError(t, err)

	openTime := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	closeTime := openTime.Add(2 * time.Hour)

	require.NoError(t, w.RecordOpen("AAPL", 10, 150.0, openTime))
	require.NoError(t, w.RecordClose("AAPL", 10, 140.0, closeTime, -100.0, -6.666666666666667))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"OPEN", "AAPL", "10", "150", "2024-03-01T14:30:00Z"}, records[0])
	assert.Equal(t, "CLOSE", records[1][0])
	assert.Equal(t, "AAPL", records[1][1])
	assert.Equal(t, "140", records[1][3])
	assert.Equal(t, "-100", records[1][5])
}

func TestWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.log")
	ts := time.Now()

	w, err := New(path)
	require.NoError(t, err)
	require.NoError(t, w.RecordOpen("MSFT", 5, 410.0, ts))
	require.NoError(t, w.Close())

	// Reopening must append, not truncate
	w, err = New(path)
	require.NoError(t, err)
	require.NoError(t, w.RecordOpen("GOOGL", 7, 140.0, ts))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "MSFT", records[0][1])
	assert.Equal(t, "GOOGL", records[1][1])
}
