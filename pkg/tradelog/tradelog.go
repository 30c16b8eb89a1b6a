// Package tradelog writes the append-only trade audit log: one line per
// open or close transaction, human-diffable, used for post-hoc
// reconciliation against the portfolio ledger.
package tradelog

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"
)

// Writer appends OPEN/CLOSE records to a log file. Records take the form
//
//	OPEN,ticker,quantity,price,timestamp
//	CLOSE,ticker,quantity,price,timestamp,pnl,pnl_percentage
type Writer struct {
	mu sync.Mutex
	w  *csv.Writer
	f  *os.File
}

// New opens the trade log at path for appending, creating it if needed
func New(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{w: csv.NewWriter(f), f: f}, nil
}

// RecordOpen appends an OPEN line for a newly opened position
func (l *Writer) RecordOpen(ticker string, quantity, price float64, ts time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.w.Write([]string{
		"OPEN",
		ticker,
		f(quantity),
		f(price),
		ts.Format(time.RFC3339),
	}); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

// RecordClose appends a CLOSE line with the realized pnl of the position
func (l *Writer) RecordClose(ticker string, quantity, price float64, ts time.Time, pnl, pnlPercent float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.w.Write([]string{
		"CLOSE",
		ticker,
		f(quantity),
		f(price),
		ts.Format(time.RFC3339),
		f(pnl),
		f(pnlPercent),
	}); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

// Close flushes any buffered records and closes the underlying file
func (l *Writer) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return err
	}
	return l.f.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
