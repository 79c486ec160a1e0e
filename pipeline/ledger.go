package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/aluiziolira/marketplace-capture/models"
)

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// ErrorLedger collects one row per recorded failure.
type ErrorLedger struct {
	classify func(error) string
	now      func() time.Time

	mu      sync.Mutex
	records []models.ErrorRecord
}

// NewErrorLedger returns a ledger that labels failures with classify.
// A nil classify labels every failure "Unclassified".
func NewErrorLedger(classify func(error) string) *ErrorLedger {
	if classify == nil {
		classify = func(error) string { return "Unclassified" }
	}
	return &ErrorLedger{classify: classify, now: time.Now}
}

// Record appends a row for err. listingURL may be empty when the listing
// link could not be resolved.
func (l *ErrorLedger) Record(err error, listingURL string) {
	rec := models.ErrorRecord{
		Kind:           "Unclassified",
		Message:        "unknown error",
		SourceLocation: "unknown",
		RecordedAt:     l.now(),
	}
	if err != nil {
		rec.Kind = l.safeClassify(err)
		rec.Message = err.Error()
		if frame, ok := originFrame(err); ok {
			rec.SourceLocation = fmt.Sprintf("%s:%d", frame, frame)
			rec.SourceSnippet = fmt.Sprintf("%n", frame)
		}
	}
	if u := strings.TrimSpace(listingURL); u != "" {
		rec.ListingURL = &u
	}

	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
}

func (l *ErrorLedger) safeClassify(err error) (kind string) {
	defer func() {
		if r := recover(); r != nil {
			kind = "Unclassified"
		}
	}()
	return l.classify(err)
}

// originFrame returns the first frame of the innermost stack trace in
// err's chain.
func originFrame(err error) (pkgerrors.Frame, bool) {
	var found pkgerrors.StackTrace
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if st, ok := cur.(stackTracer); ok {
			if trace := st.StackTrace(); len(trace) > 0 {
				found = trace
			}
		}
	}
	if len(found) == 0 {
		return 0, false
	}
	return found[0], true
}

// Len returns the number of rows.
func (l *ErrorLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Records returns a copy of the rows.
func (l *ErrorLedger) Records() []models.ErrorRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.ErrorRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Columns implements Table.
func (l *ErrorLedger) Columns() []string {
	return models.ErrorColumns
}

// Rows implements Table.
func (l *ErrorLedger) Rows() [][]any {
	records := l.Records()
	rows := make([][]any, len(records))
	for i := range records {
		rows[i] = records[i].Values()
	}
	return rows
}
