package models

import (
	"errors"
	"math"
	"time"
)

// ErrRunFinalized is returned when RunMetrics is mutated after Finalize.
var ErrRunFinalized = errors.New("run metrics: already finalized")

// RunMetrics captures timing and throughput for one capture run. It is
// created at run start, receives counts once, and is finalized once.
type RunMetrics struct {
	TargetDate     time.Time
	StartTime      time.Time
	EndTime        time.Time
	SuccessCount   int
	AttemptedCount int
	ErrorCount     int
	Elapsed        time.Duration
	PerMinute      float64
	PerMinuteReal  float64

	countsSet bool
	finalized bool
}

// RunColumns is the header written to the cumulative metrics sheet.
var RunColumns = []string{
	"target_date",
	"start_time",
	"end_time",
	"success_count",
	"attempted_count",
	"error_count",
	"elapsed",
	"items_per_minute",
	"items_per_minute_real",
}

// NewRunMetrics starts the run clock.
func NewRunMetrics(targetDate, start time.Time) *RunMetrics {
	return &RunMetrics{TargetDate: targetDate, StartTime: start}
}

// SetCounts records the final counters. It may be called once.
func (m *RunMetrics) SetCounts(success, attempted, errorCount int) error {
	if m.finalized {
		return ErrRunFinalized
	}
	if m.countsSet {
		return errors.New("run metrics: counts already set")
	}
	m.SuccessCount = success
	m.AttemptedCount = attempted
	m.ErrorCount = errorCount
	m.countsSet = true
	return nil
}

// Finalize stops the clock and derives throughput.
func (m *RunMetrics) Finalize(end time.Time) error {
	if m.finalized {
		return ErrRunFinalized
	}
	m.EndTime = end
	m.Elapsed = end.Sub(m.StartTime)
	minutes := m.Elapsed.Minutes()
	if minutes > 0 {
		m.PerMinute = round2(float64(m.SuccessCount) / minutes)
		m.PerMinuteReal = round2(float64(m.AttemptedCount) / minutes)
	}
	m.finalized = true
	return nil
}

// Finalized reports whether Finalize has run.
func (m *RunMetrics) Finalized() bool {
	return m.finalized
}

// Values returns the sheet row in RunColumns order.
func (m *RunMetrics) Values() []any {
	return []any{
		m.TargetDate.Format("02/01/2006"),
		m.StartTime.Format("15:04:05"),
		m.EndTime.Format("15:04:05"),
		m.SuccessCount,
		m.AttemptedCount,
		m.ErrorCount,
		m.Elapsed.Truncate(time.Second).String(),
		m.PerMinute,
		m.PerMinuteReal,
	}
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
