// Package pipeline holds the capture run's in-memory tables and persists
// them: dated listing/error files, the cumulative metrics workbook, and an
// asynchronous record journal.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/marketplace-capture/models"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// Pipeline journals listing records to an OutputWriter as they are
// captured, so an interrupted run still leaves its records on disk.
type Pipeline struct {
	writer    OutputWriter
	recordCh  chan models.ListingRecord
	batchSize int

	wg sync.WaitGroup

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline with a modest in-memory buffer.
func NewPipeline(writer OutputWriter) *Pipeline {
	return &Pipeline{
		writer:    writer,
		recordCh:  make(chan models.ListingRecord, 512),
		batchSize: 16,
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues records for journaling.
func (p *Pipeline) Process(records ...models.ListingRecord) error {
	if len(records) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, rec := range records {
		if err := p.enqueue(rec); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to drain the buffer and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		close(p.recordCh)
	})

	p.wg.Wait()
	p.signalShutdown()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				slog.Debug("journal progress",
					slog.Int64("journaled", metrics["journaled_records"].(int64)),
					slog.Any("incomplete", metrics["incomplete_records"]),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([][]any, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.WriteRows(batch); err != nil {
			return err
		}
		p.metrics.addJournaled(len(batch))
		batch = batch[:0]
		return nil
	}

	for rec := range p.recordCh {
		p.inspect(&rec)
		batch = append(batch, rec.Values())
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

// inspect counts records missing fields that downstream consumers rely on.
func (p *Pipeline) inspect(rec *models.ListingRecord) {
	if rec.CreationTime == nil {
		p.metrics.addIncomplete("creation_time")
	}
	if rec.Title == nil {
		p.metrics.addIncomplete("title")
	}
	if rec.ListingURL == nil {
		p.metrics.addIncomplete("listing_url")
	}
}

func (p *Pipeline) enqueue(rec models.ListingRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.recordCh <- rec:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.recordCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	journaled  int64
	incomplete map[string]int
}

func newMetrics() metrics {
	return metrics{
		incomplete: make(map[string]int),
	}
}

func (m *metrics) addJournaled(n int) {
	m.mu.Lock()
	m.journaled += int64(n)
	m.mu.Unlock()
}

func (m *metrics) addIncomplete(field string) {
	m.mu.Lock()
	m.incomplete[field]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyIncomplete := make(map[string]int, len(m.incomplete))
	for k, v := range m.incomplete {
		copyIncomplete[k] = v
	}

	return map[string]interface{}{
		"journaled_records":  m.journaled,
		"incomplete_records": copyIncomplete,
	}
}
