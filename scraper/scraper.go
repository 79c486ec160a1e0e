// Package scraper runs the incremental capture loop: open a listing, decode
// the intercepted payload, record it, go back, and repeat until the feed
// reaches listings older than the target day.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/marketplace-capture/config"
	"github.com/aluiziolira/marketplace-capture/models"
	"github.com/aluiziolira/marketplace-capture/parser"
	"github.com/aluiziolira/marketplace-capture/pipeline"
)

// ExtractionDateLayout formats the extraction date stored on each record.
const ExtractionDateLayout = "02/01/2006"

// ErrAborted is returned by Run when an unclassified failure or
// cancellation stopped the loop early.
var ErrAborted = errors.New("capture loop aborted")

// StopReason explains why the loop finished.
type StopReason string

const (
	ReasonBoundary  StopReason = "boundary"
	ReasonExhausted StopReason = "exhausted"
	ReasonLimit     StopReason = "limit"
	ReasonAborted   StopReason = "aborted"
	ReasonCancelled StopReason = "cancelled"
)

// Journal receives in-day records as soon as they are appended. The listing
// that ends the loop on the date boundary is never journaled.
type Journal interface {
	Process(records ...models.ListingRecord) error
}

// Result summarises one run of the loop.
type Result struct {
	Reason    StopReason
	Attempted int
	Failures  int
	Misses    int
	Scrolls   int
	// DroppedBoundary is set when the first out-of-range listing was
	// removed from the table.
	DroppedBoundary bool
	StartTime       time.Time
	EndTime         time.Time
}

// Loop is the capture state machine. It is not safe for concurrent use.
type Loop struct {
	browser Browser
	capture CaptureBuffer
	matcher parser.Matcher
	table   *pipeline.ListingTable
	ledger  *pipeline.ErrorLedger
	journal Journal
	Metrics *Metrics
	logger  *slog.Logger
	limiter *rate.Limiter
	sleep   func(context.Context, time.Duration) error
	now     func() time.Time

	targetStart    time.Time
	nextDay        time.Time
	extractionDate string

	settleDelay    time.Duration
	scrollDelay    time.Duration
	maxIdleScrolls int
	maxListings    int
	nextDayCutoff  bool
	awaitDetail    bool

	state State
}

// Option customises a Loop.
type Option func(*Loop)

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(l *Loop) { l.Metrics = m }
}

// WithJournal streams appended records to j.
func WithJournal(j Journal) Option {
	return func(l *Loop) { l.journal = j }
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithSleep replaces the context-aware sleep used for settle and scroll
// waits.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(l *Loop) { l.sleep = sleep }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// NewLoop builds a loop for the day starting at targetStart.
func NewLoop(cfg *config.Config, targetStart time.Time, b Browser, c CaptureBuffer, opts ...Option) *Loop {
	limit := rate.Inf
	if cfg.ListingInterval > 0 {
		limit = rate.Every(cfg.ListingInterval)
	}
	l := &Loop{
		browser: b,
		capture: c,
		matcher: parser.Matcher{
			Endpoint: cfg.APIEndpoint,
			Marker:   cfg.PayloadMarker,
			Path:     cfg.PayloadPath,
		},
		table:          pipeline.NewListingTable(),
		ledger:         pipeline.NewErrorLedger(errorTypeLabel),
		logger:         slog.Default(),
		limiter:        rate.NewLimiter(limit, 1),
		sleep:          sleepContext,
		now:            time.Now,
		targetStart:    targetStart,
		nextDay:        targetStart.AddDate(0, 0, 1),
		extractionDate: targetStart.Format(ExtractionDateLayout),
		settleDelay:    cfg.SettleDelay,
		scrollDelay:    cfg.ScrollDelay,
		maxIdleScrolls: cfg.MaxIdleScrolls,
		maxListings:    cfg.MaxListings,
		nextDayCutoff:  cfg.NextDayCutoff,
		awaitDetail:    cfg.DetailSelector != "",
	}
	if l.maxIdleScrolls <= 0 {
		l.maxIdleScrolls = 1
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Table returns the listing table filled by Run.
func (l *Loop) Table() *pipeline.ListingTable { return l.table }

// Ledger returns the error ledger filled by Run.
func (l *Loop) Ledger() *pipeline.ErrorLedger { return l.ledger }

// State returns the current phase.
func (l *Loop) State() State { return l.state }

// Run drives the loop until the date boundary, feed exhaustion, the listing
// limit, or an abort. The returned Result is never nil; the error is non-nil
// only when the loop aborted.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	res := &Result{StartTime: l.now()}
	defer func() {
		l.setState(StateDone)
		res.EndTime = l.now()
	}()

	l.logger.Info("capture loop starting",
		slog.String("target_date", l.extractionDate),
		slog.Bool("next_day_cutoff", l.nextDayCutoff),
	)

	boundary := l.targetStart.Unix()
	pubTime := boundary
	lastAppended := false
	idle := 0

	l.setState(StateScanning)
	handles, err := l.browser.VisibleListings(ctx)
	if err != nil {
		if l.fail(ctx, res, err, "") {
			return res, l.abort(ctx, res, err)
		}
	}

	cursor := 0
	for pubTime >= boundary {
		if err := ctx.Err(); err != nil {
			l.fail(ctx, res, err, "")
			return res, l.abort(ctx, res, err)
		}
		if l.maxListings > 0 && res.Attempted >= l.maxListings {
			res.Reason = ReasonLimit
			l.logger.Info("listing limit reached", slog.Int("limit", l.maxListings))
			return res, nil
		}

		if cursor >= len(handles) {
			grown, err := l.paginate(ctx, res, &handles)
			if err != nil && l.fail(ctx, res, err, "") {
				return res, l.abort(ctx, res, err)
			}
			if !grown {
				idle++
				if idle >= l.maxIdleScrolls {
					res.Reason = ReasonExhausted
					l.logger.Warn("feed exhausted before reaching the date boundary",
						slog.Int("listings", len(handles)),
						slog.Int("idle_scrolls", idle),
					)
					return res, nil
				}
				continue
			}
			idle = 0
		}

		if err := l.limiter.Wait(ctx); err != nil {
			l.fail(ctx, res, err, "")
			return res, l.abort(ctx, res, err)
		}

		l.setState(StateScanning)
		l.logger.Info("capturing listing", slog.Int("index", cursor+1))
		out := l.visit(ctx, handles[cursor])
		cursor++
		res.Attempted++

		switch {
		case out.err != nil:
			lastAppended = false
			if l.fail(ctx, res, out.err, out.url) {
				return res, l.abort(ctx, res, out.err)
			}
			if TierOf(KindOf(out.err)) == TierRecover {
				out.backErr = l.back(ctx)
			}
		case out.miss:
			lastAppended = false
			res.Misses++
		default:
			pubTime = out.creationTime
			lastAppended = out.appended
			l.setState(StateRecorded)
		}
		if out.backErr != nil {
			if l.record(ctx, out.backErr, out.url) {
				if lastAppended && pubTime < boundary {
					l.dropBoundary(res)
				}
				return res, l.abort(ctx, res, out.backErr)
			}
		}
	}

	res.Reason = ReasonBoundary
	if lastAppended {
		l.dropBoundary(res)
	}
	l.logger.Info("date boundary reached",
		slog.Int("attempted", res.Attempted),
		slog.Int("recorded", l.table.Len()),
		slog.Int("failures", res.Failures),
	)
	return res, nil
}

type visitOutcome struct {
	url          string
	creationTime int64
	appended     bool
	miss         bool
	err          error
	backErr      error
}

func (l *Loop) visit(ctx context.Context, h Handle) visitOutcome {
	var out visitOutcome

	url, err := l.browser.ListingURL(ctx, h)
	if err != nil {
		if ctx.Err() != nil {
			out.err = err
			return out
		}
		kind := KindOf(err)
		l.ledger.Record(err, "")
		l.Metrics.IncError(string(kind))
		l.logger.Warn("listing link unavailable", slog.String("kind", string(kind)), slog.Any("error", err))
	}
	out.url = url

	l.capture.Clear()
	if err := l.browser.Open(ctx, h); err != nil {
		out.err = err
		return out
	}

	l.setState(StateAwaitingCapture)
	if l.awaitDetail {
		if err := l.browser.AwaitDetail(ctx); err != nil {
			out.err = err
			return out
		}
	}
	if err := l.sleep(ctx, l.settleDelay); err != nil {
		out.err = err
		return out
	}

	started := time.Now()
	payload, err := l.matcher.FirstMatch(l.capture.Exchanges())
	l.Metrics.ObserveDecode(time.Since(started))
	if errors.Is(err, parser.ErrNoMatch) {
		out.miss = true
		l.Metrics.IncMiss()
		l.Metrics.IncListing("miss")
		l.logger.Warn("no listing payload captured", slog.String("url", url))
		out.backErr = l.back(ctx)
		return out
	}
	if err != nil {
		out.err = err
		return out
	}

	ct, ok := parser.CreationTime(payload)
	if !ok {
		out.err = pkgerrors.WithStack(&parser.KeyMissingError{Path: "creation_time"})
		return out
	}
	out.creationTime = ct

	if !l.nextDayCutoff || ct < l.nextDay.Unix() {
		rec := parser.BuildRecord(payload, l.extractionDate, url)
		l.table.Append(rec)
		out.appended = true
		l.Metrics.IncRecords()
		l.Metrics.IncListing("recorded")
		if l.journal != nil && ct >= l.targetStart.Unix() {
			if err := l.journal.Process(rec); err != nil {
				l.logger.Warn("journal rejected record", slog.Any("error", err))
			}
		}
		title := ""
		if rec.Title != nil {
			title = *rec.Title
		}
		l.logger.Info("listing captured",
			slog.String("title", title),
			slog.Time("created", time.Unix(ct, 0)),
		)
	} else {
		l.Metrics.IncListing("after_target_day")
		l.logger.Debug("listing published after target day", slog.Int64("creation_time", ct))
	}

	out.backErr = l.back(ctx)
	return out
}

func (l *Loop) back(ctx context.Context) error {
	l.Metrics.IncBack()
	if err := l.browser.Back(ctx); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	return nil
}

func (l *Loop) paginate(ctx context.Context, res *Result, handles *[]Handle) (bool, error) {
	l.setState(StatePaginating)
	before := len(*handles)
	res.Scrolls++
	l.Metrics.IncScroll()
	if err := l.browser.ScrollToBottom(ctx); err != nil {
		return false, err
	}
	if err := l.sleep(ctx, l.scrollDelay); err != nil {
		return false, err
	}
	next, err := l.browser.VisibleListings(ctx)
	if err != nil {
		return false, err
	}
	*handles = next
	l.logger.Debug("feed paginated", slog.Int("before", before), slog.Int("after", len(next)))
	return len(next) > before, nil
}

// fail counts a failed listing, records err and reports whether the loop
// must stop.
func (l *Loop) fail(ctx context.Context, res *Result, err error, url string) bool {
	res.Failures++
	l.Metrics.IncListing("failed")
	return l.record(ctx, err, url)
}

// record ledgers err without counting a failed listing and reports whether
// the loop must stop. Navigate-back failures go through here: the listing
// itself was already counted.
func (l *Loop) record(ctx context.Context, err error, url string) bool {
	kind := KindOf(err)
	tier := TierOf(kind)
	if ctx.Err() != nil {
		kind, tier = KindUnclassified, TierAbort
	}
	l.ledger.Record(err, url)
	l.Metrics.IncError(string(kind))

	attrs := []any{
		slog.String("kind", string(kind)),
		slog.String("tier", tier.String()),
		slog.Any("error", err),
	}
	if url != "" {
		attrs = append(attrs, slog.String("url", url))
	}
	if tier == TierAbort {
		l.logger.Error("capture loop stopping", attrs...)
		return true
	}
	l.logger.Warn("listing failed", attrs...)
	return false
}

// dropBoundary removes the listing that ended the loop: it lies before the
// target day.
func (l *Loop) dropBoundary(res *Result) {
	if _, ok := l.table.DropLast(); ok {
		res.DroppedBoundary = true
	}
}

func (l *Loop) abort(ctx context.Context, res *Result, cause error) error {
	res.Reason = ReasonAborted
	if ctx.Err() != nil {
		res.Reason = ReasonCancelled
	}
	return fmt.Errorf("%w: %v", ErrAborted, cause)
}

func (l *Loop) setState(s State) {
	if l.state == s {
		return
	}
	l.state = s
	l.logger.Debug("capture state", slog.String("state", s.String()))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
