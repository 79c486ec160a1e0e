package scraper

import (
	"context"

	"github.com/aluiziolira/marketplace-capture/parser"
)

// Handle identifies one listing element on the current page. Its concrete
// type belongs to the Browser that produced it.
type Handle any

// Browser drives the page the capture loop works on.
type Browser interface {
	// VisibleListings returns the listing elements currently in the feed,
	// in page order.
	VisibleListings(ctx context.Context) ([]Handle, error)
	// ListingURL resolves the listing's canonical link without its query.
	ListingURL(ctx context.Context, h Handle) (string, error)
	// Open clicks the listing.
	Open(ctx context.Context, h Handle) error
	// AwaitDetail blocks until the detail view is visible or times out.
	AwaitDetail(ctx context.Context) error
	// Back navigates one step back in history.
	Back(ctx context.Context) error
	// ScrollToBottom scrolls the feed so more listings load.
	ScrollToBottom(ctx context.Context) error
}

// CaptureBuffer holds the network exchanges observed since the last Clear.
type CaptureBuffer interface {
	Clear()
	Exchanges() []parser.Exchange
}

// State is the loop's current phase.
type State int

const (
	StateScanning State = iota
	StateAwaitingCapture
	StateRecorded
	StatePaginating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateAwaitingCapture:
		return "awaiting_capture"
	case StateRecorded:
		return "recorded"
	case StatePaginating:
		return "paginating"
	case StateDone:
		return "done"
	}
	return "unknown"
}
