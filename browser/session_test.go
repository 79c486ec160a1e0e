package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chromedp/cdproto/cdp"

	"github.com/aluiziolira/marketplace-capture/scraper"
)

func TestCanonicalListingURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"query stripped", "https://www.facebook.com/marketplace/item/123/?ref=search&referral_code=x", "https://www.facebook.com/marketplace/item/123"},
		{"no query", "https://www.facebook.com/marketplace/item/123/", "https://www.facebook.com/marketplace/item/123"},
		{"fragment", "https://www.facebook.com/marketplace/item/9#photos", "https://www.facebook.com/marketplace/item/9"},
		{"whitespace", "  https://example.com/a/?b=1 ", "https://example.com/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canonicalListingURL(tt.raw); got != tt.want {
				t.Fatalf("canonicalListingURL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want scraper.Kind
	}{
		{"deadline", fmt.Errorf("wait visible: %w", context.DeadlineExceeded), scraper.KindWaitTimeout},
		{"stale", errors.New("Could not find node with given id (-32000)"), scraper.KindElementStale},
		{"detached", errors.New("node is detached from document"), scraper.KindElementStale},
		{"box model", errors.New("Could not compute box model. (-32000)"), scraper.KindElementNotInteractable},
		{"other", errors.New("websocket closed"), scraper.KindUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scraper.KindOf(classify(tt.err)); got != tt.want {
				t.Fatalf("KindOf(classify(%v)) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyPassesCancellationThrough(t *testing.T) {
	if err := classify(context.Canceled); err != context.Canceled {
		t.Fatalf("expected context.Canceled unchanged, got %v", err)
	}
	if classify(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestAsNode(t *testing.T) {
	if _, err := asNode(&cdp.Node{NodeID: 7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := asNode("not a node")
	if scraper.KindOf(err) != scraper.KindElementMissing {
		t.Fatalf("expected ElementMissing, got %v", err)
	}
	var nilNode *cdp.Node
	if _, err := asNode(nilNode); err == nil {
		t.Fatal("expected error for nil node")
	}
}
