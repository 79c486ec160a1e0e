package parser

import (
	"bytes"
	"errors"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const detailsBody = `{"data":{"viewer":{"marketplace_product_details_page":{"target":{"marketplace_listing_title":"Casaca de cuero","creation_time":1674990000,"listing_price":{"amount":"120.00","currency":"PEN"}}}}},"extensions":{"prefetch_uris_v2":[]}}`

const graphqlURL = "https://www.example.test/api/graphql/"

func TestDecodeNoMatch(t *testing.T) {
	m := DefaultMatcher()
	tests := []struct {
		name string
		ex   Exchange
	}{
		{
			name: "endpoint outside data api",
			ex:   Exchange{URL: "https://www.example.test/ajax/bz", Body: []byte(detailsBody)},
		},
		{
			name: "marker absent",
			ex:   Exchange{URL: graphqlURL, Body: []byte(`{"data":{"viewer":{}},"extensions":{"is_final":true}}`)},
		},
		{
			name: "no extensions object",
			ex:   Exchange{URL: graphqlURL, Body: []byte(`{"data":{}}`)},
		},
		{
			name: "empty body",
			ex:   Exchange{URL: graphqlURL, Body: nil},
		},
		{
			name: "top level array",
			ex:   Exchange{URL: graphqlURL, Body: []byte(`[1,2,3]`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := m.Decode(tt.ex)
			if !errors.Is(err, ErrNoMatch) {
				t.Fatalf("Decode() error = %v, want ErrNoMatch", err)
			}
			if payload != nil {
				t.Fatalf("Decode() payload = %v, want nil", payload)
			}
		})
	}
}

func TestDecodeEncodings(t *testing.T) {
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write([]byte(detailsBody))
	gw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	bw.Write([]byte(detailsBody))
	bw.Close()

	zw, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	zs := zw.EncodeAll([]byte(detailsBody), nil)
	zw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{name: "identity", encoding: "identity", body: []byte(detailsBody)},
		{name: "missing header", encoding: "", body: []byte(detailsBody)},
		{name: "gzip", encoding: "gzip", body: gz.Bytes()},
		{name: "brotli", encoding: "br", body: br.Bytes()},
		{name: "zstd", encoding: "zstd", body: zs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := DefaultMatcher().Decode(Exchange{URL: graphqlURL, Body: tt.body, ContentEncoding: tt.encoding})
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got := *String(payload, "marketplace_listing_title"); got != "Casaca de cuero" {
				t.Fatalf("title = %q, want %q", got, "Casaca de cuero")
			}
		})
	}
}

func TestDecodeFailures(t *testing.T) {
	tests := []struct {
		name      string
		ex        Exchange
		wantStage string
		wantKey   bool
	}{
		{
			name:      "invalid gzip",
			ex:        Exchange{URL: graphqlURL, Body: []byte("definitely not gzip"), ContentEncoding: "gzip"},
			wantStage: "decompress",
		},
		{
			name:      "unknown encoding",
			ex:        Exchange{URL: graphqlURL, Body: []byte(detailsBody), ContentEncoding: "compress"},
			wantStage: "decompress",
		},
		{
			name:      "invalid utf8",
			ex:        Exchange{URL: graphqlURL, Body: []byte{'{', '"', 0xff, 0xfe, '"', '}'}},
			wantStage: "utf8",
		},
		{
			name:      "malformed json",
			ex:        Exchange{URL: graphqlURL, Body: []byte(`{"extensions":{"prefetch_uris_v2":[]},"data":nope}`)},
			wantStage: "json",
		},
		{
			name:    "marker without payload path",
			ex:      Exchange{URL: graphqlURL, Body: []byte(`{"data":{"viewer":{}},"extensions":{"prefetch_uris_v2":[]}}`)},
			wantKey: true,
		},
		{
			name:    "payload path is null",
			ex:      Exchange{URL: graphqlURL, Body: []byte(`{"data":{"viewer":{"marketplace_product_details_page":{"target":null}}},"extensions":{"prefetch_uris_v2":[]}}`)},
			wantKey: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DefaultMatcher().Decode(tt.ex)
			if err == nil {
				t.Fatalf("Decode() error = nil")
			}
			if tt.wantKey {
				var keyErr *KeyMissingError
				if !errors.As(err, &keyErr) {
					t.Fatalf("Decode() error = %v, want KeyMissingError", err)
				}
				return
			}
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("Decode() error = %v, want DecodeError", err)
			}
			if decErr.Stage != tt.wantStage {
				t.Fatalf("stage = %q, want %q", decErr.Stage, tt.wantStage)
			}
		})
	}
}

func TestDecodeStreamTakesFirstMarkedDocument(t *testing.T) {
	body := `{"data":{"node":1},"extensions":{"is_final":false}}
{"data":{"viewer":{"marketplace_product_details_page":{"target":{"marketplace_listing_title":"first"}}}},"extensions":{"prefetch_uris_v2":[]}}
{"data":{"viewer":{"marketplace_product_details_page":{"target":{"marketplace_listing_title":"second"}}}},"extensions":{"prefetch_uris_v2":[]}}`

	payload, err := Decode(Exchange{URL: graphqlURL, Body: []byte(body)})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := *String(payload, "marketplace_listing_title"); got != "first" {
		t.Fatalf("title = %q, want first", got)
	}
}

func TestDecodeIdempotent(t *testing.T) {
	ex := Exchange{URL: graphqlURL, Body: []byte(detailsBody), ContentEncoding: "identity"}
	m := DefaultMatcher()

	first, err := m.Decode(ex)
	if err != nil {
		t.Fatalf("first decode: %v", err)
	}
	second, err := m.Decode(ex)
	if err != nil {
		t.Fatalf("second decode: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("decode not idempotent (-first +second):\n%s", diff)
	}
	if string(ex.Body) != detailsBody {
		t.Fatalf("Decode mutated the exchange body")
	}
}

func TestFirstMatchSkipsUnrelatedExchanges(t *testing.T) {
	exchanges := []Exchange{
		{URL: "https://www.example.test/static/app.js", Body: []byte("var x = 1;")},
		{URL: graphqlURL, Body: []byte(`{"data":{},"extensions":{}}`)},
		{URL: graphqlURL, Body: []byte(detailsBody)},
	}

	payload, err := DefaultMatcher().FirstMatch(exchanges)
	if err != nil {
		t.Fatalf("FirstMatch() error = %v", err)
	}
	if ct, ok := CreationTime(payload); !ok || ct != 1674990000 {
		t.Fatalf("creation_time = %d (%v), want 1674990000", ct, ok)
	}

	if _, err := DefaultMatcher().FirstMatch(exchanges[:2]); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("FirstMatch() without payload error = %v, want ErrNoMatch", err)
	}
}
