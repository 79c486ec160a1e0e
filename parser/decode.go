// Package parser turns intercepted network exchanges into listing payloads
// and normalized listing records.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	pkgerrors "github.com/pkg/errors"
)

// ErrNoMatch means the exchange is not the listing payload.
var ErrNoMatch = errors.New("parser: exchange does not carry a listing payload")

// Exchange is one captured request/response pair.
type Exchange struct {
	URL             string
	Body            []byte
	ContentEncoding string
}

// Matcher describes which exchanges carry the listing payload.
type Matcher struct {
	// Endpoint must appear in the request URL.
	Endpoint string
	// Marker must be a key of the document's "extensions" object.
	Marker string
	// Path locates the listing object inside the matched document.
	Path []string
}

// DefaultMatcher matches the marketplace GraphQL product-details response.
func DefaultMatcher() Matcher {
	return Matcher{
		Endpoint: "graphql",
		Marker:   "prefetch_uris_v2",
		Path:     []string{"data", "viewer", "marketplace_product_details_page", "target"},
	}
}

// DecodeError reports an exchange whose body could not be decoded.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode payload (%s): %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// KeyMissingError reports a marker-matching document without the payload path.
type KeyMissingError struct {
	Path string
}

func (e *KeyMissingError) Error() string {
	return fmt.Sprintf("payload key missing: %s", e.Path)
}

// Decode decodes ex with the default marketplace matcher.
func Decode(ex Exchange) (map[string]any, error) {
	return DefaultMatcher().Decode(ex)
}

// Decode returns the listing payload carried by ex, or ErrNoMatch.
func (m Matcher) Decode(ex Exchange) (map[string]any, error) {
	if m.Endpoint != "" && !strings.Contains(ex.URL, m.Endpoint) {
		return nil, ErrNoMatch
	}

	raw, err := decompress(ex.Body, ex.ContentEncoding)
	if err != nil {
		return nil, pkgerrors.WithStack(&DecodeError{Stage: "decompress", Err: err})
	}
	if !utf8.Valid(raw) {
		return nil, pkgerrors.WithStack(&DecodeError{Stage: "utf8", Err: errors.New("body is not valid UTF-8")})
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	for {
		var doc any
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrNoMatch
			}
			return nil, pkgerrors.WithStack(&DecodeError{Stage: "json", Err: err})
		}
		root, ok := doc.(map[string]any)
		if !ok || !m.hasMarker(root) {
			continue
		}
		target, ok := Lookup(root, pathKeys(m.Path)...)
		if !ok {
			return nil, pkgerrors.WithStack(&KeyMissingError{Path: strings.Join(m.Path, ".")})
		}
		payload, ok := target.(map[string]any)
		if !ok {
			return nil, pkgerrors.WithStack(&KeyMissingError{Path: strings.Join(m.Path, ".")})
		}
		return payload, nil
	}
}

// FirstMatch decodes the first exchange carrying the payload. Exchanges that
// do not match are skipped; a decode failure on a candidate is returned.
func (m Matcher) FirstMatch(exchanges []Exchange) (map[string]any, error) {
	for _, ex := range exchanges {
		payload, err := m.Decode(ex)
		if errors.Is(err, ErrNoMatch) {
			continue
		}
		return payload, err
	}
	return nil, ErrNoMatch
}

func (m Matcher) hasMarker(root map[string]any) bool {
	ext, ok := root["extensions"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = ext[m.Marker]
	return ok
}

func pathKeys(path []string) []any {
	keys := make([]any, len(path))
	for i, p := range path {
		keys[i] = p
	}
	return keys
}

func decompress(body []byte, encoding string) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case "deflate":
		// Servers disagree on whether deflate carries the zlib wrapper.
		if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer zr.Close()
			r = zr
		} else {
			fr := flate.NewReader(bytes.NewReader(body))
			defer fr.Close()
			r = fr
		}
	case "br":
		r = brotli.NewReader(bytes.NewReader(body))
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("unsupported content-encoding %q", encoding)
	}
	return io.ReadAll(r)
}
