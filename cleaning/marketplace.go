package cleaning

import (
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultDedupeWindow bounds how many distinct keys duplicate detection
// remembers.
const DefaultDedupeWindow = 1 << 20

// Marketplace cleans listing exports written by the scrape command.
type Marketplace struct {
	TextColumns       []string
	BoolColumns       []string
	DescriptionColumn string
	TitleColumn       string
	// FakeMarker flags placeholder listings: no description and a title
	// containing the marker.
	FakeMarker    string
	DedupeColumns []string
	DedupeWindow  int
}

// DefaultMarketplace uses the capture output's column names.
func DefaultMarketplace() *Marketplace {
	return &Marketplace{
		TextColumns:       []string{"title", "description", "location_text"},
		BoolColumns:       []string{"is_live", "is_sold"},
		DescriptionColumn: "description",
		TitleColumn:       "title",
		FakeMarker:        "#adi",
		DedupeColumns:     []string{"seller_id", "title"},
		DedupeWindow:      DefaultDedupeWindow,
	}
}

func (m *Marketplace) Name() string { return "marketplace" }

func (m *Marketplace) Apply(f *Frame, rep *Report) error {
	text, err := f.require(m.TextColumns...)
	if err != nil {
		return err
	}
	bools, err := f.require(m.BoolColumns...)
	if err != nil {
		return err
	}
	markerCols, err := f.require(m.DescriptionColumn, m.TitleColumn)
	if err != nil {
		return err
	}
	keyCols, err := f.require(m.DedupeColumns...)
	if err != nil {
		return err
	}

	slog.Info("stripping non-ascii characters")
	f.mapColumns(text, ToASCII)
	slog.Info("joining line breaks")
	f.mapColumns(text, JoinLines)
	slog.Info("collapsing repeated punctuation")
	f.mapColumns(text, CollapsePunctuation)

	slog.Info("removing placeholder listings")
	marker := strings.ToLower(m.FakeMarker)
	rep.drop("placeholder", f.filter(func(r []string) bool {
		desc, title := r[markerCols[0]], r[markerCols[1]]
		return !(strings.TrimSpace(desc) == "" && strings.Contains(strings.ToLower(title), marker))
	}))

	slog.Info("replacing null values", slog.String("with", NullValue))
	f.mapAll(NormalizeNull)

	f.mapColumns(bools, normalizeBool)

	slog.Info("removing duplicate listings", slog.Any("key", m.DedupeColumns))
	n, err := dedupe(f, keyCols, m.DedupeWindow)
	if err != nil {
		return err
	}
	rep.drop("duplicate", n)
	return nil
}

func normalizeBool(v string) string {
	b, ok := ParseBool(v)
	if !ok {
		return v
	}
	if b {
		return "True"
	}
	return "False"
}

// dedupe keeps the first row of each key. Keys older than window distinct
// keys are forgotten.
func dedupe(f *Frame, keyCols []int, window int) (int, error) {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	seen, err := lru.New[string, struct{}](window)
	if err != nil {
		return 0, err
	}
	return f.filter(func(r []string) bool {
		parts := make([]string, len(keyCols))
		for i, c := range keyCols {
			parts[i] = r[c]
		}
		key := strings.Join(parts, "\x00")
		if seen.Contains(key) {
			return false
		}
		seen.Add(key, struct{}{})
		return true
	}), nil
}
