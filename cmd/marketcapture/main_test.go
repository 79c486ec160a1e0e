package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/marketplace-capture/config"
	"github.com/aluiziolira/marketplace-capture/models"
	"github.com/aluiziolira/marketplace-capture/parser"
	"github.com/aluiziolira/marketplace-capture/pipeline"
	"github.com/aluiziolira/marketplace-capture/scraper"
	"github.com/aluiziolira/marketplace-capture/store"
)

// stubFeed serves one captured payload per listing.
type stubFeed struct {
	created []time.Time
	opened  int
}

func (s *stubFeed) VisibleListings(context.Context) ([]scraper.Handle, error) {
	hs := make([]scraper.Handle, len(s.created))
	for i := range hs {
		hs[i] = i
	}
	return hs, nil
}

func (s *stubFeed) ListingURL(_ context.Context, h scraper.Handle) (string, error) {
	return fmt.Sprintf("https://www.facebook.com/marketplace/item/%d", h.(int)), nil
}

func (s *stubFeed) Open(_ context.Context, h scraper.Handle) error {
	s.opened = h.(int)
	return nil
}

func (s *stubFeed) AwaitDetail(context.Context) error    { return nil }
func (s *stubFeed) Back(context.Context) error           { return nil }
func (s *stubFeed) ScrollToBottom(context.Context) error { return nil }
func (s *stubFeed) Clear()                               {}

func (s *stubFeed) Exchanges() []parser.Exchange {
	body := fmt.Sprintf(`{"data":{"viewer":{"marketplace_product_details_page":{"target":{"marketplace_listing_title":"Polo %d","creation_time":%d}}}},"extensions":{"prefetch_uris_v2":[]}}`,
		s.opened, s.created[s.opened].Unix())
	return []parser.Exchange{{URL: "https://www.facebook.com/api/graphql/", Body: []byte(body), ContentEncoding: "identity"}}
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestLogFilePath(t *testing.T) {
	day := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	got := logFilePath("Log", "fb_log", day)
	want := filepath.Join("Log", "01-03-2024", "fb_log_01032024.log")
	if got != want {
		t.Fatalf("logFilePath = %q, want %q", got, want)
	}

	f, err := openLogFile(t.TempDir(), "fb_log", day)
	if err != nil {
		t.Fatalf("openLogFile: %v", err)
	}
	f.Close()
}

func TestResolveConfigLayering(t *testing.T) {
	dir := t.TempDir()
	profile := filepath.Join(dir, "site.yaml")
	yaml := "site:\n  category_url: https://www.facebook.com/marketplace/category/shoes\noutput:\n  format: jsonl\n  metrics_sheet: perfil\n"
	if err := os.WriteFile(profile, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("MARKET_METRICS_SHEET=calzado\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("MARKET_METRICS_SHEET") })
	t.Setenv("MARKET_MAX_LISTINGS", "5")
	t.Setenv("MARKET_FORMAT", "dual")

	opts := &scrapeOptions{root: &rootOptions{envFile: envFile}, flags: config.DefaultConfig()}
	cmd := buildScrapeCmd(opts)
	if err := cmd.ParseFlags([]string{"--profile", profile, "--format", "CSV", "--archive", filepath.Join(dir, "runs.db")}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if cfg.CategoryURL != "https://www.facebook.com/marketplace/category/shoes" {
		t.Errorf("profile category not applied: %q", cfg.CategoryURL)
	}
	if cfg.MetricsSheet != "calzado" {
		t.Errorf("dotenv should override profile, got sheet %q", cfg.MetricsSheet)
	}
	if cfg.MaxListings != 5 {
		t.Errorf("environment not applied, max listings %d", cfg.MaxListings)
	}
	if cfg.OutputFormat != "csv" {
		t.Errorf("flag should win over environment, got format %q", cfg.OutputFormat)
	}
	if cfg.ArchivePath == "" {
		t.Error("archive flag not applied")
	}
	if cfg.DataDir != config.DefaultConfig().DataDir {
		t.Errorf("unset flag overrode default data dir: %q", cfg.DataDir)
	}
}

func TestResolveConfigRejectsInvalidValues(t *testing.T) {
	opts := &scrapeOptions{root: &rootOptions{}, flags: config.DefaultConfig()}
	cmd := buildScrapeCmd(opts)
	if err := cmd.ParseFlags([]string{"--target-date", "01/03/2024"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if _, err := resolveConfig(cmd, opts); err == nil {
		t.Fatal("expected invalid target date to be rejected")
	}
}

func TestPersistSavesEveryArtifact(t *testing.T) {
	dir := t.TempDir()
	target := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	cfg := config.DefaultConfig()
	cfg.ListingInterval = 0
	cfg.OutputFormat = "csv"
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.ErrorDir = filepath.Join(dir, "errors")
	cfg.MetricsWorkbook = filepath.Join(dir, "tiempos.xlsx")
	cfg.ArchivePath = filepath.Join(dir, "runs.db")

	feed := &stubFeed{created: []time.Time{
		target.Add(10 * time.Hour),
		target.Add(2 * time.Hour),
		target.Add(-time.Hour),
	}}
	loop := scraper.NewLoop(cfg, target, feed, feed, scraper.WithSleep(noSleep))
	result, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Reason != scraper.ReasonBoundary {
		t.Fatalf("expected boundary stop, got %s", result.Reason)
	}

	run := models.NewRunMetrics(target, time.Now().Add(-time.Minute))
	saved, err := persist(context.Background(), cfg, target, run, result, loop)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	wantData := pipeline.DatedPath(cfg.DataDir, cfg.DataPrefix, target, 2, ".csv")
	if saved.Data != wantData {
		t.Fatalf("data path = %q, want %q", saved.Data, wantData)
	}
	if _, err := os.Stat(saved.Data); err != nil {
		t.Fatalf("data file missing: %v", err)
	}
	if saved.Errors != "" {
		t.Fatalf("empty ledger should not be written, got %q", saved.Errors)
	}
	if _, err := os.Stat(cfg.MetricsWorkbook); err != nil {
		t.Fatalf("metrics workbook missing: %v", err)
	}
	if run.SuccessCount != 2 || run.AttemptedCount != 3 || !run.Finalized() {
		t.Fatalf("unexpected run metrics: %+v", run)
	}

	db, err := store.Open(cfg.ArchivePath)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer db.Close()
	listings, err := db.Listings(context.Background(), saved.RunID)
	if err != nil {
		t.Fatalf("Listings: %v", err)
	}
	if len(listings) != 2 || *listings[0].Title != "Polo 0" {
		t.Fatalf("unexpected archived listings: %+v", listings)
	}
}
