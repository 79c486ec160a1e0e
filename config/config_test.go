package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty category url",
			mutate: func(cfg *Config) {
				cfg.CategoryURL = ""
			},
			wantErr: "category URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.CategoryURL = "http://"
			},
			wantErr: "category URL",
		},
		{
			name: "bad target date",
			mutate: func(cfg *Config) {
				cfg.TargetDate = "29/01/2023"
			},
			wantErr: "target date",
		},
		{
			name: "unknown timezone",
			mutate: func(cfg *Config) {
				cfg.Timezone = "Mars/Olympus_Mons"
			},
			wantErr: "timezone",
		},
		{
			name: "negative settle delay",
			mutate: func(cfg *Config) {
				cfg.SettleDelay = -1 * time.Second
			},
			wantErr: "settle delay",
		},
		{
			name: "zero wait timeout",
			mutate: func(cfg *Config) {
				cfg.WaitTimeout = 0
			},
			wantErr: "wait timeout",
		},
		{
			name: "zero idle scrolls",
			mutate: func(cfg *Config) {
				cfg.MaxIdleScrolls = 0
			},
			wantErr: "idle scrolls",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "parquet"
			},
			wantErr: "output format",
		},
		{
			name: "password without username",
			mutate: func(cfg *Config) {
				cfg.Password = "secret"
			},
			wantErr: "username and password",
		},
		{
			name: "empty payload path",
			mutate: func(cfg *Config) {
				cfg.PayloadPath = nil
			},
			wantErr: "payload path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	// Feed cards are matched by class list on any element.
	if !strings.HasPrefix(cfg.ListingSelector, "[class=") {
		t.Fatalf("listing selector %q should not be restricted to one tag", cfg.ListingSelector)
	}
}

func TestTargetDay(t *testing.T) {
	lima, err := time.LoadLocation("America/Lima")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2023, time.January, 30, 3, 15, 0, 0, time.UTC) // 29 Jan 22:15 in Lima

	cfg := DefaultConfig()
	cfg.Timezone = "America/Lima"
	got, err := cfg.TargetDay(now)
	if err != nil {
		t.Fatalf("TargetDay() error = %v", err)
	}
	want := time.Date(2023, time.January, 28, 0, 0, 0, 0, lima)
	if !got.Equal(want) {
		t.Fatalf("TargetDay() = %v, want %v", got, want)
	}

	cfg.TargetDate = "2023-01-29"
	got, err = cfg.TargetDay(now)
	if err != nil {
		t.Fatalf("TargetDay() error = %v", err)
	}
	want = time.Date(2023, time.January, 29, 0, 0, 0, 0, lima)
	if !got.Equal(want) {
		t.Fatalf("TargetDay() = %v, want %v", got, want)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MARKET_CATEGORY_URL", "https://market.example.test/category/shoes")
	t.Setenv("MARKET_SETTLE_DELAY", "750ms")
	t.Setenv("MARKET_MAX_IDLE_SCROLLS", "5")
	t.Setenv("MARKET_NEXT_DAY_CUTOFF", "false")
	t.Setenv("MARKET_USERNAME", "  ana@example.test ")
	t.Setenv("MARKET_PASSWORD", "pw")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.CategoryURL != "https://market.example.test/category/shoes" {
		t.Fatalf("category url = %q", cfg.CategoryURL)
	}
	if cfg.SettleDelay != 750*time.Millisecond {
		t.Fatalf("settle delay = %v", cfg.SettleDelay)
	}
	if cfg.MaxIdleScrolls != 5 {
		t.Fatalf("max idle scrolls = %d", cfg.MaxIdleScrolls)
	}
	if cfg.NextDayCutoff {
		t.Fatalf("next day cutoff should be disabled")
	}
	if cfg.Username != "ana@example.test" {
		t.Fatalf("username = %q", cfg.Username)
	}
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("MARKET_WAIT_TIMEOUT", "ten seconds")
	if err := DefaultConfig().ApplyEnv(); err == nil || !strings.Contains(err.Error(), "MARKET_WAIT_TIMEOUT") {
		t.Fatalf("expected MARKET_WAIT_TIMEOUT error, got %v", err)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("missing .env should be ignored, got %v", err)
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "MARKET_DATA_PREFIX=from_file\nMARKET_ERROR_PREFIX=errs_from_file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("MARKET_DATA_PREFIX", "from_env")
	t.Setenv("MARKET_ERROR_PREFIX", "")
	os.Unsetenv("MARKET_ERROR_PREFIX")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got, _ := EnvString("MARKET_DATA_PREFIX"); got != "from_env" {
		t.Fatalf("MARKET_DATA_PREFIX = %q, want from_env", got)
	}
	if got, _ := EnvString("MARKET_ERROR_PREFIX"); got != "errs_from_file" {
		t.Fatalf("MARKET_ERROR_PREFIX = %q, want errs_from_file", got)
	}
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apparel.yaml")
	content := `site:
  category_url: https://market.example.test/category/apparel
  listing_selector: "a[role=link] img"
payload:
  endpoint: /api/graphql
  path: [data, node, listing]
pacing:
  settle_delay: 3s
  max_idle_scrolls: 4
  next_day_cutoff: false
output:
  format: csv
  metrics_sheet: apparel
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	cfg := DefaultConfig()
	cfg.ApplyProfile(p)

	if cfg.CategoryURL != "https://market.example.test/category/apparel" {
		t.Fatalf("category url = %q", cfg.CategoryURL)
	}
	if cfg.ListingSelector != "a[role=link] img" {
		t.Fatalf("listing selector = %q", cfg.ListingSelector)
	}
	if cfg.APIEndpoint != "/api/graphql" {
		t.Fatalf("endpoint = %q", cfg.APIEndpoint)
	}
	if cfg.PayloadMarker != "prefetch_uris_v2" {
		t.Fatalf("unset marker should keep default, got %q", cfg.PayloadMarker)
	}
	if strings.Join(cfg.PayloadPath, ".") != "data.node.listing" {
		t.Fatalf("payload path = %v", cfg.PayloadPath)
	}
	if cfg.SettleDelay != 3*time.Second || cfg.ScrollDelay != 7*time.Second {
		t.Fatalf("delays = %v / %v", cfg.SettleDelay, cfg.ScrollDelay)
	}
	if cfg.MaxIdleScrolls != 4 || cfg.NextDayCutoff {
		t.Fatalf("pacing not applied: %+v", cfg)
	}
	if cfg.OutputFormat != "csv" || cfg.MetricsSheet != "apparel" {
		t.Fatalf("output not applied: %q %q", cfg.OutputFormat, cfg.MetricsSheet)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("profiled config should validate: %v", err)
	}
}

func TestLoadProfileRejectsNegativeDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("pacing:\n  scroll_delay: -2s\n"), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	if _, err := LoadProfile(path); err == nil {
		t.Fatalf("expected error for negative duration")
	}
}
