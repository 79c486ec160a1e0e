package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DateLayout is the accepted format of Config.TargetDate.
const DateLayout = "2006-01-02"

// Config holds capture configuration.
type Config struct {
	CategoryURL string
	LoginURL    string
	TargetDate  string // YYYY-MM-DD; empty means yesterday
	Timezone    string

	ListingSelector string
	DetailSelector  string
	APIEndpoint     string
	PayloadMarker   string
	PayloadPath     []string

	SettleDelay     time.Duration
	ScrollDelay     time.Duration
	WaitTimeout     time.Duration
	ListingInterval time.Duration
	MaxIdleScrolls  int
	MaxListings     int
	NextDayCutoff   bool

	Headless    bool
	UserAgent   string
	UserDataDir string
	Username    string
	Password    string

	DataDir         string
	DataPrefix      string
	ErrorDir        string
	ErrorPrefix     string
	OutputFormat    string // xlsx, csv, jsonl, or dual
	MetricsWorkbook string
	MetricsSheet    string
	ArchivePath     string
	LogDir          string
	LogPrefix       string

	Verbose         bool
	MetricsAddr     string
	MetricsTextfile string
}

// DefaultConfig returns defaults tuned for the marketplace apparel feed.
func DefaultConfig() *Config {
	return &Config{
		CategoryURL:     "https://www.facebook.com/marketplace/category/apparel",
		LoginURL:        "https://www.facebook.com/",
		TargetDate:      "",
		Timezone:        "Local",
		ListingSelector: `[class="xt7dq6l xl1xv1r x6ikm8r x10wlt62 xh8yej3"]`,
		DetailSelector:  "",
		APIEndpoint:     "graphql",
		PayloadMarker:   "prefetch_uris_v2",
		PayloadPath:     []string{"data", "viewer", "marketplace_product_details_page", "target"},
		SettleDelay:     5 * time.Second,
		ScrollDelay:     7 * time.Second,
		WaitTimeout:     10 * time.Second,
		ListingInterval: 2 * time.Second,
		MaxIdleScrolls:  3,
		MaxListings:     0,
		NextDayCutoff:   true,
		Headless:        true,
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		DataDir:         "Data/datos_obtenidos",
		DataPrefix:      "fb_data",
		ErrorDir:        "Data/errores",
		ErrorPrefix:     "fb_errores",
		OutputFormat:    "xlsx",
		MetricsWorkbook: "Data/tiempos.xlsx",
		MetricsSheet:    "ropa",
		LogPrefix:       "fb_log",
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	switch strings.TrimSpace(c.Timezone) {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// TargetDay returns the start of the target day. When TargetDate is empty
// the day before now is used.
func (c *Config) TargetDay(now time.Time) (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	if strings.TrimSpace(c.TargetDate) == "" {
		y, m, d := now.In(loc).AddDate(0, 0, -1).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	day, err := time.ParseInLocation(DateLayout, c.TargetDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse target date: %w", err)
	}
	return day, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.CategoryURL == "" {
		return fmt.Errorf("category URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.CategoryURL)
	if err != nil {
		return fmt.Errorf("invalid category URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("category URL must include a host")
	}
	if c.LoginURL != "" {
		if u, err := url.Parse(c.LoginURL); err != nil || u.Host == "" {
			return fmt.Errorf("invalid login URL %q", c.LoginURL)
		}
	}
	if c.TargetDate != "" {
		if _, err := time.Parse(DateLayout, c.TargetDate); err != nil {
			return fmt.Errorf("target date must use YYYY-MM-DD: %w", err)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if c.ListingSelector == "" {
		return fmt.Errorf("listing selector cannot be empty")
	}
	if c.PayloadMarker == "" {
		return fmt.Errorf("payload marker cannot be empty")
	}
	if len(c.PayloadPath) == 0 {
		return fmt.Errorf("payload path cannot be empty")
	}

	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay cannot be negative")
	}
	if c.ScrollDelay < 0 {
		return fmt.Errorf("scroll delay cannot be negative")
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("wait timeout must be positive")
	}
	if c.ListingInterval < 0 {
		return fmt.Errorf("listing interval cannot be negative")
	}
	if c.MaxIdleScrolls <= 0 {
		return fmt.Errorf("max idle scrolls must be positive")
	}
	if c.MaxListings < 0 {
		return fmt.Errorf("max listings cannot be negative")
	}

	if c.DataDir == "" || c.DataPrefix == "" {
		return fmt.Errorf("data dir and prefix cannot be empty")
	}
	if c.ErrorDir == "" || c.ErrorPrefix == "" {
		return fmt.Errorf("error dir and prefix cannot be empty")
	}
	switch c.OutputFormat {
	case "xlsx", "csv", "jsonl", "dual":
	default:
		return fmt.Errorf("output format must be xlsx, csv, jsonl, or dual")
	}
	if c.MetricsWorkbook != "" && c.MetricsSheet == "" {
		return fmt.Errorf("metrics sheet cannot be empty when a metrics workbook is set")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if (c.Username == "") != (c.Password == "") {
		return fmt.Errorf("username and password must be set together")
	}

	return nil
}
