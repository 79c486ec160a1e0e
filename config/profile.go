package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile describes one site's page and payload shape. Unset fields keep
// the value already present in Config.
type Profile struct {
	Site    ProfileSite    `yaml:"site"`
	Payload ProfilePayload `yaml:"payload"`
	Pacing  ProfilePacing  `yaml:"pacing"`
	Output  ProfileOutput  `yaml:"output"`
}

// ProfileSite holds the navigation targets and selectors.
type ProfileSite struct {
	CategoryURL     string `yaml:"category_url"`
	LoginURL        string `yaml:"login_url"`
	ListingSelector string `yaml:"listing_selector"`
	DetailSelector  string `yaml:"detail_selector"`
	Timezone        string `yaml:"timezone"`
}

// ProfilePayload locates the listing payload in intercepted traffic.
type ProfilePayload struct {
	Endpoint string   `yaml:"endpoint"`
	Marker   string   `yaml:"marker"`
	Path     []string `yaml:"path"`
}

// ProfilePacing holds the waits between browser actions.
type ProfilePacing struct {
	SettleDelay     time.Duration `yaml:"settle_delay"`
	ScrollDelay     time.Duration `yaml:"scroll_delay"`
	WaitTimeout     time.Duration `yaml:"wait_timeout"`
	ListingInterval time.Duration `yaml:"listing_interval"`
	MaxIdleScrolls  int           `yaml:"max_idle_scrolls"`
	NextDayCutoff   *bool         `yaml:"next_day_cutoff"`
}

// ProfileOutput names the files produced by a run.
type ProfileOutput struct {
	DataDir         string `yaml:"data_dir"`
	DataPrefix      string `yaml:"data_prefix"`
	ErrorDir        string `yaml:"error_dir"`
	ErrorPrefix     string `yaml:"error_prefix"`
	Format          string `yaml:"format"`
	MetricsWorkbook string `yaml:"metrics_workbook"`
	MetricsSheet    string `yaml:"metrics_sheet"`
	LogPrefix       string `yaml:"log_prefix"`
}

// LoadProfile reads a YAML profile from path.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile YAML: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return &p, nil
}

func (p *Profile) validate() error {
	if p.Pacing.SettleDelay < 0 || p.Pacing.ScrollDelay < 0 || p.Pacing.WaitTimeout < 0 || p.Pacing.ListingInterval < 0 {
		return fmt.Errorf("pacing durations must be non-negative")
	}
	if p.Pacing.MaxIdleScrolls < 0 {
		return fmt.Errorf("max idle scrolls must be non-negative")
	}
	return nil
}

// ApplyProfile overlays the non-zero profile values onto c.
func (c *Config) ApplyProfile(p *Profile) {
	if p == nil {
		return
	}
	setString(&c.CategoryURL, p.Site.CategoryURL)
	setString(&c.LoginURL, p.Site.LoginURL)
	setString(&c.ListingSelector, p.Site.ListingSelector)
	setString(&c.DetailSelector, p.Site.DetailSelector)
	setString(&c.Timezone, p.Site.Timezone)

	setString(&c.APIEndpoint, p.Payload.Endpoint)
	setString(&c.PayloadMarker, p.Payload.Marker)
	if len(p.Payload.Path) > 0 {
		c.PayloadPath = append([]string(nil), p.Payload.Path...)
	}

	setDuration(&c.SettleDelay, p.Pacing.SettleDelay)
	setDuration(&c.ScrollDelay, p.Pacing.ScrollDelay)
	setDuration(&c.WaitTimeout, p.Pacing.WaitTimeout)
	setDuration(&c.ListingInterval, p.Pacing.ListingInterval)
	if p.Pacing.MaxIdleScrolls > 0 {
		c.MaxIdleScrolls = p.Pacing.MaxIdleScrolls
	}
	if p.Pacing.NextDayCutoff != nil {
		c.NextDayCutoff = *p.Pacing.NextDayCutoff
	}

	setString(&c.DataDir, p.Output.DataDir)
	setString(&c.DataPrefix, p.Output.DataPrefix)
	setString(&c.ErrorDir, p.Output.ErrorDir)
	setString(&c.ErrorPrefix, p.Output.ErrorPrefix)
	setString(&c.OutputFormat, p.Output.Format)
	setString(&c.MetricsWorkbook, p.Output.MetricsWorkbook)
	setString(&c.MetricsSheet, p.Output.MetricsSheet)
	setString(&c.LogPrefix, p.Output.LogPrefix)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
