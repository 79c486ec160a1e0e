package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment variable read by ApplyEnv.
const EnvPrefix = "MARKET_"

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set are left untouched. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration parses key as a Go duration ("5s", "1m30s").
func EnvDuration(key string) (time.Duration, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvBool parses key as a boolean.
func EnvBool(key string) (bool, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// ApplyEnv overlays MARKET_* variables onto c.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"CATEGORY_URL":     &c.CategoryURL,
		"LOGIN_URL":        &c.LoginURL,
		"TARGET_DATE":      &c.TargetDate,
		"TIMEZONE":         &c.Timezone,
		"LISTING_SELECTOR": &c.ListingSelector,
		"DETAIL_SELECTOR":  &c.DetailSelector,
		"USER_AGENT":       &c.UserAgent,
		"USER_DATA_DIR":    &c.UserDataDir,
		"USERNAME":         &c.Username,
		"PASSWORD":         &c.Password,
		"DATA_DIR":         &c.DataDir,
		"DATA_PREFIX":      &c.DataPrefix,
		"ERROR_DIR":        &c.ErrorDir,
		"ERROR_PREFIX":     &c.ErrorPrefix,
		"FORMAT":           &c.OutputFormat,
		"METRICS_WORKBOOK": &c.MetricsWorkbook,
		"METRICS_SHEET":    &c.MetricsSheet,
		"ARCHIVE":          &c.ArchivePath,
		"LOG_DIR":          &c.LogDir,
		"LOG_PREFIX":       &c.LogPrefix,
		"METRICS_ADDR":     &c.MetricsAddr,
		"METRICS_TEXTFILE": &c.MetricsTextfile,
	}
	for key, dst := range strs {
		if value, ok := EnvString(EnvPrefix + key); ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"SETTLE_DELAY":     &c.SettleDelay,
		"SCROLL_DELAY":     &c.ScrollDelay,
		"WAIT_TIMEOUT":     &c.WaitTimeout,
		"LISTING_INTERVAL": &c.ListingInterval,
	}
	for key, dst := range durations {
		value, ok, err := EnvDuration(EnvPrefix + key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	ints := map[string]*int{
		"MAX_IDLE_SCROLLS": &c.MaxIdleScrolls,
		"MAX_LISTINGS":     &c.MaxListings,
	}
	for key, dst := range ints {
		value, ok, err := EnvInt(EnvPrefix + key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	bools := map[string]*bool{
		"NEXT_DAY_CUTOFF": &c.NextDayCutoff,
		"HEADLESS":        &c.Headless,
		"VERBOSE":         &c.Verbose,
	}
	for key, dst := range bools {
		value, ok, err := EnvBool(EnvPrefix + key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}
	return nil
}
