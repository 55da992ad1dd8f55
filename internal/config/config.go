// Package config loads uma-friends settings from defaults, json5 files and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/robfig/cron/v3"
	"github.com/titanous/json5"

	"github.com/rcliao/uma-friends/internal/browser"
	"github.com/rcliao/uma-friends/internal/crawl"
	"github.com/rcliao/uma-friends/internal/model"
	"github.com/rcliao/uma-friends/internal/retry"
)

// FileName is the config file looked up in the working directory and then
// in the data directory.
const FileName = "uma-friends.json5"

// Duration is a time.Duration written as a string such as "1s".
type Duration string

// Value parses d. The empty string is zero.
func (d Duration) Value() (time.Duration, error) {
	if d == "" {
		return 0, nil
	}
	return time.ParseDuration(string(d))
}

func (d Duration) or(fallback time.Duration) time.Duration {
	v, err := d.Value()
	if err != nil {
		return fallback
	}
	return v
}

// Browser configures Chrome.
type Browser struct {
	Bin string `json:"bin"`
	// Headful shows the window; the zero value runs headless.
	Headful    bool   `json:"headful"`
	NoSandbox  bool   `json:"no_sandbox"`
	ControlURL string `json:"control_url"`
}

// Config is the full configuration of the pipeline and CLI.
type Config struct {
	DB          string `json:"db"`
	ReferenceDB string `json:"reference_db"`

	URL              string        `json:"url"`
	TimeoutSeconds   int           `json:"timeout_seconds"`
	StepLimit        int           `json:"step_limit"`
	KeyMode          model.KeyMode `json:"key_mode"`
	Location         string        `json:"location"`
	PollInterval     Duration      `json:"poll_interval"`
	ListInterval     Duration      `json:"list_interval"`
	ClickPause       Duration      `json:"click_pause"`
	LoadMoreAttempts int           `json:"load_more_attempts"`
	ListAttempts     int           `json:"list_attempts"`
	SettleAttempts   int           `json:"settle_attempts"`
	Browser          Browser       `json:"browser"`

	StrictRaces bool   `json:"strict_races"`
	Schedule    string `json:"schedule"`
}

// DataDir is where the database and the fallback config file live.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".uma-friends"
	}
	return filepath.Join(home, ".uma-friends")
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DB:               filepath.Join(DataDir(), "friends.db"),
		TimeoutSeconds:   30,
		StepLimit:        200,
		KeyMode:          model.KeyFingerprint,
		Location:         "Asia/Tokyo",
		PollInterval:     "1s",
		ListInterval:     "2s",
		ClickPause:       "2s",
		LoadMoreAttempts: 20,
		ListAttempts:     15,
		SettleAttempts:   100,
		Schedule:         "@every 1h",
	}
}

// Load builds the configuration: defaults, then <name>.json5, then
// <name>.local.json5, then the environment. An empty path looks for FileName
// in the working directory and then in DataDir; a missing file is only an
// error when path is given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = FileName
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = filepath.Join(DataDir(), FileName)
		}
	}

	file, err := ReadConfig[Config](path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case err != nil:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := mergo.Merge(&cfg, file, mergo.WithOverride); err != nil {
			return cfg, fmt.Errorf("merge config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ReadConfig reads name and merges name.local over it, where name ends with
// an extension such as ".json5". It returns os.ErrNotExist when neither exists.
func ReadConfig[T any](name string) (T, error) {
	var out T
	found := false

	ext := filepath.Ext(name)
	local := strings.TrimSuffix(name, ext) + ".local" + ext

	b, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(b) > 0 {
		if err := json5.Unmarshal(b, &out); err != nil {
			return out, fmt.Errorf("parse %s: %w", name, err)
		}
		found = true
	}

	b, err = os.ReadFile(local)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(b) > 0 {
		var override T
		if err := json5.Unmarshal(b, &override); err != nil {
			return out, fmt.Errorf("parse %s: %w", local, err)
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, err
		}
		found = true
	}

	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("UMA_FRIENDS_DB"); ok && v != "" {
		cfg.DB = v
	}
	if v, ok := os.LookupEnv("UMA_FRIENDS_REFERENCE_DB"); ok && v != "" {
		cfg.ReferenceDB = v
	}
	if v, ok := os.LookupEnv("UMA_FRIENDS_URL"); ok && v != "" {
		cfg.URL = v
	}
	if v, ok := os.LookupEnv("UMA_FRIENDS_CHROME_BIN"); ok && v != "" {
		cfg.Browser.Bin = v
	}
	if v, ok := os.LookupEnv("UMA_FRIENDS_STEP_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("UMA_FRIENDS_STEP_LIMIT: %w", err)
		}
		cfg.StepLimit = n
	}
	return nil
}

// ReferencePath is the reference database, which defaults to the main one.
func (c Config) ReferencePath() string {
	if c.ReferenceDB != "" {
		return c.ReferenceDB
	}
	return c.DB
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.DB == "" {
		errs = append(errs, errors.New("db must be set"))
	}
	if !model.ValidKeyModes[c.KeyMode] {
		errs = append(errs, fmt.Errorf("invalid key_mode %q (valid: identity, fingerprint)", c.KeyMode))
	}
	if _, err := time.LoadLocation(c.Location); err != nil {
		errs = append(errs, fmt.Errorf("invalid location %q: %w", c.Location, err))
	}
	for name, v := range map[string]int{
		"timeout_seconds":    c.TimeoutSeconds,
		"step_limit":         c.StepLimit,
		"load_more_attempts": c.LoadMoreAttempts,
		"list_attempts":      c.ListAttempts,
		"settle_attempts":    c.SettleAttempts,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	for name, d := range map[string]Duration{
		"poll_interval": c.PollInterval,
		"list_interval": c.ListInterval,
		"click_pause":   c.ClickPause,
	} {
		if v, err := d.Value(); err != nil || v < 0 {
			errs = append(errs, fmt.Errorf("invalid %s %q", name, d))
		}
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid schedule %q: %w", c.Schedule, err))
		}
	}
	return errors.Join(errs...)
}

// ValidateCrawl additionally requires what a crawl needs.
func (c Config) ValidateCrawl() error {
	if c.URL == "" {
		return errors.Join(c.Validate(), errors.New("url must be set to crawl"))
	}
	return c.Validate()
}

// Crawl returns the crawler bounds.
func (c Config) Crawl() crawl.Config {
	poll := c.PollInterval.or(time.Second)
	return crawl.Config{
		URL:        c.URL,
		StepLimit:  c.StepLimit,
		Locate:     retry.Every(poll, c.TimeoutSeconds),
		ListItems:  retry.Every(c.ListInterval.or(2*time.Second), c.ListAttempts),
		LoadMore:   retry.Every(poll, c.LoadMoreAttempts),
		Settle:     retry.Every(poll, c.SettleAttempts),
		ClickPause: c.ClickPause.or(2 * time.Second),
	}
}

// BrowserOptions returns the Chrome options.
func (c Config) BrowserOptions() browser.Options {
	return browser.Options{
		Bin:        c.Browser.Bin,
		Headless:   !c.Browser.Headful,
		NoSandbox:  c.Browser.NoSandbox,
		ControlURL: c.Browser.ControlURL,
	}
}
