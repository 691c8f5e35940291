package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/rs/zerolog"
	"github.com/titanous/json5"
)

// Booking site defaults
const (
	// Base URL of the terminmodul installation
	BaseURL = "https://otv.karlsruhe.de/terminmodul/live"
	// Path the calendar form reports back as baseUrl
	BasePath = "/terminmodul/live"

	// Office ("Dienststelle") whose services are booked
	OfficeID = "38"
	// Service ("Dienstleistung") to book
	ServiceID = "460"

	// Days searched from the site's selected date
	HorizonDays = 90
	// Distance of the second holiday month query from the start date
	HolidayLookaheadDays = 60

	// File name searched for in the working directory
	FileName = "finder.json5"
)

// Config holds the application configuration
type Config struct {
	BaseURL  string `json:"base_url"`
	BasePath string `json:"base_path"`
	OfficeID string `json:"office_id"`
	// Services to select; the first one is booked, the others only get a headcount
	ServiceIDs []string `json:"service_ids"`
	Persons    int      `json:"persons"`
	Language   string   `json:"language"`

	HorizonDays          int `json:"horizon_days"`
	HolidayLookaheadDays int `json:"holiday_lookahead_days"`

	LoadTimeout    Duration `json:"load_timeout"`
	HolidayTimeout Duration `json:"holiday_timeout"`
	Headless       bool     `json:"headless"`

	LineChannelToken string `json:"line_channel_token"`
	LineUserID       string `json:"line_user_id"`
	NoNotify         bool   `json:"no_notify"`
}

// Duration reads "90s" style strings
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json5.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"90s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration for the Karlsruhe Ausländerbehörde
func Default() Config {
	return Config{
		BaseURL:              BaseURL,
		BasePath:             BasePath,
		OfficeID:             OfficeID,
		ServiceIDs:           []string{ServiceID, "458"},
		Persons:              1,
		Language:             "de",
		HorizonDays:          HorizonDays,
		HolidayLookaheadDays: HolidayLookaheadDays,
		LoadTimeout:          Duration{60 * time.Second},
		HolidayTimeout:       Duration{20 * time.Second},
		Headless:             true,
	}
}

// Load returns the defaults, overridden by <path> and <path without ext>.local.<ext>
// when present, then by the environment.
func Load(path string, log zerolog.Logger) (Config, error) {
	cfg := Default()

	for _, name := range []string{path, localName(path)} {
		contents, err := os.ReadFile(name)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return Config{}, err
		}
		var override Config
		if err := json5.Unmarshal(contents, &override); err != nil {
			return Config{}, fmt.Errorf("%s: %w", name, err)
		}
		if err := mergo.Merge(&cfg, override, mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("%s: %w", name, err)
		}
		log.Info().Str("file", name).Msg("merged config file")
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func localName(path string) string {
	dot := strings.LastIndex(path, ".")
	if dot <= strings.LastIndex(path, "/") {
		return path + ".local"
	}
	return path[:dot] + ".local" + path[dot:]
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("LINE_CHANNEL_TOKEN"); v != "" {
		c.LineChannelToken = v
	}
	if v := os.Getenv("LINE_USER_ID"); v != "" {
		c.LineUserID = v
	}
	if v := os.Getenv("FINDER_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("FINDER_HEADLESS"); v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid FINDER_HEADLESS: %w", err)
		}
		c.Headless = headless
	}
	if v := os.Getenv("FINDER_LOAD_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FINDER_LOAD_TIMEOUT: %w", err)
		}
		c.LoadTimeout = Duration{timeout}
	}
	return nil
}

// Validate checks the values the finder cannot run without
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.BaseURL) == "":
		return fmt.Errorf("base_url is required")
	case c.OfficeID == "":
		return fmt.Errorf("office_id is required")
	case len(c.ServiceIDs) == 0:
		return fmt.Errorf("service_ids needs at least one service")
	case c.Persons < 1:
		return fmt.Errorf("persons must be at least 1")
	case c.HorizonDays < 1:
		return fmt.Errorf("horizon_days must be at least 1")
	case c.LoadTimeout.Duration < 0:
		return fmt.Errorf("load_timeout must not be negative")
	}
	return nil
}

// NotifyEnabled reports whether LINE credentials are set and notifications are wanted
func (c Config) NotifyEnabled() bool {
	return !c.NoNotify && c.LineChannelToken != "" && c.LineUserID != ""
}
