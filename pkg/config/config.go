// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted by PRAYER_PROVIDER
const (
	ProviderAladhan = "aladhan"
	ProviderICal    = "ical"
)

// Config holds process-level settings that are not user-editable
type Config struct {
	DataDir string

	TickInterval time.Duration // how often the scheduler checks the clock
	ReminderLead time.Duration // how early a reminder may fire
	GraceWindow  time.Duration // how late a reminder may still fire
	MarkerTTL    time.Duration // lifetime of the active prayer marker
	SaveDebounce time.Duration // settle delay for location edits
	FetchTimeout time.Duration
	WriteTimeout time.Duration

	Provider      string
	AladhanURL    string
	AladhanMethod int
	AladhanTune   string
	ICalURL       string
	GeoURL        string

	AdhanFile string

	RPCAddr  string
	RPCToken string

	MQTTBroker string
	MQTTTopic  string

	LogLevel string
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load parses configuration values from the current process environment,
// applying defaults for anything unset.
func Load() (Config, error) {
	cfg := Config{
		DataDir:       defaultDataDir(),
		TickInterval:  30 * time.Second,
		ReminderLead:  5 * time.Minute,
		GraceWindow:   2 * time.Minute,
		MarkerTTL:     5 * time.Minute,
		SaveDebounce:  time.Second,
		FetchTimeout:  15 * time.Second,
		WriteTimeout:  5 * time.Second,
		Provider:      ProviderAladhan,
		AladhanURL:    "https://api.aladhan.com",
		AladhanMethod: 3,
		AladhanTune:   "5,3,5,7,9,-1,0,8,-6",
		GeoURL:        "https://ipapi.co/json/",
		RPCAddr:       "127.0.0.1:7847",
		MQTTTopic:     "prayer-reminder",
		LogLevel:      "info",
	}

	invalid := make([]string, 0, 4)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"PRAYER_TICK_INTERVAL", &cfg.TickInterval},
		{"PRAYER_REMINDER_LEAD", &cfg.ReminderLead},
		{"PRAYER_REMINDER_GRACE", &cfg.GraceWindow},
		{"PRAYER_MARKER_TTL", &cfg.MarkerTTL},
		{"PRAYER_SAVE_DEBOUNCE", &cfg.SaveDebounce},
		{"PRAYER_FETCH_TIMEOUT", &cfg.FetchTimeout},
		{"PRAYER_WRITE_TIMEOUT", &cfg.WriteTimeout},
	}
	for _, d := range durations {
		value := strings.TrimSpace(os.Getenv(d.key))
		if value == "" {
			continue
		}
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed < 0 {
			invalid = append(invalid, d.key)
			continue
		}
		*d.dst = parsed
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"PRAYER_DATA_DIR", &cfg.DataDir},
		{"PRAYER_ALADHAN_URL", &cfg.AladhanURL},
		{"PRAYER_ALADHAN_TUNE", &cfg.AladhanTune},
		{"PRAYER_ICAL_URL", &cfg.ICalURL},
		{"PRAYER_GEO_URL", &cfg.GeoURL},
		{"PRAYER_ADHAN_FILE", &cfg.AdhanFile},
		{"PRAYER_RPC_TOKEN", &cfg.RPCToken},
		{"PRAYER_MQTT_BROKER", &cfg.MQTTBroker},
		{"PRAYER_MQTT_TOPIC", &cfg.MQTTTopic},
		{"PRAYER_LOG_LEVEL", &cfg.LogLevel},
	}
	for _, s := range strs {
		if value := strings.TrimSpace(os.Getenv(s.key)); value != "" {
			*s.dst = value
		}
	}

	// An explicitly empty RPC address disables the endpoint
	if value, ok := os.LookupEnv("PRAYER_RPC_ADDR"); ok {
		cfg.RPCAddr = strings.TrimSpace(value)
	}

	if value := strings.TrimSpace(os.Getenv("PRAYER_ALADHAN_METHOD")); value != "" {
		method, err := strconv.Atoi(value)
		if err != nil || method < 0 {
			invalid = append(invalid, "PRAYER_ALADHAN_METHOD")
		} else {
			cfg.AladhanMethod = method
		}
	}

	if value := strings.TrimSpace(os.Getenv("PRAYER_PROVIDER")); value != "" {
		cfg.Provider = strings.ToLower(value)
	}
	switch cfg.Provider {
	case ProviderAladhan:
	case ProviderICal:
		if cfg.ICalURL == "" {
			return Config{}, fmt.Errorf("PRAYER_ICAL_URL is required when PRAYER_PROVIDER=ical")
		}
	default:
		invalid = append(invalid, "PRAYER_PROVIDER")
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	// A tick longer than the window could step over a prayer entirely
	if window := c.ReminderLead + c.GraceWindow; c.TickInterval > window {
		return fmt.Errorf("tick interval %s exceeds reminder window %s", c.TickInterval, window)
	}
	return nil
}

// SettingsPath is the location of the persisted settings record
func (c Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.json")
}

// LedgerPath is the location of the reminder ledger database
func (c Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "prayer-reminder")
}
