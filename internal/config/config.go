// Package config loads ghostwatchd's settings file, applies defaults, and
// watches it for changes. A missing, unreadable, or invalid file never
// stops the daemon: it runs with defaults and forces emergency_unmount
// into PASSIVE mode.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config is the fully-resolved settings tree, one field per recognized
// key. Fields not present in the file fall back to their defaults.
type Config struct {
	General          General          `mapstructure:"general"`
	DiskSelection    DiskSelection    `mapstructure:"disk_selection"`
	AlertThresholds  AlertThresholds  `mapstructure:"alert_thresholds"`
	EmergencyUnmount EmergencyUnmount `mapstructure:"emergency_unmount"`
	GDC              GDCConfig        `mapstructure:"gdc"`
	Logging          Logging          `mapstructure:"logging"`
	Notifications    Notifications    `mapstructure:"notifications"`
	Metrics          MetricsConfig    `mapstructure:"metrics"`
	Scoring          ScoringConfig    `mapstructure:"scoring"`
}

type General struct {
	Language         string `mapstructure:"language"`
	PollingIntervalS int    `mapstructure:"polling_interval_s"`
}

type DiskSelection struct {
	MonitoredDevices map[string]bool `mapstructure:"monitored_devices"`
}

type SmartThresholds struct {
	Reallocated   int `mapstructure:"reallocated"`
	Pending       int `mapstructure:"pending"`
	Uncorrectable int `mapstructure:"uncorrectable"`
	Timeout       int `mapstructure:"timeout"`
}

type TemperatureThresholds struct {
	HDDWarning  int `mapstructure:"hdd_warning"`
	HDDCritical int `mapstructure:"hdd_critical"`
	SSDWarning  int `mapstructure:"ssd_warning"`
	SSDCritical int `mapstructure:"ssd_critical"`
}

type AlertThresholds struct {
	SMART       SmartThresholds       `mapstructure:"smart"`
	Temperature TemperatureThresholds `mapstructure:"temperature"`
}

type EmergencyUnmount struct {
	Mode      string `mapstructure:"mode"`
	CooldownS int    `mapstructure:"cooldown_s"`
}

type GDCConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type Logging struct {
	RetentionSizeKB int    `mapstructure:"retention_size_kb"`
	HistoryRoot     string `mapstructure:"history_root"`
}

// Notifications configures the optional NATS severity-change sink. An
// empty URL leaves notifications disabled and the daemon falls back to
// notify.NoopSink.
type Notifications struct {
	NatsURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

// MetricsConfig controls the optional Prometheus exposition endpoint. An
// empty ListenAddr leaves the endpoint disabled.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ScoringConfig supplies facts the scoring model cannot derive from a SMART
// read alone. RatedEnduranceByModel maps a device's reported model string to
// its rated total-bytes-written endurance, in whatever unit the model's
// datasheet and total_lbas_written agree on; a model absent from the table
// has no wear data and scores under the no-lifetime-data SSD profile.
type ScoringConfig struct {
	RatedEnduranceByModel map[string]uint64 `mapstructure:"rated_endurance_by_model"`
}

// Default returns the fully-defaulted configuration, used whenever no
// settings file is found or it fails to parse.
func Default() Config {
	return Config{
		General: General{Language: "en", PollingIntervalS: 60},
		AlertThresholds: AlertThresholds{
			SMART: SmartThresholds{Reallocated: 5, Pending: 1, Uncorrectable: 1, Timeout: 5},
			Temperature: TemperatureThresholds{
				HDDWarning: 50, HDDCritical: 60, SSDWarning: 60, SSDCritical: 70,
			},
		},
		EmergencyUnmount: EmergencyUnmount{Mode: "PASSIVE", CooldownS: 1800},
		GDC:              GDCConfig{Enabled: true},
		Logging:          Logging{RetentionSizeKB: 1024, HistoryRoot: "/var/lib/ghostwatchd/history"},
	}
}

func searchPaths(appName string) []string {
	paths := []string{filepath.Join("/etc", appName, "settings.json")}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "."+appName, "settings.json"))
	}
	return paths
}

// Loader owns a viper instance and the most recently resolved Config, and
// can watch the backing file for hot-reload of the fields that are safe to
// change at runtime.
type Loader struct {
	v        *viper.Viper
	path     string
	current  Config
	onChange func(Config)
}

// Load resolves the settings file (in order: /etc/<appName>/settings.json,
// ~/.<appName>/settings.json), applies defaults for every recognized key,
// and returns the result. Any error reading or parsing the file is logged
// and defaults are returned instead — the caller never sees a parse error.
func Load(appName string) *Loader {
	v := viper.New()
	v.SetConfigType("json")

	def := Default()
	v.SetDefault("general.language", def.General.Language)
	v.SetDefault("general.polling_interval_s", def.General.PollingIntervalS)
	v.SetDefault("disk_selection.monitored_devices", map[string]bool{})
	v.SetDefault("alert_thresholds.smart.reallocated", def.AlertThresholds.SMART.Reallocated)
	v.SetDefault("alert_thresholds.smart.pending", def.AlertThresholds.SMART.Pending)
	v.SetDefault("alert_thresholds.smart.uncorrectable", def.AlertThresholds.SMART.Uncorrectable)
	v.SetDefault("alert_thresholds.smart.timeout", def.AlertThresholds.SMART.Timeout)
	v.SetDefault("alert_thresholds.temperature.hdd_warning", def.AlertThresholds.Temperature.HDDWarning)
	v.SetDefault("alert_thresholds.temperature.hdd_critical", def.AlertThresholds.Temperature.HDDCritical)
	v.SetDefault("alert_thresholds.temperature.ssd_warning", def.AlertThresholds.Temperature.SSDWarning)
	v.SetDefault("alert_thresholds.temperature.ssd_critical", def.AlertThresholds.Temperature.SSDCritical)
	v.SetDefault("emergency_unmount.mode", def.EmergencyUnmount.Mode)
	v.SetDefault("emergency_unmount.cooldown_s", def.EmergencyUnmount.CooldownS)
	v.SetDefault("gdc.enabled", def.GDC.Enabled)
	v.SetDefault("logging.retention_size_kb", def.Logging.RetentionSizeKB)
	v.SetDefault("logging.history_root", def.Logging.HistoryRoot)
	v.SetDefault("notifications.nats_url", "")
	v.SetDefault("notifications.subject", "ghostwatchd.device.status")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("scoring.rated_endurance_by_model", map[string]uint64{})

	loader := &Loader{v: v, current: def}

	var found string
	for _, p := range searchPaths(appName) {
		if _, err := os.Stat(p); err == nil {
			found = p
			break
		}
	}
	if found == "" {
		log.Info().Msg("no settings file found, running with defaults")
		return loader
	}

	loader.path = found
	v.SetConfigFile(found)
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Err(err).Str("path", found).Msg("settings file unreadable, falling back to defaults")
		loader.current.EmergencyUnmount.Mode = "PASSIVE"
		return loader
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Warn().Err(err).Str("path", found).Msg("settings file invalid, falling back to defaults")
		loader.current.EmergencyUnmount.Mode = "PASSIVE"
		return loader
	}
	loader.current = cfg
	return loader
}

// Current returns the last successfully resolved configuration.
func (l *Loader) Current() Config { return l.current }

// Watch starts a viper file watch and invokes onChange with the newly
// reloaded configuration on every write. general.* and
// emergency_unmount.mode are intentionally NOT forwarded to onChange: they
// are fixed at process startup so a scan cadence or unmount-safety mode
// never changes under a running scan engine.
func (l *Loader) Watch(onChange func(Config)) error {
	if l.path == "" {
		return nil
	}
	l.onChange = onChange
	l.v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := l.v.Unmarshal(&cfg); err != nil {
			log.Warn().Err(err).Msg("reloaded settings file invalid, keeping previous configuration")
			return
		}
		cfg.General = l.current.General
		cfg.EmergencyUnmount.Mode = l.current.EmergencyUnmount.Mode
		l.current = cfg
		log.Info().Str("path", e.Name).Msg("settings file reloaded")
		if l.onChange != nil {
			l.onChange(cfg)
		}
	})
	l.v.WatchConfig()
	return nil
}

// Validate reports a ConfigInvalid-class error for values that would
// otherwise silently misbehave (e.g. a polling interval out of range).
func (c Config) Validate() error {
	if c.General.PollingIntervalS < 10 || c.General.PollingIntervalS > 3600 {
		return fmt.Errorf("general.polling_interval_s out of range [10,3600]: %d", c.General.PollingIntervalS)
	}
	if c.EmergencyUnmount.Mode != "PASSIVE" && c.EmergencyUnmount.Mode != "ACTIVE" {
		return fmt.Errorf("emergency_unmount.mode must be PASSIVE or ACTIVE, got %q", c.EmergencyUnmount.Mode)
	}
	return nil
}
