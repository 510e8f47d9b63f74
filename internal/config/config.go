package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/spf13/viper"
)

// DefaultFile is the settings file name used when no explicit path is given.
const DefaultFile = "gamekeeper.json"

// Settings is the flat key/value configuration for one managed server
// directory. Every key has a default; values loaded from disk override
// defaults per key.
type Settings struct {
	LastServerVersion string  `json:"last_server_version" mapstructure:"last_server_version"`
	EnableLogging     bool    `json:"enable_logging" mapstructure:"enable_logging"`
	CheckUpdates      bool    `json:"check_updates" mapstructure:"check_updates"`
	AutoStart         bool    `json:"auto_start" mapstructure:"auto_start"`
	EnableBackups     bool    `json:"enable_backups" mapstructure:"enable_backups"`
	MaxBackups        int     `json:"max_backups" mapstructure:"max_backups"`
	EnableDiscord     bool    `json:"enable_discord" mapstructure:"enable_discord"`
	DiscordWebhook    string  `json:"discord_webhook" mapstructure:"discord_webhook"`
	EnableAutoRestart bool    `json:"enable_auto_restart" mapstructure:"enable_auto_restart"`
	EnableSchedule    bool    `json:"enable_schedule" mapstructure:"enable_schedule"`
	RestartInterval   float64 `json:"restart_interval" mapstructure:"restart_interval"` // hours, fractional allowed
	ServerMemory      string  `json:"server_memory" mapstructure:"server_memory"`
}

func defaults() map[string]any {
	return map[string]any{
		"last_server_version": "0.0.0",
		"enable_logging":      true,
		"check_updates":       true,
		"auto_start":          false,
		"enable_backups":      true,
		"max_backups":         3,
		"enable_discord":      false,
		"discord_webhook":     "",
		"enable_auto_restart": true,
		"enable_schedule":     false,
		"restart_interval":    12.0,
		"server_memory":       "8G",
	}
}

// Store owns the settings file. Reads are frequent and cheap; writes go
// through Mutate which persists immediately. Unknown keys present in the
// file are retained by viper and written back unchanged on save.
type Store struct {
	mu   sync.RWMutex
	path string
	v    *viper.Viper
	cur  Settings
}

// Open loads settings from path, merging file values over defaults.
// A missing file is not an error; defaults apply and the file is created
// on the first save.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultFile
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	for k, d := range defaults() {
		v.SetDefault(k, d)
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		var pe *fs.PathError
		if !errors.As(err, &nf) && !errors.As(err, &pe) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	s := &Store{path: path, v: v}
	if err := v.Unmarshal(&s.cur); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Snapshot returns a copy of the current settings. The copy is taken
// under lock so a concurrent Mutate is observed wholly or not at all.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Mutate applies fn to the settings and persists the result. The write
// path is serialized; Snapshot callers never observe a partial update.
// Persistence goes through a throwaway viper so that s.v never carries
// Set overrides: those would outrank the file forever and make later
// reloads deliver stale values. A failed write leaves the store intact.
func (s *Store) Mutate(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cur
	fn(&next)

	out := viper.New()
	out.SetConfigFile(s.path)
	out.SetConfigType("json")
	for k, val := range s.v.AllSettings() { // retains unknown keys
		out.Set(k, val)
	}
	for k, val := range valuesOf(next) {
		out.Set(k, val)
	}
	if err := out.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("save config %s: %w", s.path, err)
	}
	if err := s.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reread config %s: %w", s.path, err)
	}
	s.cur = next
	return nil
}

// SetVersion records a newly applied server version and persists it.
func (s *Store) SetVersion(version string) error {
	return s.Mutate(func(st *Settings) { st.LastServerVersion = version })
}

// reload re-reads the file and swaps in the merged settings. Used by the
// watcher; s.v carries only defaults and file values, so the file always
// wins here.
func (s *Store) reload() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.v.ReadInConfig(); err != nil {
		return s.cur, fmt.Errorf("reload config %s: %w", s.path, err)
	}
	var next Settings
	if err := s.v.Unmarshal(&next); err != nil {
		return s.cur, fmt.Errorf("decode config %s: %w", s.path, err)
	}
	s.cur = next
	return next, nil
}

func valuesOf(st Settings) map[string]any {
	return map[string]any{
		"last_server_version": st.LastServerVersion,
		"enable_logging":      st.EnableLogging,
		"check_updates":       st.CheckUpdates,
		"auto_start":          st.AutoStart,
		"enable_backups":      st.EnableBackups,
		"max_backups":         st.MaxBackups,
		"enable_discord":      st.EnableDiscord,
		"discord_webhook":     st.DiscordWebhook,
		"enable_auto_restart": st.EnableAutoRestart,
		"enable_schedule":     st.EnableSchedule,
		"restart_interval":    st.RestartInterval,
		"server_memory":       st.ServerMemory,
	}
}
