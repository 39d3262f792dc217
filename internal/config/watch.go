package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// LoadAndWatch loads configuration like Load and, when a config file is in use, keeps
// watching it. Every write that still decodes and validates is passed to onChange.
// Edits that fail validation are logged and dropped; the previous configuration stays
// in effect.
//
// Only settings that are read at request time can take effect without a restart. The
// server uses this to change the log level.
func LoadAndWatch(configPath string, onChange func(*Config)) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if v.ConfigFileUsed() == "" || onChange == nil {
		return cfg, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			slog.Warn("ignoring invalid configuration change", "file", e.Name, "error", err)
			return
		}
		slog.Info("configuration reloaded", "file", e.Name)
		onChange(next)
	})
	v.WatchConfig()

	return cfg, nil
}
