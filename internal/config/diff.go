package config

import "time"

// ConfigDiff describes what changed between two configs. Only fields that the
// running application can consume without rebuilding components are tracked;
// everything else takes effect on restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RateChanged covers the search governor tunables. Zero values mean the
	// corresponding setting did not change.
	RateChanged      bool
	NewMinInterval   time.Duration
	NewCacheDuration time.Duration
}

// HasChanges reports whether the diff contains any applicable change.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.RateChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Search.MinRequestInterval != new.Search.MinRequestInterval {
		d.RateChanged = true
		d.NewMinInterval = new.Search.MinRequestInterval
	}
	if old.Search.CacheDuration != new.Search.CacheDuration {
		d.RateChanged = true
		d.NewCacheDuration = new.Search.CacheDuration
	}

	return d
}
