package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionChanged is true if any per-call timing knob changed. Applies
	// to sessions started after the reload; live calls keep their values.
	SessionChanged bool

	// IVRChanged is true if any detector default changed.
	IVRChanged bool

	// CampaignChanged is true if dispatcher pacing or warm-up caps changed.
	CampaignChanged bool

	// BanditChanged is true if sampler thresholds changed.
	BanditChanged bool
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.SessionChanged || d.IVRChanged || d.CampaignChanged || d.BanditChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Session != new.Session {
		d.SessionChanged = true
	}
	if old.IVR != new.IVR {
		d.IVRChanged = true
	}
	if old.Campaign.PollIntervalSeconds != new.Campaign.PollIntervalSeconds ||
		old.Campaign.BatchSize != new.Campaign.BatchSize ||
		!slices.Equal(old.Campaign.WarmupDailyCaps, new.Campaign.WarmupDailyCaps) {
		d.CampaignChanged = true
	}
	if old.Bandit != new.Bandit {
		d.BanditChanged = true
	}

	return d
}
