package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	AlertCooldownChanged bool
	NewAlertCooldown     int // seconds

	// LLMChanged is informational: swapping the LLM provider requires a
	// restart, so the watcher only logs it.
	LLMChanged bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Alerts.CooldownSeconds != new.Alerts.CooldownSeconds {
		d.AlertCooldownChanged = true
		d.NewAlertCooldown = new.Alerts.CooldownSeconds
	}

	if old.Providers.LLM.Name != new.Providers.LLM.Name ||
		old.Providers.LLM.Model != new.Providers.LLM.Model ||
		old.Providers.LLM.BaseURL != new.Providers.LLM.BaseURL {
		d.LLMChanged = true
	}

	return d
}
