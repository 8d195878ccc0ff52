package config_test

import (
	"testing"

	"github.com/soundmind-app/soundmind/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   config.LogInfo,
		},
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"},
		},
		Storage: config.StorageConfig{StateDir: "/tmp/soundmind"},
		Alerts:  config.AlertsConfig{CooldownSeconds: 300},
	}
}

func TestDiffNoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.LogLevelChanged || d.AlertCooldownChanged || d.LLMChanged {
		t.Errorf("Diff() of identical configs = %+v, want zero diff", d)
	}
}

func TestDiffLogLevel(t *testing.T) {
	t.Parallel()
	newCfg := baseConfig()
	newCfg.Server.LogLevel = config.LogDebug

	d := config.Diff(baseConfig(), newCfg)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged = false, want true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
}

func TestDiffAlertCooldown(t *testing.T) {
	t.Parallel()
	newCfg := baseConfig()
	newCfg.Alerts.CooldownSeconds = 60

	d := config.Diff(baseConfig(), newCfg)
	if !d.AlertCooldownChanged {
		t.Fatal("AlertCooldownChanged = false, want true")
	}
	if d.NewAlertCooldown != 60 {
		t.Errorf("NewAlertCooldown = %d, want 60", d.NewAlertCooldown)
	}
}

func TestDiffLLMModelSwap(t *testing.T) {
	t.Parallel()
	newCfg := baseConfig()
	newCfg.Providers.LLM.Model = "gpt-4o"

	d := config.Diff(baseConfig(), newCfg)
	if !d.LLMChanged {
		t.Error("LLMChanged = false, want true for model swap")
	}
}
