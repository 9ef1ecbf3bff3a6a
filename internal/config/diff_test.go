package config_test

import (
	"testing"

	"github.com/parlance-ai/parlance/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Session: config.SessionConfig{
			ToolTimeoutSeconds: 30,
			DTMFCooldownMs:     3000,
		},
		IVR:      config.IVRConfig{LoopThreshold: 0.85, HistorySize: 10},
		Campaign: config.CampaignConfig{PollIntervalSeconds: 1, BatchSize: 10, WarmupDailyCaps: []int{20, 50}},
		Bandit:   config.BanditConfig{MinSamples: 30, Draws: 10000, WinnerProbability: 0.95, EliminationProbability: 0.99},
	}
}

func TestDiffNoChanges(t *testing.T) {
	if d := config.Diff(baseConfig(), baseConfig()); d.Any() {
		t.Errorf("Diff of identical configs reported changes: %+v", d)
	}
}

func TestDiffLogLevel(t *testing.T) {
	old := baseConfig()
	updated := baseConfig()
	updated.Server.LogLevel = config.LogDebug

	d := config.Diff(old, updated)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level change not detected: %+v", d)
	}
	if d.SessionChanged || d.CampaignChanged {
		t.Errorf("unrelated sections flagged: %+v", d)
	}
}

func TestDiffSectionChanges(t *testing.T) {
	old := baseConfig()

	updated := baseConfig()
	updated.Session.DTMFCooldownMs = 5000
	if d := config.Diff(old, updated); !d.SessionChanged {
		t.Error("session change not detected")
	}

	updated = baseConfig()
	updated.IVR.LoopThreshold = 0.9
	if d := config.Diff(old, updated); !d.IVRChanged {
		t.Error("ivr change not detected")
	}

	updated = baseConfig()
	updated.Campaign.WarmupDailyCaps = []int{20, 50, 100}
	if d := config.Diff(old, updated); !d.CampaignChanged {
		t.Error("warm-up ladder change not detected")
	}

	updated = baseConfig()
	updated.Bandit.WinnerProbability = 0.9
	if d := config.Diff(old, updated); !d.BanditChanged {
		t.Error("bandit change not detected")
	}
}
