package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoad_RequiresAgentKey(t *testing.T) {
	clearEnv(t, "AGENT_KEY", "LEADER_ADDRESSES")
	os.Setenv("LEADER_ADDRESSES", "0xabc")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error when AGENT_KEY is unset")
	}
}

func TestLoad_RequiresLeaderAddresses(t *testing.T) {
	clearEnv(t, "AGENT_KEY", "LEADER_ADDRESSES")
	os.Setenv("AGENT_KEY", "deadbeef")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error when LEADER_ADDRESSES is unset")
	}
}

func TestLoad_SplitsAndTrimsLeaderAddresses(t *testing.T) {
	clearEnv(t, "AGENT_KEY", "LEADER_ADDRESSES")
	os.Setenv("AGENT_KEY", "deadbeef")
	os.Setenv("LEADER_ADDRESSES", " 0xabc , 0xdef ,,0x123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"0xabc", "0xdef", "0x123"}
	if len(cfg.LeaderAddresses) != len(want) {
		t.Fatalf("expected %d leaders, got %v", len(want), cfg.LeaderAddresses)
	}
	for i, w := range want {
		if cfg.LeaderAddresses[i] != w {
			t.Errorf("leader[%d] = %q, want %q", i, cfg.LeaderAddresses[i], w)
		}
	}
}

func TestLoad_DefaultsTunablesWhenUnset(t *testing.T) {
	clearEnv(t, "AGENT_KEY", "LEADER_ADDRESSES", "WORKER_COUNT", "DEBOUNCE_MS")
	os.Setenv("AGENT_KEY", "deadbeef")
	os.Setenv("LEADER_ADDRESSES", "0xabc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WorkerCount != 10 {
		t.Errorf("expected default WorkerCount=10, got %d", cfg.WorkerCount)
	}
	if cfg.DebounceMs != 420 {
		t.Errorf("expected default DebounceMs=420, got %d", cfg.DebounceMs)
	}
}
