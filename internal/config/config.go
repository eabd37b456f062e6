package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable the streaming core reads at startup.
// All fields are loaded once; the core never re-reads the environment.
type Config struct {
	Debug bool

	// Venue endpoints
	ExchangeWSURL   string
	ExchangeRESTURL string

	// Leaders to mirror, e.g. LEADER_ADDRESSES=0xabc...,0xdef...
	LeaderAddresses []string

	// Credential used to authorize trading on behalf of followers
	AgentKey string

	// Persistence
	DBURL string

	// Pipeline tunables (spec.md §6)
	WorkerCount      int
	ChannelCapacity  int
	DebounceMs       int
	QuietMs          int
	SweepMs          int
	RefreshInterval  time.Duration
	FillBusCapacity  int
	OrderBusCapacity int

	// Reconnect policy for ingest subscriptions
	ReconnectDelay time.Duration

	// HTTP CRUD surface (out-of-scope collaborator, booted alongside the core)
	APIAddr string

	// Leaderboard recompute cron schedule (out-of-scope collaborator)
	LeaderboardCron string
}

func Load() (*Config, error) {
	cfg := &Config{
		Debug:           getEnvBool("DEBUG", false),
		ExchangeWSURL:   getEnv("EXCHANGE_WS_URL", "wss://api.hyperliquid.xyz/ws"),
		ExchangeRESTURL: getEnv("EXCHANGE_REST_URL", "https://api.hyperliquid.xyz"),
		LeaderAddresses: splitAndTrim(os.Getenv("LEADER_ADDRESSES")),
		AgentKey:        os.Getenv("AGENT_KEY"),
		DBURL:           getEnv("DB_URL", "copyfollow.db"),

		WorkerCount:      getEnvInt("WORKER_COUNT", 10),
		ChannelCapacity:  getEnvInt("CHANNEL_CAPACITY", 1000),
		DebounceMs:       getEnvInt("DEBOUNCE_MS", 420),
		QuietMs:          getEnvInt("QUIET_MS", 400),
		SweepMs:          getEnvInt("SWEEP_MS", 5000),
		RefreshInterval:  getEnvDuration("REFRESH_INTERVAL", 300*time.Second),
		FillBusCapacity:  getEnvInt("FILL_BUS_CAPACITY", 10000),
		OrderBusCapacity: getEnvInt("ORDER_BUS_CAPACITY", 10000),

		ReconnectDelay: getEnvDuration("RECONNECT_DELAY", 3*time.Second),

		APIAddr:         getEnv("API_ADDR", ":8080"),
		LeaderboardCron: getEnv("LEADERBOARD_CRON", "5 0 * * *"),
	}

	if cfg.AgentKey == "" {
		return nil, fmt.Errorf("AGENT_KEY is required")
	}
	if len(cfg.LeaderAddresses) == 0 {
		return nil, fmt.Errorf("LEADER_ADDRESSES is required (comma-separated)")
	}

	return cfg, nil
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
