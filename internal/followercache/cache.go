// Package followercache holds the hot, read-mostly map from leader address
// to the list of active FollowerConfigs copying that leader (spec.md §4.3).
// Grounded on internal/markets/manager.go's registry-map ownership pattern
// for the read/write shape, and internal/database/database.go's GORM join
// for the refresh query.
package followercache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copyfollow/internal/database"
)

// FollowerConfig is one (leader -> follower) copy relationship.
type FollowerConfig struct {
	FollowerAddress string
	AgentSignature  string
	Ratio           decimal.Decimal
	MaxRisk         *decimal.Decimal
	IsActive        bool
}

// Snapshot maps leader address to its active followers. Once built, a
// Snapshot is never mutated — refresh builds a brand new one and swaps it
// in atomically (spec.md §4.3 "Readers either see the pre- or post-refresh
// map in full; never a mixed state").
type Snapshot map[string][]FollowerConfig

// Store holds the current Snapshot behind an atomic pointer: many
// concurrent readers, a single writer (the refresh loop).
type Store struct {
	db      *database.Database
	current atomic.Pointer[Snapshot]
}

func NewStore(db *database.Database) *Store {
	return &Store{db: db}
}

// Load performs the eager startup load described in spec.md §4.3: "the
// pipeline will not emit orders before the first load completes."
func (s *Store) Load(ctx context.Context) error {
	snap, err := s.build()
	if err != nil {
		return err
	}
	s.current.Store(&snap)
	log.Info().Int("leaders", len(snap)).Msg("followercache: initial load complete")
	return nil
}

// Get returns the active followers for a leader. A leader absent from the
// snapshot yields (nil, false) — the executor treats that as "not an
// error: the leader is unsubscribed-from" (spec.md §4.4).
func (s *Store) Get(leader string) ([]FollowerConfig, bool) {
	snap := s.current.Load()
	if snap == nil {
		return nil, false
	}
	cfgs, ok := (*snap)[leader]
	return cfgs, ok
}

// RefreshLoop rebuilds the snapshot off-line every interval and atomically
// replaces the shared pointer. A load failure logs and keeps serving the
// previous snapshot (spec.md §4.3, §7 "DB refresh failure").
func (s *Store) RefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := s.build()
			if err != nil {
				log.Error().Err(err).Msg("followercache: refresh failed, keeping previous snapshot")
				continue
			}
			s.current.Store(&snap)
			log.Info().Int("leaders", len(snap)).Msg("followercache: refreshed")
		}
	}
}

func (s *Store) build() (Snapshot, error) {
	rows, err := s.db.LoadActiveFollowers()
	if err != nil {
		return nil, err
	}

	snap := make(Snapshot)
	for _, r := range rows {
		snap[r.TraderAddress] = append(snap[r.TraderAddress], FollowerConfig{
			FollowerAddress: r.FollowerAddress,
			AgentSignature:  r.AgentSignature,
			Ratio:           r.Ratio,
			MaxRisk:         r.MaxRiskPerTrade,
			IsActive:        true,
		})
	}
	return snap, nil
}
