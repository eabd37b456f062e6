// Package grouper collapses a stream of venue fills into one FullOrder per
// logical parent order, identified by oid (spec.md §4.2). It is grounded on
// original_source/backend/trading-engine/src/engine/grouper.rs, translated
// from the locked-map-plus-spawned-timer shape into a single goroutine that
// owns its PendingOrder map directly (spec.md §9 REDESIGN FLAGS: "replace
// with ... a single grouper task that owns the map and drains a (fill |
// tick) event stream; this eliminates the lock entirely").
package grouper

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Fill is one report of a venue match, tagged with the leader it was
// received for by the ingest stage.
type Fill struct {
	Leader    string
	Coin      string
	Side      string // "A" = sell, "B" = buy
	Px        string
	Sz        string
	TimeMs    uint64
	Hash      string
	Oid       uint64
	Dir       string // may be empty; "Unknown" is substituted
	ClosedPnL string
	Crossed   bool
	Fee       string
	IsSnapshot bool
}

// FullOrder is the terminal aggregated order emitted to the executor.
type FullOrder struct {
	Leader      string
	Coin        string
	Dir         string
	TotalSz     decimal.Decimal
	AvgPx       decimal.Decimal
	TimestampMs uint64
	Hash        string
	Oid         uint64
}

// pendingOrder accumulates child fills for one oid until the debounce
// window fires or the sweep reclaims it.
type pendingOrder struct {
	leader     string
	coin       string
	dir        string
	totalSz    decimal.Decimal
	weightedPx decimal.Decimal
	firstTimeMs uint64
	hash       string
	oid        uint64
	lastSeen   time.Time
}

// Config carries the debounce/quiet/sweep tunables (spec.md §6).
type Config struct {
	DebounceDelay time.Duration // arm delay before the per-oid timer fires (420ms nominal)
	QuietWindow   time.Duration // minimum idle time required to flush (400ms nominal)
	SweepInterval time.Duration // periodic reclaim sweep (5s nominal)
	SweepThreshold time.Duration // idle age the sweep reclaims at (600ms nominal)
}

func DefaultConfig() Config {
	return Config{
		DebounceDelay:  420 * time.Millisecond,
		QuietWindow:    400 * time.Millisecond,
		SweepInterval:  5 * time.Second,
		SweepThreshold: 600 * time.Millisecond,
	}
}

type tick struct {
	oid uint64
}

// Grouper owns the single PendingOrder map; no other goroutine ever reads
// or writes it, so it needs no lock.
type Grouper struct {
	cfg     Config
	pending map[uint64]*pendingOrder
	ticks   chan tick
}

func New(cfg Config) *Grouper {
	return &Grouper{
		cfg:     cfg,
		pending: make(map[uint64]*pendingOrder),
		ticks:   make(chan tick, 1024),
	}
}

// Run drains fills, debounce ticks, and the sweep ticker until ctx is
// cancelled, publishing FullOrders via emit. Grounded on the
// tokio::select! { fill | sweep } loop in the original grouper.rs.
func (g *Grouper) Run(ctx context.Context, fills <-chan Fill, emit func(FullOrder)) {
	sweep := time.NewTicker(g.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case fill, ok := <-fills:
			if !ok {
				return
			}
			g.handleFill(fill, emit)

		case t := <-g.ticks:
			g.handleDebounceTick(t.oid, emit)

		case <-sweep.C:
			g.handleSweep(emit)
		}
	}
}

func (g *Grouper) handleFill(f Fill, emit func(FullOrder)) {
	sz, err := decimal.NewFromString(f.Sz)
	if err != nil {
		log.Warn().Err(err).Str("oid_sz", f.Sz).Msg("grouper: bad sz, treating as zero")
		sz = decimal.Zero
	}
	px, err := decimal.NewFromString(f.Px)
	if err != nil {
		log.Warn().Err(err).Str("oid_px", f.Px).Msg("grouper: bad px, treating as zero")
		px = decimal.Zero
	}

	entry, exists := g.pending[f.Oid]
	if !exists {
		dir := f.Dir
		if dir == "" {
			dir = "Unknown"
		}
		entry = &pendingOrder{
			leader:      f.Leader,
			coin:        f.Coin,
			dir:         dir,
			totalSz:     decimal.Zero,
			weightedPx:  decimal.Zero,
			firstTimeMs: f.TimeMs,
			hash:        f.Hash,
			oid:         f.Oid,
		}
		g.pending[f.Oid] = entry
	}

	entry.totalSz = entry.totalSz.Add(sz)
	entry.weightedPx = entry.weightedPx.Add(px.Mul(sz))
	entry.lastSeen = time.Now()

	if exists {
		// debounce timer already armed for this oid on its first fill
		return
	}

	// Arm the debounce timer iff this entry was freshly created — not
	// "total_sz == sz" (spec.md §9 Open Question 1: that check is fragile
	// under simultaneous fills; the intent is "fires once per new oid").
	oid := f.Oid
	time.AfterFunc(g.cfg.DebounceDelay, func() {
		select {
		case g.ticks <- tick{oid: oid}:
		default:
			log.Warn().Uint64("oid", oid).Msg("grouper: debounce tick dropped, sweep will reclaim")
		}
	})
}

func (g *Grouper) handleDebounceTick(oid uint64, emit func(FullOrder)) {
	entry, ok := g.pending[oid]
	if !ok {
		return
	}
	if time.Since(entry.lastSeen) < g.cfg.QuietWindow {
		// still hot; the sweep path flushes it once it quiets
		return
	}
	delete(g.pending, oid)
	g.publish(entry, emit)
}

func (g *Grouper) handleSweep(emit func(FullOrder)) {
	now := time.Now()
	for oid, entry := range g.pending {
		if now.Sub(entry.lastSeen) > g.cfg.SweepThreshold {
			delete(g.pending, oid)
			g.publish(entry, emit)
		}
	}
}

func (g *Grouper) publish(entry *pendingOrder, emit func(FullOrder)) {
	if !entry.totalSz.IsPositive() {
		return
	}
	avgPx := entry.weightedPx.Div(entry.totalSz)
	emit(FullOrder{
		Leader:      entry.leader,
		Coin:        entry.coin,
		Dir:         entry.dir,
		TotalSz:     entry.totalSz,
		AvgPx:       avgPx,
		TimestampMs: entry.firstTimeMs,
		Hash:        entry.hash,
		Oid:         entry.oid,
	})
}
