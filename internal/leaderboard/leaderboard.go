// Package leaderboard recomputes each trader's ranking metrics on a daily
// schedule (spec.md §1 scope note, supplementing the distilled spec from
// original_source/backend/trading-engine/src/engine/leaderboard.rs and
// .../cron.rs). Scheduling is grounded on the pack's use of
// github.com/robfig/cron/v3 for periodic jobs; the metric math follows the
// original's pnl_percent_30d / win_rate / sharpe / max_drawdown derivation.
package leaderboard

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copyfollow/internal/database"
)

const lookback30d = 30 * 24 * time.Hour
const lookback7d = 7 * 24 * time.Hour

// Scheduler owns the cron runner that drives the daily recompute.
type Scheduler struct {
	db   *database.Database
	cron *cron.Cron
}

// NewScheduler wires a daily recompute job at the given cron expression
// (e.g. "5 0 * * *" for 00:05 in the process's local time zone, which is
// what cron.New() schedules against).
func NewScheduler(db *database.Database, spec string) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{db: db, cron: c}
	if _, err := c.AddFunc(spec, s.recomputeAll); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) recomputeAll() {
	traders, err := s.db.DistinctActiveTraders(lookback30d)
	if err != nil {
		log.Error().Err(err).Msg("leaderboard: failed to list active traders")
		return
	}

	for _, trader := range traders {
		if err := s.recomputeOne(trader); err != nil {
			log.Error().Err(err).Str("trader", trader).Msg("leaderboard: recompute failed for trader")
		}
	}
	log.Info().Int("traders", len(traders)).Msg("leaderboard: recompute complete")
}

func (s *Scheduler) recomputeOne(trader string) error {
	trades30d, err := s.db.TraderTrades(trader, time.Now().Add(-lookback30d))
	if err != nil {
		return err
	}
	trades7d, err := s.db.TraderTrades(trader, time.Now().Add(-lookback7d))
	if err != nil {
		return err
	}
	followersCount, err := s.db.FollowersCountFor(trader)
	if err != nil {
		return err
	}

	entry := &database.LeaderboardEntry{
		TraderAddress:  trader,
		FollowersCount: followersCount,
		Volume7d:       volume(trades7d),
	}
	entry.PnLPercent30d, entry.WinRate, entry.Sharpe, entry.MaxDrawdown = metrics(trades30d)

	return s.db.UpsertLeaderboardEntry(entry)
}

// volume sums notional (px * sz) across trades.
func volume(trades []database.ExecutedTrade) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		total = total.Add(t.Px.Mul(t.Sz))
	}
	return total
}

// metrics derives pnl_percent, win_rate, sharpe, and max_drawdown from a
// trader's closed-PnL trade history, following the original's per-trade
// return series approach: each trade with a non-nil ClosedPnL contributes
// one return sample. pnlPercent is the cumulative sum of closed PnL over the
// trades; it is not normalized to a percentage of any capital base.
func metrics(trades []database.ExecutedTrade) (pnlPercent, winRate, sharpe, maxDrawdown decimal.Decimal) {
	var returns []decimal.Decimal
	wins := 0
	closedCount := 0
	cumulative := decimal.Zero
	peak := decimal.Zero
	maxDD := decimal.Zero

	for _, t := range trades {
		if t.ClosedPnL == nil {
			continue
		}
		closedCount++
		pnl := *t.ClosedPnL
		returns = append(returns, pnl)
		if pnl.IsPositive() {
			wins++
		}

		cumulative = cumulative.Add(pnl)
		if cumulative.GreaterThan(peak) {
			peak = cumulative
		}
		drawdown := peak.Sub(cumulative)
		if drawdown.GreaterThan(maxDD) {
			maxDD = drawdown
		}
	}

	if closedCount == 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	}

	pnlPercent = cumulative
	winRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(closedCount))).Mul(decimal.NewFromInt(100))
	maxDrawdown = maxDD
	sharpe = sharpeRatio(returns)
	return
}

// sharpeRatio computes mean(returns) / stddev(returns), zero when the
// sample is too small or has no variance.
func sharpeRatio(returns []decimal.Decimal) decimal.Decimal {
	if len(returns) < 2 {
		return decimal.Zero
	}

	n := decimal.NewFromInt(int64(len(returns)))
	sum := decimal.Zero
	for _, r := range returns {
		sum = sum.Add(r)
	}
	mean := sum.Div(n)

	variance := decimal.Zero
	for _, r := range returns {
		d := r.Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(n)

	stddev := decimalSqrt(variance)
	if stddev.IsZero() {
		return decimal.Zero
	}
	return mean.Div(stddev)
}

// decimalSqrt uses Newton's method since shopspring/decimal has no native
// sqrt; a handful of iterations is plenty for the precision this metric needs.
func decimalSqrt(d decimal.Decimal) decimal.Decimal {
	if !d.IsPositive() {
		return decimal.Zero
	}
	x := d
	two := decimal.NewFromInt(2)
	for i := 0; i < 30; i++ {
		x = x.Add(d.Div(x)).Div(two)
	}
	return x
}
