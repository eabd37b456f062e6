// Package executor turns FullOrders into sized follower orders and submits
// them (spec.md §4.4). Grounded on internal/trading's worker-pool dispatch
// shape (adapted: one plain buffered task channel, not a fan-out bus —
// spec.md §9 REDESIGN FLAGS: "a task queue wants exactly-once delivery to
// whichever worker is free next, which a broadcast bus cannot express") and
// exec/client.go's per-worker owned client discipline.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copyfollow/internal/database"
	"github.com/web3guy0/copyfollow/internal/exchange"
	"github.com/web3guy0/copyfollow/internal/followercache"
	"github.com/web3guy0/copyfollow/internal/grouper"
)

// dustThreshold rejects orders sized at or below this; ε floors the
// avg_px divisor in the max-risk cap so a zero avg_px can't divide by zero
// (spec.md §4.4 edge cases).
var (
	dustThreshold = decimal.NewFromFloat(0.000001)
	epsilon       = decimal.NewFromFloat(0.0000001)
)

// directionToSide resolves a FullOrder's dir into is_buy (spec.md §4.4,
// §9 Open Question 3: an unrecognized dir defaults to sell, logged as a
// warning rather than dropped, since a silently dropped order is worse
// than a conservative side guess).
func directionToSide(dir string) (isBuy bool, recognized bool) {
	switch dir {
	case "Open Long", "Close Short":
		return true, true
	case "Open Short", "Close Long":
		return false, true
	default:
		return false, false
	}
}

// Task pairs a FullOrder with one follower's config; the worker sizes it
// at submission time.
type Task struct {
	Leader    string
	Follower  followercache.FollowerConfig
	Order     grouper.FullOrder
	IsBuy     bool
}

// Dispatcher reads FullOrders, builds one Task per active follower, and
// fans them out to the worker pool over a bounded task channel.
type Dispatcher struct {
	cache *followercache.Store
	tasks chan Task
}

func NewDispatcher(cache *followercache.Store, taskCapacity int) *Dispatcher {
	return &Dispatcher{
		cache: cache,
		tasks: make(chan Task, taskCapacity),
	}
}

// Tasks exposes the outbound channel for the worker pool to range over.
func (d *Dispatcher) Tasks() <-chan Task {
	return d.tasks
}

// Run consumes FullOrders and enqueues one Task per active follower of the
// order's leader (spec.md §4.3/§4.4). A leader with no active followers is
// silently skipped — not an error.
func (d *Dispatcher) Run(ctx context.Context, orders <-chan grouper.FullOrder) {
	for {
		select {
		case <-ctx.Done():
			return
		case order, ok := <-orders:
			if !ok {
				return
			}
			d.dispatch(order)
		}
	}
}

func (d *Dispatcher) dispatch(order grouper.FullOrder) {
	followers, ok := d.cache.Get(order.Leader)
	if !ok || len(followers) == 0 {
		return
	}

	isBuy, recognized := directionToSide(order.Dir)
	if !recognized {
		log.Warn().Str("dir", order.Dir).Uint64("oid", order.Oid).
			Msg("executor: unrecognized direction, defaulting to sell")
	}

	for _, f := range followers {
		if !f.IsActive {
			continue
		}
		task := Task{Leader: order.Leader, Follower: f, Order: order, IsBuy: isBuy}
		select {
		case d.tasks <- task:
		default:
			log.Warn().Str("leader", order.Leader).Str("follower", f.FollowerAddress).
				Msg("executor: task dropped, task queue full")
		}
	}
}

// sizeOrder computes a follower's order size: total_sz * ratio, capped by
// max_risk_per_trade when set (spec.md §4.4 sizing). The ε floor on the
// divisor guards the avg_px=0 boundary case (spec.md §8: "max_risk binding
// with avg_px = 0 is rejected by the ε guard producing a bounded sz, which
// is then caught by the dust threshold").
func sizeOrder(f followercache.FollowerConfig, order grouper.FullOrder) decimal.Decimal {
	sz := order.TotalSz.Mul(f.Ratio)
	if f.MaxRisk != nil {
		notional := sz.Mul(order.AvgPx)
		if notional.GreaterThan(*f.MaxRisk) {
			sz = f.MaxRisk.Div(decimal.Max(order.AvgPx, epsilon))
		}
	}
	return sz
}

// Worker owns one exchange.Client and drains the shared task channel.
type Worker struct {
	id       int
	client   *exchange.Client
	db       *database.Database
	tasks    <-chan Task
}

func NewWorker(id int, client *exchange.Client, db *database.Database, tasks <-chan Task) *Worker {
	return &Worker{id: id, client: client, db: db, tasks: tasks}
}

// Run drains tasks until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-w.tasks:
			if !ok {
				return
			}
			w.handle(task)
		}
	}
}

// isDust reports whether sz is at or below the dust threshold (spec.md
// §4.4 step 3: "If sz ≤ 10⁻⁶, reject").
func isDust(sz decimal.Decimal) bool {
	return sz.LessThanOrEqual(dustThreshold)
}

func (w *Worker) handle(task Task) {
	sz := sizeOrder(task.Follower, task.Order)
	if isDust(sz) {
		log.Debug().Str("follower", task.Follower.FollowerAddress).Str("sz", sz.String()).
			Msg("executor: order below dust threshold, skipped")
		return
	}

	result, err := w.client.PlaceLimitOrder(task.Order.Coin, task.IsBuy, task.Order.AvgPx, sz)
	if err != nil {
		log.Error().Err(err).Int("worker", w.id).Str("follower", task.Follower.FollowerAddress).
			Msg("executor: order submission failed")
		return
	}

	status := string(result.Status)
	trade := &database.ExecutedTrade{
		TraderAddress:   task.Leader,
		FollowerAddress: task.Follower.FollowerAddress,
		Coin:            task.Order.Coin,
		Dir:             task.Order.Dir,
		IsBuy:           task.IsBuy,
		Px:              task.Order.AvgPx,
		Sz:              sz,
		ExchangeOrderID: result.Oid,
		Status:          status,
		Timestamp:       time.UnixMilli(int64(task.Order.TimestampMs)),
	}

	if err := w.db.SaveExecutedTrade(trade); err != nil {
		log.Error().Err(err).Msg("executor: failed to persist executed trade")
	}

	if result.Status == exchange.StatusUnexpected || result.Status == exchange.StatusRejected {
		log.Warn().Str("raw", result.Raw).Str("follower", task.Follower.FollowerAddress).
			Msg(fmt.Sprintf("executor: order ended in status %s", status))
	}
}
