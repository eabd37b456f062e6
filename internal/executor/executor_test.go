package executor

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/copyfollow/internal/followercache"
	"github.com/web3guy0/copyfollow/internal/grouper"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

// TestSizeOrder_FollowerSizingWithCap covers spec scenario S2: an unbounded
// size of 5 at notional 500 is capped to 3 by a max_risk of 300.
func TestSizeOrder_FollowerSizingWithCap(t *testing.T) {
	maxRisk := dec(t, "300")
	follower := followercache.FollowerConfig{
		FollowerAddress: "0xfollower",
		Ratio:           dec(t, "0.5"),
		MaxRisk:         &maxRisk,
		IsActive:        true,
	}
	order := grouper.FullOrder{
		Coin:    "BTC",
		Dir:     "Open Long",
		TotalSz: dec(t, "10"),
		AvgPx:   dec(t, "100"),
	}

	sz := sizeOrder(follower, order)
	if !sz.Equal(dec(t, "3")) {
		t.Errorf("expected capped sz=3, got %s", sz.String())
	}
}

// TestSizeOrder_NoCapUsesRatioDirectly covers invariant 4's second branch:
// with no max_risk set, sz_submitted = total_sz * ratio exactly.
func TestSizeOrder_NoCapUsesRatioDirectly(t *testing.T) {
	follower := followercache.FollowerConfig{
		FollowerAddress: "0xfollower",
		Ratio:           dec(t, "0.25"),
		MaxRisk:         nil,
		IsActive:        true,
	}
	order := grouper.FullOrder{TotalSz: dec(t, "8"), AvgPx: dec(t, "100")}

	sz := sizeOrder(follower, order)
	if !sz.Equal(dec(t, "2")) {
		t.Errorf("expected uncapped sz=2, got %s", sz.String())
	}
}

// TestSizeOrder_NotionalEqualToMaxRiskIsNotCapped covers the cap's strict
// inequality: a notional exactly at max_risk does not trigger the cap.
func TestSizeOrder_NotionalEqualToMaxRiskIsNotCapped(t *testing.T) {
	maxRisk := dec(t, "100")
	follower := followercache.FollowerConfig{Ratio: dec(t, "1"), MaxRisk: &maxRisk}
	order := grouper.FullOrder{TotalSz: dec(t, "1"), AvgPx: dec(t, "100")}

	sz := sizeOrder(follower, order)
	if !sz.Equal(dec(t, "1")) {
		t.Errorf("expected notional==max_risk to stay uncapped at sz=1, got %s", sz.String())
	}
}

// TestSizeOrder_ZeroAvgPxCapDoesNotDivideByZero covers the avg_px=0
// boundary from spec.md §8: shopspring/decimal panics on division by zero,
// so the cap branch must floor the divisor at ε rather than dividing by
// order.AvgPx directly whenever that branch is reached.
func TestSizeOrder_ZeroAvgPxCapDoesNotDivideByZero(t *testing.T) {
	maxRisk := dec(t, "-1") // forces notional(0) > max_risk to take the cap branch
	follower := followercache.FollowerConfig{Ratio: dec(t, "1"), MaxRisk: &maxRisk}
	order := grouper.FullOrder{TotalSz: dec(t, "10"), AvgPx: decimal.Zero}

	sz := sizeOrder(follower, order)
	want := maxRisk.Div(epsilon)
	if !sz.Equal(want) {
		t.Errorf("expected epsilon-floored sz=%s, got %s", want.String(), sz.String())
	}
}

// TestDirectionToSide covers the dir -> is_buy resolution table and the
// unrecognized-dir fallback (spec.md §9 Open Question 3).
func TestDirectionToSide(t *testing.T) {
	cases := []struct {
		dir        string
		wantBuy    bool
		wantKnown  bool
	}{
		{"Open Long", true, true},
		{"Close Short", true, true},
		{"Open Short", false, true},
		{"Close Long", false, true},
		{"Unknown", false, false},
		{"", false, false},
	}

	for _, c := range cases {
		isBuy, recognized := directionToSide(c.dir)
		if isBuy != c.wantBuy || recognized != c.wantKnown {
			t.Errorf("directionToSide(%q) = (%v, %v), want (%v, %v)", c.dir, isBuy, recognized, c.wantBuy, c.wantKnown)
		}
	}
}

// TestIsDust_RejectsAtExactThreshold covers spec.md §4.4 step 3 ("If
// sz ≤ 10⁻⁶, reject"): a size exactly at the dust threshold must be
// rejected, not just sizes strictly below it.
func TestIsDust_RejectsAtExactThreshold(t *testing.T) {
	if !isDust(dustThreshold) {
		t.Error("expected a size exactly at the dust threshold to be rejected")
	}
	if !isDust(dustThreshold.Sub(dec(t, "0.0000001"))) {
		t.Error("expected a size below the dust threshold to be rejected")
	}
	if isDust(dustThreshold.Add(dec(t, "0.0000001"))) {
		t.Error("expected a size above the dust threshold to be accepted")
	}
}

// TestDispatcher_LeaderNotInCacheProducesNoTasks covers spec scenario S3: a
// FullOrder for a leader absent from the cache yields zero tasks.
func TestDispatcher_LeaderNotInCacheProducesNoTasks(t *testing.T) {
	cache := followercache.NewStore(nil)
	// A store with no snapshot stored yet reports every leader as absent,
	// which stands in for "this leader is not in the cache".

	d := NewDispatcher(cache, 10)
	d.dispatch(grouper.FullOrder{Leader: "0xUNK", Coin: "BTC", Dir: "Open Long", TotalSz: dec(t, "1"), AvgPx: dec(t, "100")})

	select {
	case task := <-d.Tasks():
		t.Fatalf("expected zero tasks for an unknown leader, got %+v", task)
	default:
	}
}

// TestDispatcher_BackpressureDrop covers spec scenario S4: pushing more
// tasks than the bounded task channel can hold drops the excess rather than
// blocking the dispatcher.
func TestDispatcher_BackpressureDrop(t *testing.T) {
	cache := followercache.NewStore(nil)
	d := NewDispatcher(cache, 2)

	// Directly exercise the bounded-channel drop behavior the dispatcher
	// relies on: fill it to capacity, then attempt one more non-blocking
	// send exactly as dispatch() does.
	d.tasks <- Task{}
	d.tasks <- Task{}

	select {
	case d.tasks <- Task{}:
		t.Fatal("expected the third send to drop, but it was accepted")
	default:
	}

	if len(d.tasks) != 2 {
		t.Errorf("expected task channel to remain at capacity 2, got %d", len(d.tasks))
	}
}
