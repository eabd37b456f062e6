package leaderboard

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/copyfollow/internal/database"
)

func decPtr(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestMetrics_NoClosedTradesYieldsZeroes(t *testing.T) {
	trades := []database.ExecutedTrade{{ClosedPnL: nil}}
	pnl, win, sharpe, dd := metrics(trades)
	if !pnl.IsZero() || !win.IsZero() || !sharpe.IsZero() || !dd.IsZero() {
		t.Errorf("expected all-zero metrics, got pnl=%s win=%s sharpe=%s dd=%s", pnl, win, sharpe, dd)
	}
}

func TestMetrics_WinRateAndDrawdown(t *testing.T) {
	trades := []database.ExecutedTrade{
		{ClosedPnL: decPtr("100")},
		{ClosedPnL: decPtr("-40")},
		{ClosedPnL: decPtr("20")},
	}
	pnl, win, _, dd := metrics(trades)

	if !pnl.Equal(decimal.NewFromInt(80)) {
		t.Errorf("expected cumulative pnl=80, got %s", pnl)
	}
	wantWinRate := decimal.NewFromInt(2).Div(decimal.NewFromInt(3)).Mul(decimal.NewFromInt(100))
	if !win.Equal(wantWinRate) {
		t.Errorf("expected win_rate=%s, got %s", wantWinRate, win)
	}
	// peak after trade1 = 100, trough after trade2 = 60, drawdown = 40
	if !dd.Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected max_drawdown=40, got %s", dd)
	}
}

func TestDecimalSqrt_KnownSquares(t *testing.T) {
	cases := map[string]string{
		"4":  "2",
		"9":  "3",
		"16": "4",
	}
	for input, want := range cases {
		got := decimalSqrt(decimal.RequireFromString(input))
		wantDec := decimal.RequireFromString(want)
		if got.Sub(wantDec).Abs().GreaterThan(decimal.NewFromFloat(0.0001)) {
			t.Errorf("sqrt(%s) = %s, want ~%s", input, got, want)
		}
	}
}

func TestDecimalSqrt_NonPositiveIsZero(t *testing.T) {
	if !decimalSqrt(decimal.NewFromInt(-5)).IsZero() {
		t.Error("expected sqrt of a negative to be zero")
	}
	if !decimalSqrt(decimal.Zero).IsZero() {
		t.Error("expected sqrt of zero to be zero")
	}
}

func TestVolume_SumsNotional(t *testing.T) {
	trades := []database.ExecutedTrade{
		{Px: decimal.NewFromInt(100), Sz: decimal.NewFromInt(2)},
		{Px: decimal.NewFromInt(50), Sz: decimal.NewFromInt(4)},
	}
	v := volume(trades)
	if !v.Equal(decimal.NewFromInt(400)) {
		t.Errorf("expected volume=400, got %s", v)
	}
}
