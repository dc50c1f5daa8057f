package arbitrage

import (
	"sync"

	"cryptohunter/internal/model"
)

// Ledger is the append-only, in-memory list of simulated trades in the order
// they were recorded. It is safe for concurrent use.
type Ledger struct {
	mu     sync.RWMutex
	trades []model.SimulatedTrade
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append adds a trade at the end of the ledger.
func (l *Ledger) Append(trade model.SimulatedTrade) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades = append(l.trades, trade)
}

// AppendAll adds trades at the end of the ledger in one step, so readers
// see either none or all of them.
func (l *Ledger) AppendAll(trades []model.SimulatedTrade) {
	if len(trades) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades = append(l.trades, trades...)
}

// Len returns the number of recorded trades.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// Recent returns a copy of the last n trades, oldest first.
func (l *Ledger) Recent(n int) []model.SimulatedTrade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 {
		return []model.SimulatedTrade{}
	}
	start := len(l.trades) - n
	if start < 0 {
		start = 0
	}
	out := make([]model.SimulatedTrade, len(l.trades)-start)
	copy(out, l.trades[start:])
	return out
}

// All returns a copy of every recorded trade.
func (l *Ledger) All() []model.SimulatedTrade {
	return l.Recent(l.Len())
}

// Summary is the performance of the simulated trades so far.
type Summary struct {
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRatePct     float64 `json:"win_rate_pct"`
	TotalNetProfit float64 `json:"total_net_profit"`
	AvgNetProfit   float64 `json:"avg_net_profit"`
	BestTrade      float64 `json:"best_trade"`
	WorstTrade     float64 `json:"worst_trade"`
}

// Summary computes win/loss statistics over the whole ledger. A trade with
// zero net profit counts as a loss.
func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var s Summary
	if len(l.trades) == 0 {
		return s
	}

	s.TotalTrades = len(l.trades)
	s.BestTrade = l.trades[0].NetProfit
	s.WorstTrade = l.trades[0].NetProfit
	for _, t := range l.trades {
		if t.NetProfit > 0 {
			s.WinningTrades++
		} else {
			s.LosingTrades++
		}
		s.TotalNetProfit += t.NetProfit
		s.BestTrade = max(s.BestTrade, t.NetProfit)
		s.WorstTrade = min(s.WorstTrade, t.NetProfit)
	}
	s.WinRatePct = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	s.AvgNetProfit = s.TotalNetProfit / float64(s.TotalTrades)
	return s
}
