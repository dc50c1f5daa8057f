package notify

import (
	"fmt"
	"time"

	"cryptohunter/internal/model"
)

// Kind identifies what an Event reports.
type Kind string

const (
	KindOpportunity Kind = "opportunity"
	KindTrade       Kind = "trade"
)

// Event is a single outbound notification.
type Event struct {
	Kind    Kind      `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// OpportunityEvent describes a detected price discrepancy.
func OpportunityEvent(opp model.Opportunity, at time.Time) Event {
	return Event{
		Kind:  KindOpportunity,
		Title: fmt.Sprintf("Arbitrage opportunity: %s", opp.Asset),
		Message: fmt.Sprintf("Buy on %s at $%.2f, sell on %s at $%.2f. Spread %.3f%% (%.3f%% after fees).",
			opp.BuyExchange, opp.BuyPrice, opp.SellExchange, opp.SellPrice, opp.SpreadPct, opp.NetSpreadPct),
		Time: at,
	}
}

// TradeEvent describes a recorded simulated trade.
func TradeEvent(trade model.SimulatedTrade) Event {
	return Event{
		Kind:  KindTrade,
		Title: fmt.Sprintf("Simulated trade: %s", trade.Asset),
		Message: fmt.Sprintf("%g units %s -> %s. Gross $%.4f, fees $%.4f, net $%.4f (%s prices).",
			trade.TradeSize, trade.BuyExchange, trade.SellExchange,
			trade.GrossProfit, trade.Fees, trade.NetProfit, trade.Source),
		Time: trade.Timestamp,
	}
}
