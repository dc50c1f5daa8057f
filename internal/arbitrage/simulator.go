package arbitrage

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cryptohunter/internal/model"
)

// Simulator turns opportunities into simulated trades of a fixed size.
type Simulator struct {
	logger    *slog.Logger
	fees      FeeModel
	tradeSize float64
	now       func() time.Time
}

// NewSimulator creates a Simulator.
func NewSimulator(logger *slog.Logger, fees FeeModel, tradeSize float64) *Simulator {
	return &Simulator{
		logger:    logger.With("component", "simulator"),
		fees:      fees,
		tradeSize: tradeSize,
		now:       time.Now,
	}
}

// Record simulates buying tradeSize units on the cheap exchange and selling
// them on the expensive one, and appends the trade to ledger. Losing trades
// are recorded too.
func (s *Simulator) Record(ledger *Ledger, opp model.Opportunity, cycle int64, source model.DataSource) model.SimulatedTrade {
	gross := (opp.SellPrice - opp.BuyPrice) * s.tradeSize
	buyFee := opp.BuyPrice * s.tradeSize * s.fees.Rate(opp.BuyExchange)
	sellFee := opp.SellPrice * s.tradeSize * s.fees.Rate(opp.SellExchange)

	trade := model.SimulatedTrade{
		ID:           uuid.NewString(),
		Cycle:        cycle,
		Timestamp:    s.now(),
		Asset:        opp.Asset,
		BuyExchange:  opp.BuyExchange,
		SellExchange: opp.SellExchange,
		BuyPrice:     opp.BuyPrice,
		SellPrice:    opp.SellPrice,
		TradeSize:    s.tradeSize,
		GrossProfit:  gross,
		Fees:         buyFee + sellFee,
		NetProfit:    gross - buyFee - sellFee,
		Source:       source,
	}
	ledger.Append(trade)

	s.logger.Info("Simulated trade recorded",
		"asset", trade.Asset,
		"buyExchange", trade.BuyExchange,
		"sellExchange", trade.SellExchange,
		"buyPrice", trade.BuyPrice,
		"sellPrice", trade.SellPrice,
		"netProfit", trade.NetProfit,
		"source", trade.Source,
	)
	return trade
}
