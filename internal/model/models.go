package model

import (
	"strings"
	"time"
)

// DataSource tags where the prices of a cycle came from.
type DataSource string

const (
	SourceLive      DataSource = "live"
	SourceSynthetic DataSource = "synthetic"
)

// BotState is the run state of the bot controller.
type BotState string

const (
	StateStopped BotState = "stopped"
	StateRunning BotState = "running"
)

// ExchangePrice is the last observed USD price of an asset on one exchange.
type ExchangePrice struct {
	Exchange string  `json:"exchange"`
	Price    float64 `json:"price"`
}

// AssetTickerSet holds the prices of one asset across exchanges, in the order
// they were received from the price feed. Exchange names are unique per set.
type AssetTickerSet struct {
	Asset  string          `json:"asset"`
	Prices []ExchangePrice `json:"prices"`
}

// Price returns the price quoted by the given exchange (case-insensitive).
func (s AssetTickerSet) Price(exchange string) (float64, bool) {
	for _, p := range s.Prices {
		if strings.EqualFold(p.Exchange, exchange) {
			return p.Price, true
		}
	}
	return 0, false
}

// AssetMarket is one asset's entry in a MarketSnapshot.
type AssetMarket struct {
	Asset     string          `json:"asset"`
	Prices    []ExchangePrice `json:"prices"`
	SpreadPct float64         `json:"spread_pct"`
}

// MarketSnapshot is the market view committed at the end of a cycle.
type MarketSnapshot struct {
	Cycle   int64         `json:"cycle"`
	TakenAt time.Time     `json:"taken_at"`
	Source  DataSource    `json:"source"`
	Assets  []AssetMarket `json:"assets"`
}

// Opportunity is a cross-exchange price discrepancy found in one cycle.
// BuyPrice <= SellPrice always holds.
type Opportunity struct {
	Asset        string  `json:"asset"`
	BuyExchange  string  `json:"buy_exchange"`
	BuyPrice     float64 `json:"buy_price"`
	SellExchange string  `json:"sell_exchange"`
	SellPrice    float64 `json:"sell_price"`
	SpreadPct    float64 `json:"spread_pct"`
	// NetSpreadPct is the spread minus both taker fees. Informational only.
	NetSpreadPct float64 `json:"net_spread_pct"`
}

// SimulatedTrade represents a simulated arbitrage trade recorded in the ledger.
type SimulatedTrade struct {
	ID           string     `json:"id"`
	Cycle        int64      `json:"cycle"`
	Timestamp    time.Time  `json:"timestamp"`
	Asset        string     `json:"asset"`
	BuyExchange  string     `json:"buy_exchange"`
	SellExchange string     `json:"sell_exchange"`
	BuyPrice     float64    `json:"buy_price"`
	SellPrice    float64    `json:"sell_price"`
	TradeSize    float64    `json:"trade_size"`
	GrossProfit  float64    `json:"gross_profit"`
	Fees         float64    `json:"fees"`
	NetProfit    float64    `json:"net_profit"`
	Source       DataSource `json:"source"`
}

// PriceTick is a single exchange price as stored in the market history.
type PriceTick struct {
	Cycle     int64      `db:"cycle"`
	TakenAt   time.Time  `db:"taken_at"`
	Asset     string     `db:"asset"`
	Exchange  string     `db:"exchange"`
	Price     float64    `db:"price_usd"`
	SpreadPct float64    `db:"spread_pct"`
	Source    DataSource `db:"source"`
}

// Ticks flattens the snapshot into one PriceTick per asset and exchange.
func (s MarketSnapshot) Ticks() []PriceTick {
	var ticks []PriceTick
	for _, a := range s.Assets {
		for _, p := range a.Prices {
			ticks = append(ticks, PriceTick{
				Cycle:     s.Cycle,
				TakenAt:   s.TakenAt,
				Asset:     a.Asset,
				Exchange:  p.Exchange,
				Price:     p.Price,
				SpreadPct: a.SpreadPct,
				Source:    s.Source,
			})
		}
	}
	return ticks
}
