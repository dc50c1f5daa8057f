package arbitrage

import (
	"fmt"
	"sort"
	"strings"

	"cryptohunter/internal/model"
)

// Spread is the cheapest and most expensive quote of one asset.
type Spread struct {
	Asset        string
	BuyExchange  string
	BuyPrice     float64
	SellExchange string
	SellPrice    float64
	SpreadPct    float64
}

// Evaluate finds the minimum and maximum price of an asset. Ties resolve to
// the exchange encountered first in the set. ok is false when the set has
// fewer than two prices or every exchange quotes the same price.
func Evaluate(set model.AssetTickerSet) (Spread, bool) {
	if len(set.Prices) < 2 {
		return Spread{Asset: set.Asset}, false
	}

	minIdx, maxIdx := 0, 0
	for i, p := range set.Prices {
		if p.Price < set.Prices[minIdx].Price {
			minIdx = i
		}
		if p.Price > set.Prices[maxIdx].Price {
			maxIdx = i
		}
	}
	if minIdx == maxIdx {
		return Spread{Asset: set.Asset}, false
	}

	buy, sell := set.Prices[minIdx], set.Prices[maxIdx]
	return Spread{
		Asset:        set.Asset,
		BuyExchange:  buy.Exchange,
		BuyPrice:     buy.Price,
		SellExchange: sell.Exchange,
		SellPrice:    sell.Price,
		SpreadPct:    (sell.Price - buy.Price) / buy.Price * 100,
	}, true
}

// Detect returns the viable opportunities in sets, in input order. An asset is
// viable when its spread is at least thresholdPct. Fees do not affect
// viability; they only fill in the informational NetSpreadPct.
func Detect(sets []model.AssetTickerSet, fees FeeModel, thresholdPct float64) []model.Opportunity {
	var opportunities []model.Opportunity
	for _, set := range sets {
		s, ok := Evaluate(set)
		if !ok || s.SpreadPct < thresholdPct {
			continue
		}
		opportunities = append(opportunities, model.Opportunity{
			Asset:        s.Asset,
			BuyExchange:  s.BuyExchange,
			BuyPrice:     s.BuyPrice,
			SellExchange: s.SellExchange,
			SellPrice:    s.SellPrice,
			SpreadPct:    s.SpreadPct,
			NetSpreadPct: s.SpreadPct - (fees.Rate(s.BuyExchange)+fees.Rate(s.SellExchange))*100,
		})
	}
	return opportunities
}

// Market builds the snapshot entry of an asset.
func Market(set model.AssetTickerSet) model.AssetMarket {
	s, _ := Evaluate(set)
	prices := make([]model.ExchangePrice, len(set.Prices))
	copy(prices, set.Prices)
	return model.AssetMarket{Asset: set.Asset, Prices: prices, SpreadPct: s.SpreadPct}
}

// PriceSummary renders an asset's prices, cheapest first, for logs and alerts.
func PriceSummary(m model.AssetMarket) string {
	if len(m.Prices) == 0 {
		return fmt.Sprintf("no prices for %s", m.Asset)
	}
	prices := make([]model.ExchangePrice, len(m.Prices))
	copy(prices, m.Prices)
	sort.SliceStable(prices, func(i, j int) bool { return prices[i].Price < prices[j].Price })

	var b strings.Builder
	fmt.Fprintf(&b, "%s prices:", strings.ToUpper(m.Asset))
	for _, p := range prices {
		fmt.Fprintf(&b, " %s=$%.2f", p.Exchange, p.Price)
	}
	fmt.Fprintf(&b, " spread=%.3f%%", m.SpreadPct)
	return b.String()
}
