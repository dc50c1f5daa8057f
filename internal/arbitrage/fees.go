package arbitrage

import "strings"

// FeeModel holds taker fee percentages per exchange. Exchanges without an
// entry pay DefaultPercent.
type FeeModel struct {
	DefaultPercent float64
	PerExchange    map[string]float64
}

// NewFeeModel creates a FeeModel; exchange names are matched case-insensitively.
func NewFeeModel(defaultPercent float64, perExchange map[string]float64) FeeModel {
	m := make(map[string]float64, len(perExchange))
	for name, pct := range perExchange {
		m[strings.ToLower(name)] = pct
	}
	return FeeModel{DefaultPercent: defaultPercent, PerExchange: m}
}

// Rate returns the fee of an exchange as a fraction (0.001 for 0.1%).
func (f FeeModel) Rate(exchange string) float64 {
	if pct, ok := f.PerExchange[strings.ToLower(exchange)]; ok {
		return pct / 100
	}
	return f.DefaultPercent / 100
}
