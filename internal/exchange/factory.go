package exchange

import (
	"fmt"
	"log/slog"

	"cryptohunter/internal/config"
)

// NewPriceSource creates the primary price source named in the upstream configuration.
func NewPriceSource(logger *slog.Logger, up config.UpstreamConfig, fb config.FallbackConfig) (PriceSource, error) {
	switch up.Source {
	case "aggregator", "":
		return NewAggregatorClient(logger, up.BaseURL, up.APIKey, up.Timeout), nil
	case "synthetic":
		return NewFallbackSource(fb), nil
	default:
		return nil, fmt.Errorf("unknown price source: %s", up.Source)
	}
}

// NewFallbackSource creates the synthetic source used when the live source is exhausted.
func NewFallbackSource(fb config.FallbackConfig) *SyntheticSource {
	return NewSyntheticSource(fb.BaselinePrices, fb.DefaultBaseline, fb.MaxDeviationPercent, fb.Seed)
}
