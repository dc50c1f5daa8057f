package exchange

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"sync"

	"cryptohunter/internal/model"
)

// SyntheticSource generates prices around a per-asset baseline. With a fixed
// seed the sequence of generated prices is reproducible.
type SyntheticSource struct {
	baselines       map[string]float64
	defaultBaseline float64
	maxDeviation    float64 // fraction, 0.015 = 1.5%

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSyntheticSource creates a SyntheticSource. maxDeviationPercent bounds the
// perturbation applied to each baseline in both directions.
func NewSyntheticSource(baselines map[string]float64, defaultBaseline, maxDeviationPercent float64, seed uint64) *SyntheticSource {
	b := make(map[string]float64, len(baselines))
	for asset, price := range baselines {
		b[strings.ToLower(asset)] = price
	}
	if defaultBaseline <= 0 {
		defaultBaseline = 100
	}
	return &SyntheticSource{
		baselines:       b,
		defaultBaseline: defaultBaseline,
		maxDeviation:    maxDeviationPercent / 100,
		rng:             rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *SyntheticSource) Name() string {
	return "synthetic"
}

func (s *SyntheticSource) Source() model.DataSource {
	return model.SourceSynthetic
}

// Baseline returns the reference price used for an asset.
func (s *SyntheticSource) Baseline(asset string) float64 {
	if p, ok := s.baselines[strings.ToLower(asset)]; ok && p > 0 {
		return p
	}
	return s.defaultBaseline
}

// Tickers returns one USD ticker per asset and exchange, in request order.
func (s *SyntheticSource) Tickers(_ context.Context, assets, exchanges []string) ([]Ticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tickers := make([]Ticker, 0, len(assets)*len(exchanges))
	for _, asset := range assets {
		base := s.Baseline(asset)
		for _, ex := range exchanges {
			u := (s.rng.Float64()*2 - 1) * s.maxDeviation
			tickers = append(tickers, Ticker{
				Asset:    asset,
				Exchange: ex,
				Target:   "USD",
				PriceUSD: math.Round(base*(1+u)*100) / 100,
			})
		}
	}
	return tickers, nil
}
