package exchange

import (
	"context"
	"errors"

	"cryptohunter/internal/model"
)

var (
	// ErrRateLimited is returned when the upstream answers with HTTP 429.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrUnavailable is returned when the upstream cannot be reached or fails server-side.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrMalformed is returned when the upstream response cannot be decoded.
	ErrMalformed = errors.New("upstream response malformed")
)

// Ticker is one raw per-exchange quote as returned by a price source.
type Ticker struct {
	Asset    string
	Exchange string // upstream market identifier
	Target   string // quote currency symbol
	PriceUSD float64
}

// PriceSource defines the standard interface for all upstream price sources.
// A single Tickers call covers every requested asset and exchange.
type PriceSource interface {
	Name() string
	// Source tells whether the prices are observed or generated.
	Source() model.DataSource
	Tickers(ctx context.Context, assets, exchanges []string) ([]Ticker, error)
}
