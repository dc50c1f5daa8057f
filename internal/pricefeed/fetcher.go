// Package pricefeed turns raw upstream tickers into per-asset price sets. It
// retries rate-limited or unreachable upstreams with exponential backoff and
// falls back to synthetic prices once the attempts are exhausted.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cryptohunter/internal/exchange"
	"cryptohunter/internal/model"
)

var (
	ErrNoAssets    = errors.New("pricefeed: no assets requested")
	ErrNoExchanges = errors.New("pricefeed: no exchanges requested")
)

// defaultAliases maps exchange names to the identifiers the aggregator uses.
var defaultAliases = map[string]string{
	"coinbase":          "gdax",
	"coinbase-exchange": "gdax",
	"huobi":             "huobi",
	"htx":               "huobi",
	"bybit":             "bybit_spot",
	"okx":               "okex",
	"mexc":              "mxc",
}

// Options tune the retry policy and normalization.
type Options struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	MinCallInterval time.Duration
	// QuoteTargets restricts accepted quote symbols; empty accepts all.
	QuoteTargets []string
	// Aliases override or extend the built-in exchange id mapping.
	Aliases map[string]string
}

// Result is the outcome of one Fetch. Source tells live data from synthetic.
type Result struct {
	Sets     []model.AssetTickerSet
	Source   model.DataSource
	Attempts int
}

// Fetcher wraps a primary PriceSource with throttling, retries and a fallback.
type Fetcher struct {
	logger   *slog.Logger
	primary  exchange.PriceSource
	fallback exchange.PriceSource
	limiter  *rate.Limiter
	opts     Options
	aliases  map[string]string
	targets  map[string]bool

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher.
func New(logger *slog.Logger, primary, fallback exchange.PriceSource, opts Options) *Fetcher {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	limit := rate.Inf
	if opts.MinCallInterval > 0 {
		limit = rate.Every(opts.MinCallInterval)
	}

	aliases := make(map[string]string, len(defaultAliases)+len(opts.Aliases))
	for k, v := range defaultAliases {
		aliases[k] = v
	}
	for k, v := range opts.Aliases {
		aliases[strings.ToLower(k)] = strings.ToLower(v)
	}

	targets := make(map[string]bool, len(opts.QuoteTargets))
	for _, t := range opts.QuoteTargets {
		targets[strings.ToUpper(t)] = true
	}

	return &Fetcher{
		logger:   logger.With("component", "pricefeed"),
		primary:  primary,
		fallback: fallback,
		limiter:  rate.NewLimiter(limit, 1),
		opts:     opts,
		aliases:  aliases,
		targets:  targets,
		sleep:    sleepContext,
	}
}

// Fetch returns the current prices of assets on exchanges using one upstream
// call per attempt. Rate-limit and availability errors are retried with a
// delay of BackoffBase*2^attempt; when every attempt fails that way the result
// comes from the fallback source and is tagged synthetic. Any other upstream
// error is returned.
func (f *Fetcher) Fetch(ctx context.Context, assets, exchanges []string) (Result, error) {
	if len(assets) == 0 {
		return Result{}, ErrNoAssets
	}
	if len(exchanges) == 0 {
		return Result{}, ErrNoExchanges
	}

	upstreamIDs, labels := f.resolve(exchanges)
	source := f.primary.Source()

	var lastErr error
	for attempt := 0; attempt < f.opts.MaxAttempts; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return Result{}, fmt.Errorf("pricefeed: throttle: %w", err)
		}

		tickers, err := f.primary.Tickers(ctx, assets, upstreamIDs)
		if err == nil {
			sets := f.normalize(tickers, assets, labels, source == model.SourceLive)
			f.logger.Info("prices fetched",
				"source", f.primary.Name(),
				"assets", len(sets),
				"attempts", attempt+1,
			)
			return Result{Sets: sets, Source: source, Attempts: attempt + 1}, nil
		}
		if !isTransient(err) {
			return Result{Attempts: attempt + 1}, err
		}

		lastErr = err
		if attempt == f.opts.MaxAttempts-1 {
			break
		}
		delay := backoffDelay(f.opts.BackoffBase, attempt)
		f.logger.Warn("upstream failed, backing off",
			"attempt", attempt+1,
			"max_attempts", f.opts.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		if err := f.sleep(ctx, delay); err != nil {
			return Result{}, fmt.Errorf("pricefeed: backoff: %w", err)
		}
	}

	f.logger.Warn("upstream exhausted, using synthetic prices",
		"attempts", f.opts.MaxAttempts,
		"error", lastErr,
	)
	tickers, err := f.fallback.Tickers(ctx, assets, exchanges)
	if err != nil {
		return Result{}, fmt.Errorf("pricefeed: fallback: %w", err)
	}
	return Result{
		Sets:     f.normalize(tickers, assets, labels, false),
		Source:   model.SourceSynthetic,
		Attempts: f.opts.MaxAttempts,
	}, nil
}

// maxBackoffDelay caps a single retry delay.
const maxBackoffDelay = 10 * time.Minute

// backoffDelay returns base*2^attempt, capped at maxBackoffDelay.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt && delay < maxBackoffDelay; i++ {
		delay *= 2
	}
	return min(delay, maxBackoffDelay)
}

func isTransient(err error) bool {
	return errors.Is(err, exchange.ErrRateLimited) || errors.Is(err, exchange.ErrUnavailable)
}

// resolve returns the upstream ids to request and a lookup from lowercased
// upstream id or configured name to the configured name.
func (f *Fetcher) resolve(exchanges []string) ([]string, map[string]string) {
	labels := make(map[string]string, len(exchanges)*2)
	var ids []string
	for _, ex := range exchanges {
		name := strings.ToLower(ex)
		id, ok := f.aliases[name]
		if !ok {
			id = name
		}
		if _, dup := labels[id]; !dup {
			labels[id] = ex
			ids = append(ids, id)
		}
		if _, dup := labels[name]; !dup {
			labels[name] = ex
		}
	}
	return ids, labels
}

// normalize keeps the first valid ticker per asset and target exchange.
// Assets come out in request order, exchanges in the order first seen.
// Quote targets are only enforced on live tickers; synthetic ones are
// generated in USD whatever the configured targets.
func (f *Fetcher) normalize(tickers []exchange.Ticker, assets []string, labels map[string]string, filterTargets bool) []model.AssetTickerSet {
	index := make(map[string]int, len(assets))
	sets := make([]model.AssetTickerSet, len(assets))
	for i, a := range assets {
		index[strings.ToLower(a)] = i
		sets[i].Asset = a
	}

	for _, t := range tickers {
		i, ok := index[strings.ToLower(t.Asset)]
		if !ok {
			continue
		}
		label, ok := labels[strings.ToLower(t.Exchange)]
		if !ok {
			continue
		}
		if t.PriceUSD <= 0 || math.IsNaN(t.PriceUSD) || math.IsInf(t.PriceUSD, 0) {
			continue
		}
		if filterTargets && len(f.targets) > 0 && !f.targets[strings.ToUpper(t.Target)] {
			continue
		}
		if _, seen := sets[i].Price(label); seen {
			continue
		}
		sets[i].Prices = append(sets[i].Prices, model.ExchangePrice{Exchange: label, Price: t.PriceUSD})
	}

	out := make([]model.AssetTickerSet, 0, len(sets))
	for _, s := range sets {
		if len(s.Prices) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
