package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cryptohunter/internal/model"
)

// AggregatorClient implements PriceSource against a CoinGecko-style ticker
// aggregator. It issues one batched request per call.
type AggregatorClient struct {
	logger  *slog.Logger
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewAggregatorClient creates a new AggregatorClient.
func NewAggregatorClient(logger *slog.Logger, baseURL, apiKey string, timeout time.Duration) *AggregatorClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AggregatorClient{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *AggregatorClient) Name() string {
	return "aggregator"
}

func (a *AggregatorClient) Source() model.DataSource {
	return model.SourceLive
}

type tickersResponse struct {
	Tickers []struct {
		CoinID string `json:"coin_id"`
		Target string `json:"target"`
		Market struct {
			Identifier string `json:"identifier"`
		} `json:"market"`
		ConvertedLast struct {
			USD float64 `json:"usd"`
		} `json:"converted_last"`
	} `json:"tickers"`
}

// Tickers fetches the tickers of all assets on all exchanges in a single request.
func (a *AggregatorClient) Tickers(ctx context.Context, assets, exchanges []string) ([]Ticker, error) {
	q := url.Values{}
	q.Set("coin_ids", strings.Join(assets, ","))
	q.Set("exchange_ids", strings.Join(exchanges, ","))
	q.Set("order", "volume_desc")
	q.Set("depth", "false")
	endpoint := a.baseURL + "/tickers?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("aggregator: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "cryptohunter/1.0")
	if a.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", a.apiKey)
	}

	a.logger.Debug("AggregatorClient: requesting tickers", "assets", len(assets), "exchanges", len(exchanges))
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aggregator: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("aggregator: %w (retry-after %q)", ErrRateLimited, resp.Header.Get("Retry-After"))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("aggregator: %w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("aggregator: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var payload tickersResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("aggregator: %w: %v", ErrMalformed, err)
	}

	tickers := make([]Ticker, 0, len(payload.Tickers))
	for _, t := range payload.Tickers {
		tickers = append(tickers, Ticker{
			Asset:    t.CoinID,
			Exchange: t.Market.Identifier,
			Target:   t.Target,
			PriceUSD: t.ConvertedLast.USD,
		})
	}
	return tickers, nil
}
