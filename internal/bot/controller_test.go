package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cryptohunter/internal/arbitrage"
	"cryptohunter/internal/model"
	"cryptohunter/internal/notify"
	"cryptohunter/internal/pricefeed"
)

// MockFetcher is a mock type for the PriceFetcher interface
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, assets, exchanges []string) (pricefeed.Result, error) {
	args := m.Called(ctx, assets, exchanges)
	return args.Get(0).(pricefeed.Result), args.Error(1)
}

// funcFetcher runs fn for every fetch and tracks how many run at once.
type funcFetcher struct {
	fn       func(ctx context.Context) (pricefeed.Result, error)
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *funcFetcher) Fetch(ctx context.Context, _, _ []string) (pricefeed.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	return f.fn(ctx)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) Events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

type recordingRecorder struct {
	mu        sync.Mutex
	snapshots []model.MarketSnapshot
}

func (r *recordingRecorder) Record(s model.MarketSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

type staticLines []string

func (s staticLines) Lines() []string { return s }

var (
	testAssets    = []string{"bitcoin"}
	testExchanges = []string{"binance", "kraken"}
)

func btcResult(source model.DataSource) pricefeed.Result {
	return pricefeed.Result{
		Sets: []model.AssetTickerSet{{
			Asset: "bitcoin",
			Prices: []model.ExchangePrice{
				{Exchange: "binance", Price: 100.00},
				{Exchange: "kraken", Price: 100.90},
			},
		}},
		Source:   source,
		Attempts: 1,
	}
}

type harness struct {
	ctrl     *Controller
	ledger   *arbitrage.Ledger
	notifier *recordingNotifier
	recorder *recordingRecorder
}

func newHarness(fetcher PriceFetcher, threshold float64, interval time.Duration) *harness {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	fees := arbitrage.NewFeeModel(0.2, map[string]float64{"binance": 0.1, "kraken": 0.1})
	ledger := arbitrage.NewLedger()
	h := &harness{
		ledger:   ledger,
		notifier: &recordingNotifier{},
		recorder: &recordingRecorder{},
	}
	h.ctrl = New(logger, Deps{
		Fetcher:   fetcher,
		Fees:      fees,
		Simulator: arbitrage.NewSimulator(logger, fees, 1),
		Ledger:    ledger,
		Notifier:  h.notifier,
		Recorder:  h.recorder,
		Logs:      staticLines{"line one"},
	}, Options{
		Assets:       testAssets,
		Exchanges:    testExchanges,
		ThresholdPct: threshold,
		PollInterval: interval,
		SummaryEvery: 1,
	})
	return h
}

func TestController_InitialStatus(t *testing.T) {
	h := newHarness(new(MockFetcher), 0.5, time.Hour)
	defer h.ctrl.Close()

	s := h.ctrl.Status()
	assert.Equal(t, model.StateStopped, s.State)
	assert.Zero(t, s.CycleCount)
	assert.Equal(t, 0.5, s.ThresholdPct)
	assert.Equal(t, testAssets, s.Assets)
	assert.Equal(t, testExchanges, s.Exchanges)
	assert.Empty(t, s.Snapshot.Assets)
	assert.Empty(t, s.RecentTrades)
	assert.Equal(t, []string{"line one"}, s.LogLines)
}

func TestController_OpportunityIsTraded(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, testAssets, testExchanges).Return(btcResult(model.SourceLive), nil)

	h := newHarness(fetcher, 0.5, time.Hour)
	defer h.ctrl.Close()

	require.NoError(t, h.ctrl.Start())
	require.Eventually(t, func() bool { return h.ledger.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, h.ctrl.Stop())

	s := h.ctrl.Status()
	assert.Equal(t, model.StateStopped, s.State)
	assert.Equal(t, int64(1), s.CycleCount)

	require.Len(t, s.RecentTrades, 1)
	trade := s.RecentTrades[0]
	assert.Equal(t, "binance", trade.BuyExchange)
	assert.Equal(t, "kraken", trade.SellExchange)
	assert.InDelta(t, 0.90, trade.GrossProfit, 1e-9)
	assert.InDelta(t, 0.6991, trade.NetProfit, 1e-9)
	assert.Equal(t, model.SourceLive, trade.Source)
	assert.Equal(t, int64(1), trade.Cycle)

	assert.Equal(t, int64(1), s.Snapshot.Cycle)
	require.Len(t, s.Snapshot.Assets, 1)
	assert.InDelta(t, 0.9, s.Snapshot.Assets[0].SpreadPct, 1e-9)
	assert.Equal(t, 1, s.Summary.TotalTrades)

	events := h.notifier.Events()
	require.Len(t, events, 2)
	assert.Equal(t, notify.KindOpportunity, events[0].Kind)
	assert.Equal(t, notify.KindTrade, events[1].Kind)

	h.recorder.mu.Lock()
	assert.Len(t, h.recorder.snapshots, 1)
	h.recorder.mu.Unlock()
}

func TestController_BelowThresholdLeavesLedgerUnchanged(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, testAssets, testExchanges).Return(btcResult(model.SourceLive), nil)

	h := newHarness(fetcher, 1.0, time.Hour)
	defer h.ctrl.Close()

	require.NoError(t, h.ctrl.Start())
	require.Eventually(t, func() bool { return h.ctrl.Status().Snapshot.Cycle == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, h.ctrl.Stop())

	assert.Zero(t, h.ledger.Len())
	assert.Empty(t, h.notifier.Events())
	assert.Len(t, h.ctrl.Status().Snapshot.Assets, 1)
}

func TestController_DoubleStartRunsOneLoop(t *testing.T) {
	fetcher := &funcFetcher{fn: func(context.Context) (pricefeed.Result, error) {
		time.Sleep(time.Millisecond)
		return btcResult(model.SourceSynthetic), nil
	}}
	h := newHarness(fetcher, 0.5, time.Millisecond)
	defer h.ctrl.Close()

	require.NoError(t, h.ctrl.Start())
	assert.ErrorIs(t, h.ctrl.Start(), ErrAlreadyRunning)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.ctrl.Start()
			_ = h.ctrl.Status()
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return h.ctrl.Status().CycleCount >= 5 }, 2*time.Second, time.Millisecond)
	require.NoError(t, h.ctrl.Stop())
	assert.Equal(t, int32(1), fetcher.maxSeen.Load())
}

func TestController_StopIsFinal(t *testing.T) {
	fetcher := &funcFetcher{fn: func(context.Context) (pricefeed.Result, error) {
		return btcResult(model.SourceLive), nil
	}}
	h := newHarness(fetcher, 0.5, time.Millisecond)
	defer h.ctrl.Close()

	assert.ErrorIs(t, h.ctrl.Stop(), ErrAlreadyStopped)

	require.NoError(t, h.ctrl.Start())
	require.Eventually(t, func() bool { return h.ctrl.Status().CycleCount >= 3 }, 2*time.Second, time.Millisecond)
	require.NoError(t, h.ctrl.Stop())

	s := h.ctrl.Status()
	assert.Equal(t, model.StateStopped, s.State)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, s.CycleCount, h.ctrl.Status().CycleCount)
	assert.Equal(t, s.CycleCount, int64(h.ledger.Len()))

	assert.ErrorIs(t, h.ctrl.Stop(), ErrAlreadyStopped)

	require.NoError(t, h.ctrl.Start(), "a stopped bot can be restarted")
	require.Eventually(t, func() bool { return h.ctrl.Status().CycleCount > s.CycleCount }, 2*time.Second, time.Millisecond)
	require.NoError(t, h.ctrl.Stop())
}

func TestController_StopWaitsForInFlightFetch(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	fetcher := &funcFetcher{fn: func(ctx context.Context) (pricefeed.Result, error) {
		close(entered)
		<-release
		if ctx.Err() != nil {
			return pricefeed.Result{}, ctx.Err()
		}
		return btcResult(model.SourceLive), nil
	}}
	h := newHarness(fetcher, 0.5, time.Hour)
	defer h.ctrl.Close()

	require.NoError(t, h.ctrl.Start())
	<-entered

	stopped := make(chan error)
	go func() { stopped <- h.ctrl.Stop() }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a fetch was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, model.StateRunning, h.ctrl.Status().State)

	close(release)
	require.NoError(t, <-stopped)

	s := h.ctrl.Status()
	assert.Equal(t, model.StateStopped, s.State)
	assert.Equal(t, int64(1), s.Snapshot.Cycle, "the in-flight cycle is committed")
	assert.Equal(t, 1, h.ledger.Len())
}

func TestController_FetchErrorsDoNotStopTheLoop(t *testing.T) {
	var calls atomic.Int32
	fetcher := &funcFetcher{fn: func(context.Context) (pricefeed.Result, error) {
		if calls.Add(1)%2 == 1 {
			return pricefeed.Result{}, errors.New("malformed upstream response")
		}
		return btcResult(model.SourceLive), nil
	}}
	h := newHarness(fetcher, 0.5, time.Millisecond)
	defer h.ctrl.Close()

	require.NoError(t, h.ctrl.Start())
	require.Eventually(t, func() bool { return h.ledger.Len() >= 2 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, model.StateRunning, h.ctrl.Status().State)
	require.NoError(t, h.ctrl.Stop())

	s := h.ctrl.Status()
	assert.Greater(t, s.CycleCount, int64(h.ledger.Len()))
}

func TestController_RecoversFromPanics(t *testing.T) {
	var calls atomic.Int32
	fetcher := &funcFetcher{fn: func(context.Context) (pricefeed.Result, error) {
		if calls.Add(1) == 1 {
			panic("unexpected nil")
		}
		return btcResult(model.SourceLive), nil
	}}
	h := newHarness(fetcher, 0.5, time.Millisecond)
	defer h.ctrl.Close()

	require.NoError(t, h.ctrl.Start())
	require.Eventually(t, func() bool { return h.ledger.Len() >= 1 }, 2*time.Second, time.Millisecond)
	require.NoError(t, h.ctrl.Stop())
}

func TestController_CloseAbortsFetch(t *testing.T) {
	entered := make(chan struct{})
	fetcher := &funcFetcher{fn: func(ctx context.Context) (pricefeed.Result, error) {
		close(entered)
		<-ctx.Done()
		return pricefeed.Result{}, ctx.Err()
	}}
	h := newHarness(fetcher, 0.5, time.Hour)

	require.NoError(t, h.ctrl.Start())
	<-entered

	closed := make(chan struct{})
	go func() {
		h.ctrl.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not abort the fetch")
	}

	assert.Equal(t, model.StateStopped, h.ctrl.Status().State)
	assert.ErrorIs(t, h.ctrl.Start(), ErrClosed)
	assert.Zero(t, h.ledger.Len())
}

// blockingNotifier holds the first trade event until released.
type blockingNotifier struct {
	blocked chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingNotifier) Notify(_ context.Context, event notify.Event) {
	if event.Kind != notify.KindTrade {
		return
	}
	b.once.Do(func() {
		close(b.blocked)
		<-b.release
	})
}

func TestController_TradesPublishedWithSnapshot(t *testing.T) {
	twoAssets := pricefeed.Result{
		Sets: []model.AssetTickerSet{
			btcResult(model.SourceLive).Sets[0],
			{Asset: "ethereum", Prices: []model.ExchangePrice{
				{Exchange: "binance", Price: 2000},
				{Exchange: "kraken", Price: 2030},
			}},
		},
		Source: model.SourceLive,
	}
	fetcher := &funcFetcher{fn: func(context.Context) (pricefeed.Result, error) { return twoAssets, nil }}

	h := newHarness(fetcher, 0.5, time.Hour)
	notifier := &blockingNotifier{blocked: make(chan struct{}), release: make(chan struct{})}
	h.ctrl.deps.Notifier = notifier
	defer h.ctrl.Close()

	require.NoError(t, h.ctrl.Start())
	select {
	case <-notifier.blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("no trade event")
	}

	mid := h.ctrl.Status()
	assert.Equal(t, int64(1), mid.CycleCount)
	assert.Equal(t, int64(0), mid.Snapshot.Cycle)
	assert.Empty(t, mid.Snapshot.Assets)
	assert.Empty(t, mid.RecentTrades, "trades of an uncommitted cycle must not be visible")
	assert.Zero(t, mid.Summary.TotalTrades)

	close(notifier.release)
	require.Eventually(t, func() bool { return h.ctrl.Status().Snapshot.Cycle == 1 }, 2*time.Second, time.Millisecond)

	s := h.ctrl.Status()
	require.Len(t, s.RecentTrades, 2)
	assert.Len(t, s.Snapshot.Assets, 2)
	for _, trade := range s.RecentTrades {
		assert.Equal(t, s.Snapshot.Cycle, trade.Cycle)
	}
	require.NoError(t, h.ctrl.Stop())
}

func TestController_StopReportsPerformance(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, testAssets, testExchanges).Return(btcResult(model.SourceLive), nil)

	h := newHarness(fetcher, 0.5, time.Hour)
	var buf bytes.Buffer
	h.ctrl.logger = slog.New(slog.NewJSONHandler(&buf, nil))
	defer h.ctrl.Close()

	require.NoError(t, h.ctrl.Start())
	require.Eventually(t, func() bool { return h.ctrl.Status().Summary.TotalTrades == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, h.ctrl.Stop())

	var stopped map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var record map[string]any
		require.NoError(t, json.Unmarshal(line, &record))
		if record["msg"] == "Bot: stopped" {
			stopped = record
		}
	}
	require.NotNil(t, stopped)
	assert.EqualValues(t, 1, stopped["cycles"])
	assert.EqualValues(t, 1, stopped["total_trades"])
	assert.InDelta(t, 0.6991, stopped["total_net_profit"], 1e-9)
	assert.Contains(t, stopped, "runtime")
	assert.Contains(t, stopped, "win_rate_pct")
}
