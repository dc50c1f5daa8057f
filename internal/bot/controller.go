// Package bot runs the polling loop and owns the run state that the control
// surface starts, stops and inspects.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cryptohunter/internal/arbitrage"
	"cryptohunter/internal/model"
	"cryptohunter/internal/notify"
	"cryptohunter/internal/pricefeed"
)

var (
	ErrAlreadyRunning = errors.New("bot: already running")
	ErrAlreadyStopped = errors.New("bot: already stopped")
	ErrClosed         = errors.New("bot: controller closed")
)

// PriceFetcher returns the current prices of the watched assets.
type PriceFetcher interface {
	Fetch(ctx context.Context, assets, exchanges []string) (pricefeed.Result, error)
}

// Notifier receives opportunity and trade events. It must not block.
type Notifier interface {
	Notify(ctx context.Context, event notify.Event)
}

// SnapshotRecorder stores committed market snapshots. It must not block.
type SnapshotRecorder interface {
	Record(snapshot model.MarketSnapshot)
}

// LogSource provides the recent log lines shown in the status.
type LogSource interface {
	Lines() []string
}

// Options configure what the loop watches and how often.
type Options struct {
	Assets       []string
	Exchanges    []string
	ThresholdPct float64
	PollInterval time.Duration
	RecentTrades int
	SummaryEvery int
}

// Deps are the collaborators of a Controller. Notifier, Recorder and Logs
// are optional.
type Deps struct {
	Fetcher   PriceFetcher
	Fees      arbitrage.FeeModel
	Simulator *arbitrage.Simulator
	Ledger    *arbitrage.Ledger
	Notifier  Notifier
	Recorder  SnapshotRecorder
	Logs      LogSource
}

// Status is the externally visible state of the bot.
type Status struct {
	State        model.BotState         `json:"state"`
	CycleCount   int64                  `json:"cycle_count"`
	ThresholdPct float64                `json:"threshold_pct"`
	Assets       []string               `json:"assets"`
	Exchanges    []string               `json:"exchanges"`
	Snapshot     model.MarketSnapshot   `json:"market_snapshot"`
	RecentTrades []model.SimulatedTrade `json:"recent_trades"`
	LogLines     []string               `json:"log_lines"`
	Summary      arbitrage.Summary      `json:"summary"`
}

// Controller is the run/stop state machine around the polling loop. At most
// one loop goroutine exists at a time, and it is the only writer of the cycle
// counter, the snapshot and the ledger. A cycle's trades are staged and
// committed to the ledger together with its snapshot.
type Controller struct {
	logger *slog.Logger
	deps   Deps
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc

	lifecycle sync.Mutex
	closed    bool
	stop      chan struct{}
	done      chan struct{}
	startedAt time.Time

	// commit guards the ledger and snapshot as one published unit.
	commit sync.RWMutex

	running  atomic.Bool
	cycles   atomic.Int64
	snapshot atomic.Pointer[model.MarketSnapshot]

	now func() time.Time
}

// New creates a stopped Controller.
func New(logger *slog.Logger, deps Deps, opts Options) *Controller {
	if opts.RecentTrades <= 0 {
		opts.RecentTrades = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		logger: logger.With("component", "bot"),
		deps:   deps,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
	c.snapshot.Store(&model.MarketSnapshot{Assets: []model.AssetMarket{}})
	return c
}

// Start launches the polling loop. It returns ErrAlreadyRunning when the loop
// is already active.
func (c *Controller) Start() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.running.Load() {
		return ErrAlreadyRunning
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.startedAt = c.now()
	c.running.Store(true)
	go c.loop(c.stop, c.done)

	c.logger.Info("Bot: started",
		"assets", c.opts.Assets,
		"exchanges", c.opts.Exchanges,
		"threshold_pct", c.opts.ThresholdPct,
		"poll_interval", c.opts.PollInterval,
	)
	return nil
}

// Stop asks the loop to exit and waits until it has. A cycle that is already
// fetching prices runs to completion first. It returns ErrAlreadyStopped when
// the loop is not running.
func (c *Controller) Stop() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if !c.running.Load() {
		return ErrAlreadyStopped
	}
	c.halt()

	s := c.deps.Ledger.Summary()
	c.logger.Info("Bot: stopped",
		"runtime", c.now().Sub(c.startedAt),
		"cycles", c.cycles.Load(),
		"total_trades", s.TotalTrades,
		"win_rate_pct", s.WinRatePct,
		"total_net_profit", s.TotalNetProfit,
		"best_trade", s.BestTrade,
		"worst_trade", s.WorstTrade,
	)
	return nil
}

// Close aborts any in-flight work and stops the loop for good.
func (c *Controller) Close() {
	c.cancel()

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.running.Load() {
		c.halt()
	}
	c.closed = true
}

// halt must be called with lifecycle held.
func (c *Controller) halt() {
	close(c.stop)
	<-c.done
	c.running.Store(false)
}

// State reports whether the loop is running.
func (c *Controller) State() model.BotState {
	if c.running.Load() {
		return model.StateRunning
	}
	return model.StateStopped
}

// Status returns a consistent view of the bot without blocking the loop.
func (c *Controller) Status() Status {
	var lines []string
	if c.deps.Logs != nil {
		lines = c.deps.Logs.Lines()
	}
	if lines == nil {
		lines = []string{}
	}

	c.commit.RLock()
	snapshot := *c.snapshot.Load()
	trades := c.deps.Ledger.Recent(c.opts.RecentTrades)
	summary := c.deps.Ledger.Summary()
	c.commit.RUnlock()

	return Status{
		State:        c.State(),
		CycleCount:   c.cycles.Load(),
		ThresholdPct: c.opts.ThresholdPct,
		Assets:       append([]string(nil), c.opts.Assets...),
		Exchanges:    append([]string(nil), c.opts.Exchanges...),
		Snapshot:     snapshot,
		RecentTrades: trades,
		LogLines:     lines,
		Summary:      summary,
	}
}

func (c *Controller) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		default:
		}

		started := time.Now()
		c.runCycle(c.ctx)

		wait := max(c.opts.PollInterval-time.Since(started), 0)
		timer := time.NewTimer(wait)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runCycle performs one fetch, detect and record pass. Failures are logged
// and never end the loop.
func (c *Controller) runCycle(ctx context.Context) {
	cycle := c.cycles.Add(1)
	started := c.now()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Bot: cycle panicked", "cycle", cycle, "panic", fmt.Sprint(r))
		}
	}()

	res, err := c.deps.Fetcher.Fetch(ctx, c.opts.Assets, c.opts.Exchanges)
	if err != nil {
		c.logger.Error("Bot: price fetch failed", "cycle", cycle, "error", err)
		return
	}

	markets := make([]model.AssetMarket, len(res.Sets))
	for i, set := range res.Sets {
		markets[i] = arbitrage.Market(set)
		c.logger.Debug(arbitrage.PriceSummary(markets[i]), "cycle", cycle)
	}

	opportunities := arbitrage.Detect(res.Sets, c.deps.Fees, c.opts.ThresholdPct)
	staged := arbitrage.NewLedger()
	for _, opp := range opportunities {
		c.logger.Info("Bot: opportunity found",
			"cycle", cycle,
			"asset", opp.Asset,
			"buy", opp.BuyExchange,
			"sell", opp.SellExchange,
			"spread_pct", opp.SpreadPct,
		)
		c.notify(ctx, notify.OpportunityEvent(opp, started))
		trade := c.deps.Simulator.Record(staged, opp, cycle, res.Source)
		c.notify(ctx, notify.TradeEvent(trade))
	}

	snapshot := model.MarketSnapshot{
		Cycle:   cycle,
		TakenAt: started,
		Source:  res.Source,
		Assets:  markets,
	}
	c.commit.Lock()
	c.deps.Ledger.AppendAll(staged.All())
	c.snapshot.Store(&snapshot)
	c.commit.Unlock()

	if c.deps.Recorder != nil {
		c.deps.Recorder.Record(snapshot)
	}

	c.logger.Info("Bot: cycle complete",
		"cycle", cycle,
		"source", res.Source,
		"assets", len(markets),
		"opportunities", len(opportunities),
		"duration", c.now().Sub(started),
	)

	if c.opts.SummaryEvery > 0 && cycle%int64(c.opts.SummaryEvery) == 0 {
		s := c.deps.Ledger.Summary()
		c.logger.Info("Bot: performance summary",
			"total_trades", s.TotalTrades,
			"win_rate_pct", s.WinRatePct,
			"total_net_profit", s.TotalNetProfit,
			"best_trade", s.BestTrade,
			"worst_trade", s.WorstTrade,
		)
	}
}

func (c *Controller) notify(ctx context.Context, event notify.Event) {
	if c.deps.Notifier != nil {
		c.deps.Notifier.Notify(ctx, event)
	}
}
