// Package queue implements the single-writer executor in front of the
// marketplace.
//
// Commands are queued by any number of goroutines and applied one at a time
// by a single worker, which stamps each with a monotonic timestamp, journals
// the resulting events, publishes them and replies to the submitter. Reads
// run concurrently with each other under a read lock and never observe a
// half-applied command.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/clock"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/config"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/marketplace"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/notify"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/obs"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/store"
)

var (
	ErrShuttingDown = errors.New("queue: shutting down")
	// ErrUnavailable is returned for every write after the journal failed.
	// The in-memory state may be ahead of the journal, so the process must
	// be restarted to replay from durable state.
	ErrUnavailable = errors.New("queue: executor unavailable after journal failure")
)

// Escrow is implemented by settlers that hold purchase payments until the
// events recording them are durable.
type Escrow interface {
	// Release pays held amounts to their recipients.
	Release(ctx context.Context) error
	// Refund returns held amounts to their payers.
	Refund(ctx context.Context) error
}

// Result is the outcome of one command.
type Result struct {
	Events []notify.Envelope
	At     model.Timestamp
	Err    error
}

// Stats is a point-in-time view of executor counters.
type Stats struct {
	Enqueued   uint64          `json:"enqueued"`
	Processed  uint64          `json:"processed"`
	Backlog    int             `json:"backlog"`
	Depth      int             `json:"depth"`
	Applied    uint64          `json:"applied"`
	Rejected   uint64          `json:"rejected"`
	JournalSeq uint64          `json:"journal_seq"`
	LastTime   model.Timestamp `json:"last_time"`
	Failed     bool            `json:"failed"`
}

// Manager owns the marketplace and applies queued commands to it.
type Manager struct {
	cfg    config.Config
	q      *Queue
	market *marketplace.Marketplace
	log    *store.Log
	hub    *notify.Hub
	clk    clock.Clock
	escrow Escrow
	seq    Sequencer
	cancel context.CancelFunc

	// mu guards market, log and last.
	mu   sync.RWMutex
	last model.Timestamp

	done     chan struct{}
	stopOnce sync.Once
	failed   atomic.Bool
	applied  atomic.Uint64
	rejected atomic.Uint64
}

// NewManager wires an executor around a marketplace already restored from
// log.
func NewManager(cfg config.Config, q *Queue, market *marketplace.Marketplace, log *store.Log, hub *notify.Hub, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	escrow, _ := market.Settler().(Escrow)
	return &Manager{
		cfg:    cfg,
		q:      q,
		market: market,
		log:    log,
		hub:    hub,
		clk:    clk,
		escrow: escrow,
		last:   log.LastTime(),
		done:   make(chan struct{}),
	}
}

// Start begins processing in the background.
func (m *Manager) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.q.Start(ctx, m.cfg.QueueHighWatermark)
	go m.worker(ctx)
}

// Stop cancels the worker. Commands still queued are answered with
// ErrShuttingDown by their submitters.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		close(m.done)
	})
}

// worker applies commands one at a time.
func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-m.q.Out():
			cmd.reply <- m.execute(cmd)
			m.q.MarkProcessed()
		}
	}
}

func (m *Manager) execute(cmd *Command) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed.Load() {
		return Result{Err: ErrUnavailable}
	}
	if err := cmd.ctx.Err(); err != nil {
		return Result{Err: err}
	}
	// Once started, a command runs to completion even if its submitter
	// goes away: a remote settlement may already have moved funds.
	ctx := context.WithoutCancel(cmd.ctx)
	now := m.stampLocked()
	evs, err := cmd.Op(ctx, m.market, marketplace.Call{From: cmd.From, Now: now})
	if err != nil {
		m.rejected.Add(1)
		m.refund(ctx, cmd)
		obs.Logger.Debug("command_rejected", "command_id", cmd.ID, "command", cmd.Name, "caller", cmd.From, "error", err.Error())
		return Result{At: now, Err: err}
	}
	recs, err := m.log.Append(ctx, now, evs)
	if err != nil {
		m.failed.Store(true)
		obs.Logger.Error("journal_append_failed", "command_id", cmd.ID, "command", cmd.Name, "error", err.Error())
		m.refund(ctx, cmd)
		return Result{At: now, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	}
	if m.escrow != nil {
		if err := m.escrow.Release(ctx); err != nil {
			obs.Logger.Error("settlement_payout_failed", "command_id", cmd.ID, "command", cmd.Name, "error", err.Error())
		}
	}
	envs := make([]notify.Envelope, len(recs))
	for i, r := range recs {
		envs[i] = notify.Envelope{Seq: r.Seq, Time: r.Time, Kind: r.Kind, Event: evs[i]}
	}
	m.hub.Publish(envs...)
	m.applied.Add(1)
	obs.Logger.Info("command_applied", "command_id", cmd.ID, "command", cmd.Name, "caller", cmd.From, "events", len(envs), "journal_seq", m.log.Seq(), "at", uint64(now))
	return Result{Events: envs, At: now}
}

// refund returns payments collected by a command whose events were not
// journaled.
func (m *Manager) refund(ctx context.Context, cmd *Command) {
	if m.escrow == nil {
		return
	}
	if err := m.escrow.Refund(ctx); err != nil {
		obs.Logger.Error("settlement_refund_failed", "command_id", cmd.ID, "command", cmd.Name, "error", err.Error())
	}
}

// stampLocked returns the time for the next command, never earlier than the
// previous one even when the wall clock steps back.
func (m *Manager) stampLocked() model.Timestamp {
	now := m.peekLocked()
	m.last = now
	return now
}

func (m *Manager) peekLocked() model.Timestamp {
	var now model.Timestamp
	if s := m.clk.Now().Unix(); s > 0 {
		now = model.Timestamp(s)
	}
	if now < m.last {
		now = m.last
	}
	return now
}

// Submit queues op on behalf of from and waits for its result. A command
// whose ctx is done before the worker reaches it is skipped.
func (m *Manager) Submit(ctx context.Context, name string, from model.Address, op Op) (Result, error) {
	if m.failed.Load() {
		return Result{}, ErrUnavailable
	}
	cmd := &Command{
		ID:    m.seq.Next(),
		Name:  name,
		From:  from,
		Op:    op,
		ctx:   ctx,
		reply: make(chan Result, 1),
	}
	if !m.q.Enqueue(cmd) {
		return Result{}, ErrShuttingDown
	}
	select {
	case res := <-cmd.reply:
		return res, res.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-m.done:
		return Result{}, ErrShuttingDown
	}
}

// View runs fn with shared access to the marketplace and the current
// executor time.
func (m *Manager) View(fn func(market *marketplace.Marketplace, now model.Timestamp)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.market, m.peekLocked())
}

// EnsureBootstrapped makes admin the marketplace owner when nobody owns it
// yet, which is the case only for an empty journal.
func (m *Manager) EnsureBootstrapped(ctx context.Context, admin model.Address) (bool, error) {
	var owned bool
	m.View(func(market *marketplace.Marketplace, _ model.Timestamp) { owned = market.Owner() != "" })
	if owned {
		return false, nil
	}
	_, err := m.Submit(ctx, "bootstrap", admin, func(_ context.Context, market *marketplace.Marketplace, call marketplace.Call) ([]model.Event, error) {
		return market.Bootstrap(call)
	})
	if err != nil {
		return false, err
	}
	obs.Logger.Info("marketplace_bootstrapped", "owner", admin)
	return true, nil
}

// Failed reports whether a journal failure has stopped writes.
func (m *Manager) Failed() bool { return m.failed.Load() }

// BacklogSize returns pending items in the queue.
func (m *Manager) BacklogSize() int { return m.q.BacklogSize() }

// QueueDepth returns backlog plus buffered output items.
func (m *Manager) QueueDepth() int { return m.q.QueueDepth() }

// IsShuttingDown reports whether new commands are rejected.
func (m *Manager) IsShuttingDown() bool { return m.q.IsShuttingDown() }

// CloseIntake disallows future commands.
func (m *Manager) CloseIntake() { m.q.CloseIntake() }

// QueueMetrics exposes the underlying queue metrics.
func (m *Manager) QueueMetrics() (enq, proc uint64, backlog, depth int) {
	return m.q.Metrics()
}

// Stats returns executor counters together with the journal head.
func (m *Manager) Stats() Stats {
	enq, proc, backlog, depth := m.q.Metrics()
	m.mu.RLock()
	seq, last := m.log.Seq(), m.last
	m.mu.RUnlock()
	return Stats{
		Enqueued:   enq,
		Processed:  proc,
		Backlog:    backlog,
		Depth:      depth,
		Applied:    m.applied.Load(),
		Rejected:   m.rejected.Load(),
		JournalSeq: seq,
		LastTime:   last,
		Failed:     m.failed.Load(),
	}
}

// DrainUntil blocks until the queue is fully drained or context is done.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	for {
		enq, proc, backlog, depth := m.q.Metrics()
		if backlog == 0 && depth == 0 && enq == proc {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
