package results

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrStopped is returned by commands sent to an aggregator that is no longer running
var ErrStopped = errors.New("aggregator stopped")

// Fetcher retrieves the campaigns and results of a workspace
type Fetcher interface {
	FetchResults(ctx context.Context, workspaceID string) ([]Campaign, []Result, error)
}

// Snapshot is the last successful fetch of a workspace
type Snapshot struct {
	Campaigns []Campaign `json:"campaigns"`
	Results   []Result   `json:"results"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// Store persists selections and snapshots across restarts.
// Load methods return nil, nil when nothing has been saved.
type Store interface {
	LoadSelection(workspaceID string) (*Selection, error)
	SaveSelection(workspaceID string, sel *Selection) error
	LoadSnapshot(workspaceID string) (*Snapshot, error)
	SaveSnapshot(workspaceID string, snap *Snapshot) error
}

// Observer is notified of fetches and state changes
type Observer interface {
	FetchFinished(workspaceID string, d time.Duration, err error)
	CommandApplied(workspaceID, kind string)
	StateChanged(workspaceID string, st *State)
}

// AggregatorConfig contains aggregator settings
type AggregatorConfig struct {
	PollInterval time.Duration
	FetchTimeout time.Duration
	Store        Store
	Observer     Observer
}

// Aggregator owns the results state of one workspace. A single goroutine
// applies fetch responses and operator commands in arrival order; readers get
// immutable snapshots.
type Aggregator struct {
	workspaceID  string
	fetcher      Fetcher
	store        Store
	observer     Observer
	notifier     *Notifier
	interval     time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger

	cmds    chan command
	fetched chan fetchResult
	done    chan struct{}
	current atomic.Pointer[State]

	// owned by the run loop
	state   *State
	issued  uint64
	applied uint64
	pending int

	inflight sync.WaitGroup
	running  atomic.Bool
}

type command struct {
	id      string
	kind    string
	fetch   bool
	persist bool
	apply   func(st *State) ([]string, error)
	reply   chan error
}

type fetchResult struct {
	seq       uint64
	campaigns []Campaign
	results   []Result
	err       error
	at        time.Time
}

// NewAggregator creates an aggregator for a workspace
func NewAggregator(workspaceID string, fetcher Fetcher, cfg AggregatorConfig, logger *slog.Logger) *Aggregator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}

	a := &Aggregator{
		workspaceID:  workspaceID,
		fetcher:      fetcher,
		store:        cfg.Store,
		observer:     cfg.Observer,
		notifier:     NewNotifier(),
		interval:     cfg.PollInterval,
		fetchTimeout: cfg.FetchTimeout,
		logger:       logger.With("workspace", workspaceID),
		cmds:         make(chan command),
		fetched:      make(chan fetchResult),
		done:         make(chan struct{}),
		state:        NewState(),
	}
	a.current.Store(a.state.Clone())
	return a
}

// WorkspaceID returns the workspace this aggregator watches
func (a *Aggregator) WorkspaceID() string {
	return a.workspaceID
}

// Snapshot returns the latest published state. Callers must not modify it.
func (a *Aggregator) Snapshot() *State {
	return a.current.Load()
}

// Stopped reports whether the run loop has exited. Commands sent afterwards
// fail with ErrStopped.
func (a *Aggregator) Stopped() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Subscribe returns a subscription to redraw signals
func (a *Aggregator) Subscribe() *Subscription {
	return a.notifier.Subscribe()
}

// Run fetches immediately and then on every poll interval until ctx is done.
// In-flight fetches are not cancelled on shutdown; Run waits for them and
// discards their responses.
func (a *Aggregator) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return errors.New("aggregator already running")
	}

	a.restore()
	a.logger.Info("aggregator started", "poll_interval", a.interval)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.startFetch(ctx)

	for {
		select {
		case <-ctx.Done():
			a.stop()
			return nil
		case <-ticker.C:
			a.startFetch(ctx)
		case res := <-a.fetched:
			a.applyFetch(res)
		case cmd := <-a.cmds:
			a.execute(ctx, cmd)
		}
	}
}

// ToggleAll selects or deselects every campaign
func (a *Aggregator) ToggleAll(ctx context.Context, checked bool) error {
	return a.submit(ctx, command{
		kind:    "toggle_all",
		persist: true,
		apply: func(st *State) ([]string, error) {
			st.ToggleAll(checked)
			return []string{TableForms}, nil
		},
	})
}

// ToggleOne selects or deselects a single campaign
func (a *Aggregator) ToggleOne(ctx context.Context, campaignID int64, checked bool) error {
	return a.submit(ctx, command{
		kind:    "toggle_one",
		persist: true,
		apply: func(st *State) ([]string, error) {
			changed, err := st.ToggleOne(campaignID, checked)
			if err != nil || !changed {
				return nil, err
			}
			return []string{TableForms}, nil
		},
	})
}

// Refresh starts a fetch without waiting for the next tick
func (a *Aggregator) Refresh(ctx context.Context) error {
	return a.submit(ctx, command{kind: "refresh", fetch: true})
}

func (a *Aggregator) submit(ctx context.Context, cmd command) error {
	cmd.id = uuid.New().String()
	cmd.reply = make(chan error, 1)

	select {
	case a.cmds <- cmd:
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Aggregator) execute(ctx context.Context, cmd command) {
	logger := a.logger.With("command_id", cmd.id, "kind", cmd.kind)

	if cmd.fetch {
		a.startFetch(ctx)
		cmd.reply <- nil
		return
	}

	redraw, err := cmd.apply(a.state)
	if err != nil {
		logger.Debug("command rejected", "error", err)
		cmd.reply <- err
		return
	}

	if cmd.persist {
		a.saveSelection()
	}
	a.publish()
	for _, table := range redraw {
		a.notifier.Redraw(table)
	}
	if a.observer != nil {
		a.observer.CommandApplied(a.workspaceID, cmd.kind)
	}

	logger.Debug("command applied", "selected", a.state.Selection.Len())
	cmd.reply <- nil
}

func (a *Aggregator) startFetch(ctx context.Context) {
	a.issued++
	seq := a.issued
	a.pending++
	a.state.Loading = true
	a.publish()

	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.fetchTimeout)
		defer cancel()

		start := time.Now()
		campaigns, all, err := a.fetcher.FetchResults(fetchCtx, a.workspaceID)
		if a.observer != nil {
			a.observer.FetchFinished(a.workspaceID, time.Since(start), err)
		}

		res := fetchResult{seq: seq, campaigns: campaigns, results: all, err: err, at: time.Now()}
		select {
		case a.fetched <- res:
		case <-a.done:
		}
	}()
}

func (a *Aggregator) applyFetch(res fetchResult) {
	a.pending--
	a.state.Loading = a.pending > 0

	switch {
	case res.seq <= a.applied:
		a.logger.Debug("dropping out-of-order fetch", "seq", res.seq, "applied", a.applied)
	case res.err != nil:
		a.logger.Warn("failed to fetch results", "seq", res.seq, "error", res.err)
		a.state.LastError = res.err.Error()
	default:
		a.applied = res.seq
		wasEmpty := a.state.Selection.Len() == 0

		a.state.ApplyFetch(res.campaigns, res.results, res.at)
		a.saveSnapshot()
		if wasEmpty && a.state.Selection.Len() > 0 {
			a.saveSelection()
		}

		a.publish()
		a.notifier.Redraw(TableCampaigns)
		a.notifier.Redraw(TableForms)
		if a.observer != nil {
			a.observer.CommandApplied(a.workspaceID, "fetch")
		}
		a.logger.Debug("results applied",
			"seq", res.seq,
			"campaigns", len(a.state.Campaigns),
			"results", len(a.state.All),
			"filtered", len(a.state.Filtered),
		)
		return
	}

	a.publish()
}

func (a *Aggregator) publish() {
	snap := a.state.Clone()
	a.current.Store(snap)
	if a.observer != nil {
		a.observer.StateChanged(a.workspaceID, snap)
	}
}

func (a *Aggregator) restore() {
	if a.store == nil {
		return
	}

	sel, err := a.store.LoadSelection(a.workspaceID)
	if err != nil {
		a.logger.Warn("failed to load selection", "error", err)
	} else if sel != nil {
		a.state.Selection = sel
	}

	snap, err := a.store.LoadSnapshot(a.workspaceID)
	if err != nil {
		a.logger.Warn("failed to load snapshot", "error", err)
	} else if snap != nil {
		wasEmpty := a.state.Selection.Len() == 0
		a.state.ApplyFetch(snap.Campaigns, snap.Results, snap.FetchedAt)
		// the tracker the snapshot filled must survive the next restart too
		if wasEmpty && a.state.Selection.Len() > 0 {
			a.saveSelection()
		}
		a.logger.Info("restored results snapshot", "fetched_at", snap.FetchedAt, "results", len(snap.Results))
	}

	a.publish()
}

func (a *Aggregator) saveSelection() {
	if a.store == nil {
		return
	}
	if err := a.store.SaveSelection(a.workspaceID, a.state.Selection); err != nil {
		a.logger.Error("failed to save selection", "error", err)
	}
}

func (a *Aggregator) saveSnapshot() {
	if a.store == nil {
		return
	}
	snap := &Snapshot{
		Campaigns: a.state.Campaigns,
		Results:   a.state.All,
		FetchedAt: a.state.FetchedAt,
	}
	if err := a.store.SaveSnapshot(a.workspaceID, snap); err != nil {
		a.logger.Error("failed to save snapshot", "error", err)
	}
}

func (a *Aggregator) stop() {
	close(a.done)
	a.notifier.Close()
	a.inflight.Wait()
	a.logger.Info("aggregator stopped")
}
