package layout

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/branchcanvas/engine/internal/graph"
	"github.com/branchcanvas/engine/pkg/logger"
)

// Coordinator recomputes node positions whenever the graph's structure
// changes. Requests are debounced so a burst of mutations produces one run,
// and runs never overlap: a request arriving while a run is in flight marks
// it stale and schedules a follow-up instead of racing position writes.
type Coordinator struct {
	store    *graph.Store
	layouter Layouter
	debounce time.Duration

	mu      sync.Mutex
	opts    Options
	timer   *time.Timer
	running bool
	pending bool

	// onFit is invoked after positions are applied, with the revision the
	// placement belongs to. The websocket hub uses it to push the fitted
	// snapshot to clients.
	onFit func(rev uint64)
}

func NewCoordinator(store *graph.Store, layouter Layouter, debounce time.Duration, opts Options) *Coordinator {
	if debounce <= 0 {
		debounce = 150 * time.Millisecond
	}
	return &Coordinator{
		store:    store,
		layouter: layouter,
		debounce: debounce,
		opts:     opts.withDefaults(),
	}
}

// OnFit registers the fit-view callback. Must be called before the first
// Request.
func (c *Coordinator) OnFit(fn func(rev uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFit = fn
}

// SetOptions changes the layout options used by subsequent runs and
// schedules a re-layout so the canvas reflects them.
func (c *Coordinator) SetOptions(opts Options) {
	c.mu.Lock()
	c.opts = opts.withDefaults()
	c.mu.Unlock()
	c.Request()
}

// Options returns the options currently in effect.
func (c *Coordinator) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// Request schedules a debounced re-layout. Safe to call from any goroutine.
func (c *Coordinator) Request() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, c.kick)
}

// InitialPass runs layout once after a delay, giving the rendering layer
// time to compute intrinsic node sizes after first mount.
func (c *Coordinator) InitialPass(delay time.Duration) {
	time.AfterFunc(delay, c.kick)
}

// RunNow performs a synchronous layout pass with explicit options,
// bypassing the debounce. Used by the explicit re-layout endpoint.
func (c *Coordinator) RunNow(ctx context.Context, opts Options) error {
	c.mu.Lock()
	c.opts = opts.withDefaults()
	c.mu.Unlock()
	return c.run(ctx)
}

func (c *Coordinator) kick() {
	c.mu.Lock()
	if c.running {
		c.pending = true
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go func() {
		for {
			if err := c.run(context.Background()); err != nil {
				logger.L().Warn("layout pass failed", zap.Error(err))
			}
			c.mu.Lock()
			if !c.pending {
				c.running = false
				c.mu.Unlock()
				return
			}
			c.pending = false
			c.mu.Unlock()
		}
	}()
}

func (c *Coordinator) run(ctx context.Context) error {
	nodes, edges, rev := c.store.Snapshot()
	if len(nodes) == 0 {
		return nil
	}

	c.mu.Lock()
	opts := c.opts
	onFit := c.onFit
	c.mu.Unlock()

	placements, err := c.layouter.Layout(ctx, nodes, edges, opts)
	if err != nil {
		return err
	}

	// Superseded placements are dropped atomically: either the graph (and
	// its revision) is unchanged since the snapshot and the placement
	// lands, or another writer got there first and the mutation's own
	// Request covers the new shape.
	if !c.store.ApplyPositionsIfRev(placements, rev) {
		return nil
	}
	if onFit != nil {
		onFit(c.store.Rev())
	}
	return nil
}
