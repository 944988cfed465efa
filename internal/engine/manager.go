package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/branchcanvas/engine/internal/completion"
	"github.com/branchcanvas/engine/internal/graph"
	"github.com/branchcanvas/engine/internal/layout"
	"github.com/branchcanvas/engine/internal/repository"
)

// initialLayoutDelay gives the rendering layer time to report intrinsic node
// sizes before the first layout pass.
const initialLayoutDelay = 100 * time.Millisecond

// engineEntry gates access to a user's engine until hydration finished.
// ready is closed once eng/err are final, so concurrent first requests for
// the same user (a page load fires the canvas fetch and the websocket
// upgrade together) all wait for the one Load instead of observing an empty
// canvas.
type engineEntry struct {
	ready chan struct{}
	eng   *Engine
	err   error
}

// Manager lazily builds one engine (store + layout coordinator) per user and
// hydrates it from persistence on first access.
type Manager struct {
	convs    repository.ConversationRepository
	msgs     repository.MessageRepository
	gateway  completion.Gateway
	titles   TitleEnqueuer
	layouter layout.Layouter
	debounce time.Duration
	opts     layout.Options
	onFit    func(userID uuid.UUID, rev uint64)

	mu      sync.Mutex
	engines map[uuid.UUID]*engineEntry
}

func NewManager(
	convs repository.ConversationRepository,
	msgs repository.MessageRepository,
	gateway completion.Gateway,
	titles TitleEnqueuer,
	layouter layout.Layouter,
	debounce time.Duration,
	opts layout.Options,
) *Manager {
	return &Manager{
		convs:    convs,
		msgs:     msgs,
		gateway:  gateway,
		titles:   titles,
		layouter: layouter,
		debounce: debounce,
		opts:     opts,
		engines:  map[uuid.UUID]*engineEntry{},
	}
}

// OnFit registers a callback invoked after any user's canvas is re-fitted.
func (m *Manager) OnFit(fn func(userID uuid.UUID, rev uint64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFit = fn
}

// Peek returns the user's engine only if it already exists and is hydrated.
func (m *Manager) Peek(userID uuid.UUID) (*Engine, bool) {
	m.mu.Lock()
	entry, ok := m.engines[userID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-entry.ready:
	default:
		return nil, false
	}
	if entry.err != nil {
		return nil, false
	}
	return entry.eng, true
}

// ForUser returns the user's engine, creating and loading it on first use.
// Exactly one caller performs the load; the rest wait for it.
func (m *Manager) ForUser(ctx context.Context, userID uuid.UUID) (*Engine, error) {
	m.mu.Lock()
	if entry, ok := m.engines[userID]; ok {
		m.mu.Unlock()
		select {
		case <-entry.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return entry.eng, entry.err
	}

	entry := &engineEntry{ready: make(chan struct{})}
	m.engines[userID] = entry
	onFit := m.onFit
	m.mu.Unlock()

	store := graph.NewStore()
	coord := layout.NewCoordinator(store, m.layouter, m.debounce, m.opts)
	if onFit != nil {
		coord.OnFit(func(rev uint64) { onFit(userID, rev) })
	}
	eng := New(userID, store, coord, m.convs, m.msgs, m.gateway, m.titles)

	if err := eng.Load(ctx); err != nil {
		entry.err = err
		close(entry.ready)
		// drop the failed entry so a later request retries the load
		m.mu.Lock()
		delete(m.engines, userID)
		m.mu.Unlock()
		return nil, err
	}

	entry.eng = eng
	close(entry.ready)
	coord.InitialPass(initialLayoutDelay)
	return eng, nil
}
