package chat

import (
	"context"
	"sync"

	"github.com/fjod/storefront/internal/events"
	"go.uber.org/zap"
)

// Registry owns one Synchronizer per order, started lazily.
type Registry struct {
	mu       sync.Mutex
	syncs    map[string]*Synchronizer
	ctx      context.Context
	client   HistoryClient
	remover  OrderRemover
	bus      *events.Bus
	logger   *zap.Logger
	settings Settings
}

// NewRegistry binds every synchronizer it starts to ctx.
func NewRegistry(ctx context.Context, client HistoryClient, remover OrderRemover, bus *events.Bus, logger *zap.Logger, settings Settings) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		syncs:    make(map[string]*Synchronizer),
		ctx:      ctx,
		client:   client,
		remover:  remover,
		bus:      bus,
		logger:   logger,
		settings: settings,
	}
}

// Get returns the running synchronizer for orderID, starting one if needed.
// A stopped synchronizer is returned as is so callers see ErrStopped.
func (r *Registry) Get(orderID string) (*Synchronizer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.syncs[orderID]; ok {
		return s, nil
	}
	s := New(orderID, r.client, r.remover, r.bus, r.logger, r.settings)
	if err := s.Start(r.ctx); err != nil {
		return nil, err
	}
	r.syncs[orderID] = s
	return s, nil
}

// Stop ends the chat for orderID; a later Get starts a fresh one.
func (r *Registry) Stop(orderID string) {
	r.mu.Lock()
	s, ok := r.syncs[orderID]
	delete(r.syncs, orderID)
	r.mu.Unlock()

	if ok {
		s.Stop()
	}
}

// Close stops every synchronizer.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Synchronizer, 0, len(r.syncs))
	for _, s := range r.syncs {
		all = append(all, s)
	}
	r.syncs = make(map[string]*Synchronizer)
	r.mu.Unlock()

	for _, s := range all {
		s.Stop()
	}
}
