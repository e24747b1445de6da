// Package market keeps the registry of configured markets and the current
// book snapshot for each. Rebuilds run the full pipeline (load, resolve,
// encode, walk, aggregate) and publish the result with an atomic pointer
// swap, so readers never block and rebuilds for different markets can run
// in parallel.
package market

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"deepbook-sandbox/internal/domain"
	"deepbook-sandbox/internal/layout"
	"deepbook-sandbox/internal/observability"
	"deepbook-sandbox/internal/orderbook"
	"deepbook-sandbox/internal/queryvm"
	"deepbook-sandbox/internal/snapshot"
	"deepbook-sandbox/internal/storage"
)

// Options configure the service.
type Options struct {
	Builder orderbook.Options
	Archive storage.BookArchiveStore // optional snapshot archive
	Logger  *zap.Logger
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type entry struct {
	market domain.Market
	book   atomic.Pointer[domain.BookSnapshot]
}

// Service implements the book source consumed by the swap engine and the
// API layer.
type Service struct {
	opts     Options
	resolver *layout.Resolver
	order    []string
	entries  map[string]*entry

	subMu sync.Mutex
	subs  map[chan *domain.BookSnapshot]struct{}
}

// NewService registers the given markets with empty books.
func NewService(markets []domain.Market, opts Options) *Service {
	s := &Service{
		opts:     opts.withDefaults(),
		resolver: layout.NewResolver(layout.NewStaticSource()),
		entries:  make(map[string]*entry, len(markets)),
		subs:     make(map[chan *domain.BookSnapshot]struct{}),
	}
	for _, m := range markets {
		s.order = append(s.order, m.ID)
		s.entries[m.ID] = &entry{market: m}
	}
	return s
}

// Markets lists registered markets in configuration order.
func (s *Service) Markets() []domain.Market {
	out := make([]domain.Market, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].market)
	}
	return out
}

// Market returns a registered market by id.
func (s *Service) Market(id string) (domain.Market, bool) {
	e, ok := s.entries[id]
	if !ok {
		return domain.Market{}, false
	}
	return e.market, true
}

// Book returns the current snapshot for a market, if one has been built.
func (s *Service) Book(marketID string) (*domain.BookSnapshot, bool) {
	e, ok := s.entries[marketID]
	if !ok {
		return nil, false
	}
	b := e.book.Load()
	return b, b != nil
}

// Rebuild runs the full pipeline for one market against a loaded object
// set and publishes the new snapshot. A failure leaves the previous
// snapshot serving and never affects other markets.
func (s *Service) Rebuild(ctx context.Context, marketID string, set *snapshot.Set) error {
	e, ok := s.entries[marketID]
	if !ok {
		return fmt.Errorf("unknown market %s", marketID)
	}

	start := s.opts.Now()
	engine := queryvm.NewEngine(set, s.resolver)
	builder := orderbook.NewBuilder(engine, s.opts.Builder)
	nowMs := uint64(start.UTC().UnixMilli())

	snap, err := builder.Build(ctx, e.market, set.Stats().MaxCheckpoint, nowMs)
	elapsed := s.opts.Now().Sub(start).Seconds()
	if err != nil {
		observability.RecordBuild(marketID, "error", elapsed)
		s.opts.Logger.Error("book rebuild failed",
			zap.String("market", marketID), zap.Error(err))
		return err
	}

	e.book.Store(snap)
	observability.RecordBuild(marketID, "ok", elapsed)
	observability.DefaultMetrics.BookLevels.WithLabelValues(marketID, "bid").Set(float64(len(snap.Bids)))
	observability.DefaultMetrics.BookLevels.WithLabelValues(marketID, "ask").Set(float64(len(snap.Asks)))
	observability.DefaultMetrics.BookCheckpoint.WithLabelValues(marketID).Set(float64(snap.Checkpoint))

	s.opts.Logger.Info("book rebuilt",
		zap.String("market", marketID),
		zap.Uint64("checkpoint", snap.Checkpoint),
		zap.Int("bid_levels", len(snap.Bids)),
		zap.Int("ask_levels", len(snap.Asks)),
		zap.Float64("seconds", elapsed))

	if s.opts.Archive != nil {
		if err := s.opts.Archive.InsertSnapshot(ctx, snap); err != nil {
			s.opts.Logger.Warn("snapshot archive failed",
				zap.String("market", marketID), zap.Error(err))
		}
	}

	s.notify(snap)
	return nil
}

// RebuildFromFile loads an export file and rebuilds one market from it.
func (s *Service) RebuildFromFile(ctx context.Context, marketID, path string) error {
	loadStart := s.opts.Now()
	set, err := snapshot.LoadFile(path)
	if err != nil {
		return err
	}
	observability.DefaultMetrics.SnapshotLoadTime.Observe(s.opts.Now().Sub(loadStart).Seconds())
	observability.DefaultMetrics.ObjectsLoaded.WithLabelValues(marketID).Add(float64(set.Len()))
	return s.Rebuild(ctx, marketID, set)
}

// Subscribe registers for snapshot publications. The returned cancel func
// must be called to release the channel. Slow subscribers miss updates
// rather than block a rebuild.
func (s *Service) Subscribe() (<-chan *domain.BookSnapshot, func()) {
	ch := make(chan *domain.BookSnapshot, 4)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		delete(s.subs, ch)
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Service) notify(snap *domain.BookSnapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
