package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/binder/sorting"
	"github.com/ramonehamilton/binder-companion/internal/events"
	"github.com/ramonehamilton/binder-companion/internal/metrics"
	"github.com/ramonehamilton/binder-companion/internal/storage/models"
	"github.com/ramonehamilton/binder-companion/internal/storage/repository"
)

// Config configures the catalog service.
type Config struct {
	Source Source                       // nil serves from the caches only
	Cache  repository.CatalogRepository // nil keeps details in memory only

	Events  events.Dispatcher
	Metrics *metrics.SyncMetrics
	Logger  *slog.Logger

	Concurrency int // parallel lookups in Prefetch (default: 4)
}

// Service resolves card details from memory, then the SQLite cache, then
// the source. Catalog entries never change once published, so cached
// entries never expire.
type Service struct {
	config Config
	logger *slog.Logger

	mu     sync.RWMutex
	memory map[string]*binder.CardDetails

	group singleflight.Group
}

// NewService creates a catalog service.
func NewService(config Config) *Service {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NewSyncMetrics()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	return &Service{
		config: config,
		logger: config.Logger,
		memory: make(map[string]*binder.CardDetails),
	}
}

// Lookup returns details for a card. It returns ErrNotFound when the
// catalog does not know the id and an error wrapping
// binder.ErrCatalogUnavailable when the catalog cannot be reached.
func (s *Service) Lookup(ctx context.Context, cardID string) (*binder.CardDetails, error) {
	start := time.Now()

	if d, ok := s.fromMemory(cardID); ok {
		s.config.Metrics.RecordCatalogLookup(time.Since(start), true, nil)
		return d, nil
	}

	v, err, _ := s.group.Do(cardID, func() (interface{}, error) {
		if d, ok := s.fromMemory(cardID); ok {
			return d, nil
		}
		if d, err := s.fromCache(ctx, cardID); err == nil {
			s.remember(d)
			return d, nil
		}
		return s.fetch(ctx, cardID)
	})
	if err != nil {
		s.config.Metrics.RecordCatalogLookup(time.Since(start), false, err)
		return nil, err
	}
	s.config.Metrics.RecordCatalogLookup(time.Since(start), false, nil)
	return v.(*binder.CardDetails), nil
}

// Details is Lookup that never fails. Unreachable or unknown cards get
// placeholder details that are not cached, so a later call retries.
func (s *Service) Details(ctx context.Context, cardID string) *binder.CardDetails {
	d, err := s.Lookup(ctx, cardID)
	if err == nil {
		return d
	}

	if !errors.Is(err, ErrNotFound) {
		s.logger.Warn("Catalog unavailable, using placeholder", "card_id", cardID, "error", err)
		if s.config.Events != nil {
			s.config.Events.Dispatch(events.NewTypedEvent(ctx, events.CatalogUnavailable, "",
				events.CatalogUnavailableEvent{CardID: cardID, Error: err.Error()}))
		}
	}
	return binder.PlaceholderDetails(cardID)
}

// Prefetch resolves every id, in parallel, into a details map suitable for
// sorting. Unresolvable ids map to placeholders. The error is non-nil only
// when ctx is cancelled.
func (s *Service) Prefetch(ctx context.Context, cardIDs []string) (sorting.Details, error) {
	out := make(sorting.Details, len(cardIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for _, id := range cardIDs {
		mu.Lock()
		_, seen := out[id]
		if !seen {
			out[id] = nil
		}
		mu.Unlock()
		if seen {
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d := s.Details(gctx, id)
			mu.Lock()
			out[id] = d
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("prefetch cancelled: %w", err)
	}
	return out, nil
}

// Search queries the source by name. Results are cached for later lookups.
func (s *Service) Search(ctx context.Context, name string, limit int) ([]*binder.CardDetails, error) {
	searcher, ok := s.config.Source.(Searcher)
	if !ok {
		return nil, fmt.Errorf("catalog source does not support search")
	}
	results, err := searcher.Search(ctx, name, limit)
	if err != nil {
		return nil, err
	}
	for _, d := range results {
		s.remember(d)
		s.store(ctx, d)
	}
	return results, nil
}

// Purge empties the memory and SQLite caches.
func (s *Service) Purge(ctx context.Context) error {
	s.mu.Lock()
	s.memory = make(map[string]*binder.CardDetails)
	s.mu.Unlock()

	if s.config.Cache == nil {
		return nil
	}
	return s.config.Cache.Clear(ctx)
}

// Cached returns how many cards the SQLite cache holds.
func (s *Service) Cached(ctx context.Context) (int, error) {
	if s.config.Cache == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.memory), nil
	}
	return s.config.Cache.Count(ctx)
}

func (s *Service) fromMemory(cardID string) (*binder.CardDetails, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.memory[cardID]
	return d, ok
}

func (s *Service) remember(d *binder.CardDetails) {
	s.mu.Lock()
	s.memory[d.ID] = d
	s.mu.Unlock()
}

func (s *Service) fromCache(ctx context.Context, cardID string) (*binder.CardDetails, error) {
	if s.config.Cache == nil {
		return nil, repository.ErrCatalogCardNotCached
	}
	row, err := s.config.Cache.Get(ctx, cardID)
	if err != nil {
		return nil, err
	}
	var d binder.CardDetails
	if err := json.Unmarshal(row.Data, &d); err != nil {
		s.logger.Warn("Discarding unreadable cached card", "card_id", cardID, "error", err)
		return nil, err
	}
	return &d, nil
}

func (s *Service) fetch(ctx context.Context, cardID string) (*binder.CardDetails, error) {
	if s.config.Source == nil {
		return nil, fmt.Errorf("%w: no catalog source configured", binder.ErrCatalogUnavailable)
	}
	d, err := s.config.Source.GetCardByIdentity(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if d.ID == "" {
		d.ID = cardID
	}
	s.remember(d)
	s.store(ctx, d)
	return d, nil
}

// store writes details to the SQLite cache. Failures only cost a refetch.
func (s *Service) store(ctx context.Context, d *binder.CardDetails) {
	if s.config.Cache == nil {
		return
	}
	data, err := json.Marshal(d)
	if err != nil {
		return
	}
	err = s.config.Cache.Put(ctx, &models.CatalogCard{
		CardID:    d.ID,
		Name:      d.Name,
		Data:      data,
		FetchedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("Failed to cache card", "card_id", d.ID, "error", err)
	}
}
