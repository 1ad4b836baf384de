// Package search runs enhanced place searches with staged progress.
package search

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/deepgram/wayfinder/internal/progress"
	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/rs/zerolog"
)

var ErrEmptyQuery = errors.New("search: query is empty")

type Event = progress.Event[*protocol.SearchResponse]

// Searcher performs the backend request. *client.Client satisfies it.
type Searcher interface {
	EnhancedSearch(ctx context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error)
}

// Service runs one search at a time; starting a new search aborts the one in
// flight.
type Service struct {
	searcher Searcher
	opts     progress.Options
	log      zerolog.Logger

	mu      sync.Mutex
	current *inflight
}

// inflight is a tracked search. cancelled is set under the service lock and
// covers the moment before the operation has started, when Abort is a no-op.
type inflight struct {
	op        *progress.Operation[*protocol.SearchResponse]
	cancelled bool
}

func NewService(searcher Searcher, opts progress.Options) *Service {
	return &Service{
		searcher: searcher,
		opts:     opts,
		log:      logger.For(logger.SEARCH),
	}
}

// Search blocks until the search completes, fails, times out or is
// cancelled. Progress is reported to listener.
func (s *Service) Search(ctx context.Context, req protocol.SearchRequest, listener func(Event)) (*protocol.SearchResponse, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}

	cur := s.track(progress.New(s.opts, listener))
	defer s.untrack(cur)

	s.log.Info().Str("query", req.Query).Float64("radius_km", req.RadiusKM).Msg("Starting search")
	return s.run(ctx, cur, req)
}

// Cancel aborts the search in flight and reports whether there was one.
func (s *Service) Cancel() bool {
	s.mu.Lock()
	cur := s.current
	if cur == nil || cur.cancelled {
		s.mu.Unlock()
		return false
	}
	cur.cancelled = true
	s.mu.Unlock()

	cur.op.Abort()
	return true
}

// track makes op the current search and aborts the one it replaces.
func (s *Service) track(op *progress.Operation[*protocol.SearchResponse]) *inflight {
	cur := &inflight{op: op}

	s.mu.Lock()
	prev := s.current
	s.current = cur
	superseded := prev != nil && !prev.cancelled
	if superseded {
		prev.cancelled = true
	}
	s.mu.Unlock()

	if superseded {
		prev.op.Abort()
		s.log.Info().Msg("Superseded search in flight")
	}
	return cur
}

func (s *Service) untrack(cur *inflight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == cur {
		s.current = nil
	}
}

func (s *Service) run(ctx context.Context, cur *inflight, req protocol.SearchRequest) (*protocol.SearchResponse, error) {
	return cur.op.Start(ctx, func(ctx context.Context) (*protocol.SearchResponse, error) {
		// A cancel that landed before Start could not abort the operation.
		if s.wasCancelled(cur) {
			cur.op.Abort()
			return nil, progress.ErrCancelled
		}
		return s.searcher.EnhancedSearch(ctx, req)
	})
}

func (s *Service) wasCancelled(cur *inflight) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cur.cancelled
}
