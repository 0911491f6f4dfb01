package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/notaspider/comick-source-api/internal/clock/system"
	"github.com/notaspider/comick-source-api/internal/metrics"
	"github.com/notaspider/comick-source-api/internal/scraper"
)

// AdapterLister yields the adapters to probe, in registration order.
type AdapterLister interface {
	All() []scraper.Adapter
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Adapters AdapterLister
	Prober   *Prober
	Cache    Cache
	// History is optional.
	History HistoryStore
	Clock   scraper.Clock
	Logger  *zap.Logger
	// SingleFlight collapses concurrent refreshes into one probe cycle.
	SingleFlight bool
}

// Service serves health reports from the snapshot cache and runs a probe
// cycle when the snapshot is missing, stale or a refresh is forced.
type Service struct {
	adapters     AdapterLister
	prober       *Prober
	cache        Cache
	history      HistoryStore
	clock        scraper.Clock
	logger       *zap.Logger
	singleFlight bool
	group        singleflight.Group
}

// NewService builds a Service. A nil cache defaults to a MemoryCache.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		adapters:     cfg.Adapters,
		prober:       cfg.Prober,
		cache:        cfg.Cache,
		history:      cfg.History,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		singleFlight: cfg.SingleFlight,
	}
	if s.cache == nil {
		s.cache = NewMemoryCache(DefaultTTL)
	}
	if s.clock == nil {
		s.clock = system.New()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.prober == nil {
		s.prober = NewProber(ProberConfig{Clock: s.clock, Logger: s.logger})
	}
	return s
}

// Check returns the cached snapshot when it is fresh. Otherwise, or when
// force is set, it invalidates the cache and runs a new probe cycle.
func (s *Service) Check(ctx context.Context, force bool) (Report, error) {
	if force {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("health cache invalidate failed", zap.Error(err))
		}
	} else if report, ok := s.cached(ctx); ok {
		return report, nil
	}

	snap, err := s.refresh(ctx)
	if err != nil {
		return Report{}, err
	}
	return Report{Sources: snap.Results, Cached: false}, nil
}

func (s *Service) cached(ctx context.Context) (Report, bool) {
	snap, ok, err := s.cache.Get(ctx)
	if err != nil {
		s.logger.Warn("health cache read failed", zap.Error(err))
		metrics.ObserveHealthCache("miss")
		return Report{}, false
	}
	if !ok {
		metrics.ObserveHealthCache("miss")
		return Report{}, false
	}
	now := s.clock.Now()
	if s.cache.IsStale(snap, now) {
		metrics.ObserveHealthCache("stale")
		return Report{}, false
	}
	metrics.ObserveHealthCache("hit")
	age := int(snap.Age(now) / time.Second)
	return Report{Sources: snap.Results, Cached: true, CacheAge: &age}, true
}

func (s *Service) refresh(ctx context.Context) (Snapshot, error) {
	if !s.singleFlight {
		return s.runCycle(ctx), nil
	}
	// The shared cycle must not die with whichever caller started it.
	v, err, _ := s.group.Do("refresh", func() (any, error) {
		return s.runCycle(context.WithoutCancel(ctx)), nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

func (s *Service) runCycle(ctx context.Context) Snapshot {
	var adapters []scraper.Adapter
	if s.adapters != nil {
		adapters = s.adapters.All()
	}
	start := time.Now()
	results := s.prober.ProbeAll(ctx, adapters)
	snap := Snapshot{Results: results, Timestamp: s.clock.Now()}

	if err := s.cache.Set(ctx, snap); err != nil {
		s.logger.Warn("health cache write failed", zap.Error(err))
	}
	if s.history != nil {
		if err := s.history.RecordCycle(ctx, snap); err != nil {
			s.logger.Warn("health history write failed", zap.Error(err))
		}
	}
	metrics.ObserveHealthCycle()
	s.logger.Info("health cycle complete",
		zap.Int("sources", len(results)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return snap
}
