package availability

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

// SnapshotStore persists the last good ranges across restarts.
type SnapshotStore interface {
	Save(ctx context.Context, ranges []BlockedRange) error
	Load(ctx context.Context) ([]BlockedRange, error)
}

const defaultSyncTimeout = 30 * time.Second

type Synchronizer struct {
	cache     *Cache
	fetcher   Fetcher
	snapshots SnapshotStore
	timeout   time.Duration
	log       *logrus.Entry
	flight    singleflight.Group
}

type Option func(*Synchronizer)

func WithSnapshots(s SnapshotStore) Option {
	return func(sy *Synchronizer) { sy.snapshots = s }
}

// WithSyncTimeout bounds one shared sync, independent of the callers waiting
// on it.
func WithSyncTimeout(d time.Duration) Option {
	return func(sy *Synchronizer) {
		if d > 0 {
			sy.timeout = d
		}
	}
}

func NewSynchronizer(cache *Cache, f Fetcher, log *logrus.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		cache:   cache,
		fetcher: f,
		timeout: defaultSyncTimeout,
		log:     log.WithField("component", "feed-sync"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Synchronizer) Cache() *Cache { return s.cache }

// Sync fetches and parses the feed and replaces the cache. Concurrent calls
// share one fetch, which runs to completion or its own timeout even when the
// caller that started it goes away; ctx only bounds how long this caller
// waits.
func (s *Synchronizer) Sync(ctx context.Context) (int, error) {
	ch := s.flight.DoChan("sync", func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.sync(shared)
	})
	select {
	case res := <-ch:
		n, _ := res.Val.(int)
		return n, res.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *Synchronizer) sync(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer("availability").Start(ctx, "feed.sync")
	defer span.End()

	ranges, err := s.fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "feed sync failed")
		s.log.WithError(err).Error("[availability] sync failed, keeping cached ranges")
		return 0, err
	}
	s.cache.Replace(ranges)
	span.SetAttributes(attribute.Int("feed.ranges", len(ranges)))

	if s.snapshots != nil {
		if err := s.snapshots.Save(ctx, ranges); err != nil {
			s.log.WithError(err).Warn("[availability] snapshot save failed")
		}
	}
	s.log.WithField("ranges", len(ranges)).Info("[availability] cache updated")
	return len(ranges), nil
}

func (s *Synchronizer) fetch(ctx context.Context) ([]BlockedRange, error) {
	body, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return nil, &FeedError{Op: "fetch", Err: err}
	}
	defer body.Close()
	return ParseFeed(body)
}

// Blocked is the read path. Before the first successful sync it tries one
// synchronously; the error is only returned when that also fails, together
// with whatever the cache holds.
func (s *Synchronizer) Blocked(ctx context.Context) ([]BlockedRange, error) {
	if _, ok := s.cache.LastSynced(); !ok {
		if _, err := s.Sync(ctx); err != nil {
			return s.cache.Read(), err
		}
	}
	return s.cache.Read(), nil
}

// Warm seeds the cache from the snapshot store, if one is configured.
func (s *Synchronizer) Warm(ctx context.Context) {
	if s.snapshots == nil {
		return
	}
	ranges, err := s.snapshots.Load(ctx)
	if err != nil {
		s.log.WithError(err).Warn("[availability] snapshot load failed")
		return
	}
	if len(ranges) > 0 {
		s.cache.Seed(ranges)
		s.log.WithField("ranges", len(ranges)).Info("[availability] cache seeded from snapshot")
	}
}

// Scheduler runs Sync on a cron spec with seconds, e.g. "0 */30 * * * *".
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler(s *Synchronizer, spec string, timeout time.Duration) (*Scheduler, error) {
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, _ = s.Sync(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sync to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
