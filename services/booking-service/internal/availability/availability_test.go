package availability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/calendar"
)

const feedTwoEvents = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Airbnb Inc//Hosting Calendar 1.0//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:reserved-1@airbnb.com\r\n" +
	"DTSTART;VALUE=DATE:20250301\r\n" +
	"DTEND;VALUE=DATE:20250305\r\n" +
	"SUMMARY:Reserved\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:blocked-2@airbnb.com\r\n" +
	"DTSTART:20250310T160000Z\r\n" +
	"DTEND:20250312T030000Z\r\n" +
	"SUMMARY:Not available\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

const feedBadEvent = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:broken@airbnb.com\r\n" +
	"DTSTART;VALUE=DATE:20250310\r\n" +
	"DTEND;VALUE=DATE:20250301\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// scriptedFetcher serves bodies (or errors) in order, repeating the last.
type scriptedFetcher struct {
	mu    sync.Mutex
	steps []any
	calls int32
}

func (f *scriptedFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	step := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}
	f.mu.Unlock()
	if err, ok := step.(error); ok {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(step.(string))), nil
}

func TestParseFeedNormalizesEvents(t *testing.T) {
	ranges, err := ParseFeed(strings.NewReader(feedTwoEvents))
	require.NoError(t, err)
	require.Len(t, ranges, 2)

	assert.Equal(t, "2025-03-01", ranges[0].Start.String())
	assert.Equal(t, "2025-03-05", ranges[0].End.String())
	// 16:00Z is midnight the next day in Bali, 03:00Z is 11:00 the same day.
	assert.Equal(t, "2025-03-11", ranges[1].Start.String())
	assert.Equal(t, "2025-03-12", ranges[1].End.String())
}

func TestParseFeedRejectsMalformedEvent(t *testing.T) {
	_, err := ParseFeed(strings.NewReader(feedBadEvent))
	var fe *FeedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "event", fe.Op)
}

func TestSyncFailureKeepsPreviousRanges(t *testing.T) {
	f := &scriptedFetcher{steps: []any{feedTwoEvents, errors.New("connection reset")}}
	s := NewSynchronizer(NewCache(), f, quietLogger())

	n, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Sync(context.Background())
	var fe *FeedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "fetch", fe.Op)

	ranges, err := s.Blocked(context.Background())
	require.NoError(t, err, "stale data is served without error")
	assert.Len(t, ranges, 2)
}

func TestBlockedColdStartSyncsOnce(t *testing.T) {
	f := &scriptedFetcher{steps: []any{feedTwoEvents}}
	s := NewSynchronizer(NewCache(), f, quietLogger())

	ranges, err := s.Blocked(context.Background())
	require.NoError(t, err)
	assert.Len(t, ranges, 2)

	_, err = s.Blocked(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls), "later reads come from the cache")
}

func TestBlockedColdStartFailureReturnsEmptySetAndError(t *testing.T) {
	f := &scriptedFetcher{steps: []any{errors.New("dns failure")}}
	s := NewSynchronizer(NewCache(), f, quietLogger())

	ranges, err := s.Blocked(context.Background())
	require.Error(t, err)
	assert.NotNil(t, ranges)
	assert.Empty(t, ranges)
}

func TestCacheReadersNeverSeePartialSet(t *testing.T) {
	c := NewCache()
	small := []BlockedRange{{Start: calendar.Of(2025, 1, 1), End: calendar.Of(2025, 1, 2)}}
	large := make([]BlockedRange, 50)
	for i := range large {
		large[i] = BlockedRange{Start: calendar.Of(2025, 2, 1).AddDays(i), End: calendar.Of(2025, 2, 2).AddDays(i)}
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				c.Replace(small)
			} else {
				c.Replace(large)
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		n := len(c.Read())
		if n != 0 && n != 1 && n != 50 {
			t.Fatalf("observed partial set of %d ranges", n)
		}
	}
	close(stop)
	wg.Wait()
}

func TestCacheReadReturnsCopy(t *testing.T) {
	c := NewCache()
	c.Replace([]BlockedRange{{Start: calendar.Of(2025, 1, 1), End: calendar.Of(2025, 1, 3)}})
	got := c.Read()
	got[0].End = calendar.Of(2030, 1, 1)
	assert.Equal(t, "2025-01-03", c.Read()[0].End.String())
}

func TestOverlaps(t *testing.T) {
	r := BlockedRange{Start: calendar.Of(2025, 3, 1), End: calendar.Of(2025, 3, 5)}

	assert.True(t, r.Overlaps(calendar.Of(2025, 2, 27), calendar.Of(2025, 3, 2)))
	assert.True(t, r.Overlaps(calendar.Of(2025, 3, 4), calendar.Of(2025, 3, 8)))
	assert.False(t, r.Overlaps(calendar.Of(2025, 3, 5), calendar.Of(2025, 3, 8)), "check-in on the feed's end day is free")
	assert.False(t, r.Overlaps(calendar.Of(2025, 2, 25), calendar.Of(2025, 3, 1)), "check-out on the feed's start day is free")

	single := BlockedRange{Start: calendar.Of(2025, 4, 1), End: calendar.Of(2025, 4, 1)}
	assert.True(t, single.Overlaps(calendar.Of(2025, 3, 31), calendar.Of(2025, 4, 2)))
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = io.WriteString(w, feedTwoEvents)
	}))
	defer srv.Close()

	s := NewSynchronizer(NewCache(), NewHTTPFetcher(srv.URL+"/ical", time.Second), quietLogger())
	n, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	down := NewSynchronizer(NewCache(), NewHTTPFetcher(srv.URL+"/down", time.Second), quietLogger())
	_, err = down.Sync(context.Background())
	assert.Error(t, err)
}

func TestRedisSnapshotWarmsCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	snap := NewRedisSnapshot(rdb, "")

	ranges, err := snap.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ranges)

	first := NewSynchronizer(NewCache(), &scriptedFetcher{steps: []any{feedTwoEvents}}, quietLogger(), WithSnapshots(snap))
	_, err = first.Sync(context.Background())
	require.NoError(t, err)

	// a restarted process whose feed is down serves the snapshot
	second := NewSynchronizer(NewCache(), &scriptedFetcher{steps: []any{errors.New("timeout")}}, quietLogger(), WithSnapshots(snap))
	second.Warm(context.Background())
	got, err := second.Blocked(context.Background())
	require.Error(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-03-01", got[0].Start.String())
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewSynchronizer(NewCache(), &scriptedFetcher{steps: []any{feedTwoEvents}}, quietLogger())
	_, err := NewScheduler(s, "every half hour", time.Second)
	assert.Error(t, err)

	sched, err := NewScheduler(s, "0 */30 * * * *", time.Second)
	require.NoError(t, err)
	sched.Start()
	sched.Stop()
}

// gatedFetcher blocks until released or until its context ends.
type gatedFetcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
}

func (f *gatedFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	f.once.Do(func() { close(f.started) })
	select {
	case <-f.release:
		return io.NopCloser(strings.NewReader(feedTwoEvents)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSyncSurvivesCallerCancellation(t *testing.T) {
	f := newGatedFetcher()
	s := NewSynchronizer(NewCache(), f, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Blocked(ctx)
		done <- err
	}()
	<-f.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(f.release)
	require.Eventually(t, func() bool {
		_, ok := s.Cache().LastSynced()
		return ok
	}, time.Second, 5*time.Millisecond, "the shared fetch still fills the cache")

	ranges, err := s.Blocked(context.Background())
	require.NoError(t, err)
	assert.Len(t, ranges, 2)
}

func TestSyncTimeoutBoundsSharedFetch(t *testing.T) {
	f := newGatedFetcher()
	s := NewSynchronizer(NewCache(), f, quietLogger(), WithSyncTimeout(20*time.Millisecond))

	_, err := s.Sync(context.Background())
	var fe *FeedError
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, ok := s.Cache().LastSynced()
	assert.False(t, ok)
}
