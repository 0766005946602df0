package availability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/calendar"
)

// FeedError is any failure to turn the remote feed into ranges. The cache
// is left untouched when one is returned.
type FeedError struct {
	Op  string // fetch | parse | event
	Err error
}

func (e *FeedError) Error() string { return fmt.Sprintf("availability: feed %s: %v", e.Op, e.Err) }
func (e *FeedError) Unwrap() error { return e.Err }

// Fetcher returns the raw iCal document.
type Fetcher interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
}

type HTTPFetcher struct {
	url    string
	client *http.Client
}

func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{url: url, client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	if f.url == "" {
		return nil, errors.New("no feed url configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")
	res, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_ = res.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	return res.Body, nil
}

// ParseFeed maps every VEVENT of the document to a normalized range. One
// malformed event fails the whole document.
func ParseFeed(r io.Reader) ([]BlockedRange, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, &FeedError{Op: "parse", Err: err}
	}
	events := cal.Events()
	out := make([]BlockedRange, 0, len(events))
	for _, ev := range events {
		br, err := eventRange(ev)
		if err != nil {
			return nil, &FeedError{Op: "event", Err: fmt.Errorf("%s: %w", ev.Id(), err)}
		}
		out = append(out, br)
	}
	return out, nil
}

func eventRange(ev *ics.VEvent) (BlockedRange, error) {
	start, err := eventDate(ev, ics.ComponentPropertyDtStart, ev.GetStartAt)
	if err != nil {
		return BlockedRange{}, fmt.Errorf("start: %w", err)
	}
	end := start
	if ev.GetProperty(ics.ComponentPropertyDtEnd) != nil {
		if end, err = eventDate(ev, ics.ComponentPropertyDtEnd, ev.GetEndAt); err != nil {
			return BlockedRange{}, fmt.Errorf("end: %w", err)
		}
	}
	if end.Before(start) {
		return BlockedRange{}, errors.New("ends before it starts")
	}
	return BlockedRange{Start: start, End: end}, nil
}

// eventDate reads all-day values (VALUE=DATE, 8 digits) as the villa day they
// name; timed values go through the normalizer.
func eventDate(ev *ics.VEvent, prop ics.ComponentProperty, timed func() (time.Time, error)) (calendar.Date, error) {
	p := ev.GetProperty(prop)
	if p == nil {
		return calendar.Date{}, errors.New("missing")
	}
	if len(p.Value) == 8 {
		t, err := time.Parse("20060102", p.Value)
		if err != nil {
			return calendar.Date{}, err
		}
		return calendar.Of(t.Year(), t.Month(), t.Day()), nil
	}
	t, err := timed()
	if err != nil {
		return calendar.Date{}, err
	}
	return calendar.Normalize(t)
}
