package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeaandrob/volwatch/internal/models"
)

const feed = `[
  {"title": "Non-Farm Payrolls", "country": "USD", "date": "2025-03-07T08:30:00-05:00", "impact": "High", "forecast": "160K"},
  {"title": 42, "date": "2025-03-07T08:30:00-05:00", "impact": "High"},
  "garbage",
  {"title": "Unemployment Rate", "country": "USD", "date": "2025-03-07T08:30:00-05:00", "impact": "High"}
]`

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		data string
		want int
	}{
		{"array", feed, 2},
		{"items wrapper", `{"items": [{"title": "CPI m/m", "date": "2025-03-12T12:30:00Z", "impact": "High"}]}`, 1},
		{"events wrapper", `{"events": [{"title": "CPI m/m", "date": "2025-03-12T12:30:00Z", "impact": "High"}]}`, 1},
		{"empty body", "  ", 0},
		{"object without list", `{"status": "ok"}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.data))
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
}

func TestDecode_KeepsFields(t *testing.T) {
	got, err := Decode([]byte(feed))
	require.NoError(t, err)
	require.NotEmpty(t, got)

	assert.Equal(t, models.RawEvent{
		Title:   "Non-Farm Payrolls",
		Date:    "2025-03-07T08:30:00-05:00",
		Impact:  "High",
		Country: "USD",
	}, got[0])
	assert.Equal(t, "USD", got[0].CurrencyCode())
}

func TestClient_FetchEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, RetryCount: -1})

	events, err := c.FetchEvents(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestClient_FetchEvents_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, RetryCount: -1})

	_, err := c.FetchEvents(context.Background())
	assert.Error(t, err)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.json")
	require.NoError(t, os.WriteFile(path, []byte(feed), 0o600))

	events, err := FileSource{Path: path}.FetchEvents(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 2)

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.json")}.FetchEvents(context.Background())
	assert.Error(t, err)
}

type stubSource struct {
	calls  int32
	err    error
	events []models.RawEvent
	delay  time.Duration
}

func (s *stubSource) FetchEvents(ctx context.Context) ([]models.RawEvent, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.events, nil
}

func TestCachedSource_TTL(t *testing.T) {
	src := &stubSource{events: []models.RawEvent{{Title: "CPI m/m"}}}
	c := NewCachedSource(src, time.Hour)
	now := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.FetchEvents(context.Background())
	require.NoError(t, err)
	_, err = c.FetchEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))

	now = now.Add(2 * time.Hour)
	_, err = c.FetchEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls))
	assert.Equal(t, now, c.LastFetched())
}

func TestCachedSource_ServesStaleOnError(t *testing.T) {
	src := &stubSource{events: []models.RawEvent{{Title: "CPI m/m"}}}
	c := NewCachedSource(src, 0)

	_, err := c.FetchEvents(context.Background())
	require.NoError(t, err)

	src.err = errors.New("upstream down")
	events, err := c.FetchEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.RawEvent{{Title: "CPI m/m"}}, events)
}

func TestCachedSource_ErrorsWithoutCache(t *testing.T) {
	c := NewCachedSource(&stubSource{err: errors.New("upstream down")}, time.Minute)

	_, err := c.FetchEvents(context.Background())
	assert.Error(t, err)
	assert.Empty(t, c.Cached())
}

func TestCachedSource_ConcurrentRefreshSharesFetch(t *testing.T) {
	src := &stubSource{events: []models.RawEvent{{Title: "CPI m/m"}}, delay: 50 * time.Millisecond}
	c := NewCachedSource(src, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Refresh(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Less(t, atomic.LoadInt32(&src.calls), int32(10))
}
