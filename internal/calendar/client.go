// Package calendar fetches economic calendar events from a JSON feed or a local file.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/leeaandrob/volwatch/internal/models"
)

const (
	// ForexFactory weekly export
	DefaultFeedURL = "https://nfs.faireconomy.media/ff_calendar_thisweek.json"

	defaultTimeout    = 30 * time.Second
	defaultRetryCount = 3
	defaultRetryWait  = 1 * time.Second
)

// Source provides the raw events for one evaluation.
type Source interface {
	FetchEvents(ctx context.Context) ([]models.RawEvent, error)
}

// Client fetches events from an HTTP feed.
type Client struct {
	http *resty.Client
	url  string
}

// Config holds the feed client settings.
type Config struct {
	URL        string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// NewClient creates a new feed client.
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultFeedURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	} else if cfg.RetryCount == 0 {
		cfg.RetryCount = defaultRetryCount
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWait
	}

	return &Client{
		http: resty.New().
			SetTimeout(cfg.Timeout).
			SetRetryCount(cfg.RetryCount).
			SetRetryWaitTime(cfg.RetryWait).
			SetHeader("Accept", "application/json"),
		url: cfg.URL,
	}
}

// Name returns the feed location.
func (c *Client) Name() string {
	return c.url
}

// FetchEvents downloads and decodes the feed.
func (c *Client) FetchEvents(ctx context.Context) ([]models.RawEvent, error) {
	log.Debug().Str("url", c.url).Msg("Fetching calendar feed")

	resp, err := c.http.R().
		SetContext(ctx).
		Get(c.url)

	if err != nil {
		return nil, fmt.Errorf("failed to fetch calendar: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("calendar feed returned %d: %s", resp.StatusCode(), resp.String())
	}

	events, err := Decode(resp.Body())
	if err != nil {
		return nil, err
	}

	log.Debug().Int("count", len(events)).Msg("Fetched calendar events")
	return events, nil
}

// FileSource reads events from a JSON file. Used for simulations and replays.
type FileSource struct {
	Path string
}

// Name returns the file location.
func (f FileSource) Name() string {
	return "file:" + f.Path
}

// FetchEvents reads and decodes the file on every call.
func (f FileSource) FetchEvents(_ context.Context) ([]models.RawEvent, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar file: %w", err)
	}
	return Decode(data)
}

// Decode accepts a bare array or an object wrapping the array in "items" or "events".
// Items that are not objects with string fields are dropped one by one.
func Decode(data []byte) ([]models.RawEvent, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []models.RawEvent{}, nil
	}

	var items []json.RawMessage
	if data[0] == '{' {
		var wrapper struct {
			Items  []json.RawMessage `json:"items"`
			Events []json.RawMessage `json:"events"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to parse calendar: %w", err)
		}
		items = wrapper.Items
		if len(items) == 0 {
			items = wrapper.Events
		}
	} else if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	events := make([]models.RawEvent, 0, len(items))
	for i, item := range items {
		var ev models.RawEvent
		if err := json.Unmarshal(item, &ev); err != nil {
			log.Debug().Int("index", i).Err(err).Msg("Dropping malformed calendar item")
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
