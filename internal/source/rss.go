// Package source fetches feed items from RSS and Atom feeds.
package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SlyMarbo/rss"
	"github.com/samber/lo"

	"github.com/0x0BSoD/medhum/internal/model"
)

const defaultTimeout = 30 * time.Second

// contextTransport injects a context into every outgoing request so that
// context cancellation and deadlines propagate through the rss library.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

type RSSSource struct {
	URL      string
	Name     string
	Insecure bool
	Timeout  time.Duration
}

func NewRSSSource(url string) RSSSource {
	return RSSSource{URL: url, Timeout: defaultTimeout}
}

func (s RSSSource) Fetch(ctx context.Context) ([]model.Item, error) {
	feed, err := s.loadFeed(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %q: %w", s.URL, err)
	}

	name := s.Name
	if name == "" {
		name = feed.Title
	}

	return lo.Map(feed.Items, func(item *rss.Item, _ int) model.Item {
		return model.Item{
			Title:      strings.TrimSpace(item.Title),
			Categories: item.Categories,
			Link:       item.Link,
			Date:       item.Date,
			Text:       itemText(item),
			ImageURL:   itemImage(item),
			SourceName: name,
		}
	}), nil
}

// itemText returns the richest available text for an item.
// Content (full body) is preferred over Summary (short excerpt).
func itemText(item *rss.Item) string {
	if c := strings.TrimSpace(item.Content); c != "" {
		return c
	}
	return strings.TrimSpace(item.Summary)
}

// itemImage returns the first image enclosure, if any.
func itemImage(item *rss.Item) string {
	enc, ok := lo.Find(item.Enclosures, func(e *rss.Enclosure) bool {
		return e != nil && strings.HasPrefix(e.Type, "image/")
	})
	if !ok {
		return ""
	}
	return enc.URL
}

func (s RSSSource) loadFeed(ctx context.Context) (*rss.Feed, error) {
	base := http.DefaultTransport
	if s.Insecure {
		base = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &http.Client{
		Transport: contextTransport{ctx: ctx, base: base},
		Timeout:   timeout,
	}
	return rss.FetchByClient(s.URL, client)
}
