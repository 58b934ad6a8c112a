// Package fetcher turns feed items and web pages into article drafts.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/0x0BSoD/medhum/internal/articles"
	"github.com/0x0BSoD/medhum/internal/model"
	"github.com/0x0BSoD/medhum/internal/source"
)

// ErrNoContent is returned when a page yields no readable text.
var ErrNoContent = errors.New("no readable content")

type ArticleLister interface {
	List(ctx context.Context) []model.Article
}

type Source interface {
	Fetch(ctx context.Context) ([]model.Item, error)
}

type Option func(*Fetcher)

func WithFilterKeywords(keywords []string) Option {
	return func(f *Fetcher) {
		f.filterKeywords = lo.Uniq(lo.FilterMap(keywords, func(k string, _ int) (string, bool) {
			k = strings.ToLower(strings.TrimSpace(k))
			return k, k != ""
		}))
	}
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithSourceFactory replaces the RSS source used by FromFeed.
func WithSourceFactory(fn func(url string) Source) Option {
	return func(f *Fetcher) {
		if fn != nil {
			f.newSource = fn
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(f *Fetcher) {
		if log != nil {
			f.log = log
		}
	}
}

type Fetcher struct {
	articles       ArticleLister
	client         *http.Client
	filterKeywords []string
	newSource      func(url string) Source
	now            func() time.Time
	log            *zap.Logger
}

func New(articles ArticleLister, opts ...Option) *Fetcher {
	f := &Fetcher{
		articles: articles,
		client:   &http.Client{Timeout: 30 * time.Second},
		now:      time.Now,
		log:      zap.NewNop(),
	}
	f.newSource = func(u string) Source {
		src := source.NewRSSSource(u)
		src.Timeout = f.client.Timeout
		return src
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FromFeed returns one draft per feed item. Items matching a filter keyword and items whose title is
// already in the collection are skipped. Nothing is saved.
func (f *Fetcher) FromFeed(ctx context.Context, feedURL, category string) ([]model.Article, error) {
	items, err := f.newSource(feedURL).Fetch(ctx)
	if err != nil {
		return nil, err
	}

	known := lo.SliceToMap(f.articles.List(ctx), func(a model.Article) (string, struct{}) {
		return normalizeTitle(a.Title), struct{}{}
	})

	drafts := make([]model.Article, 0, len(items))
	for _, item := range items {
		if item.Title == "" || f.itemMustSkipped(item) {
			continue
		}
		if _, dup := known[normalizeTitle(item.Title)]; dup {
			continue
		}
		known[normalizeTitle(item.Title)] = struct{}{}

		content := paragraphs(item.Text)
		if content == "" && item.Link != "" {
			if _, text, err := f.extract(ctx, item.Link); err != nil {
				f.log.Warn("failed to extract item page", zap.String("link", item.Link), zap.Error(err))
			} else {
				content = text
			}
		}

		drafts = append(drafts, f.draft(item, content, category))
	}

	f.log.Info("feed drafts prepared",
		zap.String("url", feedURL),
		zap.Int("items", len(items)),
		zap.Int("drafts", len(drafts)),
	)
	return drafts, nil
}

// FromPage returns a draft built from the readable part of a single web page.
func (f *Fetcher) FromPage(ctx context.Context, pageURL, category string) (model.Article, error) {
	title, content, err := f.extract(ctx, pageURL)
	if err != nil {
		return model.Article{}, err
	}

	return f.draft(model.Item{Title: title, Link: pageURL}, content, category), nil
}

func (f *Fetcher) draft(item model.Item, content, category string) model.Article {
	date := item.Date
	if date.IsZero() {
		date = f.now()
	}

	a := model.Article{
		ID:       articles.GenerateID(),
		Title:    item.Title,
		Content:  content,
		Author:   lo.Ternary(item.SourceName != "", item.SourceName, articles.DefaultAuthor),
		Date:     date.Format(model.DateLayout),
		Category: lo.Ternary(category != "", category, model.CategoryLibrary),
		ImageURL: lo.Ternary(item.ImageURL != "", item.ImageURL, articles.DefaultImageURL),
	}
	if a.IsFilm() {
		a.Summary = firstParagraph(content)
	}
	return a
}

func (f *Fetcher) extract(ctx context.Context, pageURL string) (title, content string, err error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("invalid page url %q", pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("get %q: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("get %q: unexpected status %d", pageURL, resp.StatusCode)
	}

	doc, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return "", "", fmt.Errorf("extract %q: %w", pageURL, err)
	}

	content = paragraphs(doc.Content)
	if content == "" {
		content = paragraphs(doc.TextContent)
	}
	if content == "" {
		return "", "", fmt.Errorf("%w: %s", ErrNoContent, pageURL)
	}

	return strings.TrimSpace(doc.Title), content, nil
}

func (f *Fetcher) itemMustSkipped(item model.Item) bool {
	categories := lo.Uniq(lo.Map(item.Categories, func(c string, _ int) string {
		return strings.ToLower(strings.TrimSpace(c))
	}))
	title := strings.ToLower(item.Title)

	return lo.SomeBy(f.filterKeywords, func(keyword string) bool {
		return lo.Contains(categories, keyword) || strings.Contains(title, keyword)
	})
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

func firstParagraph(content string) string {
	first, _, _ := strings.Cut(content, "\n")
	return first
}
