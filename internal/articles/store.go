// Package articles owns the article collection. The whole collection lives as one JSON array under a
// single key of a storage.Medium; every mutation rewrites that value and then signals the registered
// observers, which re-read the collection through List.
package articles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/0x0BSoD/medhum/internal/model"
	"github.com/0x0BSoD/medhum/internal/storage"
)

// DefaultKey is the storage key holding the collection.
const DefaultKey = "medical_humanities_articles"

var (
	// ErrNotFound is returned when no article has the requested id.
	ErrNotFound = errors.New("article not found")
	// ErrInvalidArticle wraps validation failures of a single saved article.
	ErrInvalidArticle = errors.New("invalid article")
)

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithDefaults replaces the bundled default collection.
func WithDefaults(defaults []model.Article) Option {
	return func(s *Store) {
		s.defaults = slices.Clone(defaults)
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

type observer struct {
	id uint64
	fn func()
}

// Store is safe for concurrent use within a process. Writers in other processes sharing the same
// medium are not coordinated: the last write wins.
type Store struct {
	medium   storage.Medium
	key      string
	defaults []model.Article
	log      *zap.Logger
	validate *validator.Validate

	mu sync.Mutex

	obsMu     sync.Mutex
	observers []observer
	nextObsID uint64
}

func New(medium storage.Medium, opts ...Option) *Store {
	s := &Store{
		medium:   medium,
		key:      DefaultKey,
		defaults: Defaults(),
		log:      zap.NewNop(),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns a copy of the collection. When nothing is stored yet, or the stored value is not a
// JSON array of articles, the default collection is persisted and returned.
func (s *Store) List(ctx context.Context) []model.Article {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		s.log.Error("failed to read articles, serving defaults", zap.String("key", s.key), zap.Error(err))
		return slices.Clone(s.defaults)
	}
	return list
}

func (s *Store) GetByID(ctx context.Context, id string) (model.Article, error) {
	a, ok := lo.Find(s.List(ctx), func(a model.Article) bool {
		return a.ID == id
	})
	if !ok {
		return model.Article{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return a, nil
}

// Save replaces the article with the same id in place or prepends a new one. Summary is cleared for
// every category but the film category. A failed write leaves the stored collection untouched.
func (s *Store) Save(ctx context.Context, article model.Article) error {
	if !article.IsFilm() {
		article.Summary = ""
	}
	if err := s.check(article); err != nil {
		return err
	}

	err := s.update(ctx, func(list []model.Article) []model.Article {
		if _, i, ok := lo.FindIndexOf(list, func(a model.Article) bool { return a.ID == article.ID }); ok {
			list[i] = article
			return list
		}
		return append([]model.Article{article}, list...)
	})
	if err != nil {
		return fmt.Errorf("save article %q: %w", article.ID, err)
	}

	s.log.Debug("article saved", zap.String("id", article.ID), zap.String("category", article.Category))
	return nil
}

// Delete removes the article with the given id. Deleting an unknown id still rewrites the collection
// and notifies observers.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.update(ctx, func(list []model.Article) []model.Article {
		return lo.Reject(list, func(a model.Article, _ int) bool { return a.ID == id })
	})
	if err != nil {
		return fmt.Errorf("delete article %q: %w", id, err)
	}

	s.log.Debug("article deleted", zap.String("id", id))
	return nil
}

// Subscribe registers fn to be called after every successful mutation. fn runs synchronously on the
// mutating goroutine, after the store lock is released. The returned function unregisters fn.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	s.obsMu.Lock()
	s.nextObsID++
	id := s.nextObsID
	s.observers = append(s.observers, observer{id: id, fn: fn})
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			defer s.obsMu.Unlock()
			s.observers = slices.DeleteFunc(s.observers, func(o observer) bool { return o.id == id })
		})
	}
}

func (s *Store) notify() {
	s.obsMu.Lock()
	observers := slices.Clone(s.observers)
	s.obsMu.Unlock()

	for _, o := range observers {
		o.fn()
	}
}

// update loads the collection, applies fn and persists the result. Observers are notified only
// after a successful write.
func (s *Store) update(ctx context.Context, fn func([]model.Article) []model.Article) error {
	return s.write(ctx, func() ([]model.Article, error) {
		list, err := s.load(ctx)
		if err != nil {
			return nil, err
		}
		return fn(list), nil
	})
}

func (s *Store) write(ctx context.Context, next func() ([]model.Article, error)) error {
	s.mu.Lock()
	list, err := next()
	if err == nil {
		err = s.persist(ctx, list)
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.notify()
	return nil
}

// load must be called with s.mu held. Only a failing medium read is returned as an error; missing
// or corrupt data is replaced by the defaults.
func (s *Store) load(ctx context.Context) ([]model.Article, error) {
	raw, err := s.medium.Get(ctx, s.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.log.Info("no stored articles, seeding defaults", zap.String("key", s.key))
		return s.seed(ctx), nil
	case err != nil:
		return nil, fmt.Errorf("read %q: %w", s.key, err)
	}

	var list []model.Article
	if err := json.Unmarshal([]byte(raw), &list); err != nil || list == nil {
		s.log.Error("stored articles are corrupt, resetting to defaults", zap.String("key", s.key), zap.Error(err))
		return s.seed(ctx), nil
	}

	// another writer may have stored summaries outside the film category
	for i := range list {
		if !list[i].IsFilm() {
			list[i].Summary = ""
		}
	}
	return list, nil
}

func (s *Store) seed(ctx context.Context) []model.Article {
	list := slices.Clone(s.defaults)
	if err := s.persist(ctx, list); err != nil {
		s.log.Error("failed to persist default articles", zap.String("key", s.key), zap.Error(err))
	}
	return list
}

func (s *Store) persist(ctx context.Context, list []model.Article) error {
	if list == nil {
		list = []model.Article{}
	}

	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode articles: %w", err)
	}
	if err := s.medium.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("write %q: %w", s.key, err)
	}
	return nil
}

func (s *Store) check(a model.Article) error {
	err := s.validate.Struct(a)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Index: -1, Field: fe.Field(), Reason: reason(fe), kind: ErrInvalidArticle}
	}
	return fmt.Errorf("%w: %v", ErrInvalidArticle, err)
}
