package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0BSoD/medhum/internal/api"
	"github.com/0x0BSoD/medhum/internal/articles"
	"github.com/0x0BSoD/medhum/internal/assistant"
	"github.com/0x0BSoD/medhum/internal/metrics"
	"github.com/0x0BSoD/medhum/internal/model"
	"github.com/0x0BSoD/medhum/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testConfig = api.Config{AdminUser: "admin", AdminPassword: "medical888", SessionSecret: "test-secret"}

type echoAssistant struct {
	history []model.ChatMessage
}

func (e *echoAssistant) Reply(_ context.Context, history []model.ChatMessage, text string) string {
	e.history = history
	return "echo: " + text
}

type fakeDrafter struct {
	err error
}

func (f fakeDrafter) FromFeed(_ context.Context, url, category string) ([]model.Article, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.Article{{ID: "d1", Title: "from " + url, Category: category}}, nil
}

func (f fakeDrafter) FromPage(_ context.Context, url, category string) (model.Article, error) {
	if f.err != nil {
		return model.Article{}, f.err
	}
	return model.Article{ID: "p1", Title: "page " + url, Category: category}, nil
}

type fakeReporter struct {
	mu   sync.Mutex
	msgs []string
}

func (r *fakeReporter) Notify(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func newServer(t *testing.T, opts ...api.Option) (http.Handler, *articles.Store) {
	t.Helper()

	store := articles.New(storage.NewMemory())
	return api.New(testConfig, store, opts...).Handler(), store
}

func do(t *testing.T, h http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler) []*http.Cookie {
	t.Helper()

	rec := do(t, h, http.MethodPost, "/api/login", `{"username":"admin","password":"medical888"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	h, _ := newServer(t)
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListArticles(t *testing.T) {
	h, _ := newServer(t)

	all := decode[[]model.Article](t, do(t, h, http.MethodGet, "/api/articles", ""))
	assert.Equal(t, articles.Defaults(), all)

	films := decode[[]model.Article](t, do(t, h, http.MethodGet, "/api/articles?category="+model.CategoryFilm, ""))
	require.NotEmpty(t, films)
	for _, a := range films {
		assert.Equal(t, model.CategoryFilm, a.Category)
	}

	same := decode[[]model.Article](t, do(t, h, http.MethodGet, "/api/articles?category=All", ""))
	assert.Len(t, same, len(all))

	none := decode[[]model.Article](t, do(t, h, http.MethodGet, "/api/articles?q=zzzz-no-match", ""))
	assert.Empty(t, none)
}

func TestGetArticle(t *testing.T) {
	h, _ := newServer(t)
	first := articles.Defaults()[0]

	rec := do(t, h, http.MethodGet, "/api/articles/"+first.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first, decode[model.Article](t, rec))

	rec = do(t, h, http.MethodGet, "/api/articles/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCategoriesAndHighlights(t *testing.T) {
	h, _ := newServer(t)

	categories := decode[[]string](t, do(t, h, http.MethodGet, "/api/categories", ""))
	require.NotEmpty(t, categories)
	assert.Equal(t, articles.AllCategories, categories[0])
	assert.Equal(t, articles.Categories(articles.Defaults()), categories[1:])

	sections := decode[[]articles.Section](t, do(t, h, http.MethodGet, "/api/highlights", ""))
	assert.Equal(t, articles.Highlights(articles.Defaults(), 3), sections)
}

func TestAdminRequiresLogin(t *testing.T) {
	h, _ := newServer(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/admin/articles/new"},
		{http.MethodPost, "/api/admin/articles"},
		{http.MethodDelete, "/api/admin/articles/x"},
		{http.MethodGet, "/api/admin/export"},
		{http.MethodPost, "/api/admin/import"},
		{http.MethodPost, "/api/admin/drafts/feed"},
		{http.MethodPost, "/api/admin/drafts/page"},
	} {
		rec := do(t, h, route.method, route.path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, route.path)
	}
}

func TestLogin(t *testing.T) {
	h, _ := newServer(t)

	rec := do(t, h, http.MethodPost, "/api/login", `{"username":"admin","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/login", `{"username":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	cookies := login(t, h)
	rec = do(t, h, http.MethodGet, "/api/admin/articles/new", "", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)

	draft := decode[model.Article](t, rec)
	assert.NotEmpty(t, draft.ID)
	assert.Equal(t, articles.DefaultAuthor, draft.Author)
	assert.Equal(t, model.CategoryLibrary, draft.Category)
}

func TestLogout(t *testing.T) {
	h, _ := newServer(t)
	cookies := login(t, h)

	rec := do(t, h, http.MethodPost, "/api/logout", "", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)

	var expired bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "medhum_session" && c.MaxAge < 0 {
			expired = true
		}
	}
	assert.True(t, expired)
}

func TestSaveArticle(t *testing.T) {
	h, store := newServer(t)
	cookies := login(t, h)

	body := `{"title":"新文章","content":"p1\np2","author":"A","date":"2024-05-01",` +
		`"category":"讀者推薦","summary":"dropped",` +
		`"imageUrl":"https://drive.google.com/file/d/abc123/view?usp=sharing"}`
	rec := do(t, h, http.MethodPost, "/api/admin/articles", body, cookies...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	saved := decode[model.Article](t, rec)
	assert.NotEmpty(t, saved.ID)
	assert.Empty(t, saved.Summary)
	assert.Equal(t, "https://drive.google.com/uc?export=view&id=abc123", saved.ImageURL)

	list := store.List(context.Background())
	assert.Equal(t, saved, list[0])
}

func TestSaveArticle_Validation(t *testing.T) {
	h, _ := newServer(t)
	cookies := login(t, h)

	rec := do(t, h, http.MethodPost, "/api/admin/articles", `{"id":"x","title":""}`, cookies...)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "title", resp["field"])

	rec = do(t, h, http.MethodPost, "/api/admin/articles", `not json`, cookies...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveArticle_QuotaExceeded(t *testing.T) {
	reporter := &fakeReporter{}
	m := metrics.New()
	store := articles.New(storage.WithQuota(storage.NewMemory(), 8<<10))
	h := api.New(testConfig, store, api.WithReporter(reporter), api.WithMetrics(m)).Handler()
	cookies := login(t, h)

	before := store.List(context.Background())
	body := `{"id":"big","title":"big","imageUrl":"data:image/jpeg;base64,` + strings.Repeat("A", 16<<10) + `"}`

	rec := do(t, h, http.MethodPost, "/api/admin/articles", body, cookies...)
	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)
	assert.Equal(t, before, store.List(context.Background()))
	assert.Len(t, reporter.msgs, 1)
}

func TestDeleteArticle(t *testing.T) {
	h, store := newServer(t)
	cookies := login(t, h)
	id := articles.Defaults()[0].ID

	rec := do(t, h, http.MethodDelete, "/api/admin/articles/"+id, "", cookies...)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := store.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, articles.ErrNotFound)
}

func TestExportImport(t *testing.T) {
	h, store := newServer(t)
	cookies := login(t, h)
	ctx := context.Background()

	rec := do(t, h, http.MethodGet, "/api/admin/export", "", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="medical-humanities-backup-`)

	want, err := store.ExportSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/admin/import", `[{"id":"only","title":"Only"}]`, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 1, decode[map[string]any](t, rec)["imported"], 0)
	assert.Len(t, store.List(ctx), 1)

	rec = do(t, h, http.MethodPost, "/api/admin/import", `[{"id":"a","title":"A"},{"title":"no id"}]`, cookies...)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "id", resp["field"])
	assert.InDelta(t, 1, resp["index"], 0)
	assert.Len(t, store.List(ctx), 1)
}

func TestDrafts(t *testing.T) {
	h, _ := newServer(t, api.WithDrafter(fakeDrafter{}))
	cookies := login(t, h)

	rec := do(t, h, http.MethodPost, "/api/admin/drafts/feed", `{"url":"https://f","category":"寫景寫心"}`, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	drafts := decode[[]model.Article](t, rec)
	require.Len(t, drafts, 1)
	assert.Equal(t, "from https://f", drafts[0].Title)
	assert.Equal(t, "寫景寫心", drafts[0].Category)

	rec = do(t, h, http.MethodPost, "/api/admin/drafts/page", `{"url":"https://p"}`, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "page https://p", decode[model.Article](t, rec).Title)

	rec = do(t, h, http.MethodPost, "/api/admin/drafts/page", `{}`, cookies...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDrafts_Errors(t *testing.T) {
	h, _ := newServer(t, api.WithDrafter(fakeDrafter{err: errors.New("unreachable")}))
	cookies := login(t, h)

	rec := do(t, h, http.MethodPost, "/api/admin/drafts/feed", `{"url":"https://f"}`, cookies...)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	h, _ = newServer(t)
	cookies = login(t, h)
	rec = do(t, h, http.MethodPost, "/api/admin/drafts/feed", `{"url":"https://f"}`, cookies...)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChat(t *testing.T) {
	echo := &echoAssistant{}
	h, _ := newServer(t, api.WithAssistant(echo))

	rec := do(t, h, http.MethodPost, "/api/chat", `{"history":[{"id":"welcome","role":"model","text":"hi"}],"message":" 什麼是醫學人文？ "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "echo: 什麼是醫學人文？", decode[map[string]string](t, rec)["reply"])
	assert.Len(t, echo.history, 1)

	rec = do(t, h, http.MethodPost, "/api/chat", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_NoBackend(t *testing.T) {
	h, _ := newServer(t)

	rec := do(t, h, http.MethodPost, "/api/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, assistant.ReplyUnavailable, decode[map[string]string](t, rec)["reply"])
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newServer(t, api.WithMetrics(metrics.New()))
	do(t, h, http.MethodGet, "/healthz", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `medhum_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestEvents(t *testing.T) {
	h, store := newServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 8)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event:"); ok {
				events <- strings.TrimSpace(name)
			}
		}
	}()

	next := func() string {
		select {
		case name := <-events:
			return name
		case <-ctx.Done():
			return ""
		}
	}

	require.Equal(t, api.EventReady, next())

	require.NoError(t, store.Save(context.Background(), model.Article{ID: "n", Title: "New"}))
	assert.Equal(t, api.EventArticlesUpdated, next())
}
