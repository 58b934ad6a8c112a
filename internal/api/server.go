// Package api serves the article collection, the chat assistant and the admin surface over HTTP.
package api

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0x0BSoD/medhum/internal/articles"
	"github.com/0x0BSoD/medhum/internal/assistant"
	"github.com/0x0BSoD/medhum/internal/metrics"
	"github.com/0x0BSoD/medhum/internal/model"
)

const (
	sessionName     = "medhum_session"
	shutdownTimeout = 5 * time.Second
	highlightsCount = 3
)

type Assistant interface {
	Reply(ctx context.Context, history []model.ChatMessage, text string) string
}

// Drafter prepares unsaved articles from external content.
type Drafter interface {
	FromFeed(ctx context.Context, url, category string) ([]model.Article, error)
	FromPage(ctx context.Context, url, category string) (model.Article, error)
}

type Reporter interface {
	Notify(msg string)
}

type Config struct {
	AdminUser     string
	AdminPassword string
	// SessionSecret signs the session cookie. A random secret is used when empty,
	// so sessions do not survive a restart.
	SessionSecret string
	SecureCookie  bool
}

type Option func(*Server)

func WithAssistant(a Assistant) Option {
	return func(s *Server) {
		if a != nil {
			s.assistant = a
		}
	}
}

func WithDrafter(d Drafter) Option {
	return func(s *Server) { s.drafter = d }
}

func WithReporter(r Reporter) Option {
	return func(s *Server) { s.reporter = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

type Server struct {
	cfg       Config
	store     *articles.Store
	assistant Assistant
	drafter   Drafter
	reporter  Reporter
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time

	engine *gin.Engine
}

func New(cfg Config, store *articles.Store, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		assistant: assistant.New(nil),
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully. Open event streams are
// closed on shutdown because request contexts derive from ctx.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(s.log), gin.Recovery())
	if s.metrics != nil {
		r.Use(s.metrics.Middleware())
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	r.Use(sessions.Sessions(sessionName, s.sessionStore()))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	pub := r.Group("/api")
	{
		pub.GET("/articles", s.listArticles)
		pub.GET("/articles/:id", s.getArticle)
		pub.GET("/categories", s.listCategories)
		pub.GET("/highlights", s.highlights)
		pub.GET("/events", s.events)
		pub.POST("/chat", s.chat)
		pub.POST("/login", s.login)
		pub.POST("/logout", s.logout)
	}

	admin := r.Group("/api/admin")
	admin.Use(AdminRequired)
	{
		admin.GET("/articles/new", s.newDraft)
		admin.POST("/articles", s.saveArticle)
		admin.DELETE("/articles/:id", s.deleteArticle)
		admin.GET("/export", s.exportSnapshot)
		admin.POST("/import", s.importSnapshot)
		admin.POST("/drafts/feed", s.feedDrafts)
		admin.POST("/drafts/page", s.pageDraft)
	}

	return r
}

func (s *Server) sessionStore() sessions.Store {
	secret := []byte(s.cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
		s.log.Warn("session_secret is not set, using a random one")
	}

	store := cookie.NewStore(secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int((12 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return store
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
