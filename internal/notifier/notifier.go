// Package notifier announces newly published articles to a Telegram channel.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/0x0BSoD/medhum/internal/model"
)

const previewLength = 280

type ArticleLister interface {
	List(ctx context.Context) []model.Article
}

// Sender is implemented by *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Notifier struct {
	articles  ArticleLister
	sender    Sender
	channelID int64
	siteURL   string
	log       *zap.Logger

	changed chan struct{}
	seen    map[string]struct{}
}

func New(articles ArticleLister, sender Sender, channelID int64, siteURL string, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		articles:  articles,
		sender:    sender,
		channelID: channelID,
		siteURL:   strings.TrimRight(siteURL, "/"),
		log:       log,
		changed:   make(chan struct{}, 1),
	}
}

// Changed is a store observer. It never blocks: pending signals are coalesced.
func (n *Notifier) Changed() {
	select {
	case n.changed <- struct{}{}:
	default:
	}
}

// Prime records the articles that already exist so they are never announced. Call it before
// subscribing to the store and before Start runs in its own goroutine.
func (n *Notifier) Prime(ctx context.Context) {
	n.seen = lo.SliceToMap(n.articles.List(ctx), func(a model.Article) (string, struct{}) {
		return a.ID, struct{}{}
	})
}

// Start announces every article added after Prime. It primes itself when Prime was not called.
func (n *Notifier) Start(ctx context.Context) error {
	n.log.Info("notifier started", zap.Int64("channel_id", n.channelID))

	if n.seen == nil {
		n.Prime(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.changed:
			n.announceNew(ctx)
		}
	}
}

func (n *Notifier) announceNew(ctx context.Context) {
	list := n.articles.List(ctx)
	fresh := lo.Filter(list, func(a model.Article, _ int) bool {
		_, ok := n.seen[a.ID]
		return !ok
	})

	failed := map[string]struct{}{}
	// new articles are prepended, so announce from the end to keep publication order
	for _, article := range lo.Reverse(fresh) {
		if err := n.sendArticle(article); err != nil {
			n.log.Error("failed to announce article", zap.String("id", article.ID), zap.Error(err))
			failed[article.ID] = struct{}{}
			continue
		}
		n.log.Info("article announced", zap.String("id", article.ID), zap.String("title", article.Title))
	}

	n.seen = make(map[string]struct{}, len(list))
	for _, a := range list {
		if _, ok := failed[a.ID]; !ok {
			n.seen[a.ID] = struct{}{}
		}
	}
}

func (n *Notifier) sendArticle(article model.Article) error {
	msg := tgbotapi.NewMessage(n.channelID, Format(article, n.siteURL))
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	if _, err := n.sender.Send(msg); err != nil {
		return fmt.Errorf("send article %q: %w", article.ID, err)
	}
	return nil
}

// Format renders the channel message for an article in MarkdownV2.
func Format(article model.Article, siteURL string) string {
	const msgFormat = "*%s*\n\n%s\n\n%s\n\\#%s"

	preview := article.Summary
	if preview == "" {
		preview, _, _ = strings.Cut(strings.TrimSpace(article.Content), "\n")
	}

	link := article.ID
	if siteURL != "" {
		link = strings.TrimRight(siteURL, "/") + "/articles/" + article.ID
	}

	return fmt.Sprintf(msgFormat,
		escape(article.Title),
		escape(truncate(preview, previewLength)),
		escape(link),
		escape(strings.ReplaceAll(article.Category, " ", "_")),
	)
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "…"
}
