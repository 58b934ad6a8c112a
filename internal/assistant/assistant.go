// Package assistant implements the site's chat helper. It forwards the user's text and a bounded
// window of recent messages to a generative model and always answers with some text.
package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/0x0BSoD/medhum/internal/model"
)

// Replies used when the model cannot answer.
const (
	ReplyUnavailable = "抱歉，目前無法連接到 AI 服務 (API Key Missing)。"
	ReplyError       = "發生錯誤，請稍後再試。"
	ReplyEmpty       = "抱歉，我現在無法思考，請稍後再試。"
)

// DefaultSystemPrompt is the persona of the chat helper.
const DefaultSystemPrompt = `你是一位精通「醫學人文（Medical Humanities）」的 AI 助理。
你的名字叫「醫文小幫手」。
你的目標是幫助用戶理解醫學與文學、藝術、歷史、倫理及哲學的交集。
請用溫暖、富有同理心且專業的語氣回答。
回答應簡潔明瞭，適合網頁閱讀。
如果用戶問及具體的醫療診斷，請禮貌地拒絕並建議尋求專業醫師協助，並將話題引導回人文層面（例如：疾病的心理影響、社會支持等）。
請使用繁體中文回答。`

const (
	DefaultWindow      = 6
	DefaultTemperature = 0.7
	DefaultTimeout     = 60 * time.Second
)

// Turn is one message of the conversation as sent to a backend.
type Turn struct {
	// Role is either model.RoleUser or model.RoleModel.
	Role string
	Text string
}

type Request struct {
	System      string
	History     []Turn
	Message     string
	Temperature float64
}

// Client is a chat completion backend.
type Client interface {
	Chat(ctx context.Context, req Request) (string, error)
}

type Option func(*Assistant)

func WithSystemPrompt(prompt string) Option {
	return func(a *Assistant) {
		if strings.TrimSpace(prompt) != "" {
			a.system = prompt
		}
	}
}

func WithWindow(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.window = n
		}
	}
}

func WithTemperature(t float64) Option {
	return func(a *Assistant) {
		if t > 0 {
			a.temperature = t
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(a *Assistant) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(a *Assistant) {
		if log != nil {
			a.log = log
		}
	}
}

type Assistant struct {
	client      Client
	system      string
	window      int
	temperature float64
	timeout     time.Duration
	log         *zap.Logger
}

// New accepts a nil client; Reply then always answers ReplyUnavailable.
func New(client Client, opts ...Option) *Assistant {
	a := &Assistant{
		client:      client,
		system:      DefaultSystemPrompt,
		window:      DefaultWindow,
		temperature: DefaultTemperature,
		timeout:     DefaultTimeout,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reply never fails: backend errors and empty answers are replaced by fixed apologies.
func (a *Assistant) Reply(ctx context.Context, history []model.ChatMessage, text string) string {
	if a.client == nil {
		a.log.Warn("chat backend is not configured")
		return ReplyUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	answer, err := a.client.Chat(ctx, Request{
		System:      a.system,
		History:     a.recent(history),
		Message:     text,
		Temperature: a.temperature,
	})
	if err != nil {
		a.log.Error("chat backend failed", zap.Error(err))
		return ReplyError
	}

	if strings.TrimSpace(answer) == "" {
		return ReplyEmpty
	}
	return answer
}

// recent drops the greeting and keeps the last window messages.
func (a *Assistant) recent(history []model.ChatMessage) []Turn {
	kept := lo.Filter(history, func(m model.ChatMessage, _ int) bool {
		return m.ID != model.WelcomeMessageID
	})
	if len(kept) > a.window {
		kept = kept[len(kept)-a.window:]
	}

	return lo.Map(kept, func(m model.ChatMessage, _ int) Turn {
		role := model.RoleUser
		if m.Role == model.RoleModel {
			role = model.RoleModel
		}
		return Turn{Role: role, Text: m.Text}
	})
}
