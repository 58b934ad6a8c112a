package assistant

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ollama/ollama/api"

	"github.com/0x0BSoD/medhum/internal/model"
)

type OllamaClient struct {
	client *api.Client
	model  string
	mu     sync.Mutex
}

// NewOllamaClient accepts either a bare host:port or a full URL.
func NewOllamaClient(baseURL, model string) (*OllamaClient, error) {
	raw := baseURL
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url %q: %w", baseURL, err)
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return &OllamaClient{
		client: api.NewClient(u, &http.Client{}),
		model:  model,
	}, nil
}

func (o *OllamaClient) Chat(ctx context.Context, req Request) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	messages := make([]api.Message, 0, len(req.History)+2)
	messages = append(messages, api.Message{Role: "system", Content: req.System})
	for _, turn := range req.History {
		role := "user"
		if turn.Role == model.RoleModel {
			role = "assistant"
		}
		messages = append(messages, api.Message{Role: role, Content: turn.Text})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Message})

	stream := false
	chatReq := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options:  map[string]any{"temperature": req.Temperature},
	}

	var sb strings.Builder
	err := o.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}

	return sb.String(), nil
}
