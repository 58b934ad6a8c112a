package assistant_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0BSoD/medhum/internal/assistant"
	"github.com/0x0BSoD/medhum/internal/model"
)

type fakeClient struct {
	answer string
	err    error
	block  bool
	got    assistant.Request
}

func (f *fakeClient) Chat(ctx context.Context, req assistant.Request) (string, error) {
	f.got = req
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.answer, f.err
}

func conversation(n int) []model.ChatMessage {
	msgs := []model.ChatMessage{{ID: model.WelcomeMessageID, Role: model.RoleModel, Text: "hello"}}
	for i := range n {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleModel
		}
		msgs = append(msgs, model.ChatMessage{ID: string(rune('a' + i)), Role: role, Text: string(rune('a' + i))})
	}
	return msgs
}

func TestReply_NoClient(t *testing.T) {
	a := assistant.New(nil)
	assert.Equal(t, assistant.ReplyUnavailable, a.Reply(context.Background(), nil, "hi"))
}

func TestReply_ForwardsRequest(t *testing.T) {
	client := &fakeClient{answer: "answer"}
	a := assistant.New(client)

	got := a.Reply(context.Background(), conversation(3), "question")
	assert.Equal(t, "answer", got)

	assert.Equal(t, assistant.DefaultSystemPrompt, client.got.System)
	assert.Equal(t, "question", client.got.Message)
	assert.InDelta(t, 0.7, client.got.Temperature, 1e-9)
	assert.Equal(t, []assistant.Turn{
		{Role: model.RoleUser, Text: "a"},
		{Role: model.RoleModel, Text: "b"},
		{Role: model.RoleUser, Text: "c"},
	}, client.got.History)
}

func TestReply_HistoryWindow(t *testing.T) {
	client := &fakeClient{answer: "ok"}
	a := assistant.New(client)

	a.Reply(context.Background(), conversation(10), "q")
	require.Len(t, client.got.History, assistant.DefaultWindow)
	assert.Equal(t, "e", client.got.History[0].Text)
	assert.Equal(t, "j", client.got.History[5].Text)

	a = assistant.New(client, assistant.WithWindow(2))
	a.Reply(context.Background(), conversation(10), "q")
	assert.Equal(t, []assistant.Turn{
		{Role: model.RoleUser, Text: "i"},
		{Role: model.RoleModel, Text: "j"},
	}, client.got.History)
}

func TestReply_WindowCountsEveryMessageButWelcome(t *testing.T) {
	client := &fakeClient{answer: "ok"}
	a := assistant.New(client, assistant.WithWindow(3))

	history := []model.ChatMessage{
		{ID: model.WelcomeMessageID, Role: model.RoleModel, Text: "hello"},
		{ID: "1", Role: model.RoleUser, Text: "first"},
		{ID: "2", Role: model.RoleModel, Text: ""},
		{ID: "3", Role: model.RoleUser, Text: "second"},
		{ID: "4", Role: model.RoleModel, Text: "reply"},
	}
	a.Reply(context.Background(), history, "q")

	assert.Equal(t, []assistant.Turn{
		{Role: model.RoleModel, Text: ""},
		{Role: model.RoleUser, Text: "second"},
		{Role: model.RoleModel, Text: "reply"},
	}, client.got.History)
}

func TestReply_Fallbacks(t *testing.T) {
	cases := map[string]struct {
		client *fakeClient
		want   string
	}{
		"backend error": {&fakeClient{err: errors.New("boom")}, assistant.ReplyError},
		"empty answer":  {&fakeClient{answer: "  \n"}, assistant.ReplyEmpty},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			a := assistant.New(tc.client)
			assert.Equal(t, tc.want, a.Reply(context.Background(), nil, "q"))
		})
	}
}

func TestReply_Timeout(t *testing.T) {
	a := assistant.New(&fakeClient{block: true}, assistant.WithTimeout(20*time.Millisecond))
	assert.Equal(t, assistant.ReplyError, a.Reply(context.Background(), nil, "q"))
}

func TestOptions(t *testing.T) {
	client := &fakeClient{answer: "ok"}
	a := assistant.New(client,
		assistant.WithSystemPrompt("custom"),
		assistant.WithTemperature(0.2),
		assistant.WithWindow(0),
	)

	a.Reply(context.Background(), conversation(8), "q")
	assert.Equal(t, "custom", client.got.System)
	assert.InDelta(t, 0.2, client.got.Temperature, 1e-9)
	assert.Len(t, client.got.History, assistant.DefaultWindow)
}
