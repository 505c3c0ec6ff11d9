package openai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
)

type fakeCompleter struct {
	requests []goopenai.ChatCompletionRequest
	resp     goopenai.ChatCompletionResponse
	err      error
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

func TestGeneratorRequest(t *testing.T) {
	fake := &fakeCompleter{resp: goopenai.ChatCompletionResponse{
		Choices: []goopenai.ChatCompletionChoice{{Message: goopenai.ChatCompletionMessage{Content: ` {"rating": 90} `}}},
	}}
	g := newGenerator(fake, Config{}, zap.NewNop())

	out, err := g.GenerateContent(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"rating": 90}` {
		t.Fatalf("unexpected output %q", out)
	}

	req := fake.requests[0]
	if req.Model != defaultModel || req.Temperature != defaultTemperature || req.MaxTokens != defaultMaxOutputTokens {
		t.Fatalf("unexpected request settings: %+v", req)
	}
	if req.ResponseFormat == nil || req.ResponseFormat.Type != goopenai.ChatCompletionResponseFormatTypeJSONObject {
		t.Fatalf("expected json_object response format")
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != goopenai.ChatMessageRoleUser || req.Messages[0].Content != "prompt" {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}
}

func TestGeneratorClassifiesErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{name: "api error", err: &goopenai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}, unavailable: true},
		{name: "request error", err: &goopenai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}, unavailable: true},
		{name: "deadline", err: context.DeadlineExceeded, unavailable: true},
		{name: "other", err: errors.New("marshal failure"), unavailable: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g := newGenerator(&fakeCompleter{err: tc.err}, Config{Model: "gpt-test"}, zap.NewNop())
			_, err := g.GenerateContent(context.Background(), "p")
			if got := errors.Is(err, ai.ErrUnavailable); got != tc.unavailable {
				t.Fatalf("expected unavailable=%v, got %v (%v)", tc.unavailable, got, err)
			}
		})
	}
}

func TestGeneratorNoChoices(t *testing.T) {
	g := newGenerator(&fakeCompleter{}, Config{}, nil)
	out, err := g.GenerateContent(context.Background(), "p")
	if err != nil || out != "" {
		t.Fatalf("expected empty answer, got %q, %v", out, err)
	}
	if g.Provider() != "openai" || g.Model() != defaultModel {
		t.Fatalf("unexpected identity %s/%s", g.Provider(), g.Model())
	}
}

func TestNewGeneratorRequiresKey(t *testing.T) {
	if _, err := NewGenerator(Config{APIKey: "  "}, nil); err == nil {
		t.Fatalf("expected error without api key")
	}
}
