package dateresolve

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/h1v3-io/jirabot/pkg/protocol"
)

const extractPrompt = "Extract the due date in format YYYY-MM-DD only."

// LLMResolver asks an OpenAI-compatible chat completion endpoint to
// rewrite the text as a YYYY-MM-DD date.
type LLMResolver struct {
	client  openai.Client
	model   string
	now     func() time.Time
	reqOpts []option.RequestOption
}

// LLMOption configures an LLMResolver.
type LLMOption func(*LLMResolver)

// WithModel sets the chat model.
func WithModel(model string) LLMOption {
	return func(r *LLMResolver) { r.model = model }
}

// WithBaseURL points the client at a different OpenAI-compatible API.
func WithBaseURL(url string) LLMOption {
	return func(r *LLMResolver) { r.reqOpts = append(r.reqOpts, option.WithBaseURL(url)) }
}

// WithRequestOptions appends raw client options.
func WithRequestOptions(opts ...option.RequestOption) LLMOption {
	return func(r *LLMResolver) { r.reqOpts = append(r.reqOpts, opts...) }
}

// WithLLMClock sets the clock used to tell the model what today is.
func WithLLMClock(now func() time.Time) LLMOption {
	return func(r *LLMResolver) { r.now = now }
}

// NewLLM creates an LLMResolver.
func NewLLM(apiKey string, opts ...LLMOption) *LLMResolver {
	r := &LLMResolver{
		model: string(openai.ChatModelGPT3_5Turbo),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, r.reqOpts...)
	r.client = openai.NewClient(clientOpts...)
	return r
}

func (r *LLMResolver) Name() string { return "llm" }

func (r *LLMResolver) Resolve(ctx context.Context, text string) (time.Time, error) {
	system := fmt.Sprintf("%s Today is %s.", extractPrompt, r.now().UTC().Format(protocol.DateLayout))

	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(text),
		},
		MaxTokens: openai.Int(10),
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("dateresolve: llm: %w", err)
	}
	if len(resp.Choices) == 0 {
		return time.Time{}, fmt.Errorf("%w: llm returned no choices", ErrUnresolvable)
	}
	return Normalize(resp.Choices[0].Message.Content)
}
