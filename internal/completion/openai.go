package completion

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	appErr "github.com/branchcanvas/engine/pkg/errors"
	"github.com/branchcanvas/engine/pkg/logger"
)

// OpenAIGateway implements Gateway on the OpenAI chat completion API.
type OpenAIGateway struct {
	client *openai.Client
	model  string
}

// NewOpenAIGateway fails fast when no API key is configured: a missing key
// is a precondition error, never discovered mid-operation.
func NewOpenAIGateway(apiKey, model string) (*OpenAIGateway, error) {
	if apiKey == "" {
		return nil, appErr.New(appErr.CodePrecondition, "missing OpenAI API key, set OPENAI_API_KEY")
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIGateway{client: openai.NewClient(apiKey), model: model}, nil
}

var _ Gateway = (*OpenAIGateway)(nil)

func (g *OpenAIGateway) Complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: toChatMessages(messages),
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		logger.L().Error("completion request failed", zap.Error(err), zap.Int("context_len", len(messages)))
		return "", appErr.Wrap(err, appErr.CodeUnavailable, "completion request failed")
	}
	if len(resp.Choices) == 0 {
		return "", appErr.New(appErr.CodeUnavailable, "completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func toChatMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
