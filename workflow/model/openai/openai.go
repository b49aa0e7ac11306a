// Package openai adapts OpenAI's chat completions API to the
// model.ChatModel contract.
package openai

import (
	"context"
	"errors"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dshills/sagaflow-go/workflow/model"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-4o"

// ChatModel implements model.ChatModel against the OpenAI API.
//
// Example:
//
//	m := openai.NewChatModel(os.Getenv("OPENAI_API_KEY"), "gpt-4o")
//	out, err := m.Complete(ctx, []model.Message{
//	    {Role: model.RoleUser, Content: "Summarize the diff."},
//	})
type ChatModel struct {
	client    openaisdk.Client
	modelName string
	apiKey    string
}

// NewChatModel creates an OpenAI-backed chat model. An empty modelName
// selects DefaultModel.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{
		client:    openaisdk.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
		apiKey:    apiKey,
	}
}

// Complete implements model.ChatModel.
func (m *ChatModel) Complete(ctx context.Context, messages []model.Message) (model.Out, error) {
	if ctx.Err() != nil {
		return model.Out{}, ctx.Err()
	}
	if m.apiKey == "" {
		return model.Out{}, errors.New("OpenAI API key is required")
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(m.modelName),
		Messages: convertMessages(messages),
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.Out{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.Out{}, errors.New("OpenAI API returned no choices")
	}

	choice := resp.Choices[0]
	return model.Out{
		Text: choice.Message.Content,
		Done: choice.FinishReason == "stop",
	}, nil
}

func convertMessages(messages []model.Message) []openaisdk.ChatCompletionMessageParamUnion {
	result := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result[i] = openaisdk.SystemMessage(msg.Content)
		case model.RoleAssistant:
			result[i] = openaisdk.AssistantMessage(msg.Content)
		default:
			result[i] = openaisdk.UserMessage(msg.Content)
		}
	}
	return result
}
