// Package anthropic adapts Anthropic's Claude API to the model.ChatModel
// contract.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/sagaflow-go/workflow/model"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "claude-sonnet-4-5-20250929"

// defaultMaxTokens bounds response length.
const defaultMaxTokens = 4096

// ChatModel implements model.ChatModel against the Anthropic API.
//
// The system prompt is extracted from the message list and sent via
// Anthropic's dedicated system parameter.
//
// Example:
//
//	m := anthropic.NewChatModel(os.Getenv("ANTHROPIC_API_KEY"), "")
//	out, err := m.Complete(ctx, []model.Message{
//	    {Role: model.RoleUser, Content: "Summarize the diff."},
//	})
type ChatModel struct {
	client    anthropicsdk.Client
	modelName string
	apiKey    string
}

// NewChatModel creates a Claude-backed chat model. An empty modelName
// selects DefaultModel.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{
		client:    anthropicsdk.NewClient(option.WithAPIKey(apiKey)),
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
		return model.Out{}, errors.New("anthropic API key is required")
	}

	systemPrompt, conversation := splitSystemPrompt(messages)

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(m.modelName),
		Messages:  convertMessages(conversation),
		MaxTokens: defaultMaxTokens,
	}
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return model.Out{}, fmt.Errorf("anthropic API error: %w", err)
	}

	out := model.Out{Done: resp.StopReason == "end_turn"}
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += b.Text
		}
	}
	return out, nil
}

// splitSystemPrompt separates system messages from the conversation;
// Anthropic expects them as a dedicated parameter, not in the message
// array. Multiple system messages are concatenated.
func splitSystemPrompt(messages []model.Message) (string, []model.Message) {
	var system string
	var conversation []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		conversation = append(conversation, msg)
	}
	return system, conversation
}

func convertMessages(messages []model.Message) []anthropicsdk.MessageParam {
	result := make([]anthropicsdk.MessageParam, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleAssistant:
			result[i] = anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(msg.Content))
		default:
			result[i] = anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Content))
		}
	}
	return result
}
