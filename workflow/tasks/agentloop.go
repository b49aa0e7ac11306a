package tasks

import (
	"context"
	"strings"

	"github.com/dshills/sagaflow-go/workflow"
	"github.com/dshills/sagaflow-go/workflow/model"
)

// defaultMaxIterations bounds the reasoning loop when no explicit
// limit is configured.
const defaultMaxIterations = 5

// AgentLoopTask runs a bounded AI reasoning loop as a workflow task.
//
// Each iteration sends the conversation so far to the chat model and
// appends the response plus a continuation prompt. The loop stops when
// the model signals it is done, the iteration bound is hit, or the
// task is cancelled. The loop itself is read-only; mutations belong in
// dedicated tasks so their compensations are explicit.
type AgentLoopTask struct {
	id            workflow.TaskID
	name          string
	deps          []workflow.TaskID
	query         string
	systemPrompt  string
	chat          model.ChatModel
	maxIterations int

	transcript []model.Message
}

// NewAgentLoopTask creates an agent loop answering the given query
// with the given chat model.
func NewAgentLoopTask(id workflow.TaskID, name, query string, chat model.ChatModel) *AgentLoopTask {
	return &AgentLoopTask{
		id:            id,
		name:          name,
		query:         query,
		chat:          chat,
		maxIterations: defaultMaxIterations,
	}
}

// WithSystemPrompt sets the system prompt for the conversation.
func (t *AgentLoopTask) WithSystemPrompt(prompt string) *AgentLoopTask {
	t.systemPrompt = prompt
	return t
}

// WithMaxIterations bounds the loop.
func (t *AgentLoopTask) WithMaxIterations(n int) *AgentLoopTask {
	if n > 0 {
		t.maxIterations = n
	}
	return t
}

// DependsOn declares dependency hints consumed by the Builder.
func (t *AgentLoopTask) DependsOn(ids ...workflow.TaskID) *AgentLoopTask {
	t.deps = append(t.deps, ids...)
	return t
}

// Query returns the loop's query.
func (t *AgentLoopTask) Query() string {
	return t.query
}

// Transcript returns the conversation from the last execution.
func (t *AgentLoopTask) Transcript() []model.Message {
	return t.transcript
}

// Answer returns the final assistant turn of the last execution, or
// the empty string.
func (t *AgentLoopTask) Answer() string {
	for i := len(t.transcript) - 1; i >= 0; i-- {
		if t.transcript[i].Role == model.RoleAssistant {
			return t.transcript[i].Content
		}
	}
	return ""
}

// ID implements workflow.Task.
func (t *AgentLoopTask) ID() workflow.TaskID {
	return t.id
}

// Name implements workflow.Task.
func (t *AgentLoopTask) Name() string {
	return t.name
}

// Dependencies implements workflow.Task.
func (t *AgentLoopTask) Dependencies() []workflow.TaskID {
	return t.deps
}

// Execute implements workflow.Task.
func (t *AgentLoopTask) Execute(ctx context.Context, tc *workflow.TaskContext) (workflow.TaskResult, error) {
	if t.chat == nil {
		return workflow.TaskResult{}, &workflow.TaskError{
			Message: "no chat model configured",
			Code:    "CHAT_MODEL_MISSING",
			TaskID:  t.id,
		}
	}

	messages := make([]model.Message, 0, t.maxIterations*2+2)
	if t.systemPrompt != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: t.systemPrompt})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: t.query})

	for i := 0; i < t.maxIterations; i++ {
		if tc.Cancelled() || ctx.Err() != nil {
			t.transcript = messages
			return workflow.Skipped("cancelled mid-loop"), nil
		}

		out, err := t.chat.Complete(ctx, messages)
		if err != nil {
			t.transcript = messages
			return workflow.TaskResult{}, &workflow.TaskError{
				Message: "chat completion failed",
				Code:    "CHAT_COMPLETION_FAILED",
				TaskID:  t.id,
				Cause:   err,
			}
		}

		messages = append(messages, model.Message{Role: model.RoleAssistant, Content: out.Text})
		if out.Done || strings.TrimSpace(out.Text) == "" {
			break
		}
		messages = append(messages, model.Message{
			Role:    model.RoleUser,
			Content: "Continue. Reply with your final answer when done.",
		})
	}

	t.transcript = messages
	return workflow.Success(), nil
}

// Compensation implements workflow.Task: the loop is read-only.
func (t *AgentLoopTask) Compensation() *workflow.Compensation {
	return workflow.SkipCompensation("read-only agent loop")
}
