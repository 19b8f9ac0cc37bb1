// Package openaiclient implements the assistant client against the OpenAI
// Assistants API.
package openaiclient

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pulseform/pulseform/internal/assistant/domain"
	"github.com/pulseform/pulseform/internal/config"
)

type Client struct {
	api openai.Client
}

// New builds a client from the configured API key.
func New(cfg config.Config) *Client {
	api := openai.NewClient(option.WithAPIKey(cfg.Assistant.APIKey))
	return &Client{api: api}
}

func (c *Client) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.api.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}

func (c *Client) PostMessage(ctx context.Context, threadID, role, text string) error {
	msgRole := openai.BetaThreadMessageNewParamsRoleUser
	if role == domain.RoleAssistant {
		msgRole = openai.BetaThreadMessageNewParamsRoleAssistant
	}
	_, err := c.api.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: msgRole,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(text),
		},
	})
	return err
}

func (c *Client) CreateRun(ctx context.Context, threadID, assistantID, instructions string) (string, error) {
	params := openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	}
	if strings.TrimSpace(instructions) != "" {
		params.Instructions = openai.String(instructions)
	}
	run, err := c.api.Beta.Threads.Runs.New(ctx, threadID, params)
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

func (c *Client) RetrieveRun(ctx context.Context, threadID, runID string) (domain.RunState, error) {
	run, err := c.api.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return domain.RunState{}, err
	}
	state := domain.RunState{
		ID:     run.ID,
		Status: domain.RunStatus(run.Status),
		Model:  run.Model,
	}
	state.PromptTokens = run.Usage.PromptTokens
	state.CompletionTokens = run.Usage.CompletionTokens
	return state, nil
}

func (c *Client) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	page, err := c.api.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderDesc,
		Limit: openai.Int(10),
	})
	if err != nil {
		return "", err
	}
	for _, msg := range page.Data {
		if string(msg.Role) != domain.RoleAssistant {
			continue
		}
		var sb strings.Builder
		for _, part := range msg.Content {
			if part.Type == "text" {
				sb.WriteString(part.Text.Value)
			}
		}
		if sb.Len() > 0 {
			return sb.String(), nil
		}
	}
	return "", domain.ErrEmptyReply
}

func (c *Client) CancelRun(ctx context.Context, threadID, runID string) error {
	_, err := c.api.Beta.Threads.Runs.Cancel(ctx, threadID, runID)
	return err
}
