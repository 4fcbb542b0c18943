package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/shpitdev/transcript-digest/internal/core"
	"github.com/shpitdev/transcript-digest/internal/llm"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the API base URL (Azure/OpenAI-compatible gateways, tests).
	BaseURL string
}

// Client implements llm.Client with the chat completions API.
type Client struct {
	client *openai.Client
	model  string
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.GPT4oMini
	}
	oc := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if strings.TrimSpace(cfg.BaseURL) != "" {
		oc.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	}
	return &Client{
		client: openai.NewClientWithConfig(oc),
		model:  model,
	}, nil
}

func (c *Client) Invoke(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	resp, err := c.client.CreateChatCompletion(ctx, buildRequest(model, req))
	if err != nil {
		return llm.Response{Model: model}, classifyErr(err)
	}

	out := llm.Response{
		Model: resp.Model,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if out.Model == "" {
		out.Model = model
	}
	if len(resp.Choices) > 0 && resp.Choices[0].Message.Content != "" {
		out.Parts = append(out.Parts, llm.TextPart(resp.Choices[0].Message.Content))
	}
	return out, nil
}

func buildRequest(model string, req llm.Request) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == llm.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msg := openai.ChatCompletionMessage{Role: role}
		// Content and MultiContent are mutually exclusive on the wire.
		if len(m.Parts) == 1 {
			msg.Content = m.Parts[0].Text
		} else {
			for _, p := range m.Parts {
				msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: p.Text,
				})
			}
		}
		out.Messages = append(out.Messages, msg)
	}
	return out
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode/100 == 5 {
			return &core.TransientError{Err: err}
		}
		return err
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode/100 == 5 {
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return &core.TransientError{Err: err}
	}
	return err
}
