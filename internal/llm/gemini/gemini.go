package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/shpitdev/transcript-digest/internal/core"
	"github.com/shpitdev/transcript-digest/internal/llm"
	"google.golang.org/genai"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Client implements llm.Client on top of the Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("gemini model is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Client{
		client: client,
		model:  strings.TrimSpace(cfg.Model),
	}, nil
}

func (c *Client) Invoke(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	resp, err := c.client.Models.GenerateContent(ctx, model, buildContents(req.Messages), buildConfig(req))
	if err != nil {
		return llm.Response{Model: model}, classifyErr(err)
	}
	return toResponse(model, resp), nil
}

func buildContents(msgs []llm.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		parts := make([]*genai.Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			parts = append(parts, &genai.Part{Text: p.Text})
		}
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out
}

func buildConfig(req llm.Request) *genai.GenerateContentConfig {
	temp := req.Temperature
	cfg := &genai.GenerateContentConfig{
		CandidateCount: 1,
		Temperature:    &temp,
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg
}

func toResponse(model string, resp *genai.GenerateContentResponse) llm.Response {
	out := llm.Response{Model: model}
	if resp == nil {
		return out
	}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return out
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought || p.Text == "" {
			continue
		}
		out.Parts = append(out.Parts, llm.TextPart(p.Text))
	}
	return out
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	// Wrap transient failures so the batch worker pool retries with backoff.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
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
