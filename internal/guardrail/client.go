package guardrail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shpitdev/transcript-digest/internal/core"
)

// Client calls the filter service's apply endpoint:
//
//	POST {endpoint}/guardrail/{identifier}/version/{version}/apply
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

type applyBody struct {
	Source  string         `json:"source"`
	Content []ContentBlock `json:"content"`
}

// NewClient constructs a client for the filter service at endpoint. token is optional and sent
// as a bearer token when set.
func NewClient(endpoint, token string, timeout time.Duration) (*Client, error) {
	u, err := parseBaseURL(endpoint)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: u,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("guardrail endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse guardrail endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("guardrail endpoint must include a host (got %q)", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func (c *Client) Apply(ctx context.Context, in ApplyRequest) (ApplyResponse, error) {
	if strings.TrimSpace(in.Identifier) == "" {
		return ApplyResponse{}, fmt.Errorf("guardrail identifier is required")
	}
	b, err := json.Marshal(applyBody{Source: in.Source, Content: in.Content})
	if err != nil {
		return ApplyResponse{}, err
	}

	rel := &url.URL{
		Path: fmt.Sprintf("guardrail/%s/version/%s/apply", in.Identifier, in.Version),
		RawPath: fmt.Sprintf(
			"guardrail/%s/version/%s/apply",
			url.PathEscape(in.Identifier),
			url.PathEscape(in.Version),
		),
	}
	u := c.baseURL.ResolveReference(rel)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(b))
	if err != nil {
		return ApplyResponse{}, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ApplyResponse{}, &core.TransientError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return ApplyResponse{}, err
	}
	if resp.StatusCode/100 != 2 {
		herr := newHTTPError("applyGuardrail", resp, rb)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return ApplyResponse{}, &core.TransientError{Err: herr}
		}
		return ApplyResponse{}, herr
	}

	var out ApplyResponse
	if err := json.Unmarshal(rb, &out); err != nil {
		return ApplyResponse{}, fmt.Errorf("parse apply guardrail response: %w", err)
	}
	return out, nil
}
