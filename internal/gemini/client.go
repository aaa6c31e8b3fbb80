package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-1.5-flash"
	requestTimeout = 90 * time.Second
)

// ErrNoAPIKey signals that no credential is configured; callers degrade to
// their deterministic fallback instead of treating this as a failure.
var ErrNoAPIKey = errors.New("gemini: api key not configured")

// ErrNoModelAvailable signals that every model/version candidate answered 404.
var ErrNoModelAvailable = errors.New("gemini: no available model/endpoint")

// apiVersions are probed in order; older stable endpoints come last.
var apiVersions = []string{"v1beta", "v1"}

// fallbackModels are tried after the configured model, newest first.
var fallbackModels = []string{
	"gemini-2.5-flash",
	"gemini-2.0-flash",
	"gemini-1.5-flash-latest",
	"gemini-1.5-flash",
}

// Client calls the Gemini generateContent endpoint, probing an ordered list
// of model/version candidates: a 404 means "try the next candidate", any
// other failure is terminal for the whole request.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewClient builds a Client. An empty apiKey yields a disabled client; an
// empty model falls back to the default.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// Enabled reports whether a credential is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMIMEType string  `json:"response_mime_type"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// CompleteJSON sends prompt and returns the first JSON object extracted from
// the model's reply, tolerating code-fence wrapping and surrounding prose.
func (c *Client) CompleteJSON(ctx context.Context, prompt string) ([]byte, error) {
	if !c.Enabled() {
		return nil, ErrNoAPIKey
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      0.6,
			ResponseMIMEType: "application/json",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	for _, version := range apiVersions {
		for _, model := range c.candidates() {
			url := fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s", c.baseURL, version, model, c.apiKey)
			respBody, status, err := c.post(ctx, url, body)
			if err != nil {
				return nil, err
			}
			if status == http.StatusNotFound {
				continue
			}
			if status < 200 || status >= 300 {
				return nil, fmt.Errorf("gemini %s/%s: status %d: %s", version, model, status, truncate(respBody, 200))
			}
			return extractJSON(respBody)
		}
	}
	return nil, ErrNoModelAvailable
}

// candidates is the configured model followed by the known fallbacks,
// deduplicated preserving order.
func (c *Client) candidates() []string {
	seen := make(map[string]bool, len(fallbackModels)+1)
	models := make([]string, 0, len(fallbackModels)+1)
	for _, m := range append([]string{c.model}, fallbackModels...) {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		models = append(models, m)
	}
	return models
}

func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// extractJSON pulls the reply text out of the response envelope and trims it
// down to the outermost {...} object.
func extractJSON(respBody []byte) ([]byte, error) {
	var envelope generateResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Candidates) == 0 || len(envelope.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	cleaned := strings.TrimSpace(envelope.Candidates[0].Content.Parts[0].Text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if strings.HasPrefix(cleaned, "{") && strings.HasSuffix(cleaned, "}") {
		return []byte(cleaned), nil
	}
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start != -1 && end > start {
		return []byte(cleaned[start : end+1]), nil
	}
	return nil, fmt.Errorf("response is not valid JSON")
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
