// internal/oracle/generator.go
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TextGenerator produces a free-text completion for a system and user prompt.
type TextGenerator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

const (
	defaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"
	defaultClaudeURL   = "https://api.anthropic.com/v1/messages"
	defaultOpenAIModel = "gpt-4o-mini"
	defaultClaudeModel = "claude-3-haiku-20240307"
)

type OpenAIGenerator struct {
	APIKey     string
	Model      string
	URL        string
	Retries    int
	RetryDelay time.Duration
	HTTPClient *http.Client
}

func NewOpenAIGenerator(apiKey, model, url string, retries int) *OpenAIGenerator {
	return &OpenAIGenerator{
		APIKey:     apiKey,
		Model:      valueOrDefault(model, defaultOpenAIModel),
		URL:        valueOrDefault(url, defaultOpenAIURL),
		Retries:    retries,
		RetryDelay: time.Second,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model": g.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	status, body, err := doWithRetry(ctx, g.Retries+1, g.RetryDelay, func() (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(b))
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
		return send(g.HTTPClient, req)
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("openAI API error (%d): %s", status, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return result.Choices[0].Message.Content, nil
}

type ClaudeGenerator struct {
	APIKey     string
	Model      string
	URL        string
	Retries    int
	RetryDelay time.Duration
	HTTPClient *http.Client
}

func NewClaudeGenerator(apiKey, model, url string, retries int) *ClaudeGenerator {
	return &ClaudeGenerator{
		APIKey:     apiKey,
		Model:      valueOrDefault(model, defaultClaudeModel),
		URL:        valueOrDefault(url, defaultClaudeURL),
		Retries:    retries,
		RetryDelay: time.Second,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (g *ClaudeGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model": g.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"system":      system,
		"max_tokens":  800,
		"temperature": 0.2,
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	status, body, err := doWithRetry(ctx, g.Retries+1, g.RetryDelay, func() (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(b))
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", g.APIKey)
		req.Header.Set("anthropic-version", "2023-06-01")
		return send(g.HTTPClient, req)
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("claude API error (%d): %s", status, string(body))
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("no response from Claude")
	}
	return result.Content[0].Text, nil
}

func send(client *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

type attemptFunc func() (status int, body []byte, err error)

// doWithRetry retries on transport errors and 429/5xx with exponential backoff.
func doWithRetry(ctx context.Context, attempts int, initialDelay time.Duration, fn attemptFunc) (int, []byte, error) {
	if attempts <= 0 {
		attempts = 1
	}
	if initialDelay <= 0 {
		initialDelay = time.Second
	}
	delay := initialDelay
	for i := 0; i < attempts; i++ {
		status, body, err := fn()
		if err == nil && status != http.StatusTooManyRequests && status < 500 {
			return status, body, nil
		}
		if i == attempts-1 {
			return status, body, err
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return status, body, ctx.Err()
		case <-t.C:
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
	return 0, nil, context.DeadlineExceeded
}

func valueOrDefault(val, def string) string {
	if val != "" {
		return val
	}
	return def
}
