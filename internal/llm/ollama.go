// Package llm talks to a local Ollama instance. Every call is best-effort:
// callers treat failures as "no AI output", never as a reason to drop a
// notification.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type Client struct {
	baseURL string
	model   string
	http    *http.Client
}

func NewClient(baseURL, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

type chatReq struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *Options  `json:"options,omitempty"`
}

type chatResp struct {
	Message Message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

// Chat runs a multi-turn conversation call.
func (c *Client) Chat(ctx context.Context, messages []Message, opt *Options) (string, error) {
	var out chatResp
	if err := c.post(ctx, "/api/chat", chatReq{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options:  opt,
	}, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	return out.Message.Content, nil
}

type generateReq struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *Options `json:"options,omitempty"`
}

type generateResp struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Generate runs a single-shot completion call.
func (c *Client) Generate(ctx context.Context, prompt string, opt *Options) (string, error) {
	var out generateResp
	if err := c.post(ctx, "/api/generate", generateReq{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: opt,
	}, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	return out.Response, nil
}

// Ping checks whether Ollama is reachable at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ollama: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ollama: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
