// Package llm talks to the hosted text-generation provider through its
// OpenAI-compatible chat-completions API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// ErrEmptyResponse is returned when the provider answers without any choice.
var ErrEmptyResponse = errors.New("provider returned no choices")

// Schema constrains a response to a JSON schema.
type Schema struct {
	Name       string
	Definition *jsonschema.Definition
}

// Request is a single-turn prompt.
type Request struct {
	Model  string
	System string
	Prompt string
	Schema *Schema // optional
}

// Observer receives one callback per provider call.
type Observer func(model, op string, err error, elapsed time.Duration)

// Client wraps the go-openai client. Calls are never retried.
type Client struct {
	api      *openai.Client
	observer Observer
}

// NewClient creates a client for apiKey. An empty baseURL selects DefaultBaseURL.
func NewClient(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return &Client{api: openai.NewClientWithConfig(cfg)}
}

// SetObserver installs a callback invoked after every call.
func (c *Client) SetObserver(o Observer) {
	c.observer = o
}

func (c *Client) observe(model, op string, err error, start time.Time) {
	if c.observer != nil {
		c.observer(model, op, err, time.Since(start))
	}
}

func buildRequest(req Request) openai.ChatCompletionRequest {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: msgs,
	}
	if req.Schema != nil {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Schema.Name,
				Schema: req.Schema.Definition,
			},
		}
	}
	return out
}

// Generate sends the prompt and returns the full response text.
func (c *Client) Generate(ctx context.Context, req Request) (text string, err error) {
	start := time.Now()
	defer func() { c.observe(req.Model, "generate", err, start) }()

	resp, err := c.api.CreateChatCompletion(ctx, buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("chat completion with %s: %w", req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream sends the prompt and calls onDelta with each content fragment in
// arrival order. It returns the concatenated text once the stream ends. An
// error from onDelta aborts the stream and is returned.
func (c *Client) Stream(ctx context.Context, req Request, onDelta func(string) error) (text string, err error) {
	start := time.Now()
	defer func() { c.observe(req.Model, "stream", err, start) }()

	stream, err := c.api.CreateChatCompletionStream(ctx, buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("opening stream with %s: %w", req.Model, err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("reading stream from %s: %w", req.Model, err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return "", err
			}
		}
	}
}
