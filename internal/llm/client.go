// Package llm provides a client for OpenAI-compatible chat completion APIs.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/leeaandrob/volwatch/internal/content"
)

const (
	DefaultEndpoint = "https://api.openai.com/v1"
	DefaultModel    = openai.GPT4oMini

	defaultTemperature = 0.3
	defaultMaxTokens   = 300
)

// Client wraps the OpenAI SDK.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	hasKey      bool
}

// Config holds the configuration for the client.
type Config struct {
	APIKey      string
	Endpoint    string
	Model       string
	Temperature float32
	MaxTokens   int
}

// NewClient creates a new chat client.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = cfg.Endpoint

	return &Client{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		hasKey:      strings.TrimSpace(cfg.APIKey) != "",
	}
}

// ChatRequest represents a chat completion request.
// Turns alternate user and assistant messages, starting with the user.
type ChatRequest struct {
	SystemPrompt string
	Turns        []string
	Temperature  float32
	MaxTokens    int
	JSONMode     bool
}

// ChatResponse represents a chat completion response.
type ChatResponse struct {
	Content      string
	FinishReason string
	TokensUsed   TokenUsage
}

// TokenUsage represents token usage statistics.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ErrNoChoices is returned when the API answers without any choice.
var ErrNoChoices = errors.New("no choices in response")

// Chat sends a chat completion request.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !c.hasKey {
		return nil, content.ErrMissingCredentials
	}

	messages := []openai.ChatCompletionMessage{}

	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for i, turn := range req.Turns {
		role := openai.ChatMessageRoleUser
		if i%2 == 1 {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn,
		})
	}

	temperature := req.Temperature
	if temperature <= 0 {
		temperature = c.temperature
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
	}

	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	log.Debug().
		Str("model", c.model).
		Int("messages", len(messages)).
		Bool("json_mode", req.JSONMode).
		Msg("Sending chat request")

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	return &ChatResponse{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		TokensUsed: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// ChatJSON sends a chat request and parses the response as JSON.
func (c *Client) ChatJSON(ctx context.Context, req ChatRequest, result interface{}) error {
	req.JSONMode = true

	resp, err := c.Chat(ctx, req)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(resp.Content), result); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return nil
}

// GenerateCandidate returns the raw JSON content of one completion.
func (c *Client) GenerateCandidate(ctx context.Context, system string, turns []string) (string, error) {
	resp, err := c.Chat(ctx, ChatRequest{
		SystemPrompt: system,
		Turns:        turns,
		JSONMode:     true,
	})
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("finish_reason", resp.FinishReason).
		Int("tokens", resp.TokensUsed.TotalTokens).
		Msg("Candidate received")

	return resp.Content, nil
}

var _ content.CandidateGenerator = (*Client)(nil)
