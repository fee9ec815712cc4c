package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Compile-time assertion that GenAIClient implements Client.
var _ Client = (*GenAIClient)(nil)

// GenAIClient implements Client against Google's Gemini API.
type GenAIClient struct {
	client      *genai.Client
	model       string
	temperature float32
	log         *zap.Logger

	// Minimum spacing between requests, independent of the caller's
	// retry policy. Providers shed load less often when we self-pace.
	mu          sync.Mutex
	minInterval time.Duration
	lastRequest time.Time
}

// GenAIConfig holds configuration for the Gemini client.
type GenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MinInterval time.Duration
}

// DefaultGenAIConfig returns sensible defaults for long-form drafting.
func DefaultGenAIConfig(apiKey string) GenAIConfig {
	return GenAIConfig{
		APIKey:      apiKey,
		Model:       "gemini-2.5-pro",
		Temperature: 0.3,
		MinInterval: 500 * time.Millisecond,
	}
}

// NewGenAIClient creates a Gemini-backed completion client.
func NewGenAIClient(ctx context.Context, cfg GenAIConfig, log *zap.Logger) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGenAIConfig("").Model
	}
	if log == nil {
		log = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIClient{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		log:         log,
		minInterval: cfg.MinInterval,
	}, nil
}

// Complete sends the conversation and returns the full response text.
func (c *GenAIClient) Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	c.pace()

	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("GenAI completion failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("GenAI returned an empty completion")
	}
	c.log.Debug("Completion finished",
		zap.String("model", c.model),
		zap.Int("response_chars", len(text)),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}

// pace enforces the minimum spacing between requests. Each caller
// reserves its send slot under the lock and sleeps outside it, so a
// waiting request never blocks other callers on the mutex.
func (c *GenAIClient) pace() {
	if c.minInterval <= 0 {
		return
	}
	c.mu.Lock()
	now := time.Now()
	slot := c.lastRequest.Add(c.minInterval)
	if slot.Before(now) {
		slot = now
	}
	c.lastRequest = slot
	c.mu.Unlock()

	time.Sleep(time.Until(slot))
}
