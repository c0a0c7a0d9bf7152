// Package llm wraps the Gemini API for the agentic matching stage: credential
// rotation, per-credential rate limiting, retry with backoff, and tolerant
// parsing of model output.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

var (
	// ErrRateLimited marks a transient quota failure after retries.
	ErrRateLimited = errors.New("model rate limited")
	// ErrCredential marks an auth failure; the key is out for the run.
	ErrCredential = errors.New("credential rejected")
	// ErrNoCredentials means every configured key has been invalidated.
	ErrNoCredentials = errors.New("no usable credentials remain")
)

// retryBackoff is the delay ladder between same-model retry attempts.
var retryBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Client issues Gemini completions with key rotation.
type Client struct {
	keys *KeyManager
	log  *zap.SugaredLogger

	mu       sync.Mutex
	clients  map[string]*genai.Client
	limiters map[string]*rate.Limiter
}

// NewClient builds a Client over the configured API keys.
func NewClient(keys []string, log *zap.SugaredLogger) *Client {
	return &Client{
		keys:     NewKeyManager(keys),
		log:      log,
		clients:  make(map[string]*genai.Client),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Workers returns the parallelism the credential pool supports.
func (c *Client) Workers() int {
	n := c.keys.ActiveCount()
	if n < 1 {
		n = 1
	}
	return n
}

// Close releases all cached API clients.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cl := range c.clients {
		cl.Close()
	}
	c.clients = make(map[string]*genai.Client)
}

// Generate sends one system+user prompt to the named model, retrying rate
// limits with backoff on the same credential, and returns the raw text.
func (c *Client) Generate(ctx context.Context, model, system, user string) (string, error) {
	key := c.keys.Next()
	if key == "" {
		return "", ErrNoCredentials
	}

	limiter := c.limiterFor(key)
	var lastErr error

	for attempt := 0; attempt <= len(retryBackoff); attempt++ {
		if attempt > 0 {
			delay := retryBackoff[attempt-1]
			c.log.Debugw("retrying after backoff", "model", model, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if err := limiter.Wait(ctx); err != nil {
			return "", err
		}

		text, err := c.generateOnce(ctx, key, model, system, user)
		if err == nil {
			return text, nil
		}
		lastErr = err

		switch {
		case isAuthError(err):
			c.keys.MarkInvalid(key)
			c.log.Warnw("credential rejected, removing from pool", "model", model)
			return "", fmt.Errorf("%w: %v", ErrCredential, err)
		case isRateLimitError(err):
			continue
		default:
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %v", ErrRateLimited, lastErr)
}

func (c *Client) generateOnce(ctx context.Context, key, model, system, user string) (string, error) {
	client, err := c.clientFor(ctx, key)
	if err != nil {
		return "", err
	}

	m := client.GenerativeModel(model)
	m.SetTemperature(0.1)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	m.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("model %s returned no candidates", model)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

func (c *Client) clientFor(ctx context.Context, key string) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[key]; ok {
		return cl, nil
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}
	c.clients[key] = cl
	return cl, nil
}

func (c *Client) limiterFor(key string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.limiters[key]; ok {
		return l
	}
	// Free-tier Gemini allows roughly 15 requests per minute per key.
	l := rate.NewLimiter(rate.Every(4*time.Second), 2)
	c.limiters[key] = l
	return l
}

func isRateLimitError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "503")
}

func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "401") ||
		strings.Contains(msg, "403") ||
		strings.Contains(msg, "api key not valid") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "unauthenticated")
}
