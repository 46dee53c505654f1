// Package gateway wraps a single call to the language-generation backend:
// it bounds the wait, cancels the in-flight request on timeout, and
// reports latency and token usage. Failures are signalled through the
// result, never as an error; empty text means the caller should fall
// back to canned content. The gateway performs no retries.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adalundhe/sway/core/prompt"
	"github.com/adalundhe/sway/core/providers"
)

// DefaultTimeout bounds one generation call.
const DefaultTimeout = 12 * time.Second

// Result is the outcome of one generation call. TimedOut distinguishes a
// cancelled call from a backend error; both leave Text empty and are
// treated identically by the caller.
type Result struct {
	Text      string
	TokenIn   int
	TokenOut  int
	LatencyMs int64
	TimedOut  bool
}

// Config configures a Gateway.
type Config struct {
	Provider  providers.Provider
	Timeout   time.Duration
	MaxTokens int

	// TestMode skips the backend entirely and returns an empty result,
	// routing every agent through the fallback path. It keeps
	// non-production flows usable without credentials.
	TestMode bool

	Logger *slog.Logger // Optional, uses slog.Default() if nil
}

// Gateway executes bounded generation calls against one provider.
type Gateway struct {
	provider  providers.Provider
	timeout   time.Duration
	maxTokens int
	testMode  bool
	logger    *slog.Logger
}

// New creates a Gateway. A nil provider outside test mode is a
// configuration error and fails fast.
func New(cfg Config) (*Gateway, error) {
	if cfg.Provider == nil && !cfg.TestMode {
		return nil, fmt.Errorf("gateway: provider is required outside test mode")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Gateway{
		provider:  cfg.Provider,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
		testMode:  cfg.TestMode,
		logger:    cfg.Logger,
	}, nil
}

// Generate runs one completion for an agent slot. The slot's fixed
// persona temperature is applied; callers cannot override it per request.
func (g *Gateway) Generate(ctx context.Context, system, user string, slot int) Result {
	if g.testMode {
		return Result{}
	}

	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	temperature := prompt.PersonaFor(slot).Temperature
	req := &providers.Request{
		SystemPrompt: system,
		Messages: []providers.Message{
			{Role: providers.RoleUser, Content: user},
		},
		Temperature: &temperature,
		MaxTokens:   g.maxTokens,
	}

	resp, err := g.provider.Complete(ctx, req)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			g.logger.Warn("generation timed out",
				"slot", slot,
				"timeout", g.timeout,
				"latency_ms", latency,
			)
			return Result{LatencyMs: latency, TimedOut: true}
		}

		g.logger.Error("generation failed",
			"slot", slot,
			"error", err,
			"latency_ms", latency,
		)
		return Result{LatencyMs: latency}
	}

	return Result{
		Text:      resp.Content,
		TokenIn:   resp.Usage.InputTokens,
		TokenOut:  resp.Usage.OutputTokens,
		LatencyMs: latency,
	}
}

// Timeout returns the configured per-call bound.
func (g *Gateway) Timeout() time.Duration {
	return g.timeout
}
