// Package assistant produces conversational replies from the language model
// with rate spacing and a bounded retry policy.
package assistant

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-concierge/internal/model"
	"github.com/sells-group/lead-concierge/internal/resilience"
	"github.com/sells-group/lead-concierge/pkg/anthropic"
)

// ErrExhausted is returned when every attempt failed or the failure was not
// retryable. It wraps the last provider error.
var ErrExhausted = eris.New("assistant: no reply from model")

// Config tunes the model call.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	// MinInterval is the minimum spacing between outbound requests.
	MinInterval time.Duration
	Contact     Contact
	Policy      resilience.Policy
}

// Request is one turn to answer.
type Request struct {
	SessionID string
	Message   string
	History   []model.Turn
	Lead      model.LeadFields
	Greeted   bool
}

// Reply is the model's answer.
type Reply struct {
	Text     string
	Attempts int
	Usage    anthropic.TokenUsage
}

// Client generates replies. It is safe for concurrent use.
type Client struct {
	api     anthropic.Client
	cfg     Config
	persona string
	limiter *rate.Limiter

	mu          sync.Mutex
	consecutive int

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithClock replaces time.Now for greeting selection.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client.
func New(api anthropic.Client, cfg Config, opts ...Option) *Client {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = resilience.DefaultPolicy()
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	c := &Client{
		api:     api,
		cfg:     cfg,
		persona: SystemPersona(cfg.Contact),
		limiter: rate.NewLimiter(limit, 1),
		sleep:   sleepCtx,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Generate asks the model for a reply to req. Every attempt, retries
// included, waits for the request spacing first.
func (c *Client) Generate(ctx context.Context, req Request) (*Reply, error) {
	msgs := make([]anthropic.Message, 0, len(req.History)+1)
	for _, t := range req.History {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		// The API requires the first message to come from the user.
		if len(msgs) == 0 && t.Role != model.RoleUser {
			continue
		}
		msgs = append(msgs, anthropic.Message{Role: string(t.Role), Content: t.Content})
	}
	msgs = append(msgs, anthropic.Message{Role: string(model.RoleUser), Content: req.Message})

	temp := c.cfg.Temperature
	mreq := anthropic.MessageRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		System:      anthropic.SystemPrompt(c.persona, TurnContext(req.Greeted, req.Lead, c.now())),
		Messages:    msgs,
		Temperature: &temp,
	}

	policy := c.cfg.Policy
	c.mu.Lock()
	policy.Consecutive = c.consecutive
	c.mu.Unlock()

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "assistant: rate limiter")
		}

		resp, err := c.api.CreateMessage(ctx, mreq)
		if err == nil {
			policy.Reset()
			c.mu.Lock()
			c.consecutive = policy.Consecutive
			c.mu.Unlock()

			resp.Usage.Log(resp.Model, req.SessionID)
			text := strings.TrimSpace(resp.Text())
			if text == "" {
				return nil, eris.Wrap(ErrExhausted, "assistant: empty reply")
			}
			return &Reply{
				Text:     fixNames(text, c.cfg.Contact.Name),
				Attempts: policy.Attempts() + 1,
				Usage:    resp.Usage,
			}, nil
		}

		class := resilience.Classify(err)
		action := policy.Next(class)
		c.mu.Lock()
		c.consecutive = policy.Consecutive
		c.mu.Unlock()

		if !action.Retry {
			zap.L().Warn("assistant: giving up",
				zap.String("session_id", req.SessionID),
				zap.Stringer("class", class),
				zap.Int("attempt", policy.Attempts()),
				zap.Error(err),
			)
			return nil, eris.Wrapf(ErrExhausted, "%s after %d attempt(s): %v", class, policy.Attempts(), err)
		}

		zap.L().Info("assistant: retrying model call",
			zap.String("session_id", req.SessionID),
			zap.Stringer("class", class),
			zap.Int("attempt", policy.Attempts()),
			zap.Duration("wait", action.Wait),
		)
		if err := c.sleep(ctx, action.Wait); err != nil {
			return nil, eris.Wrap(err, "assistant: backoff interrupted")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
