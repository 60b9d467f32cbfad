package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-concierge/internal/model"
	"github.com/sells-group/lead-concierge/internal/resilience"
	"github.com/sells-group/lead-concierge/internal/scorer"
)

// Webhook identity sent with every delivery.
const (
	WebhookUserAgent = "LeniLani-Chatbot/1.0"
	WebhookSource    = "Leni Begonia Chatbot"
	WebhookSourceURL = "https://hawaii.lenilani.com"
)

// WebhookPayload is the flat JSON document posted to the lead webhook.
type WebhookPayload struct {
	Name                string `json:"name"`
	Email               string `json:"email"`
	Phone               string `json:"phone"`
	Company             string `json:"company"`
	BusinessType        string `json:"business_type"`
	Location            string `json:"location"`
	Island              string `json:"island"`
	MainChallenge       string `json:"main_challenge"`
	BudgetRange         string `json:"budget_range"`
	LeadScore           int    `json:"lead_score"`
	LeadQuality         string `json:"lead_quality"`
	IsHotLead           bool   `json:"is_hot_lead"`
	ConversationSummary string `json:"conversation_summary"`
	MessageCount        int    `json:"message_count"`
	CapturedAt          string `json:"captured_at"`
	LeadID              string `json:"lead_id"`
	RecommendedAction   string `json:"recommended_action"`
	Source              string `json:"source"`
	SourceURL           string `json:"source_url"`
}

// NewWebhookPayload flattens rec for the webhook.
func NewWebhookPayload(rec *model.LeadRecord) WebhookPayload {
	return WebhookPayload{
		Name:                rec.Name,
		Email:               rec.Email,
		Phone:               rec.Phone,
		Company:             rec.Company,
		BusinessType:        rec.BusinessType,
		Location:            rec.Location,
		Island:              rec.Location,
		MainChallenge:       rec.MainChallenge,
		BudgetRange:         rec.BudgetRange,
		LeadScore:           rec.QualificationScore,
		LeadQuality:         string(rec.LeadQuality),
		IsHotLead:           scorer.IsHot(rec.QualificationScore),
		ConversationSummary: rec.ConversationSummary,
		MessageCount:        rec.MessageCount,
		CapturedAt:          rec.CapturedAt.UTC().Format(time.RFC3339),
		LeadID:              rec.LeadID,
		RecommendedAction:   scorer.RecommendedAction(rec.QualificationScore),
		Source:              WebhookSource,
		SourceURL:           WebhookSourceURL,
	}
}

// WebhookOption configures a WebhookChannel.
type WebhookOption func(*WebhookChannel)

// WithWebhookHTTPClient sets a custom HTTP client.
func WithWebhookHTTPClient(hc *http.Client) WebhookOption {
	return func(c *WebhookChannel) { c.http = hc }
}

// WithWebhookTimeout sets the per-request timeout. Zero keeps the default.
func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(c *WebhookChannel) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithWebhookRetry overrides the retry settings.
func WithWebhookRetry(cfg resilience.RetryConfig) WebhookOption {
	return func(c *WebhookChannel) { c.retry = cfg }
}

// WebhookChannel posts each lead to an HTTP endpoint.
type WebhookChannel struct {
	url    string
	secret string
	http   *http.Client
	retry  resilience.RetryConfig
}

// NewWebhookChannel returns the webhook channel. An empty url disables it.
func NewWebhookChannel(url, secret string, opts ...WebhookOption) *WebhookChannel {
	c := &WebhookChannel{
		url:    url,
		secret: secret,
		http:   &http.Client{Timeout: 10 * time.Second},
		retry:  resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Deliver(ctx context.Context, rec *model.LeadRecord) (string, error) {
	if c.url == "" {
		return "", ErrChannelDisabled
	}
	payload, err := json.Marshal(NewWebhookPayload(rec))
	if err != nil {
		return "", eris.Wrap(err, "webhook: marshal payload")
	}

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("webhook", "POST")
	status, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return 0, eris.Wrap(err, "webhook: create request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", WebhookUserAgent)
		if c.secret != "" {
			req.Header.Set("X-Webhook-Secret", c.secret)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return 0, eris.Wrap(err, "webhook: post")
		}
		defer resp.Body.Close() //nolint:errcheck

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return 0, resilience.StatusError("webhook", resp.StatusCode, string(body))
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("status %d", status), nil
}
