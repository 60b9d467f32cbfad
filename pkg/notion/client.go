// Package notion writes captured leads to a Notion database used as a
// sales board.
package notion

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-concierge/internal/resilience"
)

// DefaultRPS is Notion's documented average request rate.
const DefaultRPS = 3

// Client is the subset of the Notion API the lead board needs.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

type settings struct {
	rps     float64
	http    *http.Client
	retries int
}

// ClientOption configures the Notion client.
type ClientOption func(*settings)

// WithRateLimit overrides DefaultRPS. Zero or less disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(s *settings) { s.rps = rps }
}

// WithHTTPClient sets the transport used for API calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(s *settings) { s.http = hc }
}

// WithRetries sets how many times the SDK retries a rate-limited call.
func WithRetries(n int) ClientOption {
	return func(s *settings) { s.retries = n }
}

type boardClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
}

// NewClient returns a throttled client for the integration token.
func NewClient(token string, opts ...ClientOption) Client {
	s := settings{
		rps:     DefaultRPS,
		http:    &http.Client{Timeout: 30 * time.Second},
		retries: 2,
	}
	for _, opt := range opts {
		opt(&s)
	}

	c := &boardClient{
		api: notionapi.NewClient(notionapi.Token(token),
			notionapi.WithHTTPClient(s.http),
			notionapi.WithRetry(s.retries),
		),
	}
	if s.rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(s.rps), max(int(s.rps), 1))
	}
	return c
}

func (c *boardClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return eris.Wrap(c.limiter.Wait(ctx), "notion: rate limit")
}

// classify turns Notion API errors into status errors so callers can tell
// throttling and outages from bad requests.
func classify(err error) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return resilience.StatusError("notion", apiErr.Status, string(apiErr.Code)+": "+apiErr.Message)
	}
	return err
}

func (c *boardClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, eris.Wrapf(classify(err), "notion: query database %s", dbID)
	}
	return resp, nil
}

func (c *boardClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.api.Page.Create(ctx, req)
	if err != nil {
		return nil, eris.Wrap(classify(err), "notion: create page")
	}
	return page, nil
}

func (c *boardClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.api.Page.Update(ctx, notionapi.PageID(pageID), req)
	if err != nil {
		return nil, eris.Wrapf(classify(err), "notion: update page %s", pageID)
	}
	return page, nil
}
