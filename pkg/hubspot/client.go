// Package hubspot provides a client for the HubSpot CRM v3 objects API.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-concierge/internal/resilience"
)

// HubSpot-defined association type ids.
const (
	assocNoteToContact = 202
	assocDealToContact = 3
)

// Client defines the HubSpot CRM operations used for lead capture.
type Client interface {
	// GetContactByEmail returns nil when no contact has the email.
	GetContactByEmail(ctx context.Context, email string) (*Object, error)
	CreateContact(ctx context.Context, props Properties) (*Object, error)
	UpdateContact(ctx context.Context, id string, props Properties) (*Object, error)
	CreateNote(ctx context.Context, contactID, body string, at time.Time) (*Object, error)
	CreateDeal(ctx context.Context, props Properties) (*Object, error)
	AssociateDealContact(ctx context.Context, dealID, contactID string) error
}

// Properties is a HubSpot property bag.
type Properties map[string]string

// Object is a CRM object as returned by the v3 API.
type Object struct {
	ID         string     `json:"id"`
	Properties Properties `json:"properties"`
}

type association struct {
	To    associationTarget `json:"to"`
	Types []associationType `json:"types"`
}

type associationTarget struct {
	ID string `json:"id"`
}

type associationType struct {
	Category string `json:"associationCategory"`
	TypeID   int    `json:"associationTypeId"`
}

type objectInput struct {
	Properties   Properties    `json:"properties"`
	Associations []association `json:"associations,omitempty"`
}

// Option configures the HubSpot client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the retry settings for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithRateLimit sets a per-second request limit. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
	limiter *rate.Limiter
}

// NewClient creates a HubSpot client authenticated with a private app token.
// Requests are limited to 10/s, under HubSpot's burst limit.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: "https://api.hubapi.com",
		http:    &http.Client{Timeout: 15 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
		limiter: rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends one JSON request and decodes the response into out. A 404 is
// reported as found=false when allowMissing is set.
func (c *httpClient) do(ctx context.Context, method, path string, in, out any, allowMissing bool) (bool, error) {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return false, eris.Wrap(err, "hubspot: marshal request")
		}
	}

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("crm", method+" "+path)
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (bool, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return false, eris.Wrap(err, "hubspot: rate limit")
			}
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return false, eris.Wrap(err, "hubspot: create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return false, eris.Wrapf(err, "hubspot: %s %s", method, path)
		}
		defer resp.Body.Close() //nolint:errcheck

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, eris.Wrap(err, "hubspot: read response body")
		}
		if resp.StatusCode == http.StatusNotFound && allowMissing {
			return false, nil
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return false, resilience.StatusError("hubspot", resp.StatusCode, string(data))
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return false, eris.Wrap(err, "hubspot: decode response")
			}
		}
		return true, nil
	})
}

func (c *httpClient) GetContactByEmail(ctx context.Context, email string) (*Object, error) {
	if email == "" {
		return nil, nil
	}
	path := "/crm/v3/objects/contacts/" + url.PathEscape(email) + "?idProperty=email"
	var obj Object
	found, err := c.do(ctx, http.MethodGet, path, nil, &obj, true)
	if err != nil {
		return nil, eris.Wrapf(err, "hubspot: get contact %s", email)
	}
	if !found {
		return nil, nil
	}
	return &obj, nil
}

func (c *httpClient) CreateContact(ctx context.Context, props Properties) (*Object, error) {
	var obj Object
	if _, err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts", objectInput{Properties: props}, &obj, false); err != nil {
		return nil, eris.Wrap(err, "hubspot: create contact")
	}
	return &obj, nil
}

func (c *httpClient) UpdateContact(ctx context.Context, id string, props Properties) (*Object, error) {
	var obj Object
	path := "/crm/v3/objects/contacts/" + url.PathEscape(id)
	if _, err := c.do(ctx, http.MethodPatch, path, objectInput{Properties: props}, &obj, false); err != nil {
		return nil, eris.Wrapf(err, "hubspot: update contact %s", id)
	}
	return &obj, nil
}

func (c *httpClient) CreateNote(ctx context.Context, contactID, body string, at time.Time) (*Object, error) {
	in := objectInput{
		Properties: Properties{
			"hs_note_body": body,
			"hs_timestamp": strconv.FormatInt(at.UnixMilli(), 10),
		},
		Associations: []association{{
			To:    associationTarget{ID: contactID},
			Types: []associationType{{Category: "HUBSPOT_DEFINED", TypeID: assocNoteToContact}},
		}},
	}
	var obj Object
	if _, err := c.do(ctx, http.MethodPost, "/crm/v3/objects/notes", in, &obj, false); err != nil {
		return nil, eris.Wrapf(err, "hubspot: create note for contact %s", contactID)
	}
	return &obj, nil
}

func (c *httpClient) CreateDeal(ctx context.Context, props Properties) (*Object, error) {
	var obj Object
	if _, err := c.do(ctx, http.MethodPost, "/crm/v3/objects/deals", objectInput{Properties: props}, &obj, false); err != nil {
		return nil, eris.Wrap(err, "hubspot: create deal")
	}
	return &obj, nil
}

func (c *httpClient) AssociateDealContact(ctx context.Context, dealID, contactID string) error {
	path := fmt.Sprintf("/crm/v3/objects/deals/%s/associations/contacts/%s/%d",
		url.PathEscape(dealID), url.PathEscape(contactID), assocDealToContact)
	if _, err := c.do(ctx, http.MethodPut, path, nil, nil, false); err != nil {
		return eris.Wrapf(err, "hubspot: associate deal %s with contact %s", dealID, contactID)
	}
	return nil
}
