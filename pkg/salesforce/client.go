// Package salesforce provides REST API access to Salesforce for lead sync.
package salesforce

import (
	"context"
	"fmt"
	"maps"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Salesforce API operations used for lead capture.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error
}

// Creds selects an authentication flow. ConsumerRSAPem enables the JWT
// bearer flow; otherwise username/password with a security token is used.
type Creds struct {
	Domain         string
	Username       string
	Password       string
	SecurityToken  string
	ConsumerKey    string
	ConsumerSecret string
	ConsumerRSAPem string
}

// ClientOption configures the Salesforce client.
type ClientOption func(*sfClient)

// WithRateLimit sets a per-second rate limit for SF API calls.
// A burst equal to the integer portion of rps is allowed.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// sfClient wraps the go-salesforce/v3 Salesforce struct.
//
// NOTE: go-salesforce/v3 does not accept context.Context, so ctx only
// bounds the rate limiter wait.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient creates a new Salesforce Client wrapping the given go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect authenticates with creds and returns a Client.
func Connect(creds Creds, opts ...ClientOption) (Client, error) {
	if creds.ConsumerKey == "" {
		return nil, eris.New("sf: consumer key is required")
	}
	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         creds.Domain,
		Username:       creds.Username,
		Password:       creds.Password,
		SecurityToken:  creds.SecurityToken,
		ConsumerKey:    creds.ConsumerKey,
		ConsumerSecret: creds.ConsumerSecret,
		ConsumerRSAPem: creds.ConsumerRSAPem,
	})
	if err != nil {
		return nil, eris.Wrap(err, "sf: init")
	}
	return NewClient(sf, opts...), nil
}

// do waits for a rate limit token, then runs fn. Errors are prefixed with op.
func (c *sfClient) do(ctx context.Context, op string, fn func() error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrapf(err, "sf: %s: rate limit", op)
		}
	}
	return eris.Wrapf(fn(), "sf: %s", op)
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	return c.do(ctx, "query", func() error { return c.sf.Query(soql, out) })
}

func (c *sfClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	var id string
	err := c.do(ctx, "insert "+sObjectName, func() error {
		res, err := c.sf.InsertOne(sObjectName, record)
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("rejected: %v", res.Errors)
		}
		id = res.Id
		return nil
	})
	return id, err
}

// UpdateOne copies fields so the caller's map never gains an Id key.
func (c *sfClient) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	record := maps.Clone(fields)
	if record == nil {
		record = make(map[string]any, 1)
	}
	record["Id"] = id
	return c.do(ctx, "update "+sObjectName+" "+id, func() error { return c.sf.UpdateOne(sObjectName, record) })
}
