package notion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-concierge/internal/resilience"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

var _ Client = (*MockClient)(nil)

// redirect sends every request to a test server, keeping the path.
type redirect struct{ target *url.URL }

func (r redirect) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = r.target.Scheme
	req.URL.Host = r.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func testClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return NewClient("secret-token",
		WithHTTPClient(&http.Client{Transport: redirect{target: u}}),
		WithRateLimit(0),
		WithRetries(0),
	)
}

func TestClient_QueryDatabase(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/databases/db-1/query", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Notion-Version"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","results":[{"object":"page","id":"page-1"}],"has_more":false}`) //nolint:errcheck
	})

	resp, err := c.QueryDatabase(context.Background(), "db-1", &notionapi.DatabaseQueryRequest{PageSize: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, notionapi.ObjectID("page-1"), resp.Results[0].ID)
}

func TestClient_CreatePage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/pages", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		parent := body["parent"].(map[string]any)
		assert.Equal(t, "db-1", parent["database_id"])

		io.WriteString(w, `{"object":"page","id":"page-new"}`) //nolint:errcheck
	})

	page, err := c.CreatePage(context.Background(), &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: "db-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, notionapi.ObjectID("page-new"), page.ID)
}

func TestClient_UpdatePage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/pages/page-1", r.URL.Path)
		io.WriteString(w, `{"object":"page","id":"page-1"}`) //nolint:errcheck
	})

	page, err := c.UpdatePage(context.Background(), "page-1", &notionapi.PageUpdateRequest{})
	require.NoError(t, err)
	assert.Equal(t, notionapi.ObjectID("page-1"), page.ID)
}

func TestClient_BadRequest(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"object":"error","status":400,"code":"validation_error","message":"Score is not a property"}`) //nolint:errcheck
	})

	_, err := c.CreatePage(context.Background(), &notionapi.PageCreateRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Score is not a property")
	assert.False(t, resilience.IsTransient(err))
}

func TestClassify(t *testing.T) {
	down := classify(&notionapi.Error{Status: 503, Code: "service_unavailable", Message: "down"})
	assert.True(t, resilience.IsTransient(down))
	assert.Contains(t, down.Error(), "notion: unexpected status 503")

	limited := classify(&notionapi.Error{Status: 429, Code: "rate_limited", Message: "slow down"})
	assert.True(t, resilience.IsTransient(limited))

	invalid := classify(&notionapi.Error{Status: 400, Code: "validation_error", Message: "bad"})
	assert.False(t, resilience.IsTransient(invalid))

	assert.Same(t, assert.AnError, classify(assert.AnError))
}

func TestNewClient_RateLimit(t *testing.T) {
	def := NewClient("t").(*boardClient)
	require.NotNil(t, def.limiter)
	assert.InDelta(t, DefaultRPS, float64(def.limiter.Limit()), 0.001)

	off := NewClient("t", WithRateLimit(0)).(*boardClient)
	assert.Nil(t, off.limiter)
}

func TestClient_WaitHonoursContext(t *testing.T) {
	c := NewClient("t", WithRateLimit(0.001)).(*boardClient)
	require.NoError(t, c.wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.QueryDatabase(ctx, "db-1", &notionapi.DatabaseQueryRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: rate limit")
}
