package hubspot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-concierge/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-token",
		WithBaseURL(srv.URL),
		WithRateLimit(0),
		WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}),
	)
}

func TestGetContactByEmail_Found(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/crm/v3/objects/contacts/keoni@example.com", r.URL.Path)
		assert.Equal(t, "email", r.URL.Query().Get("idProperty"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": "501", "properties": map[string]string{"email": "keoni@example.com"}})
	})

	obj, err := c.GetContactByEmail(context.Background(), "keoni@example.com")
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, "501", obj.ID)
	assert.Equal(t, "keoni@example.com", obj.Properties["email"])
}

func TestGetContactByEmail_NotFound(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	obj, err := c.GetContactByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, obj)
}

func TestGetContactByEmail_Empty(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	})

	obj, err := c.GetContactByEmail(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, obj)
}

func TestCreateContact(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/crm/v3/objects/contacts", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in objectInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "Keoni", in.Properties["firstname"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": "777"})
	})

	obj, err := c.CreateContact(context.Background(), Properties{"firstname": "Keoni", "email": "keoni@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "777", obj.ID)
}

func TestUpdateContact(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/crm/v3/objects/contacts/501", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"id": "501"})
	})

	obj, err := c.UpdateContact(context.Background(), "501", Properties{"phone": "808-555-1234"})
	require.NoError(t, err)
	assert.Equal(t, "501", obj.ID)
}

func TestCreateNote(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/objects/notes", r.URL.Path)

		var in objectInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "summary here", in.Properties["hs_note_body"])
		assert.Equal(t, "1772355600000", in.Properties["hs_timestamp"])
		require.Len(t, in.Associations, 1)
		assert.Equal(t, "501", in.Associations[0].To.ID)
		assert.Equal(t, 202, in.Associations[0].Types[0].TypeID)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": "n1"})
	})

	obj, err := c.CreateNote(context.Background(), "501", "summary here", at)
	require.NoError(t, err)
	assert.Equal(t, "n1", obj.ID)
}

func TestCreateDealAndAssociate(t *testing.T) {
	t.Parallel()

	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{"id": "d9"})
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	deal, err := c.CreateDeal(context.Background(), Properties{"dealname": "Kahale Poke - AI Solutions", "amount": "10000"})
	require.NoError(t, err)
	require.NoError(t, c.AssociateDealContact(context.Background(), deal.ID, "501"))

	assert.Equal(t, []string{
		"POST /crm/v3/objects/deals",
		"PUT /crm/v3/objects/deals/d9/associations/contacts/501/3",
	}, paths)
}

func TestRetryOnTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": "d1"})
	})

	obj, err := c.CreateDeal(context.Background(), Properties{"dealname": "x"})
	require.NoError(t, err)
	assert.Equal(t, "d1", obj.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Property values were not valid"}`))
	})

	_, err := c.CreateContact(context.Background(), Properties{"email": "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Contains(t, err.Error(), "Property values were not valid")
	assert.Equal(t, int32(1), calls.Load())
}
