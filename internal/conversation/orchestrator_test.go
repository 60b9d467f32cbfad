package conversation

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-concierge/internal/assistant"
	"github.com/sells-group/lead-concierge/internal/capture"
	"github.com/sells-group/lead-concierge/internal/extract"
	"github.com/sells-group/lead-concierge/internal/model"
	"github.com/sells-group/lead-concierge/internal/session"
	"github.com/sells-group/lead-concierge/internal/store"
)

var testContact = assistant.Contact{Name: "Reno", Email: "reno@lenilani.com", Phone: "808-766-1164"}

// fakeGenerator answers with fn and records every request.
type fakeGenerator struct {
	mu   sync.Mutex
	reqs []assistant.Request
	fn   func(req assistant.Request) (*assistant.Reply, error)
}

func (g *fakeGenerator) Generate(_ context.Context, req assistant.Request) (*assistant.Reply, error) {
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	g.mu.Unlock()
	if g.fn != nil {
		return g.fn(req)
	}
	return &assistant.Reply{Text: "Mahalo for sharing!"}, nil
}

func (g *fakeGenerator) last() assistant.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reqs[len(g.reqs)-1]
}

// fakeSubmitter records tasks instead of running them.
type fakeSubmitter struct {
	mu     sync.Mutex
	tasks  []capture.Task
	reject bool
}

func (f *fakeSubmitter) Submit(t capture.Task) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	f.tasks = append(f.tasks, t)
	return true
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

// fakeCapturer returns a fixed lead id and reports each call.
type fakeCapturer struct {
	calls chan capture.Input
	fail  bool
}

func newFakeCapturer() *fakeCapturer {
	return &fakeCapturer{calls: make(chan capture.Input, 8)}
}

func (c *fakeCapturer) Capture(_ context.Context, in capture.Input) model.CaptureResult {
	c.calls <- in
	return model.CaptureResult{Success: !c.fail, LeadID: "lead_test_1"}
}

func newTestOrchestrator(gen Generator, sub Submitter, cap capture.Capturer) *Orchestrator {
	return New(session.NewManager(), gen, extract.New(nil), sub, cap, Config{Contact: testContact})
}

func TestHandleTurn_MintsSessionAndReplies(t *testing.T) {
	gen := &fakeGenerator{}
	o := newTestOrchestrator(gen, &fakeSubmitter{}, newFakeCapturer())

	resp := o.HandleTurn(context.Background(), ChatRequest{Message: "Aloha!"})

	assert.Equal(t, "Mahalo for sharing!", resp.Response)
	assert.NotEmpty(t, resp.Metadata.SessionID)
	assert.False(t, resp.Metadata.Fallback)
	assert.Equal(t, 1, resp.Metadata.MessageCount)
	assert.Equal(t, session.StageQualifying, resp.Metadata.Stage)
	assert.Equal(t, []model.Field{}, resp.Metadata.FieldsCollected)
	assert.Equal(t, "Tell me about your services", resp.Suggestions[0])
	assert.False(t, gen.last().Greeted)

	s, ok := o.Sessions().Get(resp.Metadata.SessionID)
	require.True(t, ok)
	snap := s.Snapshot()
	assert.True(t, snap.Greeted)
	assert.Equal(t, []model.Turn{
		{Role: model.RoleUser, Content: "Aloha!"},
		{Role: model.RoleAssistant, Content: "Mahalo for sharing!"},
	}, snap.History)
}

func TestHandleTurn_ContextWindowAndLeadContext(t *testing.T) {
	gen := &fakeGenerator{}
	o := newTestOrchestrator(gen, &fakeSubmitter{}, newFakeCapturer())
	ctx := context.Background()

	first := o.HandleTurn(ctx, ChatRequest{Message: "We run a hotel on Maui"})
	id := first.Metadata.SessionID
	for range 4 {
		o.HandleTurn(ctx, ChatRequest{SessionID: id, Message: "tell me more"})
	}

	req := gen.last()
	assert.True(t, req.Greeted)
	assert.Len(t, req.History, 6)
	assert.Equal(t, "Maui", req.Lead.Location)
	assert.Equal(t, 4, req.Lead.MessageCount, "count before the current turn is merged")
}

func TestHandleTurn_FallbackOnModelFailure(t *testing.T) {
	gen := &fakeGenerator{fn: func(assistant.Request) (*assistant.Reply, error) {
		return nil, assistant.ErrExhausted
	}}
	o := newTestOrchestrator(gen, &fakeSubmitter{}, newFakeCapturer())

	resp := o.HandleTurn(context.Background(), ChatRequest{SessionID: "s1", Message: "my email is kai@surf.com"})

	assert.Equal(t, FallbackMessage(testContact), resp.Response)
	assert.Contains(t, resp.Response, "reno@lenilani.com")
	assert.Contains(t, resp.Response, "808-766-1164")
	assert.True(t, resp.Metadata.Fallback)

	s, _ := o.Sessions().Get("s1")
	snap := s.Snapshot()
	assert.Empty(t, snap.History)
	assert.False(t, snap.Greeted)
	assert.Equal(t, "kai@surf.com", snap.Lead.Email, "extraction still runs on fallback turns")
	assert.Equal(t, 1, snap.Lead.MessageCount)
}

func TestHandleTurn_PanicFallsBack(t *testing.T) {
	gen := &fakeGenerator{fn: func(assistant.Request) (*assistant.Reply, error) {
		panic("nil map")
	}}
	o := newTestOrchestrator(gen, &fakeSubmitter{}, newFakeCapturer())

	resp := o.HandleTurn(context.Background(), ChatRequest{SessionID: "s1", Message: "hello"})
	assert.Equal(t, FallbackMessage(testContact), resp.Response)
	assert.True(t, resp.Metadata.Fallback)
	assert.Equal(t, "s1", resp.Metadata.SessionID)
}

func TestHandleTurn_FirstWriteWins(t *testing.T) {
	o := newTestOrchestrator(&fakeGenerator{}, &fakeSubmitter{}, newFakeCapturer())
	ctx := context.Background()

	o.HandleTurn(ctx, ChatRequest{SessionID: "s1", Message: "reach me at first@example.com"})
	o.HandleTurn(ctx, ChatRequest{SessionID: "s1", Message: "actually use second@example.com"})

	data, err := o.LeadData("s1")
	require.NoError(t, err)
	assert.Equal(t, "first@example.com", data.Lead.Email)
}

func TestHandleTurn_QueuesCaptureOnce(t *testing.T) {
	sub := &fakeSubmitter{}
	o := newTestOrchestrator(&fakeGenerator{}, sub, newFakeCapturer())
	ctx := context.Background()

	resp := o.HandleTurn(ctx, ChatRequest{SessionID: "s1", Message: "I'm Kai, email kai@surf.com. We struggle with marketing on Maui."})
	require.Equal(t, 1, sub.count())
	assert.True(t, resp.Metadata.LeadCaptured)
	assert.Equal(t, session.StageCaptured, resp.Metadata.Stage)

	task := sub.tasks[0]
	assert.Equal(t, "s1", task.Input.SessionID)
	assert.Equal(t, "Kai", task.Input.Fields.Name)
	assert.Equal(t, "kai@surf.com", task.Input.Fields.Email)
	assert.Equal(t, 40, task.Input.Score)
	assert.Contains(t, task.Input.Summary, "Location: Maui")
	assert.Contains(t, task.Input.Summary, `"I'm Kai, email kai@surf.com.`)

	o.HandleTurn(ctx, ChatRequest{SessionID: "s1", Message: "my phone is 808-555-1234"})
	assert.Equal(t, 1, sub.count(), "a captured session is never captured again")

	task.Done(model.CaptureResult{Success: true, LeadID: "lead_abc"})
	data, err := o.LeadData("s1")
	require.NoError(t, err)
	assert.Equal(t, "lead_abc", data.LeadID)
	assert.True(t, data.LeadCaptured)
}

func TestHandleTurn_NotReadyWithoutContact(t *testing.T) {
	sub := &fakeSubmitter{}
	o := newTestOrchestrator(&fakeGenerator{}, sub, newFakeCapturer())

	resp := o.HandleTurn(context.Background(), ChatRequest{SessionID: "s1", Message: "I'm Kai and I run a restaurant in Hilo"})
	assert.Zero(t, sub.count())
	assert.False(t, resp.Metadata.LeadCaptured)
	assert.Contains(t, resp.Metadata.FieldsCollected, model.FieldName)
}

func TestHandleTurn_QueueFullCapturesDetached(t *testing.T) {
	capr := newFakeCapturer()
	o := newTestOrchestrator(&fakeGenerator{}, &fakeSubmitter{reject: true}, capr)

	o.HandleTurn(context.Background(), ChatRequest{SessionID: "s1", Message: "I'm Kai, kai@surf.com"})

	select {
	case in := <-capr.calls:
		assert.Equal(t, "kai@surf.com", in.Fields.Email)
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not run")
	}
	assert.Eventually(t, func() bool {
		data, _ := o.LeadData("s1")
		return data.LeadID == "lead_test_1"
	}, time.Second, 5*time.Millisecond)
}

func TestHandleTurn_ConcurrentTurnsCaptureAtMostOnce(t *testing.T) {
	dir := t.TempDir()
	d := capture.NewDispatcher(store.NewFileStore(dir), nil)
	q := capture.NewQueue(d, 16)
	q.Start(context.Background(), 2)
	o := newTestOrchestrator(&fakeGenerator{}, q, d)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.HandleTurn(context.Background(), ChatRequest{SessionID: "s1", Message: "I'm Kai, kai@surf.com"})
		}()
	}
	wg.Wait()
	q.Close()
	require.NoError(t, q.Wait(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEndSession_CapturesUncapturedContact(t *testing.T) {
	capr := newFakeCapturer()
	o := newTestOrchestrator(&fakeGenerator{}, &fakeSubmitter{}, capr)
	ctx := context.Background()

	// A phone number alone does not make the lead ready.
	o.HandleTurn(ctx, ChatRequest{SessionID: "s1", Message: "808-555-1234"})
	require.Empty(t, capr.calls)

	res, err := o.EndSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, res.Captured)
	assert.Equal(t, "lead_test_1", res.LeadID)

	in := <-capr.calls
	assert.Equal(t, "808-555-1234", in.Fields.Phone)
	assert.Contains(t, in.Summary, `"808-555-1234"`)

	_, err = o.EndSession(ctx, "s1")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestEndSession_NoContactNoCapture(t *testing.T) {
	capr := newFakeCapturer()
	o := newTestOrchestrator(&fakeGenerator{}, &fakeSubmitter{}, capr)
	ctx := context.Background()

	o.HandleTurn(ctx, ChatRequest{SessionID: "s1", Message: "just browsing"})
	res, err := o.EndSession(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, res.Captured)
	assert.Empty(t, capr.calls)
}

func TestEndSession_PersistenceFailure(t *testing.T) {
	capr := newFakeCapturer()
	capr.fail = true
	o := newTestOrchestrator(&fakeGenerator{}, &fakeSubmitter{}, capr)
	ctx := context.Background()

	o.HandleTurn(ctx, ChatRequest{SessionID: "s1", Message: "808-555-1234"})
	res, err := o.EndSession(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, res.Captured)
}

func TestLeadData_UnknownSession(t *testing.T) {
	o := newTestOrchestrator(&fakeGenerator{}, &fakeSubmitter{}, newFakeCapturer())
	_, err := o.LeadData("missing")
	assert.True(t, errors.Is(err, session.ErrNotFound))
}
