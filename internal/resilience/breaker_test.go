package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	b := NewBreaker("hubspot", BreakerConfig{Threshold: threshold, Cooldown: time.Minute})
	b.now = clk.Now
	return b, clk
}

var outage = StatusError("hubspot", 503, "down")

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)

	for range 2 {
		require.NoError(t, b.Allow())
		b.Record(outage)
	}
	assert.Equal(t, StateClosed, b.State())

	require.NoError(t, b.Allow())
	b.Record(outage)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreaker_SuccessResetsRun(t *testing.T) {
	b, _ := newTestBreaker(2)

	b.Record(outage)
	b.Record(nil)
	b.Record(outage)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_NonTransientDoesNotTrip(t *testing.T) {
	b, _ := newTestBreaker(1)

	b.Record(StatusError("hubspot", 400, "invalid email"))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, clk := newTestBreaker(1)
	b.Record(outage)
	require.Equal(t, StateOpen, b.State())

	clk.Advance(time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Allow(), "first probe admitted")
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen, "second caller waits for the probe")

	b.Record(nil)
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, clk := newTestBreaker(1)
	b.Record(outage)
	clk.Advance(2 * time.Minute)

	require.NoError(t, b.Allow())
	b.Record(outage)
	assert.Equal(t, StateOpen, b.State())

	clk.Advance(30 * time.Second)
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreakers_PerDestination(t *testing.T) {
	r := NewBreakers(BreakerConfig{Threshold: 1})

	assert.Same(t, r.Get("webhook"), r.Get("webhook"))
	r.Get("webhook").Record(outage)
	r.Get("email").Record(nil)

	assert.Equal(t, map[string]BreakerState{
		"webhook": StateOpen,
		"email":   StateClosed,
	}, r.States())
}

func TestBreakerConfig_Defaults(t *testing.T) {
	cfg := BreakerConfig{}.withDefaults()
	assert.Equal(t, 5, cfg.Threshold)
	assert.Equal(t, time.Minute, cfg.Cooldown)
	assert.NotNil(t, cfg.ShouldTrip)
}
