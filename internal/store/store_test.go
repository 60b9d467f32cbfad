package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFailedChannels(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	at := func(m int) time.Time { return t0.Add(time.Duration(m) * time.Minute) }

	tests := []struct {
		name string
		ds   []Delivery
		want []string
	}{
		{name: "no history"},
		{
			name: "first attempt",
			ds: []Delivery{
				{Channel: "email", Sent: true, RecordedAt: at(0)},
				{Channel: "crm", Error: "503", RecordedAt: at(0)},
				{Channel: "notion", Skipped: true, RecordedAt: at(0)},
				{Channel: "webhook", Error: "timeout", RecordedAt: at(0)},
			},
			want: []string{"crm", "webhook"},
		},
		{
			name: "later success clears failure",
			ds: []Delivery{
				{Channel: "crm", Error: "503", RecordedAt: at(0)},
				{Channel: "webhook", Error: "timeout", RecordedAt: at(0)},
				{Channel: "crm", Sent: true, RecordedAt: at(5)},
			},
			want: []string{"webhook"},
		},
		{
			name: "later failure reopens",
			ds: []Delivery{
				{Channel: "crm", Sent: true, RecordedAt: at(0)},
				{Channel: "crm", Error: "circuit open", RecordedAt: at(5)},
			},
			want: []string{"crm"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FailedChannels(tt.ds))
		})
	}
}
