package model

// ChannelOutcome is the delivery result for one capture channel.
type ChannelOutcome struct {
	Channel string `json:"channel"`
	Sent    bool   `json:"sent"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// CaptureResult aggregates the outcome of a lead capture. Success reflects
// local persistence only; channel outcomes are informational.
type CaptureResult struct {
	Success  bool             `json:"success"`
	LeadID   string           `json:"lead_id"`
	Path     string           `json:"path,omitempty"`
	Outcomes []ChannelOutcome `json:"outcomes"`
}

// Sent reports whether the named channel delivered the lead.
func (r CaptureResult) Sent(channel string) bool {
	for _, o := range r.Outcomes {
		if o.Channel == channel {
			return o.Sent
		}
	}
	return false
}

// Outcome returns the outcome for the named channel.
func (r CaptureResult) Outcome(channel string) (ChannelOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Channel == channel {
			return o, true
		}
	}
	return ChannelOutcome{}, false
}
