package model

import "time"

// Field names a piece of lead information collected during a conversation.
type Field string

const (
	FieldName          Field = "name"
	FieldEmail         Field = "email"
	FieldPhone         Field = "phone"
	FieldCompany       Field = "company"
	FieldBusinessType  Field = "business_type"
	FieldLocation      Field = "location"
	FieldMainChallenge Field = "main_challenge"
	FieldBudgetRange   Field = "budget_range"
)

// AllFields lists every extractable field in display order.
var AllFields = []Field{
	FieldName,
	FieldEmail,
	FieldPhone,
	FieldCompany,
	FieldBusinessType,
	FieldLocation,
	FieldMainChallenge,
	FieldBudgetRange,
}

// Extraction holds fields discovered in a single message. A key is present
// only when the field was found; values are never empty.
type Extraction map[Field]string

// Found reports whether f was discovered.
func (e Extraction) Found(f Field) bool {
	_, ok := e[f]
	return ok
}

// LeadFields is the lead information accumulated across a session.
type LeadFields struct {
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Company       string `json:"company,omitempty"`
	BusinessType  string `json:"business_type,omitempty"`
	Location      string `json:"location,omitempty"`
	MainChallenge string `json:"main_challenge,omitempty"`
	BudgetRange   string `json:"budget_range,omitempty"`
	MessageCount  int    `json:"message_count"`
}

func (l *LeadFields) ptr(f Field) *string {
	switch f {
	case FieldName:
		return &l.Name
	case FieldEmail:
		return &l.Email
	case FieldPhone:
		return &l.Phone
	case FieldCompany:
		return &l.Company
	case FieldBusinessType:
		return &l.BusinessType
	case FieldLocation:
		return &l.Location
	case FieldMainChallenge:
		return &l.MainChallenge
	case FieldBudgetRange:
		return &l.BudgetRange
	}
	return nil
}

// Get returns the value of f and whether it is set.
func (l LeadFields) Get(f Field) (string, bool) {
	p := l.ptr(f)
	if p == nil || *p == "" {
		return "", false
	}
	return *p, true
}

// Has reports whether f holds a non-empty value.
func (l LeadFields) Has(f Field) bool {
	_, ok := l.Get(f)
	return ok
}

// HasContact reports whether an email or phone number is known.
func (l LeadFields) HasContact() bool {
	return l.Has(FieldEmail) || l.Has(FieldPhone)
}

// Merge applies an extraction with first-write-wins semantics: fields that
// already hold a value are left untouched. It returns the fields that were set.
func (l *LeadFields) Merge(e Extraction) []Field {
	var set []Field
	for _, f := range AllFields {
		v, ok := e[f]
		if !ok || v == "" {
			continue
		}
		p := l.ptr(f)
		if *p != "" {
			continue
		}
		*p = v
		set = append(set, f)
	}
	return set
}

// Collected returns the names of all non-empty fields in display order.
func (l LeadFields) Collected() []Field {
	var out []Field
	for _, f := range AllFields {
		if l.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message in a conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Quality is the sales-readiness tier derived from a qualification score.
type Quality string

const (
	QualityHot  Quality = "hot"
	QualityWarm Quality = "warm"
	QualityCool Quality = "cool"
	QualityCold Quality = "cold"
)

// Qualities lists the tiers from most to least ready.
var Qualities = []Quality{QualityHot, QualityWarm, QualityCool, QualityCold}

// LeadRecord is the immutable snapshot written when a lead is captured.
type LeadRecord struct {
	LeadID              string    `json:"lead_id"`
	SessionID           string    `json:"session_id,omitempty"`
	Name                string    `json:"name,omitempty"`
	Email               string    `json:"email,omitempty"`
	Phone               string    `json:"phone,omitempty"`
	Company             string    `json:"company,omitempty"`
	BusinessType        string    `json:"business_type,omitempty"`
	Location            string    `json:"location,omitempty"`
	MainChallenge       string    `json:"main_challenge,omitempty"`
	BudgetRange         string    `json:"budget_range,omitempty"`
	MessageCount        int       `json:"message_count"`
	QualificationScore  int       `json:"qualification_score"`
	LeadQuality         Quality   `json:"lead_quality"`
	ConversationSummary string    `json:"conversation_summary"`
	Source              string    `json:"source,omitempty"`
	CapturedAt          time.Time `json:"captured_at"`
}

// Fields returns the lead fields carried by the record.
func (r *LeadRecord) Fields() LeadFields {
	return LeadFields{
		Name:          r.Name,
		Email:         r.Email,
		Phone:         r.Phone,
		Company:       r.Company,
		BusinessType:  r.BusinessType,
		Location:      r.Location,
		MainChallenge: r.MainChallenge,
		BudgetRange:   r.BudgetRange,
		MessageCount:  r.MessageCount,
	}
}

// DisplayName returns the best available label for the lead.
func (r *LeadRecord) DisplayName() string {
	switch {
	case r.Name != "":
		return r.Name
	case r.Company != "":
		return r.Company
	case r.Email != "":
		return r.Email
	case r.Phone != "":
		return r.Phone
	}
	return "Unknown"
}
