package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-concierge/pkg/hubspot"
	"github.com/sells-group/lead-concierge/pkg/salesforce"
)

// fakeHubSpot records calls and returns canned objects.
type fakeHubSpot struct {
	existing   *hubspot.Object
	lookupErr  error
	noteErr    error
	created    hubspot.Properties
	updated    hubspot.Properties
	updatedID  string
	note       string
	deal       hubspot.Properties
	associated [2]string
}

func (f *fakeHubSpot) GetContactByEmail(_ context.Context, _ string) (*hubspot.Object, error) {
	return f.existing, f.lookupErr
}

func (f *fakeHubSpot) CreateContact(_ context.Context, props hubspot.Properties) (*hubspot.Object, error) {
	f.created = props
	return &hubspot.Object{ID: "901"}, nil
}

func (f *fakeHubSpot) UpdateContact(_ context.Context, id string, props hubspot.Properties) (*hubspot.Object, error) {
	f.updatedID, f.updated = id, props
	return &hubspot.Object{ID: id}, nil
}

func (f *fakeHubSpot) CreateNote(_ context.Context, _ string, body string, _ time.Time) (*hubspot.Object, error) {
	f.note = body
	return &hubspot.Object{ID: "n1"}, f.noteErr
}

func (f *fakeHubSpot) CreateDeal(_ context.Context, props hubspot.Properties) (*hubspot.Object, error) {
	f.deal = props
	return &hubspot.Object{ID: "d1"}, nil
}

func (f *fakeHubSpot) AssociateDealContact(_ context.Context, dealID, contactID string) error {
	f.associated = [2]string{dealID, contactID}
	return nil
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Keoni Kahale", "Keoni", "Kahale"},
		{"Keoni", "Keoni", ""},
		{"  Mary Ann Kealoha ", "Mary", "Ann Kealoha"},
		{"", "", ""},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}

func TestContactProperties(t *testing.T) {
	rec := sampleRecord()
	rec.Company = ""
	props := ContactProperties(rec)

	assert.Equal(t, hubspot.Properties{
		"email":          "keoni@example.com",
		"firstname":      "Keoni",
		"lastname":       "Kahale",
		"phone":          "808-555-1234",
		"hs_lead_status": "NEW",
		"lifecyclestage": "lead",
	}, props)
}

func TestHubSpotChannel_CreatesContactAndDeal(t *testing.T) {
	hs := &fakeHubSpot{}
	ch := NewHubSpotChannel(hs, DefaultDealConfig())

	detail, err := ch.Deliver(context.Background(), sampleRecord())
	require.NoError(t, err)

	assert.Equal(t, "contact 901 created, deal d1 opened", detail)
	assert.Equal(t, "NEW", hs.created["hs_lead_status"])
	assert.Contains(t, hs.note, "Score: 85/100")
	assert.Contains(t, hs.note, "URGENT: Call within 1 hour")

	assert.Equal(t, "Aloha Poke - AI Consulting", hs.deal["dealname"])
	assert.Equal(t, "10000", hs.deal["amount"])
	assert.Equal(t, "default", hs.deal["pipeline"])
	assert.Equal(t, "appointmentscheduled", hs.deal["dealstage"])
	assert.Equal(t, "2026-04-30T09:30:00Z", hs.deal["closedate"])
	assert.Equal(t, [2]string{"d1", "901"}, hs.associated)
}

func TestHubSpotChannel_UpdatesExistingBelowThreshold(t *testing.T) {
	hs := &fakeHubSpot{existing: &hubspot.Object{ID: "555"}}
	ch := NewHubSpotChannel(hs, DefaultDealConfig())
	rec := sampleRecord()
	rec.QualificationScore = 65

	detail, err := ch.Deliver(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, "contact 555 updated", detail)
	assert.Equal(t, "555", hs.updatedID)
	assert.NotContains(t, hs.updated, "lifecyclestage")
	assert.Nil(t, hs.created)
	assert.Nil(t, hs.deal)
}

func TestHubSpotChannel_NoteFailureIsNotFatal(t *testing.T) {
	hs := &fakeHubSpot{noteErr: errors.New("hubspot: unexpected status 400")}
	rec := sampleRecord()
	rec.QualificationScore = 30

	detail, err := NewHubSpotChannel(hs, DefaultDealConfig()).Deliver(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "contact 901 created", detail)
}

func TestHubSpotChannel_LookupError(t *testing.T) {
	hs := &fakeHubSpot{lookupErr: errors.New("hubspot: unexpected status 401")}
	_, err := NewHubSpotChannel(hs, DefaultDealConfig()).Deliver(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Nil(t, hs.created)
}

func TestHubSpotChannel_Disabled(t *testing.T) {
	_, err := NewHubSpotChannel(nil, DefaultDealConfig()).Deliver(context.Background(), sampleRecord())
	assert.ErrorIs(t, err, ErrChannelDisabled)
}

// fakeSalesforce implements salesforce.Client.
type fakeSalesforce struct {
	contacts []salesforce.Contact
	inserts  []string
	records  []map[string]any
	updated  map[string]any
}

func (f *fakeSalesforce) Query(_ context.Context, _ string, out any) error {
	*(out.(*[]salesforce.Contact)) = f.contacts
	return nil
}

func (f *fakeSalesforce) InsertOne(_ context.Context, sObjectName string, record map[string]any) (string, error) {
	f.inserts = append(f.inserts, sObjectName)
	f.records = append(f.records, record)
	return sObjectName + "-1", nil
}

func (f *fakeSalesforce) UpdateOne(_ context.Context, _ string, _ string, fields map[string]any) error {
	f.updated = fields
	return nil
}

func TestSalesforceChannel_CreatesContactAndOpportunity(t *testing.T) {
	sf := &fakeSalesforce{}
	deal := DefaultDealConfig()
	deal.Stage = "Prospecting"

	detail, err := NewSalesforceChannel(sf, deal).Deliver(context.Background(), sampleRecord())
	require.NoError(t, err)

	assert.Equal(t, "contact Contact-1 created, opportunity Opportunity-1 opened", detail)
	assert.Equal(t, []string{"Contact", "Opportunity", "OpportunityContactRole"}, sf.inserts)
	assert.Equal(t, "Kahale", sf.records[0]["LastName"])
	assert.Equal(t, "Keoni", sf.records[0]["FirstName"])
	assert.Equal(t, "Prospecting", sf.records[1]["StageName"])
	assert.Equal(t, "2026-04-30", sf.records[1]["CloseDate"])
	assert.Equal(t, "Contact-1", sf.records[2]["ContactId"])
}

func TestSalesforceChannel_UpdatesExisting(t *testing.T) {
	sf := &fakeSalesforce{contacts: []salesforce.Contact{{ID: "003X"}}}
	rec := sampleRecord()
	rec.Name = "Keoni"
	rec.QualificationScore = 50

	detail, err := NewSalesforceChannel(sf, DefaultDealConfig()).Deliver(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, "contact 003X updated", detail)
	assert.Equal(t, "Keoni", sf.updated["LastName"])
	assert.NotContains(t, sf.updated, "FirstName")
	assert.Empty(t, sf.inserts)
}

func TestSalesforceChannel_Disabled(t *testing.T) {
	_, err := NewSalesforceChannel(nil, DefaultDealConfig()).Deliver(context.Background(), sampleRecord())
	assert.ErrorIs(t, err, ErrChannelDisabled)
}
