package capture

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-concierge/internal/model"
	"github.com/sells-group/lead-concierge/internal/scorer"
	"github.com/sells-group/lead-concierge/pkg/hubspot"
	"github.com/sells-group/lead-concierge/pkg/salesforce"
)

// DealConfig controls when and how a CRM deal is opened for a lead.
type DealConfig struct {
	// Threshold is the minimum score that opens a deal.
	Threshold  int
	Amount     float64
	Pipeline   string
	Stage      string
	CloseAfter time.Duration
}

// DefaultDealConfig returns the HubSpot deal defaults.
func DefaultDealConfig() DealConfig {
	return DealConfig{
		Threshold:  70,
		Amount:     10000,
		Pipeline:   "default",
		Stage:      "appointmentscheduled",
		CloseAfter: 60 * 24 * time.Hour,
	}
}

// SplitName splits a full name into first and last name on the first space.
func SplitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	first, last, _ = strings.Cut(name, " ")
	return first, strings.TrimSpace(last)
}

func dealName(rec *model.LeadRecord) string {
	return fmt.Sprintf("%s - AI Consulting", orDefault(rec.Company, rec.DisplayName()))
}

// crmNote is the text attached to the CRM contact.
func crmNote(rec *model.LeadRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lead captured by the Leni chatbot (%s)\n", rec.LeadID)
	fmt.Fprintf(&b, "Score: %d/100 (%s - %s)\n", rec.QualificationScore, rec.LeadQuality, scorer.Label(rec.LeadQuality))
	fmt.Fprintf(&b, "Recommended: %s\n", scorer.RecommendedAction(rec.QualificationScore))
	if rec.BusinessType != "" {
		fmt.Fprintf(&b, "Business type: %s\n", rec.BusinessType)
	}
	if rec.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", rec.Location)
	}
	if rec.MainChallenge != "" {
		fmt.Fprintf(&b, "Challenge: %s\n", rec.MainChallenge)
	}
	if rec.BudgetRange != "" {
		fmt.Fprintf(&b, "Budget: %s\n", rec.BudgetRange)
	}
	if rec.ConversationSummary != "" {
		fmt.Fprintf(&b, "\n%s\n", rec.ConversationSummary)
	}
	return b.String()
}

// HubSpotChannel upserts the lead as a HubSpot contact.
type HubSpotChannel struct {
	client hubspot.Client
	deal   DealConfig
}

// NewHubSpotChannel returns the HubSpot CRM channel. A nil client disables it.
func NewHubSpotChannel(client hubspot.Client, deal DealConfig) *HubSpotChannel {
	return &HubSpotChannel{client: client, deal: deal}
}

func (c *HubSpotChannel) Name() string { return "crm" }

// ContactProperties maps a lead to HubSpot contact properties.
func ContactProperties(rec *model.LeadRecord) hubspot.Properties {
	props := hubspot.Properties{
		"hs_lead_status": "NEW",
		"lifecyclestage": "lead",
	}
	first, last := SplitName(rec.Name)
	for k, v := range map[string]string{
		"email":     rec.Email,
		"firstname": first,
		"lastname":  last,
		"phone":     rec.Phone,
		"company":   rec.Company,
	} {
		if v != "" {
			props[k] = v
		}
	}
	return props
}

func (c *HubSpotChannel) Deliver(ctx context.Context, rec *model.LeadRecord) (string, error) {
	if c.client == nil {
		return "", ErrChannelDisabled
	}
	props := ContactProperties(rec)

	existing, err := c.client.GetContactByEmail(ctx, rec.Email)
	if err != nil {
		return "", err
	}

	var contact *hubspot.Object
	action := "created"
	if existing != nil {
		action = "updated"
		// Lifecycle fields belong to the sales team once a contact exists.
		delete(props, "hs_lead_status")
		delete(props, "lifecyclestage")
		contact, err = c.client.UpdateContact(ctx, existing.ID, props)
	} else {
		contact, err = c.client.CreateContact(ctx, props)
	}
	if err != nil {
		return "", err
	}

	if _, err := c.client.CreateNote(ctx, contact.ID, crmNote(rec), rec.CapturedAt); err != nil {
		// The contact already exists; a missing note is not worth failing on.
		zap.L().Warn("crm: attach note failed", zap.String("lead_id", rec.LeadID), zap.Error(err))
	}

	detail := fmt.Sprintf("contact %s %s", contact.ID, action)
	if rec.QualificationScore < c.deal.Threshold {
		return detail, nil
	}

	deal, err := c.client.CreateDeal(ctx, hubspot.Properties{
		"dealname":  dealName(rec),
		"amount":    strconv.FormatFloat(c.deal.Amount, 'f', -1, 64),
		"pipeline":  c.deal.Pipeline,
		"dealstage": c.deal.Stage,
		"closedate": rec.CapturedAt.Add(c.deal.CloseAfter).UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", eris.Wrapf(err, "crm: open deal for contact %s", contact.ID)
	}
	if err := c.client.AssociateDealContact(ctx, deal.ID, contact.ID); err != nil {
		return "", err
	}
	return detail + ", deal " + deal.ID + " opened", nil
}

// SalesforceChannel upserts the lead as a Salesforce Contact.
type SalesforceChannel struct {
	client salesforce.Client
	deal   DealConfig
}

// NewSalesforceChannel returns the Salesforce CRM channel. A nil client
// disables it.
func NewSalesforceChannel(client salesforce.Client, deal DealConfig) *SalesforceChannel {
	return &SalesforceChannel{client: client, deal: deal}
}

func (c *SalesforceChannel) Name() string { return "crm" }

func contactFields(rec *model.LeadRecord) map[string]any {
	first, last := SplitName(rec.Name)
	if last == "" {
		// LastName is mandatory in Salesforce.
		last = orDefault(first, orDefault(rec.Company, "Unknown"))
		first = ""
	}
	fields := map[string]any{
		"LastName":    last,
		"LeadSource":  "Web",
		"Description": crmNote(rec),
	}
	for k, v := range map[string]string{
		"FirstName": first,
		"Email":     rec.Email,
		"Phone":     rec.Phone,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

func (c *SalesforceChannel) Deliver(ctx context.Context, rec *model.LeadRecord) (string, error) {
	if c.client == nil {
		return "", ErrChannelDisabled
	}
	fields := contactFields(rec)

	existing, err := salesforce.FindContactByEmail(ctx, c.client, rec.Email)
	if err != nil {
		return "", err
	}

	var contactID, action string
	if existing != nil {
		contactID, action = existing.ID, "updated"
		err = salesforce.UpdateContact(ctx, c.client, contactID, fields)
	} else {
		action = "created"
		contactID, err = salesforce.CreateContact(ctx, c.client, fields)
	}
	if err != nil {
		return "", err
	}

	detail := fmt.Sprintf("contact %s %s", contactID, action)
	if rec.QualificationScore < c.deal.Threshold {
		return detail, nil
	}

	oppID, err := salesforce.CreateOpportunity(ctx, c.client, salesforce.Opportunity{
		Name:      dealName(rec),
		Amount:    c.deal.Amount,
		StageName: c.deal.Stage,
		CloseDate: rec.CapturedAt.Add(c.deal.CloseAfter),
		Notes:     rec.ConversationSummary,
	})
	if err != nil {
		return "", err
	}
	if err := salesforce.AddContactRole(ctx, c.client, oppID, contactID); err != nil {
		return "", err
	}
	return detail + ", opportunity " + oppID + " opened", nil
}
