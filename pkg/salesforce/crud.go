package salesforce

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// UpdateContact updates a Contact record with the given fields.
func UpdateContact(ctx context.Context, c Client, contactID string, fields map[string]any) error {
	if contactID == "" {
		return eris.New("sf: contact id is required")
	}
	if len(fields) == 0 {
		return eris.New("sf: no fields to update")
	}
	if err := c.UpdateOne(ctx, "Contact", contactID, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update contact %s", contactID))
	}
	return nil
}

// CreateContact creates a new Contact record and returns its Salesforce ID.
// LastName is required by Salesforce.
func CreateContact(ctx context.Context, c Client, fields map[string]any) (string, error) {
	if fields["LastName"] == nil || fields["LastName"] == "" {
		return "", eris.New("sf: contact LastName is required")
	}
	id, err := c.InsertOne(ctx, "Contact", fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: create contact")
	}
	return id, nil
}

// Opportunity holds the fields used to open a deal for a lead.
type Opportunity struct {
	Name      string
	Amount    float64
	StageName string
	CloseDate time.Time
	Notes     string
}

// CreateOpportunity creates an Opportunity and returns its Salesforce ID.
func CreateOpportunity(ctx context.Context, c Client, opp Opportunity) (string, error) {
	if opp.Name == "" {
		return "", eris.New("sf: opportunity Name is required")
	}
	if opp.StageName == "" {
		return "", eris.New("sf: opportunity StageName is required")
	}
	fields := map[string]any{
		"Name":       opp.Name,
		"StageName":  opp.StageName,
		"CloseDate":  opp.CloseDate.Format("2006-01-02"),
		"Amount":     opp.Amount,
		"LeadSource": "Web",
	}
	if opp.Notes != "" {
		fields["Description"] = opp.Notes
	}
	id, err := c.InsertOne(ctx, "Opportunity", fields)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("sf: create opportunity %s", opp.Name))
	}
	return id, nil
}

// AddContactRole links a Contact to an Opportunity as its primary contact.
func AddContactRole(ctx context.Context, c Client, opportunityID, contactID string) error {
	if opportunityID == "" || contactID == "" {
		return eris.New("sf: opportunity and contact ids are required")
	}
	_, err := c.InsertOne(ctx, "OpportunityContactRole", map[string]any{
		"OpportunityId": opportunityID,
		"ContactId":     contactID,
		"IsPrimary":     true,
		"Role":          "Decision Maker",
	})
	if err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: link contact %s to opportunity %s", contactID, opportunityID))
	}
	return nil
}
