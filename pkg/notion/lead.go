package notion

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Lead board property names.
const (
	PropName     = "Name"
	PropLeadID   = "Lead ID"
	PropEmail    = "Email"
	PropPhone    = "Phone"
	PropCompany  = "Company"
	PropBusiness = "Business Type"
	PropLocation = "Location"
	PropScore    = "Score"
	PropQuality  = "Quality"
	PropStatus   = "Status"
	PropCaptured = "Captured"
	PropSummary  = "Summary"
)

// StatusNew is the board status given to freshly captured leads.
const StatusNew = "New"

// LeadPage is the data written to one lead board row.
type LeadPage struct {
	LeadID       string
	Name         string
	Email        string
	Phone        string
	Company      string
	BusinessType string
	Location     string
	Score        int
	Quality      string
	Summary      string
	CapturedAt   time.Time
}

// maxRichText is Notion's per-block text limit.
const maxRichText = 2000

// Properties converts the lead to Notion page properties. Empty optional
// values are omitted so updates never blank out existing cells.
func (l LeadPage) Properties() notionapi.Properties {
	captured := notionapi.Date(l.CapturedAt)
	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(l.Name),
		},
		PropLeadID: notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(l.LeadID),
		},
		PropScore: notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: float64(l.Score),
		},
		PropQuality: notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: l.Quality},
		},
		PropCaptured: notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &captured},
		},
	}
	if l.Email != "" {
		props[PropEmail] = notionapi.EmailProperty{Type: notionapi.PropertyTypeEmail, Email: l.Email}
	}
	if l.Phone != "" {
		props[PropPhone] = notionapi.PhoneNumberProperty{Type: notionapi.PropertyTypePhoneNumber, PhoneNumber: l.Phone}
	}
	for prop, v := range map[string]string{
		PropCompany:  l.Company,
		PropBusiness: l.BusinessType,
		PropLocation: l.Location,
		PropSummary:  l.Summary,
	} {
		if v != "" {
			props[prop] = notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: richText(v)}
		}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	if r := []rune(s); len(r) > maxRichText {
		s = string(r[:maxRichText])
	}
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
	}
}

// UpsertLead writes the lead to the board. An existing row with the same
// lead id is updated in place; otherwise a new row is created with status
// New. It returns the page id.
func UpsertLead(ctx context.Context, c Client, dbID string, lead LeadPage) (string, error) {
	if dbID == "" {
		return "", eris.New("notion: lead database id is required")
	}
	if lead.LeadID == "" {
		return "", eris.New("notion: lead id is required")
	}

	existing, err := FindLeadPage(ctx, c, dbID, lead.LeadID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		page, err := c.UpdatePage(ctx, string(existing.ID), &notionapi.PageUpdateRequest{
			Properties: lead.Properties(),
		})
		if err != nil {
			return "", eris.Wrap(err, fmt.Sprintf("notion: update lead %s", lead.LeadID))
		}
		return string(page.ID), nil
	}

	props := lead.Properties()
	props[PropStatus] = notionapi.StatusProperty{
		Type:   notionapi.PropertyTypeStatus,
		Status: notionapi.Status{Name: StatusNew},
	}
	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("notion: create lead %s", lead.LeadID))
	}
	return string(page.ID), nil
}
