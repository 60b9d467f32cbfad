package capture

import (
	"context"

	"github.com/sells-group/lead-concierge/internal/model"
	"github.com/sells-group/lead-concierge/pkg/notion"
)

// NotionChannel mirrors leads onto a Notion board.
type NotionChannel struct {
	client notion.Client
	dbID   string
}

// NewNotionChannel returns the Notion board channel. It is disabled without
// a client or database id.
func NewNotionChannel(client notion.Client, dbID string) *NotionChannel {
	return &NotionChannel{client: client, dbID: dbID}
}

func (c *NotionChannel) Name() string { return "notion" }

// LeadPage converts a lead record to a board row.
func LeadPage(rec *model.LeadRecord) notion.LeadPage {
	return notion.LeadPage{
		LeadID:       rec.LeadID,
		Name:         rec.DisplayName(),
		Email:        rec.Email,
		Phone:        rec.Phone,
		Company:      rec.Company,
		BusinessType: rec.BusinessType,
		Location:     rec.Location,
		Score:        rec.QualificationScore,
		Quality:      string(rec.LeadQuality),
		Summary:      rec.ConversationSummary,
		CapturedAt:   rec.CapturedAt,
	}
}

func (c *NotionChannel) Deliver(ctx context.Context, rec *model.LeadRecord) (string, error) {
	if c.client == nil || c.dbID == "" {
		return "", ErrChannelDisabled
	}
	pageID, err := notion.UpsertLead(ctx, c.client, c.dbID, LeadPage(rec))
	if err != nil {
		return "", err
	}
	return "page " + pageID, nil
}
