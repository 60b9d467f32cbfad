package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// EachPage calls fn for every page matching query, following cursors until
// the results run out or fn returns false. query may be nil.
func EachPage(ctx context.Context, c Client, dbID string, query *notionapi.DatabaseQueryRequest, fn func(notionapi.Page) bool) error {
	var cursor notionapi.Cursor
	for {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if query != nil {
			req.Filter = query.Filter
			req.Sorts = query.Sorts
			req.PageSize = query.PageSize
		}

		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return eris.Wrapf(err, "notion: walk %s", dbID)
		}
		for _, p := range resp.Results {
			if !fn(p) {
				return nil
			}
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return nil
		}
		cursor = resp.NextCursor
	}
}

// FindLeadPage returns the board row whose Lead ID equals leadID, or nil
// when the lead has never been synced.
func FindLeadPage(ctx context.Context, c Client, dbID, leadID string) (*notionapi.Page, error) {
	var found *notionapi.Page
	err := EachPage(ctx, c, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropLeadID,
			RichText: &notionapi.TextFilterCondition{Equals: leadID},
		},
		PageSize: 1,
	}, func(p notionapi.Page) bool {
		found = &p
		return false
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: find lead %s", leadID)
	}
	return found, nil
}
