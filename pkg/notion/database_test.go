package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func anyQuery() any { return mock.AnythingOfType("*notionapi.DatabaseQueryRequest") }

func TestEachPage_FollowsCursor(t *testing.T) {
	ctx := context.Background()
	mc := new(MockClient)
	mc.On("QueryDatabase", ctx, "leads-db", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "a"}, {ID: "b"}},
		HasMore:    true,
		NextCursor: "next-1",
	}, nil).Once()
	mc.On("QueryDatabase", ctx, "leads-db", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == "next-1"
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "c"}},
	}, nil).Once()

	var seen []notionapi.ObjectID
	err := EachPage(ctx, mc, "leads-db", nil, func(p notionapi.Page) bool {
		seen = append(seen, p.ID)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []notionapi.ObjectID{"a", "b", "c"}, seen)
	mc.AssertExpectations(t)
}

func TestEachPage_StopsEarly(t *testing.T) {
	ctx := context.Background()
	mc := new(MockClient)
	mc.On("QueryDatabase", ctx, "leads-db", anyQuery()).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "a"}, {ID: "b"}},
		HasMore:    true,
		NextCursor: "next-1",
	}, nil).Once()

	calls := 0
	err := EachPage(ctx, mc, "leads-db", nil, func(notionapi.Page) bool {
		calls++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	mc.AssertNumberOfCalls(t, "QueryDatabase", 1)
}

func TestEachPage_MissingCursorEndsWalk(t *testing.T) {
	ctx := context.Background()
	mc := new(MockClient)
	mc.On("QueryDatabase", ctx, "leads-db", anyQuery()).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "a"}},
		HasMore: true,
	}, nil).Once()

	require.NoError(t, EachPage(ctx, mc, "leads-db", nil, func(notionapi.Page) bool { return true }))
	mc.AssertExpectations(t)
}

func TestEachPage_Error(t *testing.T) {
	ctx := context.Background()
	mc := new(MockClient)
	mc.On("QueryDatabase", ctx, "leads-db", anyQuery()).Return(nil, assert.AnError).Once()

	err := EachPage(ctx, mc, "leads-db", nil, func(notionapi.Page) bool { return true })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: walk leads-db")
}

func TestFindLeadPage(t *testing.T) {
	ctx := context.Background()

	t.Run("filters on lead id", func(t *testing.T) {
		mc := new(MockClient)
		mc.On("QueryDatabase", ctx, "leads-db", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
			pf, ok := req.Filter.(notionapi.PropertyFilter)
			return ok && pf.Property == PropLeadID && pf.RichText != nil &&
				pf.RichText.Equals == "lead_20250101_120000" && req.PageSize == 1
		})).Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{ID: "row-7"}},
			HasMore: true, NextCursor: "more",
		}, nil).Once()

		page, err := FindLeadPage(ctx, mc, "leads-db", "lead_20250101_120000")
		require.NoError(t, err)
		require.NotNil(t, page)
		assert.Equal(t, notionapi.ObjectID("row-7"), page.ID)
		mc.AssertExpectations(t)
	})

	t.Run("not on the board", func(t *testing.T) {
		mc := new(MockClient)
		mc.On("QueryDatabase", ctx, "leads-db", anyQuery()).
			Return(&notionapi.DatabaseQueryResponse{}, nil).Once()

		page, err := FindLeadPage(ctx, mc, "leads-db", "lead_x")
		require.NoError(t, err)
		assert.Nil(t, page)
	})

	t.Run("query error", func(t *testing.T) {
		mc := new(MockClient)
		mc.On("QueryDatabase", ctx, "leads-db", anyQuery()).Return(nil, assert.AnError).Once()

		_, err := FindLeadPage(ctx, mc, "leads-db", "lead_x")
		assert.ErrorContains(t, err, "notion: find lead lead_x")
	})
}
