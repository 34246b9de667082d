package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// maxQueryPages bounds cursor pagination.
const maxQueryPages = 50

// QueryAll fetches every page of a database query, following cursors.
func QueryAll(ctx context.Context, c Client, dbID string, query *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	req := &notionapi.DatabaseQueryRequest{}
	if query != nil {
		req.Filter = query.Filter
		req.Sorts = query.Sorts
		req.PageSize = query.PageSize
	}

	var all []notionapi.Page
	for i := 0; i < maxQueryPages; i++ {
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}
		all = append(all, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return all, nil
		}
		next := *req
		next.StartCursor = resp.NextCursor
		req = &next
	}
	return nil, eris.Errorf("notion: database %s exceeded %d pages", dbID, maxQueryPages)
}

// QueryByStatus fetches every page whose Status property equals status.
func QueryByStatus(ctx context.Context, c Client, dbID, status string) ([]notionapi.Page, error) {
	pages, err := QueryAll(ctx, c, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status:   &notionapi.StatusFilterCondition{Equals: status},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query %s pages", status)
	}
	return pages, nil
}

// TextProperty returns the plain text of a title or rich text property, or
// "" when the page has no such property.
func TextProperty(p notionapi.Page, name string) string {
	prop, ok := p.Properties[name]
	if !ok {
		return ""
	}
	var parts []notionapi.RichText
	switch v := prop.(type) {
	case *notionapi.TitleProperty:
		parts = v.Title
	case *notionapi.RichTextProperty:
		parts = v.RichText
	default:
		return ""
	}
	var b strings.Builder
	for _, rt := range parts {
		b.WriteString(rt.PlainText)
	}
	return strings.TrimSpace(b.String())
}
