package conductor

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/leonardcser/qbd-mcp/internal/apierr"
)

// Page is one page of a list endpoint.
type Page struct {
	ObjectType     string            `json:"objectType,omitempty"`
	URL            string            `json:"url,omitempty"`
	Data           []json.RawMessage `json:"data"`
	HasMore        bool              `json:"hasMore"`
	NextCursor     string            `json:"nextCursor,omitempty"`
	RemainingCount *int              `json:"remainingCount,omitempty"`
}

// GetPage reads one page of a list endpoint.
func (c *Client) GetPage(ctx context.Context, endpoint string, params Params, useCache bool) (*Page, error) {
	body, err := c.Get(ctx, endpoint, params, useCache)
	if err != nil {
		return nil, err
	}
	var p Page
	if len(body) == 0 {
		return &p, nil
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, apierr.New(apierr.KindGeneric, fmt.Sprintf("Unexpected list response from %s: %v", endpoint, err))
	}
	return &p, nil
}

// GetAllPages drains a list endpoint by following nextCursor from params
// onward and returns the records of every page in order. Draining stops at a
// page without more data, at a page claiming more data but carrying no
// cursor (logged as a warning) or at the configured page cap. Any page
// failure aborts the drain and nothing partial is returned.
func (c *Client) GetAllPages(ctx context.Context, endpoint string, params Params, useCache bool) ([]json.RawMessage, error) {
	var all []json.RawMessage
	cursor := ""
	for n := 1; ; n++ {
		p := params.Clone()
		if cursor != "" {
			p["cursor"] = cursor
		}
		page, err := c.GetPage(ctx, endpoint, p, useCache)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Data...)

		if !page.HasMore {
			break
		}
		if page.NextCursor == "" {
			c.s.log.Warn("more data reported but no cursor provided, stopping pagination",
				zap.String("endpoint", endpoint), zap.Int("pages", n))
			break
		}
		if c.s.maxPages > 0 && n >= c.s.maxPages {
			c.s.log.Warn("page cap reached, stopping pagination",
				zap.String("endpoint", endpoint), zap.Int("maxPages", c.s.maxPages))
			break
		}
		cursor = page.NextCursor
	}
	c.s.log.Info("retrieved all pages", zap.String("endpoint", endpoint), zap.Int("records", len(all)))
	if all == nil {
		all = []json.RawMessage{}
	}
	return all, nil
}

// Decode unmarshals each raw record into T.
func Decode[T any](raw []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, apierr.New(apierr.KindGeneric, fmt.Sprintf("Unexpected record %d in upstream response: %v", i, err))
		}
		out = append(out, v)
	}
	return out, nil
}
