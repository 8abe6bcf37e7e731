package crm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client fetches CRM records from a HubSpot-compatible v3 objects API.
type Client struct {
	http *resty.Client
}

// ListPage is one page of records plus the cursor for the next page.
// After is empty when there are no further pages.
type ListPage struct {
	Records []Record
	After   string
}

type listResponse struct {
	Results []Record `json:"results"`
	Paging  struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

// NewClient creates a CRM API client. baseURL defaults to the public
// HubSpot endpoint when empty.
func NewClient(baseURL, accessToken string) (*Client, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("crm access token is required")
	}
	if baseURL == "" {
		baseURL = "https://api.hubapi.com"
	}

	http := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(accessToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)

	return &Client{http: http}, nil
}

// ListObjects fetches up to limit records of the given kind, optionally
// continuing from a pagination cursor.
func (c *Client) ListObjects(ctx context.Context, kind EntityKind, limit int, after string) (*ListPage, error) {
	if limit <= 0 {
		limit = 100
	}

	var out listResponse
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetResult(&out)
	if after != "" {
		req.SetQueryParam("after", after)
	}

	resp, err := req.Get(fmt.Sprintf("/crm/v3/objects/%s", kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list %s: API returned status %d: %s", kind, resp.StatusCode(), resp.String())
	}

	return &ListPage{
		Records: out.Results,
		After:   out.Paging.Next.After,
	}, nil
}

// ListAll pages through ListObjects until the cursor is exhausted or
// maxRecords is reached (0 means no cap).
func (c *Client) ListAll(ctx context.Context, kind EntityKind, maxRecords int) ([]Record, error) {
	var records []Record
	after := ""
	for {
		pageSize := 100
		if maxRecords > 0 && maxRecords-len(records) < pageSize {
			pageSize = maxRecords - len(records)
		}

		page, err := c.ListObjects(ctx, kind, pageSize, after)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)

		if page.After == "" || (maxRecords > 0 && len(records) >= maxRecords) {
			return records, nil
		}
		after = page.After
	}
}
