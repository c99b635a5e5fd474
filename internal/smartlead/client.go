// Package smartlead pushes lead segments back to the Smartlead platform so
// campaign filters there stay aligned with the locally derived segments.
package smartlead

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ignite/lead-engagement/internal/config"
	"github.com/ignite/lead-engagement/internal/pkg/httpretry"
)

// Client is a Smartlead API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new Smartlead API client.
func NewClient(cfg config.SmartleadConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// doRequest makes an HTTP request to the Smartlead API. The api_key query
// parameter is always attached; Smartlead ignores the Authorization header
// on some endpoints.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, payload any) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	fullURL := c.baseURL + path + "?" + params.Encode()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// FindLeadByEmail looks up a remote lead. Returns nil without error when
// the address is unknown remotely.
func (c *Client) FindLeadByEmail(ctx context.Context, email string) (*Lead, error) {
	params := url.Values{}
	params.Set("email", email)

	body, err := c.doRequest(ctx, http.MethodGet, "/leads", params, nil)
	if err != nil {
		return nil, fmt.Errorf("finding lead: %w", err)
	}

	var response listResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("parsing lead lookup: %w", err)
	}
	if len(response.Data) == 0 {
		return nil, nil
	}
	return &response.Data[0], nil
}

// CreateLead creates a remote lead and returns its remote id.
func (c *Client) CreateLead(ctx context.Context, req CreateLeadRequest) (int64, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/leads", nil, req)
	if err != nil {
		return 0, fmt.Errorf("creating lead: %w", err)
	}

	var response createResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, fmt.Errorf("parsing lead creation: %w", err)
	}
	if response.Data.ID == 0 {
		return 0, fmt.Errorf("lead creation returned no id")
	}
	return response.Data.ID, nil
}

// BulkCreateLeads creates leads in the remote global list in one call.
func (c *Client) BulkCreateLeads(ctx context.Context, leads []CreateLeadRequest) error {
	if len(leads) == 0 {
		return nil
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/leads/bulk", nil, bulkLeadsRequest{Leads: leads}); err != nil {
		return fmt.Errorf("bulk creating leads: %w", err)
	}
	return nil
}

// AddLeadsToCampaign attaches leads to a remote campaign.
func (c *Client) AddLeadsToCampaign(ctx context.Context, campaignID int64, leads []CreateLeadRequest) error {
	if len(leads) == 0 {
		return nil
	}
	path := fmt.Sprintf("/campaigns/%d/leads", campaignID)
	if _, err := c.doRequest(ctx, http.MethodPost, path, nil, campaignLeadsRequest{LeadList: leads}); err != nil {
		return fmt.Errorf("adding leads to campaign: %w", err)
	}
	return nil
}

// UpdateLeadCategory sets the remote lead's category label.
func (c *Client) UpdateLeadCategory(ctx context.Context, leadID int64, category string) error {
	path := fmt.Sprintf("/leads/%d/category", leadID)
	if _, err := c.doRequest(ctx, http.MethodPost, path, nil, categoryRequest{CategoryName: category}); err != nil {
		return fmt.Errorf("updating lead category: %w", err)
	}
	return nil
}
