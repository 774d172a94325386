package records

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultAirtableBaseURL = "https://api.airtable.com"

// Airtable fetches records from the Airtable REST API. It implements Source.
type Airtable struct {
	baseURL    string
	apiKey     string
	baseID     string
	httpClient *http.Client
}

// AirtableConfig holds the connection settings for one Airtable base.
type AirtableConfig struct {
	APIKey string
	BaseID string
	// BaseURL overrides the API endpoint. Empty means the public API.
	BaseURL string
}

// NewAirtable creates a client for the given base.
func NewAirtable(cfg AirtableConfig) *Airtable {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAirtableBaseURL
	}
	return &Airtable{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		baseID:  cfg.BaseID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// listResponse mirrors the JSON returned by GET /v0/{base}/{table}.
type listResponse struct {
	Records []recordEntry `json:"records"`
	Offset  string        `json:"offset"`
}

type recordEntry struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// FetchAll pages through the whole table. Collections here are small
// (single-property inventories), so fetching everything per query trades
// throughput for freshness.
func (a *Airtable) FetchAll(ctx context.Context, table string) ([]Record, error) {
	var out []Record
	offset := ""
	for {
		page, err := a.fetchPage(ctx, table, map[string]string{"offset": offset})
		if err != nil {
			return nil, err
		}
		for _, r := range page.Records {
			out = append(out, Record{ID: r.ID, Fields: r.Fields})
		}
		if page.Offset == "" {
			return out, nil
		}
		offset = page.Offset
	}
}

// FetchBounded returns at most n records of the table.
func (a *Airtable) FetchBounded(ctx context.Context, table string, n int) ([]Record, error) {
	page, err := a.fetchPage(ctx, table, map[string]string{"maxRecords": strconv.Itoa(n)})
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(page.Records))
	for _, r := range page.Records {
		out = append(out, Record{ID: r.ID, Fields: r.Fields})
	}
	return out, nil
}

func (a *Airtable) fetchPage(ctx context.Context, table string, params map[string]string) (*listResponse, error) {
	endpoint := fmt.Sprintf("%s/v0/%s/%s", a.baseURL, a.baseID, url.PathEscape(table))

	q := url.Values{}
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %q: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %q: unexpected status %d", table, resp.StatusCode)
	}

	var page listResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding %q response: %w", table, err)
	}
	return &page, nil
}
