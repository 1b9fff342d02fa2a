package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client represents a Supabase client
type Client struct {
	URL        string
	ServiceKey string
	HTTPClient *http.Client
}

// NewClient creates a new Supabase client
func NewClient(url, serviceKey string) *Client {
	return &Client{
		URL:        strings.TrimRight(url, "/"),
		ServiceKey: serviceKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Error is returned for any response with status >= 400.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("supabase error (status %d): %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, rawURL string, query map[string]string, body io.Reader, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}

	if len(query) > 0 {
		q := req.URL.Query()
		for key, value := range query {
			q.Add(key, value)
		}
		req.URL.RawQuery = q.Encode()
	}

	req.Header.Set("apikey", c.ServiceKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.ServiceKey))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, &Error{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

func (c *Client) restURL(table string) string {
	return fmt.Sprintf("%s/rest/v1/%s", c.URL, table)
}

// Query executes a query on a Supabase table. Values use PostgREST
// operator syntax, e.g. {"user_id": "eq.42", "select": "user_id,height"}.
func (c *Client) Query(ctx context.Context, table string, query map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.restURL(table), query, nil, nil)
}

// QueryAll pages through a table with limit/offset until a short page is
// returned, and decodes every row into T.
func QueryAll[T any](ctx context.Context, c *Client, table string, query map[string]string, pageSize int) ([]T, error) {
	var out []T
	for offset := 0; ; offset += pageSize {
		q := make(map[string]string, len(query)+2)
		for k, v := range query {
			q[k] = v
		}
		q["limit"] = fmt.Sprint(pageSize)
		q["offset"] = fmt.Sprint(offset)

		body, err := c.Query(ctx, table, q)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", table, err)
		}
		var page []T
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", table, err)
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
	}
}

// Insert inserts one record or a slice of records into a Supabase table
func (c *Client) Insert(ctx context.Context, table string, data interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, c.restURL(table), nil, bytes.NewReader(jsonData), map[string]string{
		"Content-Type": "application/json",
		"Prefer":       "return=representation",
	})
}

// Upsert inserts or updates a record in a Supabase table
// onConflict specifies the columns to detect conflicts (e.g., "batch_id,user_id")
func (c *Client) Upsert(ctx context.Context, table string, data interface{}, onConflict string) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	// resolution=merge-duplicates updates existing rows
	return c.do(ctx, http.MethodPost, c.restURL(table), map[string]string{"on_conflict": onConflict}, bytes.NewReader(jsonData), map[string]string{
		"Content-Type": "application/json",
		"Prefer":       "return=representation,resolution=merge-duplicates",
	})
}

// UpdateWhere updates records matching a query
func (c *Client) UpdateWhere(ctx context.Context, table string, query map[string]string, data interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPatch, c.restURL(table), query, bytes.NewReader(jsonData), map[string]string{
		"Content-Type": "application/json",
		"Prefer":       "return=representation",
	})
}

// Upload stores an object in a Storage bucket, overwriting any existing
// object at the same key.
func (c *Client) Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	target := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.URL, url.PathEscape(bucket), strings.Join(segments, "/"))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := c.do(ctx, http.MethodPost, target, nil, body, map[string]string{
		"Content-Type": contentType,
		"x-upsert":     "true",
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", bucket, key, err)
	}
	return nil
}
