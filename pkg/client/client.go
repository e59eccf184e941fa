package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kurihiro0119/docsync/internal/domain"
)

// Client is the API client for docsync
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithUserID sets the identity sent with every request
func (c *Client) WithUserID(userID string) *Client {
	c.userID = userID
	return c
}

// APIError is a non-2xx answer of the API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error: %d %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error: %d - %s", e.StatusCode, e.Message)
}

// RepositoryDetail is a repository with its sync statistics
type RepositoryDetail struct {
	Repository *domain.Repository
	Stats      *domain.SyncStats
}

// ListRepositories retrieves every tracked repository
func (c *Client) ListRepositories(ctx context.Context) ([]*domain.Repository, error) {
	var response struct {
		Data []*domain.Repository `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/repositories", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetRepository retrieves one repository and its statistics
func (c *Client) GetRepository(ctx context.Context, id string) (*RepositoryDetail, error) {
	var response struct {
		Data  *domain.Repository `json:"data"`
		Stats *domain.SyncStats  `json:"stats"`
	}
	if err := c.get(ctx, "/api/v1/repositories/"+url.PathEscape(id), nil, &response); err != nil {
		return nil, err
	}
	return &RepositoryDetail{Repository: response.Data, Stats: response.Stats}, nil
}

// ListSyncRecords retrieves the newest sync records of a repository
func (c *Client) ListSyncRecords(ctx context.Context, id string, limit int) ([]*domain.SyncRecord, error) {
	var response struct {
		Data []*domain.SyncRecord `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/repositories/"+url.PathEscape(id)+"/syncs", limitParams(limit), &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// TriggerSync queues a manual sync on the server
func (c *Client) TriggerSync(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/repositories/"+url.PathEscape(id)+"/sync", nil, nil)
}

// GetCatalog retrieves the live catalog as a tree
func (c *Client) GetCatalog(ctx context.Context, id string) ([]*domain.CatalogTreeNode, error) {
	var response struct {
		Data []*domain.CatalogTreeNode `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/repositories/"+url.PathEscape(id)+"/catalog", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetCatalogContent retrieves the generated page of a catalog node
func (c *Client) GetCatalogContent(ctx context.Context, id, nodeID string) (*domain.CatalogContent, error) {
	var response struct {
		Data *domain.CatalogContent `json:"data"`
	}
	path := "/api/v1/repositories/" + url.PathEscape(id) + "/catalog/" + url.PathEscape(nodeID)
	if err := c.get(ctx, path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// ListChangelog retrieves the newest changelog entries
func (c *Client) ListChangelog(ctx context.Context, id string, limit int) ([]*domain.ChangelogEntry, error) {
	var response struct {
		Data []*domain.ChangelogEntry `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/repositories/"+url.PathEscape(id)+"/changelog", limitParams(limit), &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetStats retrieves sync statistics of every repository
func (c *Client) GetStats(ctx context.Context) ([]*domain.SyncStats, error) {
	var response struct {
		Data []*domain.SyncStats `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/stats", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetTimeline retrieves sync outcomes per period; an empty id covers all repositories
func (c *Client) GetTimeline(ctx context.Context, id string, start, end time.Time, granularity string) (*domain.SyncTimeline, error) {
	params := c.buildTimeParams(start, end, granularity)
	if id != "" {
		params.Set("repository_id", id)
	}

	var response struct {
		Data *domain.SyncTimeline `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/stats/timeline", params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func limitParams(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": []string{strconv.Itoa(limit)}}
}

func (c *Client) buildTimeParams(start, end time.Time, granularity string) url.Values {
	params := url.Values{}
	if !start.IsZero() {
		params.Set("start", start.Format("2006-01-02"))
	}
	if !end.IsZero() {
		params.Set("end", end.Format("2006-01-02"))
	}
	if granularity != "" {
		params.Set("granularity", granularity)
	}
	return params
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	return c.do(ctx, http.MethodGet, path, params, result)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, result any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body)}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}
