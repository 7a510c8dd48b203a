package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/banshee-data/cloudseg/internal/cloud"
	"github.com/banshee-data/cloudseg/internal/config"
	"github.com/banshee-data/cloudseg/internal/httputil"
	"github.com/banshee-data/cloudseg/internal/orchestrator"
)

// Client calls a node's HTTP API. Clouds travel in the binary codec so
// non-finite coordinates survive the trip.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient returns a client for the node at baseURL. A nil hc uses
// http.DefaultClient.
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

// Segment runs a synchronous segmentation and returns the labeled cloud.
func (c *Client) Segment(ctx context.Context, in cloud.Cloud) (cloud.Cloud, error) {
	data, err := in.MarshalBinary()
	if err != nil {
		return cloud.Cloud{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/do_segmentation", bytes.NewReader(data))
	if err != nil {
		return cloud.Cloud{}, err
	}
	req.Header.Set("Content-Type", ContentTypeCloud)

	resp, err := c.http.Do(req)
	if err != nil {
		return cloud.Cloud{}, err
	}
	defer resp.Body.Close()
	if err := httputil.CheckResponse(resp); err != nil {
		return cloud.Cloud{}, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cloud.Cloud{}, fmt.Errorf("failed to read segmented cloud: %w", err)
	}
	return cloud.Decode(body)
}

// EnablePublisher sets the node's stream publication flag.
func (c *Client) EnablePublisher(ctx context.Context, enable bool) error {
	var resp EnablePublisherResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/enable_publisher", EnablePublisherRequest{Enable: enable}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("enable_publisher not acknowledged")
	}
	return nil
}

// AcceptGoal starts a goal and returns its ID. A goal already running
// yields an *httputil.APIError with status 409.
func (c *Client) AcceptGoal(ctx context.Context) (string, error) {
	var resp GoalAcceptedResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/goals", nil, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Goal returns the status of one goal.
func (c *Client) Goal(ctx context.Context, id string) (orchestrator.GoalStatus, error) {
	var st orchestrator.GoalStatus
	err := c.doJSON(ctx, http.MethodGet, "/api/goals/"+url.PathEscape(id), nil, &st)
	return st, err
}

// ListGoals returns up to limit recent goals; limit <= 0 uses the server
// default.
func (c *Client) ListGoals(ctx context.Context, limit int) ([]orchestrator.GoalStatus, error) {
	path := "/api/goals"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Goals []orchestrator.GoalStatus `json:"goals"`
	}
	err := c.doJSON(ctx, http.MethodGet, path, nil, &resp)
	return resp.Goals, err
}

func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var st StatusResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

func (c *Client) Config(ctx context.Context) (config.Segmentation, error) {
	var cfg config.Segmentation
	err := c.doJSON(ctx, http.MethodGet, "/api/config", nil, &cfg)
	return cfg, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := httputil.CheckResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
