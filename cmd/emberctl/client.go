// Package main implements the Ember CLI (emberctl).
//
// This file provides the HTTP client layer for communicating with the
// emberd REST API: request/response serialization, bearer credentials,
// and uniform error extraction from the daemon's {error, reason} payloads.
package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/emberhost/ember/internal/models"
	"github.com/go-resty/resty/v2"
)

// apiError is the daemon's uniform failure payload.
type apiError struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// serverList mirrors the daemon's server listing response.
type serverList struct {
	Servers []models.Server `json:"servers"`
	Count   int             `json:"count"`
}

// nodeList mirrors the daemon's fleet listing response.
type nodeList struct {
	Nodes []models.Node `json:"nodes"`
	Count int           `json:"count"`
}

// planList mirrors the daemon's plan catalog response.
type planList struct {
	Plans []models.Plan `json:"plans"`
	Count int           `json:"count"`
}

// apiClient wraps resty with Ember-specific request handling.
type apiClient struct {
	http *resty.Client
}

// newAPIClient builds a client against the daemon address using the given
// bearer credential.
func newAPIClient(baseURL, token string) *apiClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("User-Agent", "emberctl/"+Version).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &apiClient{http: c}
}

// call executes a request and decodes the response into out (which may be
// nil), folding HTTP-level failures into readable errors.
func (c *apiClient) call(method, path string, body, out any) error {
	req := c.http.R()
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("cannot reach daemon at %s: %w", c.http.BaseURL, err)
	}

	if resp.IsError() {
		var apiErr apiError
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Error != "" {
			if apiErr.Reason != "" {
				return fmt.Errorf("%s (%s)", apiErr.Error, apiErr.Reason)
			}
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status())
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("malformed daemon response: %w", err)
		}
	}
	return nil
}

func (c *apiClient) listServers() (*serverList, error) {
	var out serverList
	if err := c.call("GET", "/api/v1/servers", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) createServer(body map[string]any) (*models.Server, error) {
	var out models.Server
	if err := c.call("POST", "/api/v1/servers", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) powerAction(serverID, action string) error {
	return c.call("POST", "/api/v1/servers/"+serverID+"/"+action, nil, nil)
}

func (c *apiClient) deleteServer(serverID string) error {
	return c.call("DELETE", "/api/v1/servers/"+serverID, nil, nil)
}

func (c *apiClient) listPlans() (*planList, error) {
	var out planList
	if err := c.call("GET", "/api/v1/plans", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) listNodes() (*nodeList, error) {
	var out nodeList
	if err := c.call("GET", "/internal/nodes", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) registerNode(body map[string]any) (*models.Node, error) {
	var out models.Node
	if err := c.call("POST", "/internal/nodes", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) createPlan(body map[string]any) (*models.Plan, error) {
	var out models.Plan
	if err := c.call("POST", "/internal/plans", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
