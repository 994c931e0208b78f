// Package agent implements the typed HTTP client for a node's local agent:
// the privileged process that actually creates, starts, stops, resizes and
// deletes game-server containers on its host.
//
// GATEWAY ARCHITECTURE:
// A Client is bound to one node's private address, agent port and bearer
// credential. Every call carries a fixed timeout; exceeding it is treated
// identically to a connection failure. Any transport failure or non-2xx
// response collapses into ErrAgentUnreachable - callers decide local
// fallout, the gateway never retries on its own.
//
// The gateway also dials the agent's console endpoint over WebSocket,
// carrying the node-scoped credential (never the user's), for the duplex
// console relay in the API layer.
//
// Node credentials are configured into the Resty client as an auth header
// and are never logged.
package agent

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/emberhost/ember/internal/config"
	"github.com/emberhost/ember/internal/logging"
	"github.com/emberhost/ember/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
)

// ErrAgentUnreachable is the uniform failure kind for agent calls: timeout,
// connection refusal, and agent-side rejection all collapse into it. It is
// always non-fatal to already-committed state.
var ErrAgentUnreachable = errors.New("node agent unreachable")

// CreateRequest is the provisioning payload sent to an agent's create
// endpoint. Resource limits are the snapshot values from the server row,
// not a live plan reference.
type CreateRequest struct {
	ServerID   string `json:"server_id"`
	Name       string `json:"name"`
	Port       int    `json:"port"`
	RAMMB      int64  `json:"ram_mb"`
	CPULimit   int    `json:"cpu_limit"`
	DiskGB     int    `json:"disk_gb"`
	MCVersion  string `json:"mc_version"`
	ServerType string `json:"server_type"`
}

// ResizeRequest carries new resource limits plus the human-readable plan
// label for the agent's bookkeeping.
type ResizeRequest struct {
	RAMMB    int64  `json:"ram_mb"`
	CPULimit int    `json:"cpu_limit"`
	DiskGB   int    `json:"disk_gb"`
	PlanName string `json:"plan_name"`
}

// Client is a typed HTTP client bound to one node's agent.
type Client struct {
	client  *resty.Client
	baseURL string
	token   string
	wsHost  string
}

// NewClient creates an agent client for the given node. A fresh client per
// call site is fine; construction is cheap and carries no persistent pool
// requirement.
func NewClient(node *models.Node) *Client {
	baseURL := fmt.Sprintf("http://%s:%d", node.Address, node.AgentPort)

	client := resty.New()
	client.
		SetTimeout(config.DefaultAgentTimeout).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetAuthToken(node.AgentToken)

	// Request/response tracing at debug level. URLs only - the auth token
	// must never reach the logs.
	client.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		logging.Debug("Agent call: %s %s", req.Method, req.URL)
		return nil
	})
	client.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logging.Debug("Agent response: %d (took %v)", resp.StatusCode(), resp.Time())
		return nil
	})

	return &Client{
		client:  client,
		baseURL: baseURL,
		token:   node.AgentToken,
		wsHost:  fmt.Sprintf("%s:%d", node.Address, node.AgentPort),
	}
}

// do executes a request expecting a 2xx and folds every failure mode into
// ErrAgentUnreachable.
func (c *Client) do(req *resty.Request, method, path string) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: agent returned %d", ErrAgentUnreachable, resp.StatusCode())
	}
	return nil
}

// CreateServer asks the agent to provision a new container.
func (c *Client) CreateServer(req *CreateRequest) error {
	return c.do(c.client.R().SetBody(req), http.MethodPost, "/servers/create")
}

// StartServer starts a provisioned container.
func (c *Client) StartServer(serverID string) error {
	return c.do(c.client.R(), http.MethodPost, fmt.Sprintf("/servers/%s/start", serverID))
}

// StopServer stops a running container.
func (c *Client) StopServer(serverID string) error {
	return c.do(c.client.R(), http.MethodPost, fmt.Sprintf("/servers/%s/stop", serverID))
}

// RestartServer restarts a container.
func (c *Client) RestartServer(serverID string) error {
	return c.do(c.client.R(), http.MethodPost, fmt.Sprintf("/servers/%s/restart", serverID))
}

// ResizeServer applies new resource limits to a container.
func (c *Client) ResizeServer(serverID string, req *ResizeRequest) error {
	return c.do(c.client.R().SetBody(req), http.MethodPost, fmt.Sprintf("/servers/%s/resize", serverID))
}

// DeleteServer removes a container and its data.
func (c *Client) DeleteServer(serverID string) error {
	return c.do(c.client.R(), http.MethodDelete, fmt.Sprintf("/servers/%s", serverID))
}

// GetMetrics fetches the agent's live metrics for a server as raw JSON,
// proxied to the caller without interpretation.
func (c *Client) GetMetrics(serverID string) ([]byte, error) {
	resp, err := c.client.R().Get(fmt.Sprintf("/servers/%s/metrics", serverID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: agent returned %d", ErrAgentUnreachable, resp.StatusCode())
	}
	return resp.Body(), nil
}

// GetProperties fetches the server.properties content for a server as raw
// JSON, proxied to the caller without interpretation.
func (c *Client) GetProperties(serverID string) ([]byte, error) {
	resp, err := c.client.R().Get(fmt.Sprintf("/servers/%s/properties", serverID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: agent returned %d", ErrAgentUnreachable, resp.StatusCode())
	}
	return resp.Body(), nil
}

// PutProperties replaces the server.properties content for a server with
// the raw JSON body supplied by the caller.
func (c *Client) PutProperties(serverID string, body []byte) error {
	return c.do(c.client.R().SetBody(body), http.MethodPut, fmt.Sprintf("/servers/%s/properties", serverID))
}

// DialConsole opens the agent-side WebSocket for a server's console stream,
// authenticating with the node-scoped credential. The returned connection
// is one end of the transparent duplex relay; the caller owns its lifetime.
func (c *Client) DialConsole(serverID string) (*websocket.Conn, error) {
	target := url.URL{
		Scheme: "ws",
		Host:   c.wsHost,
		Path:   fmt.Sprintf("/servers/%s/console", serverID),
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	dialer := websocket.Dialer{HandshakeTimeout: config.DefaultAgentTimeout}
	conn, resp, err := dialer.Dial(target.String(), header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("%w: console dial: %v", ErrAgentUnreachable, err)
	}

	return conn, nil
}

// keepalive grace applied when closing one side of a relay after the other
// side went away.
const closeGrace = time.Second

// WriteClose sends a best-effort close frame on a console connection.
func WriteClose(conn *websocket.Conn, code int, message string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, message), time.Now().Add(closeGrace))
}
