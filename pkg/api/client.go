package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
	"github.com/thecloudstation/cloudstation-deployer/pkg/httpclient"
)

// StatusResponse is returned by GET /deploy/status
type StatusResponse struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message,omitempty"`
}

// RecentResponse is returned by GET /deploy/recent
type RecentResponse struct {
	Success     bool                      `json:"success"`
	Deployments []deployment.HistoryEntry `json:"deployments"`
	Error       string                    `json:"error,omitempty"`
}

// InfraStatus is returned by GET /deploy/railway/{infraProjectId}
type InfraStatus struct {
	Success     bool                                `json:"success"`
	AllDeployed bool                                `json:"allDeployed"`
	HasFailure  bool                                `json:"hasFailure"`
	Services    map[string]deployment.ServiceStatus `json:"services"`
	Error       string                              `json:"error,omitempty"`
}

// Client talks to the deployment backend. JSON endpoints go through the
// retrying BaseClient; progress streams use a separate client with no
// timeout and are never retried.
type Client struct {
	*httpclient.BaseClient
	streamClient *http.Client
	logger       hclog.Logger
}

// NewClient creates a backend client. token may be empty.
func NewClient(baseURL, token string, logger hclog.Logger) *Client {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("api")

	client := &Client{
		BaseClient:   httpclient.NewBaseClient(baseURL, 30*time.Second, logger),
		streamClient: newStreamHTTPClient(),
		logger:       logger,
	}
	if token != "" {
		client.SetHeader("Authorization", "Bearer "+token)
	}
	return client
}

// newStreamHTTPClient forces HTTP/1.1; long-lived HTTP/2 streams get reset by
// some proxies (Cloudflare) mid-deployment. ALPN must be restricted too.
func newStreamHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		ForceAttemptHTTP2: false,
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"http/1.1"},
		},
	}
	return &http.Client{
		Timeout:   0, // deployments legitimately take minutes
		Transport: transport,
	}
}

// Status checks whether the backend is ready to accept deployments
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.DoJSON(ctx, http.MethodGet, "/deploy/status", nil, &resp); err != nil {
		return nil, fmt.Errorf("deploy status check failed: %w", err)
	}
	return &resp, nil
}

// RecentDeployments lists the most recent deployments, newest first
func (c *Client) RecentDeployments(ctx context.Context, limit int) ([]deployment.HistoryEntry, error) {
	path := "/deploy/recent"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}

	var resp RecentResponse
	if err := c.DoJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list recent deployments failed: %w", err)
	}
	if !resp.Success {
		if resp.Error != "" {
			return nil, fmt.Errorf("list recent deployments failed: %s", resp.Error)
		}
		return nil, fmt.Errorf("list recent deployments failed: backend reported success=false")
	}
	return resp.Deployments, nil
}

// InfraStatus fetches per-service status for a provisioned project
func (c *Client) InfraStatus(ctx context.Context, infraProjectID string) (*InfraStatus, error) {
	if infraProjectID == "" {
		return nil, fmt.Errorf("infra project ID cannot be empty")
	}

	path := fmt.Sprintf("/deploy/railway/%s", url.PathEscape(infraProjectID))
	var resp InfraStatus
	if err := c.DoJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("infra status check failed: %w", err)
	}
	if !resp.Success {
		if resp.Error != "" {
			return nil, fmt.Errorf("infra status check failed: %s", resp.Error)
		}
		return nil, fmt.Errorf("infra status check failed: backend reported success=false")
	}

	// Service names are map keys; fill in the Name field when omitted.
	for name, svc := range resp.Services {
		if svc.Name == "" {
			svc.Name = name
			resp.Services[name] = svc
		}
	}
	return &resp, nil
}

// OpenDeployStream starts a deployment and returns its progress stream.
// The caller must close the returned body; cancelling ctx tears down the
// connection.
func (c *Client) OpenDeployStream(ctx context.Context, req deployment.DeploymentRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deployment request: %w", err)
	}
	return c.openStream(ctx, "/deploy", body)
}

// OpenRedeployStream redeploys an existing infra project and returns its
// progress stream
func (c *Client) OpenRedeployStream(ctx context.Context, infraProjectID string) (io.ReadCloser, error) {
	if infraProjectID == "" {
		return nil, fmt.Errorf("infra project ID cannot be empty")
	}
	return c.openStream(ctx, fmt.Sprintf("/deploy/redeploy/%s", url.PathEscape(infraProjectID)), nil)
}

func (c *Client) openStream(ctx context.Context, path string, body []byte) (io.ReadCloser, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.ApplyHeaders(req.Header)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	c.logger.Debug("opening progress stream", "path", path)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, httpclient.StatusError(resp.StatusCode, respBody)
	}

	return resp.Body, nil
}
