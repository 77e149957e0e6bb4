package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/flowpilot-io/flowpilot/pkg/config"
	"github.com/flowpilot-io/flowpilot/pkg/httpclient"
	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// HTTPCatalog consumes a remote workflow catalog service. Scoring happens
// on the remote side; this client only speaks the interface.
type HTTPCatalog struct {
	baseURL string
	apiKey  string
	client  *httpclient.Client
}

// NewHTTPCatalog creates a remote catalog client from config.
func NewHTTPCatalog(cfg *config.CatalogConfig) (*HTTPCatalog, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("catalog base_url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid catalog base_url: %w", err)
	}
	return &HTTPCatalog{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}),
			httpclient.WithMaxRetries(2),
		),
	}, nil
}

type remoteMatch struct {
	Workflow        *config.WorkflowSpec `json:"workflow"`
	Confidence      float64              `json:"confidence"`
	MatchedTriggers []string             `json:"matched_triggers"`
}

// FindWorkflowByTrigger asks the remote catalog to score the text.
func (c *HTTPCatalog) FindWorkflowByTrigger(ctx context.Context, agentID, text string, minConfidence float64) (*workflow.MatchResult, error) {
	query := url.Values{}
	query.Set("agent_id", agentID)
	query.Set("text", text)
	query.Set("min_confidence", strconv.FormatFloat(minConfidence, 'f', -1, 64))

	endpoint := c.baseURL + "/workflows/match?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("catalog match request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	var remote remoteMatch
	if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
		return nil, fmt.Errorf("failed to decode catalog match: %w", err)
	}
	if remote.Workflow == nil {
		return nil, nil
	}
	w, err := remote.Workflow.ToWorkflow()
	if err != nil {
		return nil, fmt.Errorf("catalog returned an invalid workflow: %w", err)
	}
	return &workflow.MatchResult{
		Workflow:        w,
		Confidence:      remote.Confidence,
		MatchedTriggers: remote.MatchedTriggers,
	}, nil
}

// GetWorkflow fetches one workflow record.
func (c *HTTPCatalog) GetWorkflow(ctx context.Context, workflowID string) (*workflow.Workflow, error) {
	endpoint := fmt.Sprintf("%s/workflows/%s", c.baseURL, url.PathEscape(workflowID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return nil, fmt.Errorf("workflow '%s' not found", workflowID)
			}
		}
		return nil, fmt.Errorf("catalog fetch failed: %w", err)
	}
	defer resp.Body.Close()

	var spec config.WorkflowSpec
	if err := json.NewDecoder(resp.Body).Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to decode workflow record: %w", err)
	}
	return spec.ToWorkflow()
}

// RecordExecution reports one execution back to the remote catalog.
func (c *HTTPCatalog) RecordExecution(ctx context.Context, workflowID string, at time.Time) error {
	body, err := json.Marshal(map[string]string{"executed_at": at.UTC().Format(time.RFC3339)})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/workflows/%s/executions", c.baseURL, url.PathEscape(workflowID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("catalog execution record failed: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (c *HTTPCatalog) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
