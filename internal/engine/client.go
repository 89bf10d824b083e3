// Package engine is the HTTP client for the remote browser-automation
// engine. The engine performs the actual form filling; this side only
// starts runs, polls their status, and cancels them.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SingleStatus is the engine's view of the most recently started single run.
type SingleStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// BatchStatus echoes the batch job id so stale pollers can be detected.
type BatchStatus struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	Message        string `json:"message"`
	CompletedCount int    `json:"completed_count"`
}

type startSingleRequest struct {
	URL         string `json:"url"`
	Headless    bool   `json:"headless"`
	VisitNumber string `json:"visit_number,omitempty"`
}

type startBatchRequest struct {
	SourcePath        string   `json:"source_path"`
	Headless          bool     `json:"headless"`
	SelectedVisits    []string `json:"selected_visits"`
	ResumeFromBatchID string   `json:"resume_from_batch_id,omitempty"`
}

type startResponse struct {
	JobID       string `json:"job_id"`
	TotalVisits int    `json:"total_visits,omitempty"`
}

type cancelRequest struct {
	JobID string `json:"job_id"`
}

type cancelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StartSingle asks the engine to run form automation for one visit and
// returns the engine-assigned job id.
func (c *Client) StartSingle(ctx context.Context, url string, headless bool, visitNumber string) (string, error) {
	var resp startResponse
	req := startSingleRequest{URL: url, Headless: headless, VisitNumber: visitNumber}
	if err := c.do(ctx, http.MethodPost, "/api/automation/single", req, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("engine returned no job id")
	}
	return resp.JobID, nil
}

func (c *Client) GetSingleStatus(ctx context.Context) (SingleStatus, error) {
	var resp SingleStatus
	err := c.do(ctx, http.MethodGet, "/api/automation/single/status", nil, &resp)
	return resp, err
}

// StartBatch submits a multi-visit run. A non-empty resumeFrom tells the
// engine to continue a previously failed batch instead of restarting it.
func (c *Client) StartBatch(ctx context.Context, sourcePath string, headless bool, selected []string, resumeFrom string) (string, int, error) {
	var resp startResponse
	req := startBatchRequest{
		SourcePath:        sourcePath,
		Headless:          headless,
		SelectedVisits:    selected,
		ResumeFromBatchID: resumeFrom,
	}
	if err := c.do(ctx, http.MethodPost, "/api/automation/batch", req, &resp); err != nil {
		return "", 0, err
	}
	if resp.JobID == "" {
		return "", 0, fmt.Errorf("engine returned no job id")
	}
	return resp.JobID, resp.TotalVisits, nil
}

func (c *Client) GetBatchStatus(ctx context.Context) (BatchStatus, error) {
	var resp BatchStatus
	err := c.do(ctx, http.MethodGet, "/api/automation/batch/status", nil, &resp)
	return resp, err
}

// Cancel asks the engine to stop a run. An accepted request with
// success=false is reported as an error carrying the engine's message.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	var resp cancelResponse
	if err := c.do(ctx, http.MethodPost, "/api/automation/cancel", cancelRequest{JobID: jobID}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		if resp.Message != "" {
			return fmt.Errorf("engine refused cancel: %s", resp.Message)
		}
		return fmt.Errorf("engine refused cancel")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read engine response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("engine rejected request: %s", apiErr.Error)
		}
		return fmt.Errorf("engine returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode engine response: %w", err)
	}
	return nil
}
