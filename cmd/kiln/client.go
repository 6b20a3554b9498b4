package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// apiClient is a thin JSON client for the daemon API.
type apiClient struct {
	base string
	http http.Client
}

type jobView struct {
	ID           string           `json:"id"`
	TemplateRef  string           `json:"template_ref"`
	Target       string           `json:"target"`
	Status       string           `json:"status"`
	ErrorMessage string           `json:"error_message"`
	LastLogLine  string           `json:"last_log_line"`
	Result       string           `json:"result_ref"`
	WebArchive   string           `json:"web_archive_ref"`
	WebEntry     string           `json:"web_entry_ref"`
	AndroidPkg   string           `json:"android_package_ref"`
	Cover        string           `json:"cover_ref"`
	Screenshots  []string         `json:"screenshot_refs"`
	Video        string           `json:"video_ref"`
	TimingsMS    map[string]int64 `json:"timings_ms"`
	StartedAt    *time.Time       `json:"started_at"`
	FinishedAt   *time.Time       `json:"finished_at"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type daemonStatus struct {
	Jobs  map[string]int `json:"jobs"`
	Cache struct {
		Entries        int    `json:"entries"`
		UsedBytes      int64  `json:"used_bytes"`
		DiskFreeBytes  uint64 `json:"disk_free_bytes"`
		DiskTotalBytes uint64 `json:"disk_total_bytes"`
		Root           string `json:"root"`
	} `json:"cache"`
}

type submitPayload struct {
	TemplateRef string          `json:"template_ref"`
	Target      string          `json:"target"`
	Overrides   json.RawMessage `json:"overrides,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (c *apiClient) submit(ctx context.Context, payload submitPayload) (jobView, error) {
	var job jobView
	err := c.do(ctx, http.MethodPost, "/api/jobs", payload, &job)
	return job, err
}

func (c *apiClient) show(ctx context.Context, id string) (jobView, error) {
	var job jobView
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+id, nil, &job)
	return job, err
}

func (c *apiClient) list(ctx context.Context, status string) ([]jobView, error) {
	path := "/api/jobs"
	if status != "" {
		path += "?status=" + status
	}
	var payload struct {
		Jobs []jobView `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Jobs, nil
}

func (c *apiClient) cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+id+"/cancel", nil, nil)
}

func (c *apiClient) rebuild(ctx context.Context, id, target string) (jobView, error) {
	payload := map[string]string{}
	if target != "" {
		payload["target"] = target
	}
	var job jobView
	err := c.do(ctx, http.MethodPost, "/api/jobs/"+id+"/rebuild", payload, &job)
	return job, err
}

func (c *apiClient) status(ctx context.Context) (daemonStatus, error) {
	var status daemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &status)
	return status, err
}

func (c *apiClient) do(ctx context.Context, method, path string, payload, target any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.base, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &failure) == nil && failure.Error != "" {
			return fmt.Errorf("%s", failure.Error)
		}
		return fmt.Errorf("daemon returned http %d", resp.StatusCode)
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
