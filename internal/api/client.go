package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Client talks to a running daemon over its HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	// stream requests have no overall deadline; the connection lives as
	// long as the job does.
	streamHTTP *http.Client
}

// NewClient constructs a client for the daemon at baseURL
// (e.g. "http://127.0.0.1:7915").
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    base,
		http:       &http.Client{Timeout: 30 * time.Second},
		streamHTTP: &http.Client{},
	}
}

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("daemon returned status %d", e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// DaemonStatus fetches the daemon status summary.
func (c *Client) DaemonStatus(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.getJSON(ctx, "/api/status", &out)
	return out, err
}

// Jobs lists all tracked jobs.
func (c *Client) Jobs(ctx context.Context) ([]JobSummary, error) {
	var out JobListResponse
	if err := c.getJSON(ctx, "/api/jobs", &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Submit uploads an audio file with generation parameters and returns the
// accepted job. fields are passed through as form values; the daemon applies
// defaults for anything omitted.
func (c *Client) Submit(ctx context.Context, audioPath string, fields map[string]string) (SubmitResponse, error) {
	var out SubmitResponse

	file, err := os.Open(audioPath)
	if err != nil {
		return out, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio_file", filepath.Base(audioPath))
	if err != nil {
		return out, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return out, fmt.Errorf("read audio file: %w", err)
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return out, fmt.Errorf("build upload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return out, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/jobs", &body)
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return out, fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return out, err
	}
	return out, json.NewDecoder(resp.Body).Decode(&out)
}

// JobStatus fetches the status of one job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	var out JobStatus
	err := c.getJSON(ctx, "/api/jobs/"+jobID+"/status", &out)
	return out, err
}

// JobProgress fetches the progress view of one job.
func (c *Client) JobProgress(ctx context.Context, jobID string) (JobProgress, error) {
	var out JobProgress
	err := c.getJSON(ctx, "/api/jobs/"+jobID+"/progress", &out)
	return out, err
}

// Files lists the artifacts of one job.
func (c *Client) Files(ctx context.Context, jobID string) ([]OutputFile, error) {
	var out FileListResponse
	if err := c.getJSON(ctx, "/api/jobs/"+jobID+"/files", &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// Download fetches the job's preferred artifact into destDir and returns the
// written path.
func (c *Client) Download(ctx context.Context, jobID, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+jobID+"/download", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}

	name := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = jobID + ".osz"
	}
	dest := filepath.Join(destDir, name)
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	return dest, nil
}

// Cancel requests cancellation of a running job.
func (c *Client) Cancel(ctx context.Context, jobID string) (CancelResponse, error) {
	var out CancelResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/jobs/"+jobID+"/cancel", nil)
	if err != nil {
		return out, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return out, fmt.Errorf("cancel: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return out, err
	}
	return out, json.NewDecoder(resp.Body).Decode(&out)
}

// Delete removes a job and its artifacts from the daemon.
func (c *Client) Delete(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/jobs/"+jobID, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Stream subscribes to a job's live output and invokes handler for every
// event until the stream ends, handler returns an error, or ctx is
// cancelled.
func (c *Client) Stream(ctx context.Context, jobID string, handler func(StreamEvent) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+jobID+"/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 512*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		var evt StreamEvent
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			continue
		}
		if err := handler(evt); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return ctx.Err()
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	statusErr := &StatusError{StatusCode: resp.StatusCode}
	var payload ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&payload); err == nil {
		statusErr.Message = payload.Error
	}
	return statusErr
}

// filenameFromDisposition extracts the filename parameter of a
// Content-Disposition header, tolerating the quoting variants the daemon
// emits.
func filenameFromDisposition(header string) string {
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if value, ok := strings.CutPrefix(part, "filename="); ok {
			return strings.Trim(value, `"`)
		}
	}
	return ""
}
