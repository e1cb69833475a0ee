package api

import "time"

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	LockFilePath string         `json:"lockFilePath"`
	CacheActive  bool           `json:"cacheActive"`
	JobCounts    map[string]int `json:"jobCounts"`
}

// JobSummary is one row of the job listing.
type JobSummary struct {
	JobID         string  `json:"job_id"`
	Status        string  `json:"status"`
	AudioFilename string  `json:"filename,omitempty"`
	Model         string  `json:"model,omitempty"`
	Progress      float64 `json:"progress"`
	Stage         string  `json:"stage,omitempty"`
	Error         string  `json:"error,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
	CompletedAt   string  `json:"completed_at,omitempty"`
}

// JobListResponse wraps the job listing.
type JobListResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// SubmitResponse acknowledges an accepted generation request.
type SubmitResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// JobStatus is the full status view of one job.
type JobStatus struct {
	JobID       string       `json:"job_id"`
	Status      string       `json:"status"`
	Message     string       `json:"message,omitempty"`
	Progress    float64      `json:"progress"`
	Stage       string       `json:"stage"`
	OutputFiles []OutputFile `json:"output_files,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// JobProgress is the detailed progress view of one job.
type JobProgress struct {
	JobID      string    `json:"job_id"`
	Progress   float64   `json:"progress"`
	Stage      string    `json:"stage"`
	Estimated  bool      `json:"estimated"`
	LastUpdate time.Time `json:"last_update"`
	Status     string    `json:"status"`
}

// OutputFile describes one generated artifact.
type OutputFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// FileListResponse wraps a job's artifact listing.
type FileListResponse struct {
	JobID string       `json:"job_id"`
	Files []OutputFile `json:"files"`
}

// CancelResponse reports the outcome of a cancel request.
type CancelResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StreamEvent is one server-sent event from a job's output stream.
type StreamEvent struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Type      string    `json:"type"`
	Line      string    `json:"line,omitempty"`
	Progress  float64   `json:"progress"`
	Stage     string    `json:"stage,omitempty"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
