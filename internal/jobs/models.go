package jobs

import (
	"os"
	"time"

	"mapsmith/internal/progress"
)

// Status represents the lifecycle of a supervised job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Metadata captures the immutable facts recorded when a job is created.
type Metadata struct {
	AudioPath     string            `json:"audio_path"`
	AudioFilename string            `json:"audio_filename,omitempty"`
	OutputDir     string            `json:"output_dir"`
	Command       []string          `json:"command"`
	Params        map[string]string `json:"params,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Job is one supervised run of the generation worker plus its tracked state.
// Fields are guarded by the owning Store; the process handle is owned by the
// supervisor and only touched for signalling and exit inspection.
type Job struct {
	ID       string
	Process  *os.Process
	Status   Status
	Metadata Metadata
	Progress progress.State

	// ErrorMessage records why a job reached StatusFailed.
	ErrorMessage string
	// CompletedAt is set exactly once, on the first terminal transition.
	CompletedAt time.Time

	outputLog []string
}

// Snapshot is a copy-safe view of a job used by queries and the cache
// mirror. It deliberately excludes the process handle.
type Snapshot struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	Percent      float64   `json:"progress"`
	Stage        string    `json:"stage"`
	Estimated    bool      `json:"estimated"`
	LastUpdate   time.Time `json:"last_update"`
	ErrorMessage string    `json:"error,omitempty"`
	CompletedAt  time.Time `json:"completed_at,omitzero"`
	Metadata     Metadata  `json:"metadata"`
}

func (j *Job) snapshot() Snapshot {
	return Snapshot{
		ID:           j.ID,
		Status:       j.Status,
		Percent:      j.Progress.Percent,
		Stage:        j.Progress.Stage,
		Estimated:    j.Progress.Estimated,
		LastUpdate:   j.Progress.LastUpdate,
		ErrorMessage: j.ErrorMessage,
		CompletedAt:  j.CompletedAt,
		Metadata:     j.Metadata,
	}
}
