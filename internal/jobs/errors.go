package jobs

import "errors"

// ErrNotFound is returned when a job id is unknown to the store.
var ErrNotFound = errors.New("job not found")

// ErrAlreadyFinished is returned when an operation requires a running job
// but the job has already reached a terminal status.
var ErrAlreadyFinished = errors.New("job already finished")
