package supervisor

import "fmt"

// LaunchError reports a worker that could not be started at all. Launch
// failures are synchronous: the caller learns immediately and no job record
// is created.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch worker: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
