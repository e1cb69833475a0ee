package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"mapsmith/internal/jobs"
	"mapsmith/internal/logging"
)

// maxLineSize bounds a single worker output line. tqdm redraws can emit very
// long lines when the terminal width is misdetected.
const maxLineSize = 256 * 1024

// collect is the per-job collector goroutine: the sole reader of the
// worker's combined output. It feeds the store, the progress estimator, the
// broadcast hub, and the cache mirror, then finalizes the job from the
// process exit status.
func (s *Supervisor) collect(id string, cmd *exec.Cmd, output io.ReadCloser, hub *jobs.Hub, startedAt time.Time) {
	scanner := bufio.NewScanner(output)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		s.applyLine(id, scanner.Text(), hub, startedAt)
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	now := time.Now().UTC()

	status := jobs.StatusCompleted
	message := ""
	switch {
	case scanErr != nil:
		status = jobs.StatusFailed
		message = "monitoring error"
		s.logger.Error("output stream failed",
			logging.String(logging.FieldJobID, id),
			logging.Error(scanErr))
	case waitErr != nil:
		status = jobs.StatusFailed
		message = exitMessage(waitErr)
	}

	snap, applied := s.store.Finalize(id, status, message, now)
	if !applied {
		// A cancel (or delete) won the terminal transition; it already
		// published the stream's last word.
		hub.Close()
		return
	}
	s.mirrorProgress(id)

	switch status {
	case jobs.StatusCompleted:
		hub.Publish(jobs.Event{Type: jobs.EventCompleted, Percent: 100, Stage: "completed"})
		s.logger.Info("job completed",
			logging.String(logging.FieldJobID, id),
			logging.Duration("elapsed", now.Sub(startedAt)))
	default:
		hub.Publish(jobs.Event{Type: jobs.EventFailed, Line: message, Percent: snap.Percent, Stage: snap.Stage})
		s.logger.Error("job failed",
			logging.String(logging.FieldJobID, id),
			logging.String("reason", message))
	}
}

// applyLine records one output line and advances the job's progress state.
// Store mutation happens under the store's short lock; the cache write is
// deliberately outside it.
func (s *Supervisor) applyLine(id, raw string, hub *jobs.Hub, startedAt time.Time) {
	line := strings.TrimRight(raw, "\r\n")
	s.store.AppendOutput(id, line)

	state, ok := s.store.ProgressState(id)
	if !ok {
		return
	}
	if next, changed := s.est.Estimate(line, state, startedAt, time.Now().UTC()); changed {
		if s.store.SetProgress(id, next) {
			state = next
			s.mirrorProgress(id)
		}
	}

	hub.Publish(jobs.Event{
		Type:    jobs.EventOutput,
		Line:    line,
		Percent: state.Percent,
		Stage:   state.Stage,
	})
}

// exitMessage renders a worker exit failure the way operators expect to read
// it: the exit code when there is one, the wait error otherwise.
func exitMessage(waitErr error) string {
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		if code := exitErr.ExitCode(); code >= 0 {
			return fmt.Sprintf("process exited with code %d", code)
		}
		return fmt.Sprintf("process terminated: %v", exitErr)
	}
	return fmt.Sprintf("process wait failed: %v", waitErr)
}
