package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"log/slog"

	"mapsmith/internal/api"
	"mapsmith/internal/config"
	"mapsmith/internal/jobs"
	"mapsmith/internal/logging"
	"mapsmith/internal/supervisor"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	cfg    *config.Config

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		cfg:    cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/jobs", srv.handleJobs)
	mux.HandleFunc("/api/jobs/", srv.handleJobItem)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound listen address, for tests that bind port 0.
func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      true,
		PID:          os.Getpid(),
		LockFilePath: s.daemon.LockFilePath(),
		CacheActive:  s.daemon.CacheActive(),
		JobCounts:    s.daemon.JobCounts(),
	})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleJobList(w, r)
	case http.MethodPost:
		s.handleSubmit(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleJobList(w http.ResponseWriter, _ *http.Request) {
	snaps := s.daemon.Supervisor().List()
	out := make([]api.JobSummary, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, jobSummary(snap))
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: out})
}

// handleJobItem routes /api/jobs/{id} and /api/jobs/{id}/{action}.
func (s *apiServer) handleJobItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	if action == "" {
		if r.Method != http.MethodDelete {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleDelete(w, r, id)
		return
	}

	switch {
	case action == "cancel" && r.Method == http.MethodPost:
		s.handleCancel(w, r, id)
	case r.Method != http.MethodGet:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	case action == "status":
		s.handleJobStatus(w, r, id)
	case action == "progress":
		s.handleJobProgress(w, r, id)
	case action == "stream":
		s.handleStream(w, r, id)
	case action == "files":
		s.handleFiles(w, r, id)
	case action == "download":
		s.handleDownload(w, r, id)
	default:
		s.writeError(w, http.StatusNotFound, "job not found")
	}
}

func (s *apiServer) handleJobStatus(w http.ResponseWriter, _ *http.Request, id string) {
	report, err := s.daemon.Supervisor().Status(id)
	if err != nil {
		s.writeJobError(w, id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobStatus{
		JobID:       report.ID,
		Status:      string(report.Status),
		Message:     report.Message,
		Progress:    report.Percent,
		Stage:       report.Stage,
		OutputFiles: outputFiles(report.OutputFiles),
		Error:       report.Error,
	})
}

func (s *apiServer) handleJobProgress(w http.ResponseWriter, _ *http.Request, id string) {
	report, err := s.daemon.Supervisor().Progress(id)
	if err != nil {
		s.writeJobError(w, id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobProgress{
		JobID:      report.ID,
		Progress:   report.Percent,
		Stage:      report.Stage,
		Estimated:  report.Estimated,
		LastUpdate: report.LastUpdate,
		Status:     string(report.Status),
	})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, _ *http.Request, id string) {
	result, err := s.daemon.Supervisor().Cancel(id)
	if err != nil {
		s.writeJobError(w, id, err)
		return
	}
	resp := api.CancelResponse{JobID: id, Status: string(jobs.StatusCancelled)}
	if result == supervisor.CancelResultAlreadyFinished {
		resp.Message = "job already finished"
		if report, err := s.daemon.Supervisor().Status(id); err == nil {
			resp.Status = string(report.Status)
		}
	} else {
		resp.Message = "job cancelled"
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleDelete(w http.ResponseWriter, _ *http.Request, id string) {
	s.daemon.Supervisor().Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleFiles(w http.ResponseWriter, _ *http.Request, id string) {
	files, err := s.daemon.Supervisor().OutputFiles(id)
	if err != nil {
		s.writeJobError(w, id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FileListResponse{JobID: id, Files: outputFiles(files)})
}

// handleDownload serves the job's primary artifact: the .osz archive when
// one exists, otherwise the first .osu, otherwise the first file.
func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request, id string) {
	report, err := s.daemon.Supervisor().Status(id)
	if err != nil {
		s.writeJobError(w, id, err)
		return
	}
	if report.Status != jobs.StatusCompleted {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("job is %s, not completed", report.Status))
		return
	}
	files, err := s.daemon.Supervisor().OutputFiles(id)
	if err != nil || len(files) == 0 {
		s.writeError(w, http.StatusNotFound, "no output files available")
		return
	}
	name := pickArtifact(files)

	dir, ok := s.daemon.Supervisor().OutputDir(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "output directory unknown")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, filepath.Join(dir, name))
}

// pickArtifact chooses the artifact a downloader most likely wants.
func pickArtifact(files []supervisor.OutputFile) string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	for _, ext := range []string{".osz", ".osu"} {
		for _, name := range names {
			if strings.HasSuffix(strings.ToLower(name), ext) {
				return name
			}
		}
	}
	return names[0]
}

// handleStream serves a job's live output as server-sent events. Each
// subscriber holds its own cursor into the job's hub, so any number of
// concurrent watchers see the full event sequence.
func (s *apiServer) handleStream(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	hub, err := s.daemon.Supervisor().Events(id)
	if err != nil {
		// No hub: either unknown, or a cache-recovered terminal job. The
		// latter gets a single synthetic terminal event.
		report, statusErr := s.daemon.Supervisor().Status(id)
		if statusErr != nil {
			s.writeJobError(w, id, statusErr)
			return
		}
		s.streamHeaders(w)
		s.writeStreamEvent(w, flusher, terminalEvent(report))
		return
	}

	s.streamHeaders(w)

	var since uint64
	for {
		events, done, fetchErr := hub.Fetch(r.Context(), since)
		if fetchErr != nil {
			return
		}
		for _, evt := range events {
			s.writeStreamEvent(w, flusher, api.StreamEvent{
				Sequence:  evt.Sequence,
				Timestamp: evt.Timestamp,
				Type:      string(evt.Type),
				Line:      evt.Line,
				Progress:  evt.Percent,
				Stage:     evt.Stage,
			})
			since = evt.Sequence
		}
		if done {
			return
		}
	}
}

func (s *apiServer) streamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

func (s *apiServer) writeStreamEvent(w http.ResponseWriter, flusher http.Flusher, evt api.StreamEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
	flusher.Flush()
}

// terminalEvent synthesizes the closing event for a job whose hub is gone.
func terminalEvent(report supervisor.StatusReport) api.StreamEvent {
	evt := api.StreamEvent{
		Timestamp: time.Now().UTC(),
		Progress:  report.Percent,
		Stage:     report.Stage,
	}
	switch report.Status {
	case jobs.StatusCompleted:
		evt.Type = string(jobs.EventCompleted)
	case jobs.StatusFailed:
		evt.Type = string(jobs.EventFailed)
		evt.Line = report.Error
	default:
		evt.Type = string(jobs.EventError)
		evt.Line = "job " + string(report.Status)
	}
	return evt
}

func jobSummary(snap jobs.Snapshot) api.JobSummary {
	summary := api.JobSummary{
		JobID:         snap.ID,
		Status:        string(snap.Status),
		AudioFilename: snap.Metadata.AudioFilename,
		Model:         snap.Metadata.Params["model"],
		Progress:      snap.Percent,
		Stage:         snap.Stage,
		Error:         snap.ErrorMessage,
	}
	if !snap.Metadata.CreatedAt.IsZero() {
		summary.CreatedAt = snap.Metadata.CreatedAt.Format(time.RFC3339)
	}
	if !snap.CompletedAt.IsZero() {
		summary.CompletedAt = snap.CompletedAt.Format(time.RFC3339)
	}
	return summary
}

func outputFiles(files []supervisor.OutputFile) []api.OutputFile {
	if len(files) == 0 {
		return nil
	}
	out := make([]api.OutputFile, 0, len(files))
	for _, f := range files {
		out = append(out, api.OutputFile{Name: f.Name, Size: f.Size})
	}
	return out
}

func (s *apiServer) writeJobError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, jobs.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", id))
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
