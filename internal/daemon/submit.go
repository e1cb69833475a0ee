package daemon

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"mapsmith/internal/api"
	"mapsmith/internal/inference"
	"mapsmith/internal/jobs"
	"mapsmith/internal/logging"
	"mapsmith/internal/supervisor"
)

// maxUploadBytes bounds the in-memory portion of a multipart upload; larger
// audio spills to temp files.
const maxUploadBytes = 32 << 20

// handleSubmit accepts a multipart generation request: the audio file plus
// form fields for every worker parameter. The upload is staged under the
// audio directory, the worker command line is built, and the job starts
// before the response is written.
func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart request: %v", err))
		return
	}

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "audio_file is required")
		return
	}
	defer file.Close()

	if err := inference.ValidateAudioFilename(header.Filename); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	params, err := parseParams(r, s.cfg.Worker.DefaultModel)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := params.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID := uuid.NewString()
	audioPath := filepath.Join(s.cfg.Paths.AudioDir, jobID+strings.ToLower(filepath.Ext(header.Filename)))
	if err := saveUpload(file, audioPath); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("store upload: %v", err))
		return
	}
	outputDir := filepath.Join(s.cfg.Paths.OutputDir, jobID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		_ = os.Remove(audioPath)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("create output directory: %v", err))
		return
	}

	command := inference.BuildCommand(s.cfg.Worker.Python, s.cfg.Worker.Script, params, audioPath, outputDir)

	_, err = s.daemon.Supervisor().Spawn(r.Context(), supervisor.SpawnRequest{
		ID:            jobID,
		Command:       command,
		WorkDir:       workDirFor(s.cfg.Worker.Script),
		AudioPath:     audioPath,
		AudioFilename: header.Filename,
		OutputDir:     outputDir,
		Params: map[string]string{
			"model":    params.Model,
			"gamemode": strconv.Itoa(params.Gamemode),
		},
	})
	if err != nil {
		_ = os.Remove(audioPath)
		_ = os.RemoveAll(outputDir)
		var launchErr *supervisor.LaunchError
		if errors.As(err, &launchErr) {
			s.writeError(w, http.StatusInternalServerError, launchErr.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("job submitted",
		logging.String(logging.FieldJobID, jobID),
		logging.String("filename", header.Filename),
		logging.String("model", params.Model))
	s.writeJSON(w, http.StatusOK, api.SubmitResponse{
		JobID:   jobID,
		Status:  string(jobs.StatusRunning),
		Message: "beatmap generation started",
	})
}

func saveUpload(src io.Reader, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, src)
	return err
}

// workDirFor runs the worker from its script's directory so relative model
// and config paths resolve, falling back to the daemon's cwd for a bare
// script name.
func workDirFor(script string) string {
	if filepath.IsAbs(script) {
		return filepath.Dir(script)
	}
	return ""
}

// parseParams maps form fields onto worker parameters, leaving unset
// optionals nil so the worker applies its own defaults.
func parseParams(r *http.Request, defaultModel string) (inference.Params, error) {
	params := inference.DefaultParams(firstNonEmpty(r.FormValue("model"), defaultModel))

	var err error
	intField := func(key string, out **int) {
		if err != nil {
			return
		}
		raw := strings.TrimSpace(r.FormValue(key))
		if raw == "" {
			return
		}
		value, parseErr := strconv.Atoi(raw)
		if parseErr != nil {
			err = fmt.Errorf("%s must be an integer, got %q", key, raw)
			return
		}
		*out = &value
	}
	floatField := func(key string, out **float64) {
		if err != nil {
			return
		}
		raw := strings.TrimSpace(r.FormValue(key))
		if raw == "" {
			return
		}
		value, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil {
			err = fmt.Errorf("%s must be a number, got %q", key, raw)
			return
		}
		*out = &value
	}
	boolField := func(key string, out *bool) {
		if err != nil {
			return
		}
		raw := strings.TrimSpace(r.FormValue(key))
		if raw == "" {
			return
		}
		value, parseErr := strconv.ParseBool(raw)
		if parseErr != nil {
			err = fmt.Errorf("%s must be a boolean, got %q", key, raw)
			return
		}
		*out = value
	}

	if raw := strings.TrimSpace(r.FormValue("gamemode")); raw != "" {
		value, parseErr := strconv.Atoi(raw)
		if parseErr != nil {
			return params, fmt.Errorf("gamemode must be an integer, got %q", raw)
		}
		params.Gamemode = value
	}

	floatField("difficulty", &params.Difficulty)
	intField("year", &params.Year)
	intField("mapper_id", &params.MapperID)

	floatField("hp_drain_rate", &params.HPDrainRate)
	floatField("circle_size", &params.CircleSize)
	floatField("overall_difficulty", &params.OverallDifficulty)
	floatField("approach_rate", &params.ApproachRate)
	floatField("slider_multiplier", &params.SliderMultiplier)
	floatField("slider_tick_rate", &params.SliderTickRate)

	intField("keycount", &params.Keycount)
	floatField("hold_note_ratio", &params.HoldNoteRatio)
	floatField("scroll_speed_ratio", &params.ScrollSpeedRatio)

	if raw := strings.TrimSpace(r.FormValue("cfg_scale")); raw != "" {
		value, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil {
			return params, fmt.Errorf("cfg_scale must be a number, got %q", raw)
		}
		params.CFGScale = value
	}
	if raw := strings.TrimSpace(r.FormValue("temperature")); raw != "" {
		value, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil {
			return params, fmt.Errorf("temperature must be a number, got %q", raw)
		}
		params.Temperature = value
	}
	if raw := strings.TrimSpace(r.FormValue("top_p")); raw != "" {
		value, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil {
			return params, fmt.Errorf("top_p must be a number, got %q", raw)
		}
		params.TopP = value
	}
	intField("seed", &params.Seed)

	intField("start_time", &params.StartTime)
	intField("end_time", &params.EndTime)

	boolField("export_osz", &params.ExportOsz)
	boolField("add_to_beatmap", &params.AddToBeatmap)
	boolField("hitsounded", &params.Hitsounded)
	boolField("super_timing", &params.SuperTiming)

	params.Descriptors = splitList(r.FormValue("descriptors"))
	params.NegativeDescriptors = splitList(r.FormValue("negative_descriptors"))

	return params, err
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
