package inference

import (
	"fmt"
	"strconv"
	"strings"
)

// BuildCommand renders the full worker command line for one job. The worker
// is a hydra-configured script, so every option is passed as key=value with
// path values single-quoted. The supervisor treats the result as opaque.
func BuildCommand(python, script string, params Params, audioPath, outputDir string) []string {
	cmd := []string{python, script, "-cn", params.Model}

	addPath := func(key, value string) {
		if value != "" {
			cmd = append(cmd, fmt.Sprintf("%s=%s", key, hydraQuote(value)))
		}
	}
	add := func(key, value string) {
		cmd = append(cmd, fmt.Sprintf("%s=%s", key, value))
	}
	addFloat := func(key string, value *float64) {
		if value != nil {
			add(key, strconv.FormatFloat(*value, 'g', -1, 64))
		}
	}
	addInt := func(key string, value *int) {
		if value != nil {
			add(key, strconv.Itoa(*value))
		}
	}

	addPath("audio_path", audioPath)
	addPath("output_path", outputDir)

	add("gamemode", strconv.Itoa(params.Gamemode))
	addFloat("difficulty", params.Difficulty)
	addInt("year", params.Year)
	addInt("mapper_id", params.MapperID)

	addFloat("hp_drain_rate", params.HPDrainRate)
	addFloat("circle_size", params.CircleSize)
	addFloat("overall_difficulty", params.OverallDifficulty)
	addFloat("approach_rate", params.ApproachRate)
	addFloat("slider_multiplier", params.SliderMultiplier)
	addFloat("slider_tick_rate", params.SliderTickRate)

	addInt("keycount", params.Keycount)
	addFloat("hold_note_ratio", params.HoldNoteRatio)
	addFloat("scroll_speed_ratio", params.ScrollSpeedRatio)

	add("cfg_scale", strconv.FormatFloat(params.CFGScale, 'g', -1, 64))
	add("temperature", strconv.FormatFloat(params.Temperature, 'g', -1, 64))
	add("top_p", strconv.FormatFloat(params.TopP, 'g', -1, 64))
	addInt("seed", params.Seed)

	addInt("start_time", params.StartTime)
	addInt("end_time", params.EndTime)

	add("export_osz", strconv.FormatBool(params.ExportOsz))
	add("add_to_beatmap", strconv.FormatBool(params.AddToBeatmap))
	add("hitsounded", strconv.FormatBool(params.Hitsounded))
	add("super_timing", strconv.FormatBool(params.SuperTiming))

	if list := hydraList(params.Descriptors); list != "" {
		add("descriptors", list)
	}
	if list := hydraList(params.NegativeDescriptors); list != "" {
		add("negative_descriptors", list)
	}

	return cmd
}

// hydraQuote wraps a value in single quotes, escaping embedded quotes, so
// hydra does not split paths containing spaces or special characters.
func hydraQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `\'`) + "'"
}

func hydraList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(items))
	for _, item := range items {
		quoted = append(quoted, hydraQuote(item))
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
