package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mapsmith/internal/api"
	"mapsmith/internal/jobs"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	fields := map[string]*string{}
	field := func(cmd *cobra.Command, name, usage string) {
		value := new(string)
		fields[name] = value
		cmd.Flags().StringVar(value, strings.ReplaceAll(name, "_", "-"), "", usage)
	}

	var watch bool
	cmd := &cobra.Command{
		Use:   "submit <audio-file>",
		Short: "Submit an audio file for beatmap generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			values := make(map[string]string, len(fields))
			for name, value := range fields {
				if *value != "" {
					values[name] = *value
				}
			}
			resp, err := client.Submit(cmd.Context(), args[0], values)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s started\n", resp.JobID)
			if !watch {
				return nil
			}
			return watchJob(cmd, client, resp.JobID)
		},
	}

	field(cmd, "model", "Model configuration name (e.g. v30)")
	field(cmd, "gamemode", "Game mode 0-3 (std, taiko, catch, mania)")
	field(cmd, "difficulty", "Target star rating")
	field(cmd, "year", "Target mapping year")
	field(cmd, "mapper_id", "Mapper style to imitate")
	field(cmd, "hp_drain_rate", "HP drain rate")
	field(cmd, "circle_size", "Circle size")
	field(cmd, "overall_difficulty", "Overall difficulty")
	field(cmd, "approach_rate", "Approach rate")
	field(cmd, "slider_multiplier", "Slider velocity multiplier")
	field(cmd, "slider_tick_rate", "Slider tick rate")
	field(cmd, "keycount", "Mania key count")
	field(cmd, "hold_note_ratio", "Mania hold note ratio")
	field(cmd, "scroll_speed_ratio", "Mania scroll speed ratio")
	field(cmd, "cfg_scale", "Classifier-free guidance scale")
	field(cmd, "temperature", "Sampling temperature")
	field(cmd, "top_p", "Nucleus sampling threshold")
	field(cmd, "seed", "Random seed")
	field(cmd, "start_time", "Generation window start (ms)")
	field(cmd, "end_time", "Generation window end (ms)")
	field(cmd, "export_osz", "Package the result as .osz (true/false)")
	field(cmd, "add_to_beatmap", "Add to an existing beatmap (true/false)")
	field(cmd, "hitsounded", "Generate hitsounds (true/false)")
	field(cmd, "super_timing", "Use the high-accuracy timing generator (true/false)")
	field(cmd, "descriptors", "Comma-separated style descriptors")
	field(cmd, "negative_descriptors", "Comma-separated descriptors to avoid")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the job's output after submitting")

	return cmd
}

// watchJob streams a job's output to the terminal until it finishes.
func watchJob(cmd *cobra.Command, client *api.Client, jobID string) error {
	out := cmd.OutOrStdout()
	var final string
	err := client.Stream(cmd.Context(), jobID, func(evt api.StreamEvent) error {
		switch evt.Type {
		case string(jobs.EventOutput):
			if evt.Line != "" {
				fmt.Fprintf(out, "[%5.1f%%] %s\n", evt.Progress, evt.Line)
			}
		case string(jobs.EventCompleted):
			final = "completed"
		case string(jobs.EventFailed):
			final = "failed"
			if evt.Line != "" {
				final += ": " + evt.Line
			}
		case string(jobs.EventError):
			final = evt.Line
			if final == "" {
				final = "stream closed"
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if final != "" {
		fmt.Fprintf(out, "job %s %s\n", jobID, final)
	}
	return nil
}
