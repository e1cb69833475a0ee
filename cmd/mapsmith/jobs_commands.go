package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.DaemonStatus(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "daemon running (pid %d)\n", status.PID)
			fmt.Fprintf(cmd.OutOrStdout(), "lock file: %s\n", status.LockFilePath)
			fmt.Fprintf(cmd.OutOrStdout(), "cache: %s\n", onOff(status.CacheActive))
			if len(status.JobCounts) > 0 {
				keys := make([]string, 0, len(status.JobCounts))
				for key := range status.JobCounts {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				parts := make([]string, 0, len(keys))
				for _, key := range keys {
					parts = append(parts, fmt.Sprintf("%s=%d", key, status.JobCounts[key]))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "jobs: %s\n", strings.Join(parts, " "))
			}
			return nil
		},
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List tracked jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			summaries, err := client.Jobs(cmd.Context())
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no jobs")
				return nil
			}
			rows := make([][]string, 0, len(summaries))
			for _, job := range summaries {
				rows = append(rows, []string{
					job.JobID,
					job.Status,
					job.AudioFilename,
					fmt.Sprintf("%.1f%%", job.Progress),
					job.Stage,
					job.CreatedAt,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Job", "Status", "Audio", "Progress", "Stage", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newJobStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "job <job-id>",
		Short: "Show one job's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.JobStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "job:      %s\n", status.JobID)
			fmt.Fprintf(out, "status:   %s\n", status.Status)
			fmt.Fprintf(out, "progress: %.1f%% (%s)\n", status.Progress, status.Stage)
			if status.Message != "" {
				fmt.Fprintf(out, "message:  %s\n", status.Message)
			}
			if status.Error != "" {
				fmt.Fprintf(out, "error:    %s\n", status.Error)
			}
			for _, file := range status.OutputFiles {
				fmt.Fprintf(out, "output:   %s (%d bytes)\n", file.Name, file.Size)
			}
			return nil
		},
	}
}

func newProgressCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <job-id>",
		Short: "Show one job's progress detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			progress, err := client.JobProgress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%.1f%% %s", progress.Progress, progress.Stage)
			if progress.Estimated {
				fmt.Fprint(out, " (estimated)")
			}
			fmt.Fprintf(out, " [%s]\n", progress.Status)
			return nil
		},
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Follow a job's live output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			return watchJob(cmd, client, args[0])
		},
	}
}

func newFilesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "files <job-id>",
		Short: "List a job's output files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			files, err := client.Files(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no output files")
				return nil
			}
			rows := make([][]string, 0, len(files))
			for _, file := range files {
				rows = append(rows, []string{file.Name, fmt.Sprintf("%d", file.Size)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "Bytes"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Download a finished job's beatmap archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			dest, err := client.Download(cmd.Context(), args[0], outputDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", dest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory to save into")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.JobID, resp.Message)
			return nil
		},
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Remove a job and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func onOff(value bool) string {
	if value {
		return "active"
	}
	return "disabled"
}
