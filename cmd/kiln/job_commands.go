package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSubmitCommand(client *apiClient) *cobra.Command {
	var targetFlag string
	var overridesFlag string
	var descriptionFlag string

	cmd := &cobra.Command{
		Use:   "submit <template-ref>",
		Short: "Submit a template for building",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := submitPayload{
				TemplateRef: args[0],
				Target:      targetFlag,
				Description: descriptionFlag,
			}
			if trimmed := strings.TrimSpace(overridesFlag); trimmed != "" {
				if !json.Valid([]byte(trimmed)) {
					return fmt.Errorf("--overrides must be a JSON object")
				}
				payload.Overrides = json.RawMessage(trimmed)
			}
			job, err := client.submit(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s (%s, %s)\n", job.ID, job.TemplateRef, job.Target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetFlag, "target", "t", "web", "Build target (web or android)")
	cmd.Flags().StringVar(&overridesFlag, "overrides", "", "Override values as a JSON object")
	cmd.Flags().StringVarP(&descriptionFlag, "description", "d", "", "Free-form description for drafted overrides")
	return cmd
}

func newShowCommand(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := client.show(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJobDetail(cmd.OutOrStdout(), job)
			return nil
		},
	}
}

func newListCommand(client *apiClient) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := client.list(cmd.Context(), statusFlag)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJobTable(list))
			return nil
		},
	}

	cmd.Flags().StringVarP(&statusFlag, "status", "s", "", "Filter by status (queued, running, ready, failed)")
	return cmd
}

func newCancelCommand(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Canceling job %s\n", args[0])
			return nil
		},
	}
}

func newRebuildCommand(client *apiClient) *cobra.Command {
	var targetFlag string

	cmd := &cobra.Command{
		Use:   "rebuild <job-id>",
		Short: "Rebuild a finished job, optionally for another target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := client.rebuild(cmd.Context(), args[0], targetFlag)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued job %s for %s\n", job.ID, job.Target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetFlag, "target", "t", "", "Build target (defaults to the job's previous target)")
	return cmd
}

func newStatusCommand(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := client.status(cmd.Context())
			if err != nil {
				return err
			}
			printDaemonStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}
