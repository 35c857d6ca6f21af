package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewJobCmd создаёт группу команд для управления jobs через API.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage print jobs",
	}

	cmd.AddCommand(
		newJobSubmitCmd(clientFn, outputFn),
		newJobListCmd(clientFn, outputFn),
		newJobShowCmd(clientFn, outputFn),
		newJobStagesCmd(clientFn, outputFn),
		newJobCancelCmd(clientFn, outputFn),
	)

	return cmd
}

var jobHeaders = []string{"ID", "STATUS", "TITLE", "PAGES", "PROGRESS", "CREATED"}

func jobRow(j JobResponse) []string {
	return []string{
		j.ID,
		j.Status,
		j.Document.Title,
		strconv.Itoa(j.Document.Pages),
		fmt.Sprintf("%d%%", j.Progress.Percent),
		j.CreatedAt,
	}
}

func newJobSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		docPath   string
		functions []string
		key       string
		source    string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a document for printing",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(docPath)
			if err != nil {
				return fmt.Errorf("failed to read document: %w", err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("document %s is not valid JSON", docPath)
			}

			client := clientFn()
			out := outputFn()

			job, err := client.SubmitJob(SubmitJobRequest{
				Document:       data,
				Functions:      functions,
				IdempotencyKey: key,
				Source:         source,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job submitted: %s", job.ID))
			out.Print(jobHeaders, [][]string{jobRow(*job)}, job)
			return nil
		},
	}

	cmd.Flags().StringVar(&docPath, "document", "", "Path to document JSON (required)")
	cmd.Flags().StringSliceVar(&functions, "functions", nil, "Run only these functions")
	cmd.Flags().StringVar(&key, "key", "", "Idempotency key")
	cmd.Flags().StringVar(&source, "source", "cli", "Job source")
	cmd.MarkFlagRequired("document")

	return cmd
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListJobsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = jobRow(j)
			}

			out.Print(jobHeaders, rows, jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (PENDING, RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "Filter by source")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Max jobs to return")

	return cmd
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.GetJob(args[0])
			if err != nil {
				return err
			}

			out.Print(jobHeaders, [][]string{jobRow(*job)}, job)
			if job.Error != "" {
				out.Warn(job.Error)
			}
			return nil
		},
	}
}

func newJobStagesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stages ID",
		Short: "Show the stage journal of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stages, err := client.ListStages(args[0])
			if err != nil {
				return err
			}

			headers := []string{"#", "FUNCTION", "ORDER", "STATUS", "DURATION", "ERROR"}
			rows := make([][]string, len(stages))
			for i, s := range stages {
				rows[i] = []string{
					strconv.Itoa(s.Index),
					s.Function,
					strconv.Itoa(s.Order),
					s.Status,
					fmt.Sprintf("%dms", s.DurationMs),
					s.Error,
				}
			}

			out.Print(headers, rows, stages)
			return nil
		},
	}
}

func newJobCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.CancelJob(args[0], reason)
			if err != nil {
				return err
			}

			if job.Status == "RUNNING" {
				out.Success(fmt.Sprintf("Cancel requested: %s", job.ID))
			} else {
				out.Success(fmt.Sprintf("Job cancelled: %s", job.ID))
			}
			out.Print(jobHeaders, [][]string{jobRow(*job)}, job)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Cancellation reason")

	return cmd
}
