package admin

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/docuforge/docuforge/internal/config"
	"github.com/docuforge/docuforge/internal/domain"
	"github.com/docuforge/docuforge/internal/repository"
	"github.com/docuforge/docuforge/internal/service"
)

// JobsCmd returns the jobs admin command group
func JobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage ingest jobs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List ingest jobs",
		RunE:  runJobsList,
	}
	list.Flags().String("status", "", "Comma-separated job states to filter by")
	list.Flags().Int("limit", 50, "Maximum number of jobs to show")

	retry := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Reset a failed job for a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobsRetry,
	}

	del := &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a non-running job",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobsDelete,
	}

	cmd.AddCommand(list, retry, del)
	return cmd
}

func openQueue(ctx context.Context) (*service.JobQueue, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	queue := service.NewJobQueueWithOptions(
		repository.NewJobRepository(pool),
		&service.DefaultUUIDGenerator{},
		cfg.JobHistoryLimit,
	)
	return queue, pool, nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	queue, pool, err := openQueue(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	var states []domain.JobStatus
	if raw, _ := cmd.Flags().GetString("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.JobStatus(strings.TrimSpace(s))
			if !domain.IsValidJobStatus(status) {
				return fmt.Errorf("invalid job status: %s", status)
			}
			states = append(states, status)
		}
	}
	limit, _ := cmd.Flags().GetInt("limit")

	page, err := queue.ListJobs(ctx, states, limit, "")
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tATTEMPTS\tASSET\tENQUEUED\tERROR")
	for _, j := range page.Items {
		errMsg := j.Error
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			j.ID, j.Status, j.Attempts, j.MaxAttempts, j.AssetID,
			j.EnqueuedAt.UTC().Format(time.RFC3339), errMsg)
	}
	return w.Flush()
}

func runJobsRetry(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	queue, pool, err := openQueue(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := queue.Retry(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "job %s reset for retry\n", args[0])
	return nil
}

func runJobsDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	queue, pool, err := openQueue(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := queue.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "job %s deleted\n", args[0])
	return nil
}
