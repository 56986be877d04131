package admin

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/docuforge/docuforge/internal/config"
	"github.com/docuforge/docuforge/internal/repository"
	"github.com/docuforge/docuforge/internal/service"
)

// SweepCmd returns the one-shot review sweep command
func SweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one review sweep and exit",
		Long:  "Expire analyzed assets whose review date has passed, then exit",
		RunE:  runSweep,
	}
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	scheduler := service.NewReviewScheduler(
		repository.NewAssetRepository(pool),
		repository.NewAuditRepository(pool),
	)

	result, err := scheduler.Sweep(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	log.Printf("sweep done: processed=%d updated=%d staleInFlight=%d",
		result.Processed, result.Updated, result.StaleInFlight)
	return nil
}
