//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuforge/docuforge/internal/domain"
	"github.com/docuforge/docuforge/internal/service"
	"github.com/docuforge/docuforge/internal/testutil"
)

func TestTxRunner_CommitsJobAndTransitionTogether(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	assetRepo := NewAssetRepository(pool)
	jobRepo := NewJobRepository(pool)
	runner := NewTxRunner(pool)

	asset := newTestAsset("tenant-1", "hash-tx-commit")
	require.NoError(t, assetRepo.Insert(ctx, asset))
	job := newAnalysisJob(t, asset, time.Now().UTC())

	err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
		if err := repos.Jobs().Create(ctx, job); err != nil {
			return err
		}
		return repos.Assets().TransitionStatus(ctx, asset.ID, domain.IngestionStatusQueued, "analysis job enqueued", "")
	})
	require.NoError(t, err)

	queued, err := assetRepo.GetByID(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionStatusQueued, queued.IngestionStatus)

	_, err = jobRepo.GetByID(ctx, job.ID)
	assert.NoError(t, err)
}

func TestTxRunner_RollsBackBothOnFailure(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	assetRepo := NewAssetRepository(pool)
	jobRepo := NewJobRepository(pool)
	runner := NewTxRunner(pool)

	asset := newTestAsset("tenant-1", "hash-tx-rollback")
	require.NoError(t, assetRepo.Insert(ctx, asset))
	// Already analyzed: the enqueue transition will be denied
	require.NoError(t, assetRepo.TransitionStatus(ctx, asset.ID, domain.IngestionStatusQueued, "", ""))
	require.NoError(t, assetRepo.TransitionStatus(ctx, asset.ID, domain.IngestionStatusProcessing, "", ""))
	require.NoError(t, assetRepo.TransitionStatus(ctx, asset.ID, domain.IngestionStatusAnalyzed, "", ""))

	job := newAnalysisJob(t, asset, time.Now().UTC())

	err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
		if err := repos.Jobs().Create(ctx, job); err != nil {
			return err
		}
		return repos.Assets().TransitionStatus(ctx, asset.ID, domain.IngestionStatusQueued, "analysis job enqueued", "")
	})
	var illegal *domain.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)

	// The job insert rolled back with the denied transition
	_, err = jobRepo.GetByID(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	unchanged, err := assetRepo.GetByID(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionStatusAnalyzed, unchanged.IngestionStatus)
}
