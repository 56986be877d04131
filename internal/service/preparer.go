package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/docuforge/docuforge/internal/domain"
)

// PrepareOutcome is the synchronous result of an upload
type PrepareOutcome string

const (
	PrepareOutcomeDuplicate PrepareOutcome = "DUPLICATE"
	PrepareOutcomePending   PrepareOutcome = "PENDING"
	PrepareOutcomeFailed    PrepareOutcome = "FAILED"
)

// AssetRepositoryInterface is the asset persistence surface used by the
// ingestion path.
type AssetRepositoryInterface interface {
	Insert(ctx context.Context, a *domain.KnowledgeAsset) error
	GetByID(ctx context.Context, id string) (*domain.KnowledgeAsset, error)
	GetByContentHash(ctx context.Context, tenantID string, env domain.Environment, contentHash string) (*domain.KnowledgeAsset, error)
	SetBlobRef(ctx context.Context, id, blobRef string) error
	SetError(ctx context.Context, id, errMsg string) error
	TransitionStatus(ctx context.Context, id string, to domain.IngestionStatus, reason, errMsg string) error
}

// ContentAddresser resolves and materializes content-addressed blobs
type ContentAddresser interface {
	Resolve(r io.Reader) (contentHash string, size int64, data []byte, err error)
	Acquire(ctx context.Context, contentHash string, data []byte) (string, error)
}

// UploadInput describes one incoming file
type UploadInput struct {
	TenantID      string
	Environment   domain.Environment
	UserID        string
	Filename      string
	Metadata      map[string]string
	CorrelationID string
	Content       io.Reader
}

// PrepareResult is the outcome of the synchronous fast path
type PrepareResult struct {
	Outcome     PrepareOutcome
	AssetID     string
	ContentHash string
	SizeBytes   int64
	// SavedBytes is the physical upload avoided on the DUPLICATE path
	SavedBytes  int64
	Resurrected bool
}

// IngestPreparer decides DUPLICATE vs NEW for an upload. Exactly one of N
// concurrent identical uploads wins the atomic insert and materializes the
// blob; the rest observe the uniqueness conflict and short-circuit without
// touching physical storage or the queue.
type IngestPreparer struct {
	assets  AssetRepositoryInterface
	content ContentAddresser
	uuidGen UUIDGenerator
}

func NewIngestPreparer(assets AssetRepositoryInterface, content ContentAddresser) *IngestPreparer {
	return NewIngestPreparerWithUUIDGen(assets, content, &DefaultUUIDGenerator{})
}

func NewIngestPreparerWithUUIDGen(assets AssetRepositoryInterface, content ContentAddresser, uuidGen UUIDGenerator) *IngestPreparer {
	return &IngestPreparer{
		assets:  assets,
		content: content,
		uuidGen: uuidGen,
	}
}

// Prepare runs the synchronous fast path for one upload
func (p *IngestPreparer) Prepare(ctx context.Context, input UploadInput) (*PrepareResult, error) {
	if err := validateUpload(input); err != nil {
		return &PrepareResult{Outcome: PrepareOutcomeFailed}, err
	}

	contentHash, size, data, err := p.content.Resolve(input.Content)
	if err != nil {
		return &PrepareResult{Outcome: PrepareOutcomeFailed}, err
	}
	if size == 0 {
		return &PrepareResult{Outcome: PrepareOutcomeFailed}, domain.ErrEmptyUpload
	}

	now := time.Now().UTC()
	asset := domain.NewKnowledgeAsset(
		p.uuidGen.NewString(), input.TenantID, input.Environment,
		contentHash, input.Filename, input.Metadata, size,
		input.CorrelationID, now,
	)

	err = p.assets.Insert(ctx, asset)
	if err == nil {
		// This request won the race and owns processing for this content.
		return p.materialize(ctx, asset.ID, contentHash, size, data, false)
	}

	if !errors.Is(err, domain.ErrAssetAlreadyExists) {
		return &PrepareResult{Outcome: PrepareOutcomeFailed},
			domain.NewDomainErrorWithCause(domain.ErrCodeTransientInfra, "failed to persist asset", err)
	}

	existing, gerr := p.assets.GetByContentHash(ctx, input.TenantID, input.Environment, contentHash)
	if gerr != nil {
		return &PrepareResult{Outcome: PrepareOutcomeFailed},
			domain.NewDomainErrorWithCause(domain.ErrCodeTransientInfra, "failed to resolve duplicate asset", gerr)
	}

	if existing.IngestionStatus != domain.IngestionStatusError {
		// Another request already created (or is creating) this asset.
		return &PrepareResult{
			Outcome:     PrepareOutcomeDuplicate,
			AssetID:     existing.ID,
			ContentHash: contentHash,
			SizeBytes:   size,
			SavedBytes:  size,
		}, nil
	}

	// A prior attempt failed; resurrect the row through the validator so the
	// audit trail stays complete.
	if terr := p.assets.TransitionStatus(ctx, existing.ID, domain.IngestionStatusPending, "re-ingest of failed asset", ""); terr != nil {
		var illegal *domain.IllegalTransitionError
		if errors.As(terr, &illegal) {
			// Lost a concurrent resurrection race; the other request owns it now.
			return &PrepareResult{
				Outcome:     PrepareOutcomeDuplicate,
				AssetID:     existing.ID,
				ContentHash: contentHash,
				SizeBytes:   size,
				SavedBytes:  size,
			}, nil
		}
		return &PrepareResult{Outcome: PrepareOutcomeFailed}, terr
	}

	if existing.BlobRef != "" {
		// The earlier attempt already materialized the blob and this asset
		// still holds its reference; re-acquiring would count it twice and
		// the blob could never drop back to zero.
		return &PrepareResult{
			Outcome:     PrepareOutcomePending,
			AssetID:     existing.ID,
			ContentHash: contentHash,
			SizeBytes:   size,
			Resurrected: true,
		}, nil
	}

	return p.materialize(ctx, existing.ID, contentHash, size, data, true)
}

// materialize uploads the physical blob for the asset that owns processing.
// Any failure labels the record ERROR before returning so no state is left
// unexplained.
func (p *IngestPreparer) materialize(ctx context.Context, assetID, contentHash string, size int64, data []byte, resurrected bool) (*PrepareResult, error) {
	blobRef, err := p.content.Acquire(ctx, contentHash, data)
	if err != nil {
		p.labelError(ctx, assetID, fmt.Sprintf("blob upload failed: %v", err))
		return &PrepareResult{Outcome: PrepareOutcomeFailed, AssetID: assetID}, err
	}

	if err := p.assets.SetBlobRef(ctx, assetID, blobRef); err != nil {
		p.labelError(ctx, assetID, fmt.Sprintf("failed to record blob ref: %v", err))
		return &PrepareResult{Outcome: PrepareOutcomeFailed, AssetID: assetID},
			domain.NewDomainErrorWithCause(domain.ErrCodeTransientInfra, "failed to record blob ref", err)
	}

	return &PrepareResult{
		Outcome:     PrepareOutcomePending,
		AssetID:     assetID,
		ContentHash: contentHash,
		SizeBytes:   size,
		Resurrected: resurrected,
	}, nil
}

func (p *IngestPreparer) labelError(ctx context.Context, assetID, msg string) {
	if err := p.assets.SetError(ctx, assetID, msg); err != nil {
		// Nothing more we can do synchronously; the record keeps its PENDING
		// label and the operator sees it in the stale-asset count.
		log.Printf("prepare: failed to label asset %s as ERROR: %v", assetID, err)
	}
}

func validateUpload(input UploadInput) error {
	if input.TenantID == "" {
		return domain.ErrMissingTenant
	}
	if !domain.IsValidEnvironment(input.Environment) {
		return domain.ErrInvalidEnvironment
	}
	if input.Filename == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "filename is required")
	}
	if input.Content == nil {
		return domain.ErrEmptyUpload
	}
	return nil
}
