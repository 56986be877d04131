package domain

import (
	"fmt"
	"time"
)

// Environment represents the deployment stage an asset belongs to
type Environment string

const (
	EnvironmentProduction Environment = "PRODUCTION"
	EnvironmentStaging    Environment = "STAGING"
	EnvironmentSandbox    Environment = "SANDBOX"
)

// IngestionStatus represents the lifecycle state of a knowledge asset
type IngestionStatus string

const (
	IngestionStatusPending    IngestionStatus = "PENDING"
	IngestionStatusQueued     IngestionStatus = "QUEUED"
	IngestionStatusProcessing IngestionStatus = "PROCESSING"
	IngestionStatusAnalyzed   IngestionStatus = "ANALYZED"
	IngestionStatusError      IngestionStatus = "ERROR"
)

// ReviewStatus represents the secondary review lifecycle of an asset
type ReviewStatus string

const (
	ReviewStatusNone     ReviewStatus = "none"
	ReviewStatusReviewed ReviewStatus = "reviewed"
	ReviewStatusExpired  ReviewStatus = "expired"
	ReviewStatusSnoozed  ReviewStatus = "snoozed"
)

// KnowledgeAsset represents one logical document version within a tenant and
// environment. At most one non-deleted asset may exist per
// (TenantID, Environment, ContentHash); the storage layer enforces this with
// a unique index.
type KnowledgeAsset struct {
	ID              string
	TenantID        string
	Environment     Environment
	ContentHash     string // hex MD5 of the raw file bytes
	Filename        string
	Metadata        map[string]string
	BlobRef         string // empty until the physical upload completes
	SizeBytes       int64
	IngestionStatus IngestionStatus
	Error           string
	CorrelationID   string
	ReviewStatus    ReviewStatus
	NextReviewDate  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewKnowledgeAsset creates a new KnowledgeAsset in the PENDING state
func NewKnowledgeAsset(
	id, tenantID string,
	environment Environment,
	contentHash, filename string,
	metadata map[string]string,
	sizeBytes int64,
	correlationID string,
	createdAt time.Time,
) *KnowledgeAsset {
	return &KnowledgeAsset{
		ID:              id,
		TenantID:        tenantID,
		Environment:     environment,
		ContentHash:     contentHash,
		Filename:        filename,
		Metadata:        metadata,
		SizeBytes:       sizeBytes,
		IngestionStatus: IngestionStatusPending,
		CorrelationID:   correlationID,
		ReviewStatus:    ReviewStatusNone,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

// ValidateKnowledgeAsset validates a KnowledgeAsset instance
func ValidateKnowledgeAsset(a *KnowledgeAsset) error {
	if a == nil {
		return fmt.Errorf("asset cannot be nil")
	}

	if a.ID == "" {
		return fmt.Errorf("asset ID is required")
	}

	if a.TenantID == "" {
		return fmt.Errorf("asset TenantID is required")
	}

	if !IsValidEnvironment(a.Environment) {
		return fmt.Errorf("asset Environment is invalid: %s", a.Environment)
	}

	if a.ContentHash == "" {
		return fmt.Errorf("asset ContentHash is required")
	}

	if a.Filename == "" {
		return fmt.Errorf("asset Filename is required")
	}

	if !IsValidIngestionStatus(a.IngestionStatus) {
		return fmt.Errorf("asset IngestionStatus is invalid: %s", a.IngestionStatus)
	}

	return nil
}

// IsValidEnvironment checks if an Environment is valid
func IsValidEnvironment(e Environment) bool {
	switch e {
	case EnvironmentProduction, EnvironmentStaging, EnvironmentSandbox:
		return true
	}
	return false
}

// IsValidIngestionStatus checks if an IngestionStatus is valid
func IsValidIngestionStatus(s IngestionStatus) bool {
	switch s {
	case IngestionStatusPending, IngestionStatusQueued, IngestionStatusProcessing,
		IngestionStatusAnalyzed, IngestionStatusError:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the ingestion lifecycle.
// ERROR is recoverable through resurrection and is not terminal.
func (s IngestionStatus) IsTerminal() bool {
	return s == IngestionStatusAnalyzed
}
