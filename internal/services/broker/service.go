package broker

import (
	"context"

	"github.com/google/uuid"

	"github.com/openvest/brokerlink/internal/models"
)

// ConnectionStore is the credential-store surface the broker services
// consume. Implemented by repository.ConnectionRepository.
type ConnectionStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.BrokerConnection, error)
	Upsert(ctx context.Context, userID uuid.UUID, secret string, active bool, patch models.ConnectionMetadata) error
	SetActive(ctx context.Context, userID uuid.UUID, active bool, patch models.ConnectionMetadata) error
	StampMetadata(ctx context.Context, userID uuid.UUID, patch models.ConnectionMetadata) error
}

// AssetStore is the ledger surface reconciliation writes through.
// Implemented by repository.AssetRepository.
type AssetStore interface {
	CategoryIDBySlug(ctx context.Context, slug string) (int64, error)
	Create(ctx context.Context, asset *models.Asset) error
}

// HoldingsCache fronts the read-only holdings fetch. Implemented by
// cache.HoldingsCache; a nil cache disables caching.
type HoldingsCache interface {
	Get(ctx context.Context, userID uuid.UUID, accountID string) (*models.HoldingsResult, bool)
	Set(ctx context.Context, userID uuid.UUID, accountID string, result *models.HoldingsResult)
	Invalidate(ctx context.Context, userID uuid.UUID)
}
