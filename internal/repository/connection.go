package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/openvest/brokerlink/internal/database"
	apperrors "github.com/openvest/brokerlink/internal/errors"
	"github.com/openvest/brokerlink/internal/models"
)

// apiKeyLabel is the constant api_key column value; the real credential is
// the per-user secret.
const apiKeyLabel = "snaptrade_user"

// ConnectionRepository is the credential store: one broker_connections row
// per (user_id, broker_id).
type ConnectionRepository struct {
	db *database.DB
}

func NewConnectionRepository(db *database.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Get returns the user's connection row, or a NotRegistered error when the
// user has no stored provider secret.
func (r *ConnectionRepository) Get(ctx context.Context, userID uuid.UUID) (*models.BrokerConnection, error) {
	qb := database.NewQueryBuilder()
	qb.AddParam("uid", userID)
	qb.AddParam("broker", models.ProviderID)

	query, args := qb.Build(`
        SELECT user_id, broker_id, api_secret_encrypted, is_active, broker_data, created_at, updated_at
        FROM broker_connections
        WHERE user_id = @uid AND broker_id = @broker
    `)

	var conn models.BrokerConnection
	err := r.db.QueryRowSafe(ctx, query, args...).Scan(
		&conn.UserID,
		&conn.BrokerID,
		&conn.ProviderSecret,
		&conn.IsActive,
		&conn.Metadata,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotRegisteredError(userID.String())
	}
	if err != nil {
		return nil, apperrors.NewStorageError("get broker connection", err)
	}

	return &conn, nil
}

// Upsert writes the secret and active flag for (user, provider), merging the
// metadata patch into whatever the row already holds. Keyed on
// (user_id, broker_id); concurrent writers are resolved by the database's
// conflict clause, not an application lock.
func (r *ConnectionRepository) Upsert(ctx context.Context, userID uuid.UUID, secret string, active bool, patch models.ConnectionMetadata) error {
	err := r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		merged, err := mergedMetadata(ctx, tx, userID, patch)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
            INSERT INTO broker_connections (user_id, broker_id, api_key, api_secret_encrypted, is_active, broker_data, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
            ON CONFLICT (user_id, broker_id) DO UPDATE
            SET api_secret_encrypted = EXCLUDED.api_secret_encrypted,
                is_active = EXCLUDED.is_active,
                broker_data = EXCLUDED.broker_data,
                updated_at = NOW()
        `, userID, models.ProviderID, apiKeyLabel, secret, active, merged)
		if err != nil {
			return fmt.Errorf("upsert broker connection: %w", err)
		}
		return nil
	})
	if err != nil {
		return apperrors.NewStorageError("upsert broker connection", err)
	}
	return nil
}

// SetActive flips the active flag and merges the metadata patch, preserving
// every metadata key the patch does not set. The row must already exist.
func (r *ConnectionRepository) SetActive(ctx context.Context, userID uuid.UUID, active bool, patch models.ConnectionMetadata) error {
	err := r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		merged, err := mergedMetadata(ctx, tx, userID, patch)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
            UPDATE broker_connections
            SET is_active = $3, broker_data = $4, updated_at = NOW()
            WHERE user_id = $1 AND broker_id = $2
        `, userID, models.ProviderID, active, merged)
		if err != nil {
			return fmt.Errorf("update broker connection: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("broker connection not found")
		}
		return nil
	})
	if err != nil {
		return apperrors.NewStorageError("update broker connection", err)
	}
	return nil
}

// StampMetadata merges the patch into the row's metadata without touching
// the secret or the active flag.
func (r *ConnectionRepository) StampMetadata(ctx context.Context, userID uuid.UUID, patch models.ConnectionMetadata) error {
	err := r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		merged, err := mergedMetadata(ctx, tx, userID, patch)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
            UPDATE broker_connections
            SET broker_data = $3, updated_at = NOW()
            WHERE user_id = $1 AND broker_id = $2
        `, userID, models.ProviderID, merged)
		if err != nil {
			return fmt.Errorf("stamp broker connection metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		return apperrors.NewStorageError("stamp broker connection metadata", err)
	}
	return nil
}

// mergedMetadata reads the existing broker_data under the transaction and
// applies the patch on top. A missing row merges against the zero value.
func mergedMetadata(ctx context.Context, tx *sql.Tx, userID uuid.UUID, patch models.ConnectionMetadata) (models.ConnectionMetadata, error) {
	var existing models.ConnectionMetadata
	err := tx.QueryRowContext(ctx, `
        SELECT broker_data FROM broker_connections
        WHERE user_id = $1 AND broker_id = $2
        FOR UPDATE
    `, userID, models.ProviderID).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return models.ConnectionMetadata{}, fmt.Errorf("read broker connection metadata: %w", err)
	}
	return existing.Merge(patch), nil
}
