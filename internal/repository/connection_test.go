package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvest/brokerlink/internal/database"
	apperrors "github.com/openvest/brokerlink/internal/errors"
	"github.com/openvest/brokerlink/internal/models"
)

func newMockRepo(t *testing.T) (*ConnectionRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	return NewConnectionRepository(database.New(db)), mock, func() { db.Close() }
}

func metadataJSON(t *testing.T, m models.ConnectionMetadata) []byte {
	t.Helper()
	v, err := m.Value()
	require.NoError(t, err)
	return v.([]byte)
}

func TestConnectionRepository_Get(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	ctx := context.Background()
	userID := uuid.New()

	t.Run("returns the stored connection", func(t *testing.T) {
		now := time.Now()
		meta := metadataJSON(t, models.ConnectionMetadata{
			ProviderUserID:  userID.String(),
			AuthorizationID: "auth-1",
		})

		rows := sqlmock.NewRows([]string{
			"user_id", "broker_id", "api_secret_encrypted", "is_active", "broker_data", "created_at", "updated_at",
		}).AddRow(userID.String(), models.ProviderID, "secret-1", true, meta, now, now)

		mock.ExpectQuery("SELECT (.+) FROM broker_connections WHERE user_id = (.+) AND broker_id = (.+)").
			WithArgs(userID, models.ProviderID).
			WillReturnRows(rows)

		conn, err := repo.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, userID, conn.UserID)
		assert.Equal(t, "secret-1", conn.ProviderSecret)
		assert.True(t, conn.IsActive)
		assert.Equal(t, "auth-1", conn.Metadata.AuthorizationID)
	})

	t.Run("missing row becomes not-registered", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM broker_connections WHERE user_id = (.+) AND broker_id = (.+)").
			WithArgs(userID, models.ProviderID).
			WillReturnRows(sqlmock.NewRows([]string{
				"user_id", "broker_id", "api_secret_encrypted", "is_active", "broker_data", "created_at", "updated_at",
			}))

		conn, err := repo.Get(ctx, userID)
		assert.Nil(t, conn)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotRegistered))
	})

	t.Run("query failure becomes storage error", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM broker_connections WHERE user_id = (.+) AND broker_id = (.+)").
			WithArgs(userID, models.ProviderID).
			WillReturnError(assert.AnError)

		_, err := repo.Get(ctx, userID)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStorage))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionRepository_Upsert(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	ctx := context.Background()
	userID := uuid.New()
	registeredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("inserts a fresh row with merged metadata", func(t *testing.T) {
		patch := models.ConnectionMetadata{
			RegisteredAt:   &registeredAt,
			ProviderUserID: userID.String(),
		}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT broker_data FROM broker_connections").
			WithArgs(userID, models.ProviderID).
			WillReturnRows(sqlmock.NewRows([]string{"broker_data"}))
		mock.ExpectExec("INSERT INTO broker_connections").
			WithArgs(userID, models.ProviderID, "snaptrade_user", "secret-1", true, patch).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := repo.Upsert(ctx, userID, "secret-1", true, patch)
		assert.NoError(t, err)
	})

	t.Run("merge preserves existing metadata keys", func(t *testing.T) {
		connectedAt := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
		existing := models.ConnectionMetadata{
			RegisteredAt:   &registeredAt,
			ProviderUserID: userID.String(),
		}
		patch := models.ConnectionMetadata{
			ConnectedAt: &connectedAt,
			Brokerage:   "Questrade",
		}
		merged := existing.Merge(patch)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT broker_data FROM broker_connections").
			WithArgs(userID, models.ProviderID).
			WillReturnRows(sqlmock.NewRows([]string{"broker_data"}).AddRow(metadataJSON(t, existing)))
		mock.ExpectExec("INSERT INTO broker_connections").
			WithArgs(userID, models.ProviderID, "snaptrade_user", "secret-2", true, merged).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := repo.Upsert(ctx, userID, "secret-2", true, patch)
		assert.NoError(t, err)
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT broker_data FROM broker_connections").
			WithArgs(userID, models.ProviderID).
			WillReturnRows(sqlmock.NewRows([]string{"broker_data"}))
		mock.ExpectExec("INSERT INTO broker_connections").
			WillReturnError(assert.AnError)
		mock.ExpectRollback()

		err := repo.Upsert(ctx, userID, "secret-1", true, models.ConnectionMetadata{})
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStorage))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionRepository_SetActive(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	ctx := context.Background()
	userID := uuid.New()

	t.Run("flips the active flag", func(t *testing.T) {
		disconnectedAt := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
		patch := models.ConnectionMetadata{
			DisconnectedAt:  &disconnectedAt,
			AuthorizationID: "auth-1",
		}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT broker_data FROM broker_connections").
			WithArgs(userID, models.ProviderID).
			WillReturnRows(sqlmock.NewRows([]string{"broker_data"}))
		mock.ExpectExec("UPDATE broker_connections").
			WithArgs(userID, models.ProviderID, false, patch).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.SetActive(ctx, userID, false, patch)
		assert.NoError(t, err)
	})

	t.Run("missing row is an error", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT broker_data FROM broker_connections").
			WithArgs(userID, models.ProviderID).
			WillReturnRows(sqlmock.NewRows([]string{"broker_data"}))
		mock.ExpectExec("UPDATE broker_connections").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.SetActive(ctx, userID, true, models.ConnectionMetadata{})
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStorage))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionRepository_StampMetadata(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	ctx := context.Background()
	userID := uuid.New()

	t.Run("updates metadata without touching the secret", func(t *testing.T) {
		started := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
		existing := models.ConnectionMetadata{ProviderUserID: userID.String()}
		patch := models.ConnectionMetadata{
			ConnectionStarted: &started,
			SelectedBroker:    "QUESTRADE",
		}
		merged := existing.Merge(patch)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT broker_data FROM broker_connections").
			WithArgs(userID, models.ProviderID).
			WillReturnRows(sqlmock.NewRows([]string{"broker_data"}).AddRow(metadataJSON(t, existing)))
		mock.ExpectExec("UPDATE broker_connections").
			WithArgs(userID, models.ProviderID, merged).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.StampMetadata(ctx, userID, patch)
		assert.NoError(t, err)
	})

	t.Run("metadata read failure rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT broker_data FROM broker_connections").
			WithArgs(userID, models.ProviderID).
			WillReturnError(assert.AnError)
		mock.ExpectRollback()

		err := repo.StampMetadata(ctx, userID, models.ConnectionMetadata{})
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStorage))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
