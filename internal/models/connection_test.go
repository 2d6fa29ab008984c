package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionMetadataMerge(t *testing.T) {
	registeredAt := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	connectedAt := time.Date(2026, 1, 11, 14, 30, 0, 0, time.UTC)

	t.Run("patch fields overwrite", func(t *testing.T) {
		base := ConnectionMetadata{
			RegisteredAt:   &registeredAt,
			ProviderUserID: "user-1",
			SelectedBroker: "QUESTRADE",
		}
		merged := base.Merge(ConnectionMetadata{
			ConnectedAt:     &connectedAt,
			Brokerage:       "Questrade",
			AuthorizationID: "auth-1",
		})

		assert.Equal(t, &registeredAt, merged.RegisteredAt)
		assert.Equal(t, "user-1", merged.ProviderUserID)
		assert.Equal(t, "QUESTRADE", merged.SelectedBroker)
		assert.Equal(t, &connectedAt, merged.ConnectedAt)
		assert.Equal(t, "Questrade", merged.Brokerage)
		assert.Equal(t, "auth-1", merged.AuthorizationID)
	})

	t.Run("unset patch fields preserve existing values", func(t *testing.T) {
		base := ConnectionMetadata{
			RegisteredAt:    &registeredAt,
			ProviderUserID:  "user-1",
			AuthorizationID: "auth-1",
		}
		merged := base.Merge(ConnectionMetadata{})

		assert.Equal(t, base, merged)
	})

	t.Run("repeated lifecycle events replace their own keys", func(t *testing.T) {
		later := connectedAt.Add(48 * time.Hour)
		base := ConnectionMetadata{ConnectedAt: &connectedAt, AuthorizationID: "auth-1"}
		merged := base.Merge(ConnectionMetadata{ConnectedAt: &later, AuthorizationID: "auth-2"})

		assert.Equal(t, &later, merged.ConnectedAt)
		assert.Equal(t, "auth-2", merged.AuthorizationID)
	})
}

func TestConnectionMetadataRoundTrip(t *testing.T) {
	registeredAt := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	meta := ConnectionMetadata{
		RegisteredAt:    &registeredAt,
		ProviderUserID:  "user-1",
		SelectedBroker:  "WEBULL",
		AuthorizationID: "auth-1",
	}

	v, err := meta.Value()
	require.NoError(t, err)

	var decoded ConnectionMetadata
	require.NoError(t, decoded.Scan(v))
	assert.Equal(t, meta.ProviderUserID, decoded.ProviderUserID)
	assert.Equal(t, meta.SelectedBroker, decoded.SelectedBroker)
	assert.True(t, meta.RegisteredAt.Equal(*decoded.RegisteredAt))
}

func TestConnectionMetadataJSONKeys(t *testing.T) {
	registeredAt := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(ConnectionMetadata{
		RegisteredAt:   &registeredAt,
		ProviderUserID: "user-1",
		SelectedBroker: "SCHWAB",
	})
	require.NoError(t, err)

	var keys map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &keys))
	assert.Contains(t, keys, "registered_at")
	assert.Contains(t, keys, "snap_trade_user_id")
	assert.Contains(t, keys, "broker_id")
	assert.NotContains(t, keys, "connected_at", "unset fields are omitted")
}

func TestConnectionMetadataScan(t *testing.T) {
	t.Run("nil column yields zero value", func(t *testing.T) {
		var meta ConnectionMetadata
		require.NoError(t, meta.Scan(nil))
		assert.Equal(t, ConnectionMetadata{}, meta)
	})

	t.Run("string column is accepted", func(t *testing.T) {
		var meta ConnectionMetadata
		require.NoError(t, meta.Scan(`{"brokerage":"Questrade"}`))
		assert.Equal(t, "Questrade", meta.Brokerage)
	})

	t.Run("unsupported type is rejected", func(t *testing.T) {
		var meta ConnectionMetadata
		assert.Error(t, meta.Scan(42))
	})
}
