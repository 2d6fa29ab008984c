package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProviderID identifies the single aggregation provider a connection row
// belongs to. The broker_connections table is keyed on (user_id, broker_id).
const ProviderID = "snaptrade"

// BrokerConnection is the persisted link between a local user and the
// aggregation provider. One row per (user, provider); the row is never
// hard-deleted, disconnects only flip IsActive.
type BrokerConnection struct {
	UserID         uuid.UUID          `json:"user_id" db:"user_id"`
	BrokerID       string             `json:"broker_id" db:"broker_id"`
	ProviderSecret string             `json:"-" db:"api_secret_encrypted"`
	IsActive       bool               `json:"is_active" db:"is_active"`
	Metadata       ConnectionMetadata `json:"metadata" db:"broker_data"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" db:"updated_at"`
}

// ConnectionMetadata holds the lifecycle fields recorded on a connection row.
// Fields are optional; zero values mean "not recorded".
type ConnectionMetadata struct {
	RegisteredAt      *time.Time `json:"registered_at,omitempty"`
	ConnectionStarted *time.Time `json:"connection_started,omitempty"`
	ConnectedAt       *time.Time `json:"connected_at,omitempty"`
	DisconnectedAt    *time.Time `json:"disconnected_at,omitempty"`
	ProviderUserID    string     `json:"snap_trade_user_id,omitempty"`
	SelectedBroker    string     `json:"broker_id,omitempty"`
	Brokerage         string     `json:"brokerage,omitempty"`
	AuthorizationID   string     `json:"authorization_id,omitempty"`
}

// Merge applies patch on top of m and returns the result. Only fields set in
// the patch overwrite; everything else is preserved, so unrelated lifecycle
// keys are never clobbered by a partial update.
func (m ConnectionMetadata) Merge(patch ConnectionMetadata) ConnectionMetadata {
	out := m
	if patch.RegisteredAt != nil {
		out.RegisteredAt = patch.RegisteredAt
	}
	if patch.ConnectionStarted != nil {
		out.ConnectionStarted = patch.ConnectionStarted
	}
	if patch.ConnectedAt != nil {
		out.ConnectedAt = patch.ConnectedAt
	}
	if patch.DisconnectedAt != nil {
		out.DisconnectedAt = patch.DisconnectedAt
	}
	if patch.ProviderUserID != "" {
		out.ProviderUserID = patch.ProviderUserID
	}
	if patch.SelectedBroker != "" {
		out.SelectedBroker = patch.SelectedBroker
	}
	if patch.Brokerage != "" {
		out.Brokerage = patch.Brokerage
	}
	if patch.AuthorizationID != "" {
		out.AuthorizationID = patch.AuthorizationID
	}
	return out
}

// Value implements driver.Valuer so the metadata can be written to a jsonb
// column directly.
func (m ConnectionMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner for reading the jsonb column.
func (m *ConnectionMetadata) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = ConnectionMetadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("scan connection metadata: unsupported type %T", src)
	}
}
