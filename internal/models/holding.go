package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Holding is one displayable line of a user's brokerage holdings: either an
// instrument position, a synthetic cash row (Symbol "CASH"), or a placeholder
// for an account the provider has not finished syncing yet.
type Holding struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Quantity      float64 `json:"quantity"`
	PricePerShare float64 `json:"price_per_share"`
	TotalValue    float64 `json:"total_value"`
	GainLoss      float64 `json:"gain_loss"`
	AverageCost   float64 `json:"average_cost"`
	AccountID     string  `json:"account_id"`
	AccountName   string  `json:"account_name"`
	BrokerName    string  `json:"broker_name"`
	Currency      string  `json:"currency"`
	IsPending     bool    `json:"is_pending,omitempty"`
}

// NewHolding derives the value fields from raw position numbers. AverageCost
// is reported as 0 for a zero quantity rather than dividing by zero.
func NewHolding(symbol, name string, quantity, price, bookValue float64) Holding {
	total := quantity * price
	avg := 0.0
	if quantity != 0 {
		avg = bookValue / quantity
	}
	return Holding{
		Symbol:        symbol,
		Name:          name,
		Quantity:      quantity,
		PricePerShare: price,
		TotalValue:    total,
		GainLoss:      total - bookValue,
		AverageCost:   avg,
	}
}

// CashHolding builds the synthetic holding for a positive cash balance.
func CashHolding(amount float64, currency string) Holding {
	return Holding{
		Symbol:        "CASH",
		Name:          fmt.Sprintf("Cash (%s)", currency),
		Quantity:      1,
		PricePerShare: amount,
		TotalValue:    amount,
		GainLoss:      0,
		AverageCost:   amount,
		Currency:      currency,
	}
}

// PendingHolding builds the placeholder row for an account whose provider-side
// sync has not completed yet.
func PendingHolding(accountID, accountName, brokerName string) Holding {
	return Holding{
		Symbol:      "PENDING",
		Name:        fmt.Sprintf("%s (Syncing...)", accountName),
		AccountID:   accountID,
		AccountName: accountName,
		BrokerName:  brokerName,
		Currency:    "USD",
		IsPending:   true,
	}
}

// HoldingsResult is the tagged result of a read-only holdings fetch. The
// fetch path never raises to its caller: a top-level failure comes back with
// Failed set and the message in ErrMessage.
type HoldingsResult struct {
	Holdings   []Holding `json:"holdings"`
	Failed     bool      `json:"failed,omitempty"`
	ErrMessage string    `json:"error,omitempty"`
}

// Asset is one row created in the ledger's assets table during a full
// reconciliation. This service only ever inserts assets; it does not update
// or delete rows created by earlier runs.
type Asset struct {
	ID               int64         `json:"id" db:"id"`
	UserID           uuid.UUID     `json:"user_id" db:"user_id"`
	CategoryID       int64         `json:"category_id" db:"category_id"`
	Name             string        `json:"name" db:"name"`
	Description      string        `json:"description" db:"description"`
	Location         string        `json:"location" db:"location"`
	Value            float64       `json:"value" db:"value"`
	AcquisitionValue float64       `json:"acquisition_value" db:"acquisition_value"`
	AcquisitionDate  time.Time     `json:"acquisition_date" db:"acquisition_date"`
	IsLiability      bool          `json:"is_liability" db:"is_liability"`
	Metadata         AssetMetadata `json:"metadata" db:"metadata"`
}

// AssetMetadata tags a created asset row with its provider provenance.
type AssetMetadata struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	PricePerShare float64 `json:"price_per_share"`
	PurchasePrice float64 `json:"purchase_price"`
	Currency      string  `json:"currency"`
	AssetType     string  `json:"asset_type"`
	Source        string  `json:"source"`
	AccountID     string  `json:"account_id"`
	AccountName   string  `json:"account_name"`
	BrokerName    string  `json:"broker_name"`
	BalanceType   string  `json:"balance_type,omitempty"`
}

func (m AssetMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *AssetMetadata) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = AssetMetadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("scan asset metadata: unsupported type %T", src)
	}
}
