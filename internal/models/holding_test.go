package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewHolding(t *testing.T) {
	tests := []struct {
		name      string
		quantity  float64
		price     float64
		bookValue float64
		wantTotal float64
		wantGain  float64
		wantAvg   float64
	}{
		{"gain position", 10, 5, 40, 50, 10, 4},
		{"loss position", 10, 3, 40, 30, -10, 4},
		{"zero quantity", 0, 20, 100, 0, -100, 0},
		{"zero book value", 2, 50, 0, 100, 100, 0},
		{"fractional shares", 0.5, 100, 60, 50, -10, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHolding("VTI", "Total Market", tt.quantity, tt.price, tt.bookValue)
			assert.Equal(t, tt.wantTotal, h.TotalValue)
			assert.Equal(t, tt.wantGain, h.GainLoss)
			assert.Equal(t, tt.wantAvg, h.AverageCost)
		})
	}
}

func TestCashHolding(t *testing.T) {
	h := CashHolding(1250.75, "CAD")

	assert.Equal(t, "CASH", h.Symbol)
	assert.Equal(t, "Cash (CAD)", h.Name)
	assert.Equal(t, 1.0, h.Quantity)
	assert.Equal(t, 1250.75, h.PricePerShare)
	assert.Equal(t, 1250.75, h.TotalValue)
	assert.Equal(t, 0.0, h.GainLoss)
	assert.Equal(t, "CAD", h.Currency)
	assert.False(t, h.IsPending)
}

func TestPendingHolding(t *testing.T) {
	h := PendingHolding("acct-1", "RRSP", "Wealthsimple")

	assert.Equal(t, "PENDING", h.Symbol)
	assert.Equal(t, "RRSP (Syncing...)", h.Name)
	assert.Equal(t, "acct-1", h.AccountID)
	assert.Equal(t, "Wealthsimple", h.BrokerName)
	assert.True(t, h.IsPending)
}
