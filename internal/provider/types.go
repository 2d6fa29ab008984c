package provider

import (
	"encoding/json"
	"strconv"
)

// RegisteredUser is the provider's record of a registered user.
type RegisteredUser struct {
	UserID     string `json:"userId"`
	UserSecret string `json:"userSecret"`
}

// APIStatus is the provider's status endpoint payload.
type APIStatus struct {
	Version     int    `json:"version"`
	Timestamp   string `json:"timestamp"`
	Online      bool   `json:"online"`
	Environment string `json:"environment,omitempty"`
}

// LoginRequest carries the parameters for the connection-portal login call.
// An empty Broker means the broker-selection parameter is omitted from the
// request entirely.
type LoginRequest struct {
	UserID                  string
	UserSecret              string
	Broker                  string
	ImmediateRedirect       bool
	CustomRedirect          string
	ConnectionPortalVersion string
}

// LoginRedirect is the portal-login response.
type LoginRedirect struct {
	RedirectURI string `json:"redirectURI"`
	SessionID   string `json:"sessionId,omitempty"`
}

// Brokerage describes the institution behind an account, including the
// authorization that links it to the user.
type Brokerage struct {
	Name            string `json:"name"`
	Slug            string `json:"slug,omitempty"`
	AuthorizationID string `json:"authorizationId"`
}

// Account is one brokerage account known to the provider. Transient; never
// persisted as its own entity.
type Account struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Number    string     `json:"number,omitempty"`
	Brokerage *Brokerage `json:"brokerage,omitempty"`
}

// BrokerageName returns the institution name, or the fallback when the
// provider omitted the brokerage block.
func (a Account) BrokerageName(fallback string) string {
	if a.Brokerage != nil && a.Brokerage.Name != "" {
		return a.Brokerage.Name
	}
	return fallback
}

// AuthorizationID returns the authorization behind this account, or "".
func (a Account) AuthorizationID() string {
	if a.Brokerage == nil {
		return ""
	}
	return a.Brokerage.AuthorizationID
}

// Symbol is the instrument identifier on a position. The provider returns
// either a plain string or an object with symbol/description fields.
type Symbol struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description,omitempty"`
}

func (s *Symbol) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var plain string
		if err := json.Unmarshal(data, &plain); err != nil {
			return err
		}
		s.Symbol = plain
		return nil
	}
	type alias Symbol
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = Symbol(obj)
	return nil
}

// Number tolerates the provider's habit of quoting numeric fields.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if raw == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// Position is one held instrument in one account. Transient.
type Position struct {
	Symbol    Symbol `json:"symbol"`
	Quantity  Number `json:"units"`
	Price     Number `json:"price"`
	BookValue Number `json:"book_value"`
	Currency  string `json:"currency,omitempty"`
}

// Balance is one cash-balance entry for an account. Some brokerages omit the
// Cash flag; see the sync engine's cash classification.
type Balance struct {
	Cash     bool   `json:"cash"`
	Type     string `json:"type,omitempty"`
	Amount   Number `json:"amount"`
	Currency string `json:"currency"`
}
