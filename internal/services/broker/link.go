package broker

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/openvest/brokerlink/internal/errors"
	"github.com/openvest/brokerlink/internal/logger"
	"github.com/openvest/brokerlink/internal/models"
	"github.com/openvest/brokerlink/internal/provider"
)

// connectionPortalVersion is the portal tag sent on every login call.
const connectionPortalVersion = "v4"

// supportedBrokers is the provider's published broker list. An unknown id is
// passed through with a warning, not rejected; the portal is the authority.
var supportedBrokers = []string{
	"ALPACA", "ETRADE", "FIDELITY", "QUESTRADE", "ROBINHOOD",
	"TRADESTATION", "TRADIER", "VANGUARD", "WEALTHSIMPLE", "WEBULL",
}

// userRegistrar is the slice of Registrar that link generation needs.
type userRegistrar interface {
	Register(ctx context.Context, userID uuid.UUID) (string, error)
}

// LinkGenerator produces the one-time connection-portal URL a user visits to
// authorize a brokerage.
type LinkGenerator struct {
	provider  provider.Client
	store     ConnectionStore
	registrar userRegistrar
	logger    *logger.Logger
	now       func() time.Time
}

func NewLinkGenerator(client provider.Client, store ConnectionStore, registrar userRegistrar, log *logger.Logger) *LinkGenerator {
	return &LinkGenerator{
		provider:  client,
		store:     store,
		registrar: registrar,
		logger:    log,
		now:       time.Now,
	}
}

// CreateLink returns the portal redirect URL for userID. A user with no
// stored secret is registered first; registration is attempted at most once,
// so a persistent secret failure cannot loop.
func (g *LinkGenerator) CreateLink(ctx context.Context, userID uuid.UUID, redirectURI, brokerID string) (string, error) {
	secret, err := g.resolveSecret(ctx, userID)
	if err != nil {
		return "", err
	}

	broker := g.normalizeBroker(brokerID)

	redirect, err := g.provider.LoginUser(ctx, provider.LoginRequest{
		UserID:                  userID.String(),
		UserSecret:              secret,
		Broker:                  broker,
		ImmediateRedirect:       true,
		CustomRedirect:          redirectURI,
		ConnectionPortalVersion: connectionPortalVersion,
	})
	if err != nil {
		return "", apperrors.NewLinkGenerationError(provider.ErrorDetail(err), err)
	}
	if redirect == nil || redirect.RedirectURI == "" {
		return "", apperrors.NewLinkGenerationError("no redirect URI in provider response", nil)
	}

	// Link-attempt stamp is best-effort; the URL is already issued.
	started := g.now()
	selected := broker
	if selected == "" {
		selected = "any"
	}
	if err := g.store.StampMetadata(ctx, userID, models.ConnectionMetadata{
		ConnectionStarted: &started,
		SelectedBroker:    selected,
	}); err != nil {
		g.logger.WithFields(map[string]interface{}{
			"user_id": userID.String(),
			"error":   err.Error(),
		}).Warn("Failed to record link attempt")
	}

	return redirect.RedirectURI, nil
}

// resolveSecret fetches the stored secret, registering the user once when no
// secret exists yet.
func (g *LinkGenerator) resolveSecret(ctx context.Context, userID uuid.UUID) (string, error) {
	conn, err := g.store.Get(ctx, userID)
	if err == nil {
		return conn.ProviderSecret, nil
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeNotRegistered) {
		return "", err
	}

	g.logger.WithFields(map[string]interface{}{
		"user_id": userID.String(),
	}).Info("User not registered with provider, registering before link generation")

	secret, regErr := g.registrar.Register(ctx, userID)
	if regErr != nil {
		return "", apperrors.NewLinkGenerationError("registration failed", regErr)
	}
	return secret, nil
}

// normalizeBroker uppercases the broker id and drops it entirely for the
// brokerages whose portal flow rejects a preselected broker parameter.
func (g *LinkGenerator) normalizeBroker(brokerID string) string {
	broker := strings.ToUpper(strings.TrimSpace(brokerID))
	if broker == "" {
		return ""
	}

	switch broker {
	case "INTERACTIVE_BROKERS", "IBKR", "SCHWAB":
		g.logger.WithFields(map[string]interface{}{
			"broker_id": broker,
		}).Info("Broker requires omitting the selection parameter")
		return ""
	}

	if !isSupportedBroker(broker) {
		g.logger.WithFields(map[string]interface{}{
			"broker_id": broker,
		}).Warn("Broker id may not be supported by the provider")
	}

	return broker
}

func isSupportedBroker(broker string) bool {
	for _, b := range supportedBrokers {
		if b == broker {
			return true
		}
	}
	return false
}
