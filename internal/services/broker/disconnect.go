package broker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openvest/brokerlink/internal/logger"
	"github.com/openvest/brokerlink/internal/models"
	"github.com/openvest/brokerlink/internal/provider"
)

// Disconnector revokes one brokerage authorization and marks the local
// connection inactive. Provider-side failures are tolerated; the local
// update is the only step allowed to fail the operation.
type Disconnector struct {
	provider provider.Client
	store    ConnectionStore
	cache    HoldingsCache
	logger   *logger.Logger
	now      func() time.Time
}

func NewDisconnector(client provider.Client, store ConnectionStore, cache HoldingsCache, log *logger.Logger) *Disconnector {
	return &Disconnector{
		provider: client,
		store:    store,
		cache:    cache,
		logger:   log,
		now:      time.Now,
	}
}

// Disconnect removes the authorization on the provider side (best-effort)
// and flips the connection inactive. An authorizationId with no matching
// account is treated as already disconnected: the local update still runs
// and the call succeeds.
func (d *Disconnector) Disconnect(ctx context.Context, userID uuid.UUID, authorizationID string) error {
	conn, err := d.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	uid := userID.String()

	accounts, err := d.provider.ListAccounts(ctx, uid, conn.ProviderSecret)
	if err != nil {
		d.logger.WithFields(map[string]interface{}{
			"user_id": uid,
			"error":   err.Error(),
		}).Warn("Failed to list accounts during disconnect, proceeding with local update")
		accounts = nil
	}

	var match *provider.Account
	for i := range accounts {
		if accounts[i].AuthorizationID() == authorizationID {
			match = &accounts[i]
			break
		}
	}

	if match == nil {
		d.logger.WithFields(map[string]interface{}{
			"user_id":          uid,
			"authorization_id": authorizationID,
		}).Warn("No account found for authorization, treating as already disconnected")
	} else {
		if err := d.provider.RemoveAuthorization(ctx, uid, conn.ProviderSecret, authorizationID); err != nil {
			d.logger.WithFields(map[string]interface{}{
				"user_id":          uid,
				"authorization_id": authorizationID,
				"error":            err.Error(),
			}).Error("Failed to remove brokerage authorization")
		}

		if err := d.provider.DeleteAccount(ctx, uid, conn.ProviderSecret, match.ID); err != nil {
			d.logger.WithFields(map[string]interface{}{
				"user_id":    uid,
				"account_id": match.ID,
				"error":      err.Error(),
			}).Error("Failed to delete provider account")
		}
	}

	disconnectedAt := d.now()
	if err := d.store.SetActive(ctx, userID, false, models.ConnectionMetadata{
		DisconnectedAt:  &disconnectedAt,
		AuthorizationID: authorizationID,
	}); err != nil {
		return err
	}

	if d.cache != nil {
		d.cache.Invalidate(ctx, userID)
	}

	return nil
}
