package broker

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/openvest/brokerlink/internal/errors"
	"github.com/openvest/brokerlink/internal/logger"
	"github.com/openvest/brokerlink/internal/models"
	"github.com/openvest/brokerlink/internal/provider"
)

// Registrar ensures a local user has a registered identity on the
// aggregation provider and that the provider-issued secret is persisted.
//
// The provider has no idempotent get-or-create: registration is the only
// primitive, so a userId collision has to be resolved reactively. Register
// walks a fixed recovery ladder and stops at the first rung that yields a
// secret.
type Registrar struct {
	provider provider.Client
	store    ConnectionStore
	logger   *logger.Logger
	now      func() time.Time
}

func NewRegistrar(client provider.Client, store ConnectionStore, log *logger.Logger) *Registrar {
	return &Registrar{
		provider: client,
		store:    store,
		logger:   log,
		now:      time.Now,
	}
}

// Register registers userID with the provider and returns the secret. On an
// AlreadyRegistered collision it recovers, in order: a secret carried in the
// error payload, the provider's registered-user records, and finally a
// best-effort delete followed by re-registration.
func (r *Registrar) Register(ctx context.Context, userID uuid.UUID) (string, error) {
	uid := userID.String()

	user, err := r.provider.RegisterUser(ctx, uid)
	if err == nil {
		if err := r.persist(ctx, userID, user.UserSecret, user.UserID); err != nil {
			return "", err
		}
		return user.UserSecret, nil
	}

	if !provider.IsUserExists(err) {
		return "", apperrors.NewRegistrationError(provider.ErrorDetail(err), err)
	}

	r.logger.WithFields(map[string]interface{}{
		"user_id": uid,
	}).Info("User already registered with provider, recovering secret")

	// Rung 1: the collision payload sometimes carries the secret.
	if secret := provider.ErrorSecret(err); secret != "" {
		if err := r.persist(ctx, userID, secret, uid); err != nil {
			return "", err
		}
		return secret, nil
	}

	// Rung 2: look the user up in the provider's registered-user records.
	if users, lerr := r.provider.ListUsers(ctx, uid); lerr == nil {
		for _, u := range users {
			if u.UserID == uid && u.UserSecret != "" {
				if err := r.persist(ctx, userID, u.UserSecret, u.UserID); err != nil {
					return "", err
				}
				return u.UserSecret, nil
			}
		}
	} else {
		r.logger.WithFields(map[string]interface{}{
			"user_id": uid,
			"error":   lerr.Error(),
		}).Warn("Failed to list provider users during recovery")
	}

	// Rung 3: delete the remote registration and register again. The delete
	// is best-effort; a stale registration may have been purged already.
	if derr := r.provider.DeleteUser(ctx, uid); derr != nil {
		r.logger.WithFields(map[string]interface{}{
			"user_id": uid,
			"error":   derr.Error(),
		}).Warn("Failed to delete provider user, re-registering anyway")
	}

	user, rerr := r.provider.RegisterUser(ctx, uid)
	if rerr != nil {
		return "", apperrors.NewRegistrationError(provider.ErrorDetail(rerr), rerr)
	}

	if err := r.persist(ctx, userID, user.UserSecret, user.UserID); err != nil {
		return "", err
	}
	return user.UserSecret, nil
}

func (r *Registrar) persist(ctx context.Context, userID uuid.UUID, secret, providerUserID string) error {
	registeredAt := r.now()
	return r.store.Upsert(ctx, userID, secret, true, models.ConnectionMetadata{
		RegisteredAt:   &registeredAt,
		ProviderUserID: providerUserID,
	})
}
