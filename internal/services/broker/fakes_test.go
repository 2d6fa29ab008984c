package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/openvest/brokerlink/internal/errors"
	"github.com/openvest/brokerlink/internal/models"
	"github.com/openvest/brokerlink/internal/provider"
)

// fakeProvider is a programmable test double for the provider client.
// Unset hooks fail the call so tests only exercise what they declare.
type fakeProvider struct {
	CheckStatusFn          func(ctx context.Context) (*provider.APIStatus, error)
	RegisterUserFn         func(ctx context.Context, userID string) (*provider.RegisteredUser, error)
	DeleteUserFn           func(ctx context.Context, userID string) error
	ListUsersFn            func(ctx context.Context, userID string) ([]provider.RegisteredUser, error)
	LoginUserFn            func(ctx context.Context, req provider.LoginRequest) (*provider.LoginRedirect, error)
	ListAccountsFn         func(ctx context.Context, userID, userSecret string) ([]provider.Account, error)
	ListPositionsFn        func(ctx context.Context, userID, userSecret, accountID string) ([]provider.Position, error)
	ListBalancesFn         func(ctx context.Context, userID, userSecret, accountID string) ([]provider.Balance, error)
	RefreshAuthorizationFn func(ctx context.Context, userID, userSecret, authorizationID string) error
	RemoveAuthorizationFn  func(ctx context.Context, userID, userSecret, authorizationID string) error
	DeleteAccountFn        func(ctx context.Context, userID, userSecret, accountID string) error
}

func (f *fakeProvider) CheckStatus(ctx context.Context) (*provider.APIStatus, error) {
	return f.CheckStatusFn(ctx)
}

func (f *fakeProvider) RegisterUser(ctx context.Context, userID string) (*provider.RegisteredUser, error) {
	return f.RegisterUserFn(ctx, userID)
}

func (f *fakeProvider) DeleteUser(ctx context.Context, userID string) error {
	return f.DeleteUserFn(ctx, userID)
}

func (f *fakeProvider) ListUsers(ctx context.Context, userID string) ([]provider.RegisteredUser, error) {
	return f.ListUsersFn(ctx, userID)
}

func (f *fakeProvider) LoginUser(ctx context.Context, req provider.LoginRequest) (*provider.LoginRedirect, error) {
	return f.LoginUserFn(ctx, req)
}

func (f *fakeProvider) ListAccounts(ctx context.Context, userID, userSecret string) ([]provider.Account, error) {
	return f.ListAccountsFn(ctx, userID, userSecret)
}

func (f *fakeProvider) ListPositions(ctx context.Context, userID, userSecret, accountID string) ([]provider.Position, error) {
	return f.ListPositionsFn(ctx, userID, userSecret, accountID)
}

func (f *fakeProvider) ListBalances(ctx context.Context, userID, userSecret, accountID string) ([]provider.Balance, error) {
	return f.ListBalancesFn(ctx, userID, userSecret, accountID)
}

func (f *fakeProvider) RefreshAuthorization(ctx context.Context, userID, userSecret, authorizationID string) error {
	return f.RefreshAuthorizationFn(ctx, userID, userSecret, authorizationID)
}

func (f *fakeProvider) RemoveAuthorization(ctx context.Context, userID, userSecret, authorizationID string) error {
	return f.RemoveAuthorizationFn(ctx, userID, userSecret, authorizationID)
}

func (f *fakeProvider) DeleteAccount(ctx context.Context, userID, userSecret, accountID string) error {
	return f.DeleteAccountFn(ctx, userID, userSecret, accountID)
}

// fakeStore is an in-memory ConnectionStore. At most one row per user,
// matching the (user_id, broker_id) uniqueness of the real table.
type fakeStore struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*models.BrokerConnection
	fail  error
	calls struct {
		upserts int
		stamps  int
	}
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[uuid.UUID]*models.BrokerConnection)}
}

func (s *fakeStore) Get(ctx context.Context, userID uuid.UUID) (*models.BrokerConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	row, ok := s.rows[userID]
	if !ok {
		return nil, apperrors.NewNotRegisteredError(userID.String())
	}
	copied := *row
	return &copied, nil
}

func (s *fakeStore) Upsert(ctx context.Context, userID uuid.UUID, secret string, active bool, patch models.ConnectionMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.calls.upserts++
	row, ok := s.rows[userID]
	if !ok {
		row = &models.BrokerConnection{UserID: userID, BrokerID: models.ProviderID}
		s.rows[userID] = row
	}
	row.ProviderSecret = secret
	row.IsActive = active
	row.Metadata = row.Metadata.Merge(patch)
	return nil
}

func (s *fakeStore) SetActive(ctx context.Context, userID uuid.UUID, active bool, patch models.ConnectionMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	row, ok := s.rows[userID]
	if !ok {
		return apperrors.NewStorageError("update broker connection", nil)
	}
	row.IsActive = active
	row.Metadata = row.Metadata.Merge(patch)
	return nil
}

func (s *fakeStore) StampMetadata(ctx context.Context, userID uuid.UUID, patch models.ConnectionMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.calls.stamps++
	row, ok := s.rows[userID]
	if !ok {
		return apperrors.NewStorageError("stamp broker connection metadata", nil)
	}
	row.Metadata = row.Metadata.Merge(patch)
	return nil
}

func (s *fakeStore) connection(userID uuid.UUID) *models.BrokerConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[userID]
}

func (s *fakeStore) rowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// fakeAssets records created assets and can be told to fail specific names.
type fakeAssets struct {
	mu         sync.Mutex
	created    []models.Asset
	categoryID int64
	catErr     error
	failNames  map[string]error
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{categoryID: 7, failNames: make(map[string]error)}
}

func (a *fakeAssets) CategoryIDBySlug(ctx context.Context, slug string) (int64, error) {
	if a.catErr != nil {
		return 0, a.catErr
	}
	return a.categoryID, nil
}

func (a *fakeAssets) Create(ctx context.Context, asset *models.Asset) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err, ok := a.failNames[asset.Name]; ok {
		return err
	}
	a.created = append(a.created, *asset)
	return nil
}

func (a *fakeAssets) createdNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.created))
	for _, asset := range a.created {
		names = append(names, asset.Name)
	}
	return names
}
