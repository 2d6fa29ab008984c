package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/openvest/brokerlink/internal/errors"
	"github.com/openvest/brokerlink/internal/logger"
	"github.com/openvest/brokerlink/internal/models"
	"github.com/openvest/brokerlink/internal/monitoring"
	"github.com/openvest/brokerlink/internal/provider"
)

const (
	// investmentsCategorySlug resolves the ledger category synced assets
	// are filed under.
	investmentsCategorySlug = "investments"

	// refreshPropagationDelay gives the provider time to materialize data
	// after a successful authorization refresh before accounts are read.
	refreshPropagationDelay = time.Second

	defaultBrokerName  = "SnapTrade"
	defaultAccountName = "Investment Account"
	defaultCurrency    = "USD"
)

// SyncEngine pulls accounts, positions, and balances from the provider.
// ListHoldings is the read-only display path; Reconcile is the full
// pull-and-persist run triggered by the connection callback.
type SyncEngine struct {
	provider provider.Client
	store    ConnectionStore
	assets   AssetStore
	cache    HoldingsCache
	logger   *logger.Logger
	metrics  *monitoring.Metrics
	now      func() time.Time
	sleep    func(time.Duration)
}

func NewSyncEngine(client provider.Client, store ConnectionStore, assets AssetStore, cache HoldingsCache, log *logger.Logger, metrics *monitoring.Metrics) *SyncEngine {
	return &SyncEngine{
		provider: client,
		store:    store,
		assets:   assets,
		cache:    cache,
		logger:   log,
		metrics:  metrics,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// ListHoldings fetches the user's holdings for display. It never returns an
// error: a top-level failure comes back as a result with Failed set, and a
// bad account never prevents the others from being reported.
func (s *SyncEngine) ListHoldings(ctx context.Context, userID uuid.UUID, accountID string) *models.HoldingsResult {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, userID, accountID); ok {
			return cached
		}
	}

	conn, err := s.store.Get(ctx, userID)
	if err != nil {
		return s.failedResult(userID, "resolve secret", err)
	}

	uid := userID.String()
	accounts, err := s.provider.ListAccounts(ctx, uid, conn.ProviderSecret)
	if err != nil {
		return s.failedResult(userID, "list accounts", err)
	}

	result := &models.HoldingsResult{}
	cacheable := true

	for _, account := range accounts {
		if accountID != "" && account.ID != accountID {
			continue
		}

		holdings, pending, err := s.accountHoldings(ctx, uid, conn.ProviderSecret, account)
		if err != nil {
			s.logger.WithFields(map[string]interface{}{
				"user_id":    uid,
				"account_id": account.ID,
				"error":      err.Error(),
			}).Error("Skipping account in holdings fetch")
			if s.metrics != nil {
				s.metrics.IncSyncFailure("holdings_account")
			}
			continue
		}
		if pending {
			cacheable = false
		}
		result.Holdings = append(result.Holdings, holdings...)
	}

	if s.cache != nil && cacheable {
		s.cache.Set(ctx, userID, accountID, result)
	}

	return result
}

// accountHoldings returns the holdings for a single account. A provider
// not-ready condition yields one pending placeholder; any other failure on
// positions or balances skips the account.
func (s *SyncEngine) accountHoldings(ctx context.Context, uid, secret string, account provider.Account) ([]models.Holding, bool, error) {
	accountName := account.Name
	if accountName == "" {
		accountName = defaultAccountName
	}
	brokerName := account.BrokerageName(defaultBrokerName)

	positions, err := s.provider.ListPositions(ctx, uid, secret, account.ID)
	if err != nil {
		if provider.IsNotReady(err) {
			s.logger.WithFields(map[string]interface{}{
				"user_id":    uid,
				"account_id": account.ID,
			}).Warn("Account sync not yet completed, returning placeholder")
			if s.metrics != nil {
				s.metrics.IncPendingAccount()
			}
			return []models.Holding{models.PendingHolding(account.ID, accountName, brokerName)}, true, nil
		}
		return nil, false, fmt.Errorf("fetch positions: %w", err)
	}

	var holdings []models.Holding
	for _, position := range positions {
		symbol := position.Symbol.Symbol
		name := position.Symbol.Description
		if name == "" {
			name = symbol
		}

		h := models.NewHolding(symbol, name,
			float64(position.Quantity),
			float64(position.Price),
			float64(position.BookValue),
		)
		h.AccountID = account.ID
		h.AccountName = accountName
		h.BrokerName = brokerName
		h.Currency = position.Currency
		if h.Currency == "" {
			h.Currency = defaultCurrency
		}
		holdings = append(holdings, h)
	}

	balances, err := s.provider.ListBalances(ctx, uid, secret, account.ID)
	if err != nil {
		return nil, false, fmt.Errorf("fetch balances: %w", err)
	}

	for _, balance := range balances {
		if balance.Cash && float64(balance.Amount) > 0 {
			h := models.CashHolding(float64(balance.Amount), balance.Currency)
			h.AccountID = account.ID
			h.AccountName = accountName
			h.BrokerName = brokerName
			holdings = append(holdings, h)
		}
	}

	return holdings, false, nil
}

func (s *SyncEngine) failedResult(userID uuid.UUID, stage string, err error) *models.HoldingsResult {
	s.logger.LogSyncOperation(userID.String(), "list holdings: "+stage, err)
	return &models.HoldingsResult{
		Failed:     true,
		ErrMessage: err.Error(),
	}
}

// Reconcile runs the full post-connection synchronization: activate the
// connection, refresh the new authorization, then create one ledger asset
// per position and per cash balance across every account. Only account
// listing and category resolution are fatal; every per-item failure is
// logged and absorbed so one bad row never stops the rest.
func (s *SyncEngine) Reconcile(ctx context.Context, userID uuid.UUID, authorizationID, brokerageName string) ([]provider.Account, error) {
	conn, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	uid := userID.String()

	connectedAt := s.now()
	if err := s.store.SetActive(ctx, userID, true, models.ConnectionMetadata{
		ConnectedAt:     &connectedAt,
		Brokerage:       brokerageName,
		AuthorizationID: authorizationID,
	}); err != nil {
		s.logger.LogSyncOperation(uid, "activate connection", err)
	}

	if authorizationID != "" {
		if err := s.provider.RefreshAuthorization(ctx, uid, conn.ProviderSecret, authorizationID); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"user_id":          uid,
				"authorization_id": authorizationID,
				"error":            err.Error(),
			}).Warn("Failed to refresh brokerage authorization")
		} else {
			// Refresh propagation is asynchronous on the provider side.
			s.sleep(refreshPropagationDelay)
		}
	}

	accounts, err := s.provider.ListAccounts(ctx, uid, conn.ProviderSecret)
	if err != nil {
		return nil, apperrors.NewSyncError("failed to fetch accounts", err)
	}

	categoryID, err := s.assets.CategoryIDBySlug(ctx, investmentsCategorySlug)
	if err != nil {
		return nil, apperrors.NewSyncError("failed to resolve investments category", err)
	}

	for _, account := range accounts {
		s.reconcileAccount(ctx, userID, conn.ProviderSecret, account, categoryID)
		if s.metrics != nil {
			s.metrics.IncAccountsSynced()
		}
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}

	s.logger.LogSyncOperation(uid, fmt.Sprintf("reconciled %d accounts", len(accounts)), nil)
	return accounts, nil
}

func (s *SyncEngine) reconcileAccount(ctx context.Context, userID uuid.UUID, secret string, account provider.Account, categoryID int64) {
	uid := userID.String()
	accountName := account.Name
	if accountName == "" {
		accountName = defaultAccountName
	}
	brokerName := account.BrokerageName(defaultBrokerName)

	positions, err := s.provider.ListPositions(ctx, uid, secret, account.ID)
	if err != nil {
		s.logger.WithFields(map[string]interface{}{
			"user_id":    uid,
			"account_id": account.ID,
			"error":      err.Error(),
		}).Error("Failed to fetch positions during reconciliation")
		if s.metrics != nil {
			s.metrics.IncSyncFailure("positions_fetch")
		}
	}

	for _, position := range positions {
		symbol := position.Symbol.Symbol
		if symbol == "" {
			continue
		}
		if err := s.assets.Create(ctx, s.positionAsset(userID, categoryID, account, accountName, brokerName, symbol, position)); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"user_id":    uid,
				"account_id": account.ID,
				"symbol":     symbol,
				"error":      err.Error(),
			}).Error("Failed to insert position asset")
			if s.metrics != nil {
				s.metrics.IncSyncFailure("position_insert")
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.IncAssetsCreated("stock")
		}
	}

	balances, err := s.provider.ListBalances(ctx, uid, secret, account.ID)
	if err != nil {
		s.logger.WithFields(map[string]interface{}{
			"user_id":    uid,
			"account_id": account.ID,
			"error":      err.Error(),
		}).Error("Failed to fetch balances during reconciliation")
		if s.metrics != nil {
			s.metrics.IncSyncFailure("balances_fetch")
		}
	}

	for _, balance := range balances {
		if !isCashBalance(balance, brokerName) {
			continue
		}
		if err := s.assets.Create(ctx, s.cashAsset(userID, categoryID, account, accountName, brokerName, balance)); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"user_id":    uid,
				"account_id": account.ID,
				"currency":   balance.Currency,
				"error":      err.Error(),
			}).Error("Failed to insert cash asset")
			if s.metrics != nil {
				s.metrics.IncSyncFailure("cash_insert")
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.IncAssetsCreated("cash")
		}
	}
}

// isCashBalance classifies a balance entry as cash: the explicit flag, the
// explicit type tag, or the Interactive Brokers name match. IB's balance
// payload omits the cash flag entirely, hence the name heuristic; it is a
// known special case, not a general rule.
func isCashBalance(balance provider.Balance, brokerName string) bool {
	amount := float64(balance.Amount)
	if amount <= 0 {
		return false
	}
	if balance.Cash || balance.Type == "CASH" {
		return true
	}
	return strings.Contains(strings.ToUpper(brokerName), "INTERACTIVE")
}

func (s *SyncEngine) positionAsset(userID uuid.UUID, categoryID int64, account provider.Account, accountName, brokerName, symbol string, position provider.Position) *models.Asset {
	quantity := float64(position.Quantity)
	price := float64(position.Price)
	bookValue := float64(position.BookValue)
	totalValue := quantity * price

	acquisitionValue := bookValue
	if acquisitionValue == 0 {
		acquisitionValue = totalValue
	}

	purchasePrice := 0.0
	if quantity != 0 {
		purchasePrice = bookValue / quantity
	}

	currency := position.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	return &models.Asset{
		UserID:           userID,
		CategoryID:       categoryID,
		Name:             symbol,
		Description:      fmt.Sprintf("%g shares of %s", quantity, symbol),
		Location:         accountName,
		Value:            totalValue,
		AcquisitionValue: acquisitionValue,
		AcquisitionDate:  s.now(),
		IsLiability:      false,
		Metadata: models.AssetMetadata{
			Symbol:        symbol,
			Quantity:      quantity,
			PricePerShare: price,
			PurchasePrice: purchasePrice,
			Currency:      currency,
			AssetType:     "stock",
			Source:        models.ProviderID,
			AccountID:     account.ID,
			AccountName:   accountName,
			BrokerName:    brokerName,
		},
	}
}

func (s *SyncEngine) cashAsset(userID uuid.UUID, categoryID int64, account provider.Account, accountName, brokerName string, balance provider.Balance) *models.Asset {
	amount := float64(balance.Amount)
	currency := balance.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	balanceType := balance.Type
	if balanceType == "" {
		balanceType = "CASH"
	}

	return &models.Asset{
		UserID:           userID,
		CategoryID:       categoryID,
		Name:             fmt.Sprintf("Cash (%s)", currency),
		Description:      fmt.Sprintf("Cash balance in %s", accountName),
		Location:         accountName,
		Value:            amount,
		AcquisitionValue: amount,
		AcquisitionDate:  s.now(),
		IsLiability:      false,
		Metadata: models.AssetMetadata{
			Symbol:        "CASH",
			Quantity:      1,
			PricePerShare: amount,
			PurchasePrice: amount,
			Currency:      currency,
			AssetType:     "cash",
			Source:        models.ProviderID,
			AccountID:     account.ID,
			AccountName:   accountName,
			BrokerName:    brokerName,
			BalanceType:   balanceType,
		},
	}
}

// ListAccounts returns the raw provider accounts for the user.
func (s *SyncEngine) ListAccounts(ctx context.Context, userID uuid.UUID) ([]provider.Account, error) {
	conn, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	accounts, err := s.provider.ListAccounts(ctx, userID.String(), conn.ProviderSecret)
	if err != nil {
		return nil, apperrors.NewSyncError("failed to fetch accounts", err)
	}
	return accounts, nil
}
