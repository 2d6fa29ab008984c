package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	apperrors "github.com/openvest/brokerlink/internal/errors"
	"github.com/openvest/brokerlink/internal/logger"
	"github.com/openvest/brokerlink/internal/middleware"
	"github.com/openvest/brokerlink/internal/models"
	"github.com/openvest/brokerlink/internal/provider"
)

type RegistrarService interface {
	Register(ctx context.Context, userID uuid.UUID) (string, error)
}

type LinkService interface {
	CreateLink(ctx context.Context, userID uuid.UUID, redirectURI, brokerID string) (string, error)
}

type SyncService interface {
	ListHoldings(ctx context.Context, userID uuid.UUID, accountID string) *models.HoldingsResult
	Reconcile(ctx context.Context, userID uuid.UUID, authorizationID, brokerageName string) ([]provider.Account, error)
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]provider.Account, error)
}

type DisconnectService interface {
	Disconnect(ctx context.Context, userID uuid.UUID, authorizationID string) error
}

type StatusService interface {
	CheckStatus(ctx context.Context) (*provider.APIStatus, error)
}

type BrokerHandler struct {
	registrar    RegistrarService
	links        LinkService
	sync         SyncService
	disconnector DisconnectService
	status       StatusService
	configured   bool
	logger       *logger.Logger
}

func NewBrokerHandler(
	registrar RegistrarService,
	links LinkService,
	sync SyncService,
	disconnector DisconnectService,
	status StatusService,
	configured bool,
	log *logger.Logger,
) *BrokerHandler {
	return &BrokerHandler{
		registrar:    registrar,
		links:        links,
		sync:         sync,
		disconnector: disconnector,
		status:       status,
		configured:   configured,
		logger:       log,
	}
}

type RegisterRequest struct {
	UserID string `json:"userId"`
}

type RegisterResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
}

// Register ensures the authenticated user has a provider identity.
func (h *BrokerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, apperrors.NewValidationError("invalid request body", err))
		return
	}

	userID, ok := h.authorizedUser(w, r, req.UserID)
	if !ok {
		return
	}

	if _, err := h.registrar.Register(r.Context(), userID); err != nil {
		h.logger.WithFields(map[string]interface{}{
			"user_id": userID.String(),
			"error":   err.Error(),
		}).Error("Registration failed")
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RegisterResponse{
		Success: true,
		UserID:  userID.String(),
	})
}

type CreateLinkRequest struct {
	UserID      string `json:"userId,omitempty"`
	RedirectURI string `json:"redirectUri"`
	BrokerID    string `json:"brokerId,omitempty"`
}

type CreateLinkResponse struct {
	RedirectURI string `json:"redirectUri"`
}

// CreateLink returns the connection-portal URL the caller redirects the
// user to.
func (h *BrokerHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, apperrors.NewValidationError("invalid request body", err))
		return
	}
	if req.RedirectURI == "" {
		middleware.WriteError(w, apperrors.NewValidationError("redirectUri is required", nil))
		return
	}

	userID, ok := h.authorizedUser(w, r, req.UserID)
	if !ok {
		return
	}

	url, err := h.links.CreateLink(r.Context(), userID, req.RedirectURI, req.BrokerID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CreateLinkResponse{RedirectURI: url})
}

type CallbackResponse struct {
	Success  bool `json:"success"`
	Accounts int  `json:"accounts"`
}

// Callback handles the provider's post-connection redirect and runs the
// full reconciliation.
func (h *BrokerHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	userID, ok := h.authorizedUser(w, r, query.Get("userId"))
	if !ok {
		return
	}

	accounts, err := h.sync.Reconcile(r.Context(),
		userID,
		query.Get("authorizationId"),
		query.Get("brokerage"),
	)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CallbackResponse{
		Success:  true,
		Accounts: len(accounts),
	})
}

// Holdings returns the read-only holdings view. The response is always 200;
// a top-level fetch failure is reported inside the tagged result.
func (h *BrokerHandler) Holdings(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, apperrors.NewAuthenticationError("no authenticated user", nil))
		return
	}

	result := h.sync.ListHoldings(r.Context(), userID, r.URL.Query().Get("accountId"))
	writeJSON(w, http.StatusOK, result)
}

// Accounts returns the raw provider account list.
func (h *BrokerHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, apperrors.NewAuthenticationError("no authenticated user", nil))
		return
	}

	accounts, err := h.sync.ListAccounts(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accounts)
}

type DisconnectResponse struct {
	Success bool `json:"success"`
}

// Disconnect revokes one brokerage authorization.
func (h *BrokerHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, apperrors.NewAuthenticationError("no authenticated user", nil))
		return
	}

	authorizationID := mux.Vars(r)["authorizationId"]
	if authorizationID == "" {
		middleware.WriteError(w, apperrors.NewValidationError("authorizationId is required", nil))
		return
	}

	if err := h.disconnector.Disconnect(r.Context(), userID, authorizationID); err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DisconnectResponse{Success: true})
}

type StatusResponse struct {
	Status                string `json:"status"`
	Online                bool   `json:"online"`
	CredentialsConfigured bool   `json:"credentialsConfigured"`
}

// Status reports provider reachability and whether API credentials are set.
func (h *BrokerHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{CredentialsConfigured: h.configured}

	status, err := h.status.CheckStatus(r.Context())
	if err != nil {
		resp.Status = "error"
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	resp.Status = "ok"
	resp.Online = status.Online
	writeJSON(w, http.StatusOK, resp)
}

// authorizedUser resolves the authenticated user and rejects a mismatched
// caller-supplied userId. An empty requested id means "the caller".
func (h *BrokerHandler) authorizedUser(w http.ResponseWriter, r *http.Request, requested string) (uuid.UUID, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, apperrors.NewAuthenticationError("no authenticated user", nil))
		return uuid.Nil, false
	}

	if requested != "" && requested != userID.String() {
		middleware.WriteError(w, apperrors.NewAuthorizationError("userId does not match authenticated user", nil))
		return uuid.Nil, false
	}

	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
