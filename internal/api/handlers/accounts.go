package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/magicdevops/cloudleakage/internal/accounts"
	"github.com/magicdevops/cloudleakage/internal/api/dto"
	"github.com/magicdevops/cloudleakage/internal/database/models"
	"gorm.io/gorm"
)

// CredentialValidator performs the live keypair check before persistence.
type CredentialValidator interface {
	ValidateKeypair(ctx context.Context, accessKeyID, secretAccessKey, region string) (accounts.KeypairValidation, error)
}

// CacheInvalidator drops cached inventory when an account changes.
type CacheInvalidator interface {
	InvalidateAccount(accountID uuid.UUID)
}

type AccountHandler struct {
	accounts  *accounts.Service
	validator CredentialValidator
	cache     CacheInvalidator
}

func NewAccountHandler(accountService *accounts.Service, validator CredentialValidator, cache CacheInvalidator) *AccountHandler {
	return &AccountHandler{accounts: accountService, validator: validator, cache: cache}
}

// CreateAccountRequest is the payload for registering an account.
type CreateAccountRequest struct {
	DisplayName     string `json:"display_name"`
	AccessType      string `json:"access_type"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	Region          string `json:"region,omitempty"`
	RoleARN         string `json:"role_arn,omitempty"`
}

func (r CreateAccountRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if r.DisplayName == "" {
		errs["display_name"] = "Display name is required"
	}
	switch models.AccessType(r.AccessType) {
	case models.AccessTypeKeypair:
		if r.AccessKeyID == "" || r.SecretAccessKey == "" {
			errs["credentials"] = "Access key id and secret are required"
		}
	case models.AccessTypeRole:
		if r.RoleARN == "" {
			errs["role_arn"] = "Role ARN is required"
		}
	default:
		errs["access_type"] = "Must be accesskey or iam"
	}
	return errs
}

// AccountResponse is an account in API responses. Credential material never
// appears here.
type AccountResponse struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"display_name"`
	Provider    string          `json:"provider"`
	AccessType  string          `json:"access_type"`
	RoleARN     string          `json:"role_arn,omitempty"`
	Status      string          `json:"status"`
	AccountInfo json.RawMessage `json:"account_info,omitempty"`
	LastSync    string          `json:"last_sync,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

func accountToResponse(account *models.Account) AccountResponse {
	response := AccountResponse{
		ID:          account.ID.String(),
		DisplayName: account.DisplayName,
		Provider:    string(account.Provider),
		AccessType:  string(account.AccessType),
		RoleARN:     account.RoleARN,
		Status:      string(account.Status),
		CreatedAt:   account.CreatedAt.Format(time.RFC3339),
	}
	if account.AccountInfo != "" {
		response.AccountInfo = json.RawMessage(account.AccountInfo)
	}
	if account.LastSync != nil {
		response.LastSync = account.LastSync.Format(time.RFC3339)
	}
	return response
}

// Create handles POST /api/v1/accounts. Credentials must pass live
// validation before anything is persisted.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	input := accounts.CreateInput{
		DisplayName: req.DisplayName,
		AccessType:  models.AccessType(req.AccessType),
	}

	switch models.AccessType(req.AccessType) {
	case models.AccessTypeKeypair:
		validation, err := h.validator.ValidateKeypair(r.Context(), req.AccessKeyID, req.SecretAccessKey, req.Region)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, dto.ErrorResponse{Error: "Credential validation failed: " + err.Error()})
			return
		}
		if !validation.Valid {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Invalid credentials",
				Details: map[string]string{"reason": validation.Reason},
			})
			return
		}
		input.AccessKeyID = req.AccessKeyID
		input.SecretAccessKey = req.SecretAccessKey
		input.Region = req.Region
		input.AccountInfo = accounts.MarshalAccountInfo(validation.AccountID, validation.ARN, validation.CostAccess, req.Region)

	case models.AccessTypeRole:
		validation := accounts.ValidateRoleARN(req.RoleARN)
		if !validation.Valid {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Invalid role ARN",
				Details: map[string]string{"reason": validation.Reason},
			})
			return
		}
		input.RoleARN = req.RoleARN
		input.AccountInfo = accounts.MarshalAccountInfo(validation.AccountID, "", false, req.Region)
	}

	account, err := h.accounts.Create(r.Context(), input)
	if err != nil {
		var validationErr *accounts.ValidationError
		if errors.As(err, &validationErr) {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: validationErr.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create account"})
		return
	}

	writeJSON(w, http.StatusCreated, accountToResponse(account))
}

// List handles GET /api/v1/accounts
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accountList, err := h.accounts.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list accounts"})
		return
	}

	responses := make([]AccountResponse, len(accountList))
	for i := range accountList {
		responses[i] = accountToResponse(&accountList[i])
	}

	writeJSON(w, http.StatusOK, dto.ListResponse{Data: responses, Total: len(responses)})
}

// Get handles GET /api/v1/accounts/{id}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid account ID"})
		return
	}

	account, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Account not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get account"})
		return
	}

	writeJSON(w, http.StatusOK, accountToResponse(account))
}

// Delete handles DELETE /api/v1/accounts/{id}. The delete is hard, and any
// cached inventory for the account goes with it.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid account ID"})
		return
	}

	deleted, err := h.accounts.Delete(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete account"})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Account not found"})
		return
	}

	if h.cache != nil {
		h.cache.InvalidateAccount(id)
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Account deleted"})
}
