package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/magicdevops/cloudleakage/internal/accounts"
	"github.com/magicdevops/cloudleakage/internal/awsx"
	"github.com/magicdevops/cloudleakage/internal/database/models"
	"github.com/magicdevops/cloudleakage/internal/inventory"
)

// InventorySyncer is the slice of the inventory service the worker uses.
type InventorySyncer interface {
	Sync(ctx context.Context, accountID uuid.UUID, kind inventory.Kind) (int, error)
}

type Handler struct {
	syncer   InventorySyncer
	accounts *accounts.Service
	logger   *slog.Logger
}

func NewHandler(syncer InventorySyncer, accountService *accounts.Service, logger *slog.Logger) *Handler {
	return &Handler{
		syncer:   syncer,
		accounts: accountService,
		logger:   logger,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeInventorySync, h.HandleInventorySync)
}

// HandleInventorySync refreshes one account/kind pair. Session faults are
// terminal for the task: a deleted or disconnected account is skipped, and a
// credential fault flips the account into error status instead of retrying
// with the same broken blob.
func (h *Handler) HandleInventorySync(ctx context.Context, t *asynq.Task) error {
	var payload InventorySyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	kind, err := inventory.ParseKind(payload.Kind)
	if err != nil {
		return fmt.Errorf("invalid sync payload: %w", err)
	}

	h.logger.Info("starting inventory sync",
		"account_id", payload.AccountID,
		"kind", kind,
	)

	count, err := h.syncer.Sync(ctx, payload.AccountID, kind)
	if err != nil {
		switch {
		case awsx.IsSessionError(err, awsx.SessionNotConnected):
			h.logger.Warn("skipping sync, account not connected", "account_id", payload.AccountID)
			return nil
		case awsx.IsSessionError(err, awsx.SessionCredentialCorrupt),
			awsx.IsSessionError(err, awsx.SessionMalformedCredential):
			h.logger.Error("credential fault during sync", "account_id", payload.AccountID, "error", err)
			if updateErr := h.accounts.UpdateStatus(ctx, payload.AccountID, models.StatusError); updateErr != nil {
				h.logger.Error("failed to flip account status", "account_id", payload.AccountID, "error", updateErr)
			}
			return nil
		default:
			return fmt.Errorf("inventory sync: %w", err)
		}
	}

	h.logger.Info("inventory sync complete",
		"account_id", payload.AccountID,
		"kind", kind,
		"records", count,
	)

	return nil
}
