package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/magicdevops/cloudleakage/internal/analyzer"
	"github.com/magicdevops/cloudleakage/internal/api/dto"
	"github.com/magicdevops/cloudleakage/internal/inventory"
	"github.com/magicdevops/cloudleakage/internal/tasks"
)

// InventoryAPI is the slice of the inventory service the HTTP layer uses.
type InventoryAPI interface {
	ListResources(ctx context.Context, accountID uuid.UUID, kind inventory.Kind, region string) ([]inventory.Resource, error)
	Sync(ctx context.Context, accountID uuid.UUID, kind inventory.Kind) (int, error)
	Recommendations(ctx context.Context, accountID uuid.UUID) ([]analyzer.Recommendation, error)
	Utilization(ctx context.Context, accountID uuid.UUID, instanceID, region string) (inventory.Utilization, error)
	AlarmAnalysis(ctx context.Context, accountID uuid.UUID, region string) (analyzer.AlarmReport, error)
	SnapshotAnalysis(ctx context.Context, accountID uuid.UUID, region string) (analyzer.SnapshotAnalysis, error)
	ImageAnalysis(ctx context.Context, accountID uuid.UUID, region string) (inventory.ImageReport, error)
}

type InventoryHandler struct {
	inventory   InventoryAPI
	asynqClient *asynq.Client
}

// NewInventoryHandler builds the resource endpoints. asynqClient may be nil,
// in which case sync requests run inline instead of being enqueued.
func NewInventoryHandler(inventoryService InventoryAPI, asynqClient *asynq.Client) *InventoryHandler {
	return &InventoryHandler{inventory: inventoryService, asynqClient: asynqClient}
}

func accountIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid account ID"})
		return uuid.Nil, false
	}
	return id, true
}

func kindParam(w http.ResponseWriter, r *http.Request) (inventory.Kind, bool) {
	raw := r.URL.Query().Get("kind")
	if raw == "" {
		return inventory.KindInstance, true
	}
	kind, err := inventory.ParseKind(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Unknown resource kind"})
		return "", false
	}
	return kind, true
}

// ListResources handles GET /api/v1/accounts/{id}/resources?kind=&region=
func (h *InventoryHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	records, err := h.inventory.ListResources(r.Context(), accountID, kind, r.URL.Query().Get("region"))
	if err != nil {
		if !writeSessionError(w, err) {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list resources"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.ListResponse{Data: records, Total: len(records)})
}

// SyncRequest selects which resource kind to refresh.
type SyncRequest struct {
	Kind string `json:"kind"`
}

// SyncResponse reports an inline sync result or an enqueued task.
type SyncResponse struct {
	Status  string `json:"status"`
	Records int    `json:"records,omitempty"`
}

// Sync handles POST /api/v1/accounts/{id}/sync. With a queue available the
// refresh runs in the background; without one it runs inline.
func (h *InventoryHandler) Sync(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.Kind = ""
	}
	if req.Kind == "" {
		req.Kind = string(inventory.KindInstance)
	}
	kind, err := inventory.ParseKind(req.Kind)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Unknown resource kind"})
		return
	}

	if h.asynqClient != nil {
		task, err := tasks.NewInventorySyncTask(tasks.InventorySyncPayload{
			AccountID: accountID,
			Kind:      string(kind),
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create sync task"})
			return
		}
		if _, err := h.asynqClient.EnqueueContext(r.Context(), task); err != nil {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to enqueue sync task"})
			return
		}
		writeJSON(w, http.StatusAccepted, SyncResponse{Status: "queued"})
		return
	}

	count, err := h.inventory.Sync(r.Context(), accountID, kind)
	if err != nil {
		if !writeSessionError(w, err) {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Sync failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{Status: "completed", Records: count})
}

// Recommendations handles GET /api/v1/accounts/{id}/recommendations
func (h *InventoryHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	recommendations, err := h.inventory.Recommendations(r.Context(), accountID)
	if err != nil {
		if !writeSessionError(w, err) {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to compute recommendations"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.ListResponse{Data: recommendations, Total: len(recommendations)})
}

// Utilization handles GET /api/v1/accounts/{id}/instances/{instanceID}/utilization?region=
func (h *InventoryHandler) Utilization(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	instanceID := chi.URLParam(r, "instanceID")

	utilization, err := h.inventory.Utilization(r.Context(), accountID, instanceID, r.URL.Query().Get("region"))
	if err != nil {
		if !writeSessionError(w, err) {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to fetch utilization"})
		}
		return
	}

	writeJSON(w, http.StatusOK, utilization)
}

// AlarmAnalysis handles GET /api/v1/accounts/{id}/alarm-analysis?region=
func (h *InventoryHandler) AlarmAnalysis(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	report, err := h.inventory.AlarmAnalysis(r.Context(), accountID, r.URL.Query().Get("region"))
	if err != nil {
		if !writeSessionError(w, err) {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to analyze alarms"})
		}
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// SnapshotAnalysis handles GET /api/v1/accounts/{id}/snapshot-analysis?region=
func (h *InventoryHandler) SnapshotAnalysis(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	analysis, err := h.inventory.SnapshotAnalysis(r.Context(), accountID, r.URL.Query().Get("region"))
	if err != nil {
		if !writeSessionError(w, err) {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to analyze snapshots"})
		}
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// ImageAnalysis handles GET /api/v1/accounts/{id}/image-analysis?region=
func (h *InventoryHandler) ImageAnalysis(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	report, err := h.inventory.ImageAnalysis(r.Context(), accountID, r.URL.Query().Get("region"))
	if err != nil {
		if !writeSessionError(w, err) {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to analyze images"})
		}
		return
	}

	writeJSON(w, http.StatusOK, report)
}
