package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeInventorySync = "inventory:sync"
)

// InventorySyncPayload identifies one account/kind pair to refresh.
type InventorySyncPayload struct {
	AccountID uuid.UUID `json:"account_id"`
	Kind      string    `json:"kind"`
}

func NewInventorySyncTask(payload InventorySyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeInventorySync, data), nil
}
