package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const TaskContextRefresh = "tenancy.context.refresh"

type ContextRefreshPayload struct {
	IdentityID string `json:"identityId"`
	Reason     string `json:"reason,omitempty"`
}

func NewContextRefreshTask(payload ContextRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskContextRefresh, data), nil
}

func ParseContextRefreshPayload(task *asynq.Task) (ContextRefreshPayload, uuid.UUID, error) {
	var payload ContextRefreshPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ContextRefreshPayload{}, uuid.Nil, err
	}
	identityID, err := uuid.Parse(payload.IdentityID)
	if err != nil {
		return ContextRefreshPayload{}, uuid.Nil, fmt.Errorf("identity id: %w", err)
	}
	return payload, identityID, nil
}
