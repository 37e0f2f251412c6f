package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskTokenWarmup = "oauth.token.warmup"

const TaskTenantReload = "tenant.config.reload"

type TokenWarmupPayload struct {
	TenantID string `json:"tenantId"`
	Provider string `json:"provider"`
}

func NewTokenWarmupTask(payload TokenWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTokenWarmup, data), nil
}

func ParseTokenWarmupPayload(task *asynq.Task) (TokenWarmupPayload, error) {
	var payload TokenWarmupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TokenWarmupPayload{}, err
	}
	return payload, nil
}

func NewTenantReloadTask() *asynq.Task {
	return asynq.NewTask(TaskTenantReload, nil)
}
