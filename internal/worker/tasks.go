package worker

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"payments-service/internal/consumers"
)

// Task Types
const (
	TypeSubscriptionSync = "payments:subscription-sync"
	TypeResyncSweep      = "payments:resync-sweep"
)

// Task Creators

func NewSubscriptionSyncTask(payload consumers.SubscriptionSyncDTO) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSubscriptionSync, data), nil
}

func NewResyncSweepTask(payload consumers.ResyncSweepDTO) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeResyncSweep, data), nil
}
