package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"familytree-backend/internal/shared"
)

// Publisher enqueue các task after-commit của family domain
type Publisher struct {
	client *asynq.Client
}

func NewPublisher(client *asynq.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishGroupCommitted - task id = group id (+ suffix undo) nên enqueue lặp lại không tạo task trùng
func (p *Publisher) PublishGroupCommitted(ctx context.Context, payload shared.GroupCommittedPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal group committed payload: %w", err)
	}

	taskID := "group:" + payload.GroupID.String()
	if payload.Undo {
		taskID += ":undo"
	}

	task := asynq.NewTask(shared.TypeFamilyGroupCommitted, data)
	_, err = p.client.EnqueueContext(ctx, task,
		asynq.Queue(shared.QueueFamily),
		asynq.TaskID(taskID),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", shared.TypeFamilyGroupCommitted, err)
	}
	return nil
}
