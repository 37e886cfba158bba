package service

import (
	"context"

	"familytree-backend/internal/shared"
)

// EventPublisher đẩy sự kiện sau commit ra queue.
// Lỗi publish không rollback được batch: service chỉ log warning.
type EventPublisher interface {
	PublishGroupCommitted(ctx context.Context, payload shared.GroupCommittedPayload) error
}

type noopPublisher struct{}

func (noopPublisher) PublishGroupCommitted(context.Context, shared.GroupCommittedPayload) error {
	return nil
}

// groupEvent gom payload được build trong transaction, publish sau commit
type groupEvent struct {
	payload shared.GroupCommittedPayload
}
