package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"familytree-backend/internal/shared"
)

// CacheInvalidator - phần service mà job cần
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context, ids ...uuid.UUID) error
}

// GroupCommittedHandler chạy sau mỗi batch/undo đã commit:
// xóa cache đọc ở mọi instance và ghi một dòng audit log có cấu trúc.
type GroupCommittedHandler struct {
	invalidator CacheInvalidator
}

func NewGroupCommittedHandler(invalidator CacheInvalidator) *GroupCommittedHandler {
	return &GroupCommittedHandler{invalidator: invalidator}
}

func (h *GroupCommittedHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload shared.GroupCommittedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// payload hỏng thì retry cũng vô ích
		return fmt.Errorf("unmarshal group committed payload: %v: %w", err, asynq.SkipRetry)
	}

	ids := append([]uuid.UUID{payload.ParentID}, payload.TouchedIDs...)
	if err := h.invalidator.InvalidateCache(ctx, ids...); err != nil {
		return err
	}

	log.Info().
		Str("group_id", payload.GroupID.String()).
		Str("parent_id", payload.ParentID.String()).
		Str("actor_id", payload.ActorID.String()).
		Bool("undo", payload.Undo).
		Int("touched", len(payload.TouchedIDs)).
		Msg("family change committed")
	return nil
}
