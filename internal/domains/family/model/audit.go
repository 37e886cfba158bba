package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction = loại mutation được ghi lại
type AuditAction string

const (
	ActionCreate AuditAction = "create"
	ActionUpdate AuditAction = "update"
	ActionDelete AuditAction = "delete"
)

// OperationGroup gom tất cả audit entries của một batch để undo một lần
// Immutable sau khi commit
type OperationGroup struct {
	ID             uuid.UUID `json:"id"`
	ParentID       uuid.UUID `json:"parent_id"`
	ActorID        uuid.UUID `json:"actor_id"`
	Description    string    `json:"description,omitempty"`
	OperationCount int       `json:"operation_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuditEntry - một dòng cho mỗi record bị mutate (map bảng audit_log)
// OldData là pre-image chụp TRƯỚC khi ghi; nil với create
// NewData là post-image; nil với delete
type AuditEntry struct {
	ID        uuid.UUID   `json:"id"`
	GroupID   uuid.UUID   `json:"group_id"`
	ActorID   uuid.UUID   `json:"actor_id"`
	TargetID  uuid.UUID   `json:"target_id"`
	Action    AuditAction `json:"action"`
	OldData   *Person     `json:"old_data,omitempty"`
	NewData   *Person     `json:"new_data,omitempty"`
	Seq       int         `json:"seq"`
	CreatedAt time.Time   `json:"created_at"`
	UndoneAt  *time.Time  `json:"undone_at,omitempty"`
	UndoneBy  *uuid.UUID  `json:"undone_by,omitempty"`
}

// IsUndone: recorded -> undone là transition duy nhất, chỉ xảy ra một lần
func (e AuditEntry) IsUndone() bool { return e.UndoneAt != nil }

// OperationGroupDetail - GET /operation-groups/:id
type OperationGroupDetail struct {
	OperationGroup
	Undone  bool         `json:"undone"`
	Entries []AuditEntry `json:"entries"`
}

// UndoResult - response của POST /operation-groups/:id/undo
type UndoResult struct {
	GroupID          uuid.UUID `json:"group_id"`
	Restored         int       `json:"restored"`
	NewParentVersion int       `json:"new_parent_version"`
}
