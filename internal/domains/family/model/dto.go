package model

import (
	"github.com/google/uuid"

	"familytree-backend/pkg/optional"
)

// OperationKind - create | update | delete
type OperationKind string

const (
	OpCreate OperationKind = "create"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// PersonFields là field map của một operation.
// Mỗi field là optional.Field: "không gửi" khác với "gửi null",
// nên update chỉ ghi đúng những field client gửi lên.
type PersonFields struct {
	Name         optional.Field[string]    `json:"name,omitzero"`
	Gender       optional.Field[string]    `json:"gender,omitzero"`
	Status       optional.Field[string]    `json:"status,omitzero"`
	SiblingOrder optional.Field[int]       `json:"sibling_order,omitzero"`
	BirthYear    optional.Field[int]       `json:"birth_year,omitzero"`
	DeathYear    optional.Field[int]       `json:"death_year,omitzero"`
	Bio          optional.Field[string]    `json:"bio,omitzero"`
	MotherID     optional.Field[uuid.UUID] `json:"mother_id,omitzero"`
	FamilyOrigin optional.Field[string]    `json:"family_origin,omitzero"`
}

// Operation - một bước trong batch
type Operation struct {
	Kind            OperationKind `json:"kind"`
	TargetID        *uuid.UUID    `json:"target_id,omitempty"`
	Fields          PersonFields  `json:"fields"`
	ExpectedVersion *int          `json:"expected_version,omitempty"`
}

// BatchRequest - POST /persons/:id/batch
// ParentID lấy từ path, không từ body
type BatchRequest struct {
	ParentID              uuid.UUID   `json:"-"`
	ExpectedParentVersion int         `json:"expected_parent_version"`
	Description           string      `json:"description,omitempty"`
	Operations            []Operation `json:"operations"`
}

// BatchResult - chỉ trả về khi toàn bộ batch commit thành công
type BatchResult struct {
	GroupID          uuid.UUID   `json:"group_id"`
	Created          int         `json:"created"`
	Updated          int         `json:"updated"`
	Deleted          int         `json:"deleted"`
	CreatedIDs       []uuid.UUID `json:"created_ids"`
	NewParentVersion int         `json:"new_parent_version"`
}
