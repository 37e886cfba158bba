package shared

import "github.com/google/uuid"

// Asynq task types
const (
	TypeFamilyGroupCommitted  = "family:group_committed"
	TypeMarriageIntegrityScan = "family:marriage_integrity_scan"
)

// Asynq queues
const (
	QueueFamily      = "family"
	QueueMaintenance = "maintenance"
)

// GroupCommittedPayload được enqueue sau khi batch hoặc undo commit thành công
type GroupCommittedPayload struct {
	GroupID    uuid.UUID   `json:"groupId"`
	ParentID   uuid.UUID   `json:"parentId"`
	ActorID    uuid.UUID   `json:"actorId"`
	Undo       bool        `json:"undo"`
	TouchedIDs []uuid.UUID `json:"touchedIds"`
}

// MarriageIntegrityScanPayload - scheduled job, không có tham số
type MarriageIntegrityScanPayload struct{}
