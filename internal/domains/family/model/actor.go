package model

import (
	"time"

	"github.com/google/uuid"
)

// Roles trên bảng user_profiles
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleModerator  = "moderator"
	RoleUser       = "user"
)

// Actor - user đang thao tác, liên kết (có thể) tới một node trong cây
type Actor struct {
	UserID   uuid.UUID  `json:"user_id"`
	PersonID *uuid.UUID `json:"person_id,omitempty"`
	Role     string     `json:"role"`
}

// IsAdmin: super_admin và admin có quyền admin trên toàn cây
func (a *Actor) IsAdmin() bool {
	return a.Role == RoleSuperAdmin || a.Role == RoleAdmin
}

// BranchModerator - user kiểm duyệt subtree có gốc BranchRootID
type BranchModerator struct {
	UserID       uuid.UUID `json:"user_id"`
	BranchRootID uuid.UUID `json:"branch_root_id"`
}

// Block - user bị chặn sửa cây
type Block struct {
	UserID    uuid.UUID `json:"user_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
