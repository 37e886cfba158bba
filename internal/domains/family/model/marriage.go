package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Marriage status values
const (
	MarriageMarried  = "married"
	MarriageDivorced = "divorced"
	MarriageWidowed  = "widowed"
)

// Marriage liên kết hai Person (map bảng marriages)
// FamilyOrigin là marker munasib: tên gia đình bên ngoài của người phối ngẫu
type Marriage struct {
	ID           uuid.UUID  `json:"id"`
	HusbandID    uuid.UUID  `json:"husband_id"`
	WifeID       uuid.UUID  `json:"wife_id"`
	Status       string     `json:"status"`
	FamilyOrigin *string    `json:"family_origin,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// CreateMarriageRequest - POST /marriages
type CreateMarriageRequest struct {
	HusbandID    uuid.UUID `json:"husband_id" binding:"required"`
	WifeID       uuid.UUID `json:"wife_id" binding:"required"`
	Status       string    `json:"status"`
	FamilyOrigin *string   `json:"family_origin,omitempty"`
}

// MarriageIssue là một bản ghi marriage vi phạm invariant munasib
type MarriageIssue struct {
	MarriageID uuid.UUID `json:"marriage_id"`
	SpouseID   uuid.UUID `json:"spouse_id"`
	Reason     string    `json:"reason"`
}

// CheckMunasibConsistency enforces the external-family invariant for one
// spouse: a spouse without an hid must carry the same non-empty family
// origin on both the profile and the marriage row.
func CheckMunasibConsistency(m Marriage, spouse Person) error {
	if !spouse.IsMunasib() {
		return nil
	}
	onMarriage := trimmed(m.FamilyOrigin)
	onProfile := trimmed(spouse.FamilyOrigin)

	switch {
	case onMarriage == "" && onProfile == "":
		return ErrMunasibMissingOrigin
	case onMarriage == "" || onProfile == "":
		return ErrMunasibOriginMismatch
	case onMarriage != onProfile:
		return ErrMunasibOriginMismatch
	}
	return nil
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
