package model

import (
	"time"

	"github.com/google/uuid"
)

// Gender values (map CHECK constraint profiles_gender_check)
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// Lifecycle status (map CHECK constraint profiles_status_check)
const (
	StatusAlive    = "alive"
	StatusDeceased = "deceased"
)

// Person là một node trong cây gia phả (map bảng profiles)
// HID == nil nghĩa là người ngoài dòng họ (munasib - vợ/chồng từ gia đình khác)
type Person struct {
	ID           uuid.UUID  `json:"id"`
	HID          *string    `json:"hid,omitempty"`
	Name         string     `json:"name"`
	Gender       string     `json:"gender"`
	FatherID     *uuid.UUID `json:"father_id,omitempty"`
	MotherID     *uuid.UUID `json:"mother_id,omitempty"`
	Generation   int        `json:"generation"`
	SiblingOrder int        `json:"sibling_order"`
	Status       string     `json:"status"`
	BirthYear    *int       `json:"birth_year,omitempty"`
	DeathYear    *int       `json:"death_year,omitempty"`
	Bio          *string    `json:"bio,omitempty"`
	FamilyOrigin *string    `json:"family_origin,omitempty"`
	Version      int        `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the profile has been soft-deleted
func (p Person) IsDeleted() bool { return p.DeletedAt != nil }

// IsMunasib reports whether the person sits outside the tracked lineage
func (p Person) IsMunasib() bool { return p.HID == nil || *p.HID == "" }

// IsChildOf reports whether parentID is this person's father or mother
func (p Person) IsChildOf(parentID uuid.UUID) bool {
	return (p.FatherID != nil && *p.FatherID == parentID) ||
		(p.MotherID != nil && *p.MotherID == parentID)
}

// Clone trả về deep copy (pre-image cho audit không được share pointer)
func (p Person) Clone() Person {
	out := p
	out.HID = clonePtr(p.HID)
	out.FatherID = clonePtr(p.FatherID)
	out.MotherID = clonePtr(p.MotherID)
	out.BirthYear = clonePtr(p.BirthYear)
	out.DeathYear = clonePtr(p.DeathYear)
	out.Bio = clonePtr(p.Bio)
	out.FamilyOrigin = clonePtr(p.FamilyOrigin)
	out.DeletedAt = clonePtr(p.DeletedAt)
	return out
}

// SameContent compares the user-visible data of two profiles.
// Version and timestamps are bookkeeping and are ignored.
func (p Person) SameContent(o Person) bool {
	return p.ID == o.ID &&
		eqPtr(p.HID, o.HID) &&
		p.Name == o.Name &&
		p.Gender == o.Gender &&
		eqPtr(p.FatherID, o.FatherID) &&
		eqPtr(p.MotherID, o.MotherID) &&
		p.Generation == o.Generation &&
		p.SiblingOrder == o.SiblingOrder &&
		p.Status == o.Status &&
		eqPtr(p.BirthYear, o.BirthYear) &&
		eqPtr(p.DeathYear, o.DeathYear) &&
		eqPtr(p.Bio, o.Bio) &&
		eqPtr(p.FamilyOrigin, o.FamilyOrigin) &&
		(p.DeletedAt == nil) == (o.DeletedAt == nil)
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Aggregate = parent + các con còn sống (chưa soft delete), đơn vị lock của batch
type Aggregate struct {
	Parent   Person   `json:"parent"`
	Children []Person `json:"children"`
}
