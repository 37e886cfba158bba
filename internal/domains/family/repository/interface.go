package repository

import (
	"context"

	"github.com/google/uuid"

	"familytree-backend/internal/domains/family/model"
	"familytree-backend/internal/domains/permission"
)

// Reader - các query read-only, dùng chung cho pool và transaction
type Reader interface {
	permission.Reader

	// GetPersonIncludingDeleted trả về cả profile đã soft delete (undo cần pre-image row)
	GetPersonIncludingDeleted(ctx context.Context, id uuid.UUID) (*model.Person, error)
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]model.Person, error)
	CountChildren(ctx context.Context, parentID uuid.UUID, includeDeleted bool) (int, error)
	// MaxHIDSuffix: số lớn nhất n trong các hid dạng prefix + n, kể cả row đã xóa.
	// Không có hid nào khớp => 0.
	MaxHIDSuffix(ctx context.Context, prefix string) (int, error)

	GetGroup(ctx context.Context, id uuid.UUID) (*model.OperationGroup, error)
	ListGroups(ctx context.Context, parentID uuid.UUID, limit int) ([]model.OperationGroup, error)
	ListGroupEntries(ctx context.Context, groupID uuid.UUID) ([]model.AuditEntry, error)

	GetMarriage(ctx context.Context, id uuid.UUID) (*model.Marriage, error)
	ListMarriages(ctx context.Context) ([]model.Marriage, error)
}

// Tx - unit of work của một batch. Lock chỉ được nhả khi transaction kết thúc
// (commit hoặc rollback), không có Unlock.
type Tx interface {
	Reader

	// LockAggregate khóa parent + toàn bộ con còn sống + extraIDs, không chờ.
	// Row đang bị transaction khác giữ => model.ErrResourceBusy ngay lập tức.
	LockAggregate(ctx context.Context, parentID uuid.UUID, extraIDs []uuid.UUID) error

	InsertPerson(ctx context.Context, p *model.Person) error
	// UpdatePerson ghi toàn bộ row với điều kiện version = expectedVersion,
	// version mới = expectedVersion + 1. Soft delete / restore cũng đi qua đây.
	UpdatePerson(ctx context.Context, p *model.Person, expectedVersion int) error

	InsertGroup(ctx context.Context, g *model.OperationGroup) error
	InsertAuditEntry(ctx context.Context, e *model.AuditEntry) error
	// MarkGroupUndone flip recorded -> undone cho các entry chưa undone, trả về số entry đã flip
	MarkGroupUndone(ctx context.Context, groupID, actorID uuid.UUID) (int, error)

	InsertMarriage(ctx context.Context, m *model.Marriage) error
}

// Store - entry point của family persistence
type Store interface {
	Reader
	// RunInTx chạy fn trong một transaction serializable.
	// fn trả error => rollback toàn bộ; nil => commit.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}
