package service

import (
	"context"

	"github.com/google/uuid"

	"familytree-backend/internal/domains/family/model"
	"familytree-backend/internal/domains/permission"
)

// ServiceInterface - business logic của family tree
type ServiceInterface interface {
	// Read side
	GetPerson(ctx context.Context, id uuid.UUID) (*model.Person, error)
	GetAggregate(ctx context.Context, parentID uuid.UUID) (*model.Aggregate, error)
	ResolvePermission(ctx context.Context, actorID, targetID uuid.UUID) (permission.Level, error)

	// Batch mutation
	ExecuteBatch(ctx context.Context, actorID uuid.UUID, req model.BatchRequest) (*model.BatchResult, error)

	// Audit / undo
	ListGroups(ctx context.Context, actorID, parentID uuid.UUID, limit int) ([]model.OperationGroup, error)
	GetGroup(ctx context.Context, actorID, groupID uuid.UUID) (*model.OperationGroupDetail, error)
	UndoGroup(ctx context.Context, actorID, groupID uuid.UUID) (*model.UndoResult, error)

	// Marriage
	CreateMarriage(ctx context.Context, actorID uuid.UUID, req model.CreateMarriageRequest) (*model.Marriage, error)
	ScanInconsistentMarriages(ctx context.Context) ([]model.MarriageIssue, error)

	// InvalidateCache xóa cache đọc của các person (job after-commit gọi)
	InvalidateCache(ctx context.Context, ids ...uuid.UUID) error
}
