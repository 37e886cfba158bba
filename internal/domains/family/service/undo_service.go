package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"familytree-backend/internal/domains/family/model"
	"familytree-backend/internal/domains/family/repository"
	"familytree-backend/internal/domains/permission"
	"familytree-backend/internal/shared"
	"familytree-backend/pkg/metrics"
)

// ListGroups - lịch sử batch của một parent, mới nhất trước
func (s *FamilyService) ListGroups(ctx context.Context, actorID, parentID uuid.UUID, limit int) ([]model.OperationGroup, error) {
	if err := s.requireViewer(ctx, s.store, actorID, parentID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.cfg.GroupListLimit {
		limit = s.cfg.GroupListLimit
	}
	groups, err := s.store.ListGroups(ctx, parentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list operation groups: %w", err)
	}
	return groups, nil
}

// GetGroup - group + toàn bộ audit entries theo seq
func (s *FamilyService) GetGroup(ctx context.Context, actorID, groupID uuid.UUID) (*model.OperationGroupDetail, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireViewer(ctx, s.store, actorID, group.ParentID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListGroupEntries(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group entries: %w", err)
	}

	detail := &model.OperationGroupDetail{OperationGroup: *group, Entries: entries}
	for _, e := range entries {
		if e.IsUndone() {
			detail.Undone = true
			break
		}
	}
	return detail, nil
}

// requireViewer: xem lịch sử cần ít nhất quyền family
func (s *FamilyService) requireViewer(ctx context.Context, reader permission.Reader, actorID, targetID uuid.UUID) error {
	level, err := s.resolver.Resolve(ctx, reader, actorID, targetID)
	if err != nil {
		return fmt.Errorf("resolve permission: %w", err)
	}
	if !level.AtLeast(permission.LevelFamily) {
		return fmt.Errorf("%w: level %s", model.ErrPermissionDenied, level)
	}
	return nil
}

// UndoGroup đảo ngược toàn bộ một batch trong một transaction.
// Mỗi target phải còn đúng version của post-image, nếu không undo sẽ đè lên sửa đổi sau đó.
// Version không bao giờ giảm: row được restore với version mới.
func (s *FamilyService) UndoGroup(ctx context.Context, actorID, groupID uuid.UUID) (result *model.UndoResult, err error) {
	defer func() {
		metrics.UndosTotal.WithLabelValues(outcome(err)).Inc()
	}()

	var event groupEvent
	err = s.store.RunInTx(ctx, func(tx repository.Tx) error {
		// 1. Group + entries
		group, err := tx.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		entries, err := tx.ListGroupEntries(ctx, groupID)
		if err != nil {
			return fmt.Errorf("list group entries: %w", err)
		}
		for _, e := range entries {
			if e.IsUndone() {
				return model.ErrAlreadyUndone
			}
		}

		// 2. Permission trên parent của group
		if err := s.authorizeUndo(ctx, tx, actorID, group); err != nil {
			return err
		}

		// 3. Lock parent + mọi target (kể cả row đã soft delete)
		targets := make([]uuid.UUID, 0, len(entries))
		for _, e := range entries {
			targets = append(targets, e.TargetID)
		}
		if err := tx.LockAggregate(ctx, group.ParentID, targets); err != nil {
			return err
		}
		parent, err := tx.GetPerson(ctx, group.ParentID)
		if err != nil {
			return err
		}

		// 4. Kiểm tra hết version trước khi ghi
		current := make(map[uuid.UUID]*model.Person, len(entries))
		for _, e := range entries {
			p, err := tx.GetPersonIncludingDeleted(ctx, e.TargetID)
			if err != nil {
				return fmt.Errorf("load undo target %s: %w", e.TargetID, err)
			}
			if err := CheckVersion(p.Version, postImageVersion(e)); err != nil {
				return fmt.Errorf("undo target %s: %w", e.TargetID, err)
			}
			current[e.TargetID] = p
		}

		// 5. Áp ngược theo thứ tự seq giảm dần
		now := s.now()
		touched := make([]uuid.UUID, 0, len(entries))
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			cur := current[e.TargetID]

			var restored model.Person
			switch e.Action {
			case model.ActionCreate:
				restored = cur.Clone()
				deletedAt := now
				restored.DeletedAt = &deletedAt
			default:
				if e.OldData == nil {
					return fmt.Errorf("audit entry %s has no pre-image", e.ID)
				}
				restored = e.OldData.Clone()
				restored.CreatedAt = cur.CreatedAt
			}
			restored.UpdatedAt = now

			if err := tx.UpdatePerson(ctx, &restored, cur.Version); err != nil {
				return fmt.Errorf("restore %s: %w", e.TargetID, err)
			}
			touched = append(touched, e.TargetID)
		}

		// 6. recorded -> undone
		if _, err := tx.MarkGroupUndone(ctx, groupID, actorID); err != nil {
			return fmt.Errorf("mark group undone: %w", err)
		}

		// 7. Bump parent
		bumped := parent.Clone()
		bumped.UpdatedAt = now
		if err := tx.UpdatePerson(ctx, &bumped, parent.Version); err != nil {
			return fmt.Errorf("bump parent version: %w", err)
		}

		result = &model.UndoResult{
			GroupID:          groupID,
			Restored:         len(touched),
			NewParentVersion: bumped.Version,
		}
		event = groupEvent{payload: shared.GroupCommittedPayload{
			GroupID:    groupID,
			ParentID:   group.ParentID,
			ActorID:    actorID,
			Undo:       true,
			TouchedIDs: touched,
		}}
		return nil
	})
	if err != nil {
		log.Info().Err(err).
			Str("actor_id", actorID.String()).
			Str("client_ip", shared.ClientIPFromContext(ctx)).
			Str("group_id", groupID.String()).
			Msg("undo rejected")
		return nil, err
	}

	log.Info().
		Str("actor_id", actorID.String()).
		Str("client_ip", shared.ClientIPFromContext(ctx)).
		Str("group_id", groupID.String()).
		Int("restored", result.Restored).
		Msg("operation group undone")

	s.afterCommit(ctx, event)
	return result, nil
}

// authorizeUndo: cần quyền sửa trên parent; không phải admin thì chỉ undo group của chính mình
func (s *FamilyService) authorizeUndo(ctx context.Context, tx repository.Tx, actorID uuid.UUID, group *model.OperationGroup) error {
	level, err := s.resolver.Resolve(ctx, tx, actorID, group.ParentID)
	if err != nil {
		return fmt.Errorf("resolve permission: %w", err)
	}
	if !level.CanEdit() {
		return fmt.Errorf("%w: level %s", model.ErrPermissionDenied, level)
	}
	if group.ActorID == actorID {
		return nil
	}

	actor, err := tx.GetActor(ctx, actorID)
	if err != nil {
		return fmt.Errorf("load actor: %w", err)
	}
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: only admins may undo another user's changes", model.ErrPermissionDenied)
	}
	return nil
}
