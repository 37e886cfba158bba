package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"familytree-backend/internal/domains/family/model"
	"familytree-backend/internal/domains/family/repository"
	"familytree-backend/internal/shared"
	"familytree-backend/pkg/metrics"
)

// plannedOp là một operation đã validate xong, sẵn sàng ghi
type plannedOp struct {
	kind   model.OperationKind
	before *model.Person // nil với create
	after  model.Person
}

// ExecuteBatch chạy toàn bộ operations trong MỘT transaction.
// Thứ tự: resolve quyền -> lock NOWAIT -> version guard -> validate hết -> ghi theo thứ tự -> bump parent.
// Bất kỳ lỗi nào => rollback, không có partial commit.
func (s *FamilyService) ExecuteBatch(ctx context.Context, actorID uuid.UUID, req model.BatchRequest) (result *model.BatchResult, err error) {
	start := time.Now()
	defer func() {
		o := outcome(err)
		metrics.BatchesTotal.WithLabelValues(o).Inc()
		metrics.BatchDuration.WithLabelValues(o).Observe(time.Since(start).Seconds())
	}()

	// 1. Bound check trước mọi DB work
	if len(req.Operations) == 0 {
		return nil, model.NewValidationError(-1, "operations", "at least one operation is required")
	}
	if len(req.Operations) > s.cfg.MaxBatchOperations {
		return nil, fmt.Errorf("%w: %d operations, max %d", model.ErrBatchTooLarge, len(req.Operations), s.cfg.MaxBatchOperations)
	}

	// 2. Validate shape (không cần DB)
	for i, op := range req.Operations {
		if err := validateOperationShape(i, op); err != nil {
			return nil, err
		}
	}

	var event groupEvent
	err = s.store.RunInTx(ctx, func(tx repository.Tx) error {
		parent, err := tx.GetPerson(ctx, req.ParentID)
		if err != nil {
			return err
		}

		// 3. Permission: resolve đúng một lần, trên snapshot của transaction
		level, err := s.resolver.Resolve(ctx, tx, actorID, req.ParentID)
		if err != nil {
			return fmt.Errorf("resolve permission: %w", err)
		}
		if !level.CanEdit() {
			return fmt.Errorf("%w: level %s", model.ErrPermissionDenied, level)
		}

		// 4. Lock parent + con còn sống, fail ngay nếu đang bị giữ
		if err := tx.LockAggregate(ctx, req.ParentID, nil); err != nil {
			return err
		}

		// Đọc lại sau lock: row có thể đã đổi giữa lúc đọc và lúc lock
		parent, err = tx.GetPerson(ctx, req.ParentID)
		if err != nil {
			return err
		}

		// 5. Version guard cho parent
		if err := CheckVersion(parent.Version, req.ExpectedParentVersion); err != nil {
			return err
		}

		// 6. Validate toàn bộ operations trước khi ghi
		plan, err := s.planBatch(ctx, tx, parent, req.Operations)
		if err != nil {
			return err
		}

		// 7. Ghi
		res, touched, err := s.applyPlan(ctx, tx, actorID, parent, req.Description, plan)
		if err != nil {
			return err
		}

		result = res
		event = groupEvent{payload: shared.GroupCommittedPayload{
			GroupID:    res.GroupID,
			ParentID:   parent.ID,
			ActorID:    actorID,
			TouchedIDs: touched,
		}}
		return nil
	})
	if err != nil {
		log.Info().Err(err).
			Str("actor_id", actorID.String()).
			Str("client_ip", shared.ClientIPFromContext(ctx)).
			Str("parent_id", req.ParentID.String()).
			Int("operations", len(req.Operations)).
			Msg("batch rejected")
		return nil, err
	}

	metrics.BatchOperations.WithLabelValues(string(model.OpCreate)).Add(float64(result.Created))
	metrics.BatchOperations.WithLabelValues(string(model.OpUpdate)).Add(float64(result.Updated))
	metrics.BatchOperations.WithLabelValues(string(model.OpDelete)).Add(float64(result.Deleted))

	log.Info().
		Str("actor_id", actorID.String()).
		Str("client_ip", shared.ClientIPFromContext(ctx)).
		Str("parent_id", req.ParentID.String()).
		Str("group_id", result.GroupID.String()).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("deleted", result.Deleted).
		Msg("batch committed")

	s.afterCommit(ctx, event)
	return result, nil
}

// validateOperationShape - check không cần đọc DB
func validateOperationShape(index int, op model.Operation) error {
	switch op.Kind {
	case model.OpCreate:
		if op.TargetID != nil {
			return model.NewValidationError(index, "target_id", "must be empty for create")
		}
	case model.OpUpdate:
		if op.TargetID == nil {
			return model.NewValidationError(index, "target_id", "is required")
		}
		if op.Fields.IsEmpty() {
			return model.NewValidationError(index, "fields", "update has no fields")
		}
	case model.OpDelete:
		if op.TargetID == nil {
			return model.NewValidationError(index, "target_id", "is required")
		}
		return nil
	default:
		return model.NewValidationError(index, "kind", "must be create, update or delete")
	}
	return model.ToValidationError(index, op.Fields.Validate(op.Kind))
}

// planBatch validate mọi operation với dữ liệu đã lock, chưa ghi gì
func (s *FamilyService) planBatch(ctx context.Context, tx repository.Tx, parent *model.Person, ops []model.Operation) ([]plannedOp, error) {
	children, err := tx.ListChildren(ctx, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	live := make(map[uuid.UUID]model.Person, len(children))
	nextOrder := 0
	for _, c := range children {
		live[c.ID] = c
		if c.SiblingOrder >= nextOrder {
			nextOrder = c.SiblingOrder + 1
		}
	}

	// hid tiếp nối suffix lớn nhất đã cấp (kể cả row đã xóa hoặc đã đổi mẹ):
	// không tái sử dụng hid
	hidSeq := 0
	if parent.HID != nil && *parent.HID != "" {
		hidSeq, err = tx.MaxHIDSuffix(ctx, *parent.HID+".")
		if err != nil {
			return nil, fmt.Errorf("max hid suffix: %w", err)
		}
	}

	now := s.now()
	seen := make(map[uuid.UUID]int, len(ops))
	plan := make([]plannedOp, 0, len(ops))

	for i, op := range ops {
		if op.Kind != model.OpCreate {
			target := *op.TargetID
			if prev, dup := seen[target]; dup {
				return nil, model.NewValidationError(i, "target_id", fmt.Sprintf("duplicate target, already used by operation %d", prev))
			}
			seen[target] = i
		}

		if err := s.validateMother(ctx, tx, i, parent, op.Fields); err != nil {
			return nil, err
		}

		switch op.Kind {
		case model.OpCreate:
			hidSeq++
			child := newChild(parent, op.Fields, nextOrder, hidSeq, now)
			if !op.Fields.SiblingOrder.IsSet() {
				nextOrder++
			}
			if err := model.ValidatePerson(&child); err != nil {
				return nil, model.ToValidationError(i, err)
			}
			plan = append(plan, plannedOp{kind: model.OpCreate, after: child})

		case model.OpUpdate:
			before, err := liveTarget(live, i, op)
			if err != nil {
				return nil, err
			}
			after := before.Clone()
			applyFields(&after, op.Fields)
			after.UpdatedAt = now
			after.Version = before.Version + 1
			if err := model.ValidatePerson(&after); err != nil {
				return nil, model.ToValidationError(i, err)
			}
			plan = append(plan, plannedOp{kind: model.OpUpdate, before: before, after: after})

		case model.OpDelete:
			before, err := liveTarget(live, i, op)
			if err != nil {
				return nil, err
			}
			n, err := tx.CountChildren(ctx, before.ID, false)
			if err != nil {
				return nil, fmt.Errorf("count children of %s: %w", before.ID, err)
			}
			if n > 0 {
				return nil, model.NewValidationError(i, "target_id", fmt.Sprintf("person still has %d living children", n))
			}
			after := before.Clone()
			deletedAt := now
			after.DeletedAt = &deletedAt
			after.UpdatedAt = now
			after.Version = before.Version + 1
			plan = append(plan, plannedOp{kind: model.OpDelete, before: before, after: after})
		}
	}
	return plan, nil
}

// liveTarget: target phải là con còn sống của parent, và version (nếu gửi) phải khớp
func liveTarget(live map[uuid.UUID]model.Person, index int, op model.Operation) (*model.Person, error) {
	target, ok := live[*op.TargetID]
	if !ok {
		return nil, model.NewValidationError(index, "target_id", "is not a living child of the parent")
	}
	if op.ExpectedVersion != nil {
		if err := CheckVersion(target.Version, *op.ExpectedVersion); err != nil {
			return nil, fmt.Errorf("operation %d: %w", index, err)
		}
	}
	return &target, nil
}

// validateMother: mother_id phải là person nữ còn sống.
// Con của mẹ (parent là nữ) không được đổi mẹ: sẽ rời khỏi aggregate đang lock.
func (s *FamilyService) validateMother(ctx context.Context, tx repository.Tx, index int, parent *model.Person, f model.PersonFields) error {
	if !f.MotherID.IsSet() {
		return nil
	}
	motherID, ok := f.MotherID.Value()
	if parent.Gender == model.GenderFemale {
		if !ok || motherID != parent.ID {
			return model.NewValidationError(index, "mother_id", "must be the parent")
		}
		return nil
	}
	if !ok {
		return nil
	}

	mother, err := tx.GetPerson(ctx, motherID)
	if err != nil {
		if errors.Is(err, model.ErrPersonNotFound) {
			return model.NewValidationError(index, "mother_id", "person not found")
		}
		return fmt.Errorf("load mother: %w", err)
	}
	if mother.Gender != model.GenderFemale {
		return model.NewValidationError(index, "mother_id", "must reference a female person")
	}
	return nil
}

// newChild build row mới: link cha/mẹ theo giới tính parent, generation + 1, hid = parent.hid.n
func newChild(parent *model.Person, f model.PersonFields, defaultOrder, hidSeq int, now time.Time) model.Person {
	name, _ := f.Name.Value()
	gender, _ := f.Gender.Value()
	child := model.Person{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(name),
		Gender:       gender,
		Generation:   parent.Generation + 1,
		SiblingOrder: defaultOrder,
		Status:       model.StatusAlive,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	parentID := parent.ID
	if parent.Gender == model.GenderFemale {
		child.MotherID = &parentID
	} else {
		child.FatherID = &parentID
	}
	if parent.HID != nil && *parent.HID != "" {
		hid := *parent.HID + "." + strconv.Itoa(hidSeq)
		child.HID = &hid
	}

	applyFields(&child, f)
	return child
}

// applyFields chỉ ghi các field client gửi lên; null xóa giá trị
func applyFields(p *model.Person, f model.PersonFields) {
	if v, ok := f.Name.Value(); ok {
		p.Name = strings.TrimSpace(v)
	}
	if v, ok := f.Gender.Value(); ok {
		p.Gender = v
	}
	if v, ok := f.Status.Value(); ok {
		p.Status = v
	}
	if v, ok := f.SiblingOrder.Value(); ok {
		p.SiblingOrder = v
	}
	f.BirthYear.Apply(&p.BirthYear)
	f.DeathYear.Apply(&p.DeathYear)
	f.Bio.Apply(&p.Bio)
	f.FamilyOrigin.Apply(&p.FamilyOrigin)
	f.MotherID.Apply(&p.MotherID)
}

// applyPlan ghi group, rồi từng operation theo đúng thứ tự: audit entry (pre-image) trước, row sau.
// Cuối cùng bump version của parent đúng một lần.
func (s *FamilyService) applyPlan(
	ctx context.Context,
	tx repository.Tx,
	actorID uuid.UUID,
	parent *model.Person,
	description string,
	plan []plannedOp,
) (*model.BatchResult, []uuid.UUID, error) {
	now := s.now()
	group := &model.OperationGroup{
		ID:             uuid.New(),
		ParentID:       parent.ID,
		ActorID:        actorID,
		Description:    strings.TrimSpace(description),
		OperationCount: len(plan),
		CreatedAt:      now,
	}
	if err := tx.InsertGroup(ctx, group); err != nil {
		return nil, nil, fmt.Errorf("insert operation group: %w", err)
	}

	result := &model.BatchResult{GroupID: group.ID, CreatedIDs: make([]uuid.UUID, 0)}
	touched := make([]uuid.UUID, 0, len(plan))

	for i, step := range plan {
		after := step.after
		entry := &model.AuditEntry{
			ID:        uuid.New(),
			GroupID:   group.ID,
			ActorID:   actorID,
			TargetID:  after.ID,
			Seq:       i,
			CreatedAt: now,
		}
		if step.before != nil {
			pre := step.before.Clone()
			entry.OldData = &pre
		}
		if step.kind != model.OpDelete {
			post := after.Clone()
			entry.NewData = &post
		}

		switch step.kind {
		case model.OpCreate:
			entry.Action = model.ActionCreate
		case model.OpUpdate:
			entry.Action = model.ActionUpdate
		case model.OpDelete:
			entry.Action = model.ActionDelete
		}

		if err := tx.InsertAuditEntry(ctx, entry); err != nil {
			return nil, nil, fmt.Errorf("operation %d: insert audit entry: %w", i, err)
		}

		switch step.kind {
		case model.OpCreate:
			if err := tx.InsertPerson(ctx, &after); err != nil {
				return nil, nil, fmt.Errorf("operation %d: insert person: %w", i, err)
			}
			result.Created++
			result.CreatedIDs = append(result.CreatedIDs, after.ID)
		case model.OpUpdate, model.OpDelete:
			if err := tx.UpdatePerson(ctx, &after, step.before.Version); err != nil {
				return nil, nil, fmt.Errorf("operation %d: update person: %w", i, err)
			}
			if step.kind == model.OpUpdate {
				result.Updated++
			} else {
				result.Deleted++
			}
		}
		touched = append(touched, after.ID)
	}

	// Bump parent version: một lần cho cả batch
	bumped := parent.Clone()
	bumped.UpdatedAt = now
	if err := tx.UpdatePerson(ctx, &bumped, parent.Version); err != nil {
		return nil, nil, fmt.Errorf("bump parent version: %w", err)
	}
	result.NewParentVersion = bumped.Version

	return result, touched, nil
}
