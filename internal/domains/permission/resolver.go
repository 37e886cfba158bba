package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"familytree-backend/internal/domains/family/model"
)

// MaxAncestryDepth chặn vòng lặp khi dữ liệu cha/mẹ bị hỏng
const MaxAncestryDepth = 128

var errAncestryCycle = errors.New("ancestry cycle or depth limit reached")

// Reader là snapshot read-only mà resolver dùng.
// Trong batch, Reader chính là transaction => một snapshot nhất quán cho cả request.
type Reader interface {
	GetActor(ctx context.Context, userID uuid.UUID) (*model.Actor, error)
	IsBlocked(ctx context.Context, userID uuid.UUID) (bool, error)
	GetPerson(ctx context.Context, id uuid.UUID) (*model.Person, error)
	ListModeratedBranches(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	ListSpouseIDs(ctx context.Context, personID uuid.UUID) ([]uuid.UUID, error)
}

// Resolver không có state; mọi thứ đọc qua Reader được truyền vào
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve trả về Level của actor trên target. Không bao giờ ghi dữ liệu.
// Quan hệ không xác định được => LevelNone; lỗi hạ tầng => (LevelNone, err).
func (r *Resolver) Resolve(ctx context.Context, reader Reader, actorID, targetID uuid.UUID) (Level, error) {
	// 1. Actor
	actor, err := reader.GetActor(ctx, actorID)
	if err != nil {
		if errors.Is(err, model.ErrActorNotFound) {
			return LevelNone, nil
		}
		return LevelNone, fmt.Errorf("load actor: %w", err)
	}

	// 2. Blocked thắng mọi thứ
	blocked, err := reader.IsBlocked(ctx, actorID)
	if err != nil {
		return LevelNone, fmt.Errorf("check block: %w", err)
	}
	if blocked {
		return LevelBlocked, nil
	}

	// 3. Target
	target, err := reader.GetPerson(ctx, targetID)
	if err != nil {
		if errors.Is(err, model.ErrPersonNotFound) {
			return LevelNone, nil
		}
		return LevelNone, fmt.Errorf("load target: %w", err)
	}

	targetLine, err := ancestors(ctx, reader, target)
	if err != nil {
		if errors.Is(err, errAncestryCycle) {
			log.Warn().Str("target_id", targetID.String()).Msg("ancestry walk aborted, resolving to none")
			return LevelNone, nil
		}
		return LevelNone, err
	}

	// 4. Inner circle
	var actorLine map[uuid.UUID]int
	if actor.PersonID != nil {
		actorPerson, err := reader.GetPerson(ctx, *actor.PersonID)
		switch {
		case err == nil:
			inner, err := isInnerCircle(ctx, reader, actorPerson, target, targetLine)
			if err != nil {
				return LevelNone, err
			}
			if inner {
				return LevelInner, nil
			}
			actorLine, err = ancestors(ctx, reader, actorPerson)
			if err != nil && !errors.Is(err, errAncestryCycle) {
				return LevelNone, err
			}
		case errors.Is(err, model.ErrPersonNotFound):
			// profile đã bị xóa => bỏ qua các check dựa trên quan hệ
		default:
			return LevelNone, fmt.Errorf("load actor person: %w", err)
		}
	}

	// 5. Admin
	if actor.IsAdmin() {
		return LevelAdmin, nil
	}

	// 6. Branch moderator: gốc nhánh là target hoặc tổ tiên của target
	branches, err := reader.ListModeratedBranches(ctx, actorID)
	if err != nil {
		return LevelNone, fmt.Errorf("list moderated branches: %w", err)
	}
	for _, root := range branches {
		if root == target.ID {
			return LevelModerator, nil
		}
		if _, ok := targetLine[root]; ok {
			return LevelModerator, nil
		}
	}

	// 7. Family: có tổ tiên chung
	for id := range actorLine {
		if id == target.ID {
			return LevelFamily, nil
		}
		if _, ok := targetLine[id]; ok {
			return LevelFamily, nil
		}
	}

	return LevelNone, nil
}

// isInnerCircle: self, cha/mẹ, con, anh chị em, vợ/chồng, hoặc target là hậu duệ của actor
func isInnerCircle(ctx context.Context, reader Reader, actorPerson, target *model.Person, targetLine map[uuid.UUID]int) (bool, error) {
	if actorPerson.ID == target.ID {
		return true, nil
	}
	if target.IsChildOf(actorPerson.ID) || actorPerson.IsChildOf(target.ID) {
		return true, nil
	}
	if actorPerson.FatherID != nil && target.FatherID != nil && *actorPerson.FatherID == *target.FatherID {
		return true, nil
	}
	if _, ok := targetLine[actorPerson.ID]; ok {
		return true, nil
	}

	spouses, err := reader.ListSpouseIDs(ctx, actorPerson.ID)
	if err != nil {
		return false, fmt.Errorf("list spouses: %w", err)
	}
	for _, id := range spouses {
		if id == target.ID {
			return true, nil
		}
	}
	return false, nil
}

// ancestors walks father and mother links breadth-first and returns every
// ancestor with its distance. The person itself is not included.
func ancestors(ctx context.Context, reader Reader, p *model.Person) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int)
	type step struct {
		id    uuid.UUID
		depth int
	}
	queue := make([]step, 0, 2)
	push := func(id *uuid.UUID, depth int) error {
		if id == nil {
			return nil
		}
		if *id == p.ID || depth > MaxAncestryDepth {
			return errAncestryCycle
		}
		if _, seen := out[*id]; seen {
			return nil
		}
		out[*id] = depth
		queue = append(queue, step{id: *id, depth: depth})
		return nil
	}

	if err := push(p.FatherID, 1); err != nil {
		return nil, err
	}
	if err := push(p.MotherID, 1); err != nil {
		return nil, err
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		person, err := reader.GetPerson(ctx, cur.id)
		if err != nil {
			if errors.Is(err, model.ErrPersonNotFound) {
				continue
			}
			return nil, fmt.Errorf("walk ancestors: %w", err)
		}
		if err := push(person.FatherID, cur.depth+1); err != nil {
			return nil, err
		}
		if err := push(person.MotherID, cur.depth+1); err != nil {
			return nil, err
		}
	}
	return out, nil
}
