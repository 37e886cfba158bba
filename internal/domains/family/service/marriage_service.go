package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"familytree-backend/internal/domains/family/model"
	"familytree-backend/internal/domains/family/repository"
	"familytree-backend/pkg/metrics"
)

// CreateMarriage - tạo quan hệ hôn nhân, enforce invariant munasib ngay lúc ghi
func (s *FamilyService) CreateMarriage(ctx context.Context, actorID uuid.UUID, req model.CreateMarriageRequest) (*model.Marriage, error) {
	if req.HusbandID == uuid.Nil || req.WifeID == uuid.Nil {
		return nil, model.NewValidationError(-1, "husband_id", "husband_id and wife_id are required")
	}
	if req.HusbandID == req.WifeID {
		return nil, model.NewValidationError(-1, "wife_id", "must differ from husband_id")
	}
	status := req.Status
	if status == "" {
		status = model.MarriageMarried
	}
	switch status {
	case model.MarriageMarried, model.MarriageDivorced, model.MarriageWidowed:
	default:
		return nil, model.NewValidationError(-1, "status", "must be married, divorced or widowed")
	}

	var origin *string
	if req.FamilyOrigin != nil {
		if trimmed := strings.TrimSpace(*req.FamilyOrigin); trimmed != "" {
			origin = &trimmed
		}
	}

	m := &model.Marriage{
		ID:           uuid.New(),
		HusbandID:    req.HusbandID,
		WifeID:       req.WifeID,
		Status:       status,
		FamilyOrigin: origin,
		CreatedAt:    s.now(),
	}

	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		husband, err := loadSpouse(ctx, tx, req.HusbandID, "husband_id", model.GenderMale)
		if err != nil {
			return err
		}
		wife, err := loadSpouse(ctx, tx, req.WifeID, "wife_id", model.GenderFemale)
		if err != nil {
			return err
		}
		if husband.IsMunasib() && wife.IsMunasib() {
			return model.NewValidationError(-1, "husband_id", "at least one spouse must belong to the family tree")
		}

		// Cần quyền sửa trên spouse thuộc dòng họ
		member := husband
		if member.IsMunasib() {
			member = wife
		}
		level, err := s.resolver.Resolve(ctx, tx, actorID, member.ID)
		if err != nil {
			return fmt.Errorf("resolve permission: %w", err)
		}
		if !level.CanEdit() {
			return fmt.Errorf("%w: level %s", model.ErrPermissionDenied, level)
		}

		for _, spouse := range []*model.Person{husband, wife} {
			if err := model.CheckMunasibConsistency(*m, *spouse); err != nil {
				return model.NewValidationError(-1, "family_origin", err.Error())
			}
		}

		if err := tx.InsertMarriage(ctx, m); err != nil {
			return fmt.Errorf("insert marriage: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.InvalidateCache(ctx, m.HusbandID, m.WifeID); err != nil {
		log.Warn().Err(err).Str("marriage_id", m.ID.String()).Msg("cache invalidation failed")
	}
	log.Info().
		Str("actor_id", actorID.String()).
		Str("marriage_id", m.ID.String()).
		Msg("marriage created")
	return m, nil
}

func loadSpouse(ctx context.Context, tx repository.Tx, id uuid.UUID, field, gender string) (*model.Person, error) {
	p, err := tx.GetPerson(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrPersonNotFound) {
			return nil, model.NewValidationError(-1, field, "person not found")
		}
		return nil, fmt.Errorf("load %s: %w", field, err)
	}
	if p.Gender != gender {
		return nil, model.NewValidationError(-1, field, "must reference a "+gender+" person")
	}
	return p, nil
}

// ScanInconsistentMarriages liệt kê marriage vi phạm invariant munasib.
// Dữ liệu cũ có thể thiếu family_origin ở cả hai phía: đó là corruption, flag lại.
func (s *FamilyService) ScanInconsistentMarriages(ctx context.Context) ([]model.MarriageIssue, error) {
	marriages, err := s.store.ListMarriages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list marriages: %w", err)
	}

	issues := make([]model.MarriageIssue, 0)
	for _, m := range marriages {
		for _, spouseID := range []uuid.UUID{m.HusbandID, m.WifeID} {
			spouse, err := s.store.GetPersonIncludingDeleted(ctx, spouseID)
			if err != nil {
				if errors.Is(err, model.ErrPersonNotFound) {
					issues = append(issues, model.MarriageIssue{MarriageID: m.ID, SpouseID: spouseID, Reason: err.Error()})
					continue
				}
				return nil, fmt.Errorf("load spouse %s: %w", spouseID, err)
			}
			if err := model.CheckMunasibConsistency(m, *spouse); err != nil {
				issues = append(issues, model.MarriageIssue{MarriageID: m.ID, SpouseID: spouseID, Reason: err.Error()})
			}
		}
	}

	metrics.InconsistentMarriages.Set(float64(len(issues)))
	return issues, nil
}
