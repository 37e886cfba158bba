package job

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"familytree-backend/internal/domains/family/model"
)

// MarriageScanner - phần service mà scan job cần
type MarriageScanner interface {
	ScanInconsistentMarriages(ctx context.Context) ([]model.MarriageIssue, error)
}

// MarriageIntegrityScanHandler - scheduled job, flag marriage vi phạm invariant munasib
type MarriageIntegrityScanHandler struct {
	scanner MarriageScanner
}

func NewMarriageIntegrityScanHandler(scanner MarriageScanner) *MarriageIntegrityScanHandler {
	return &MarriageIntegrityScanHandler{scanner: scanner}
}

func (h *MarriageIntegrityScanHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	issues, err := h.scanner.ScanInconsistentMarriages(ctx)
	if err != nil {
		return err
	}

	for _, issue := range issues {
		log.Warn().
			Str("marriage_id", issue.MarriageID.String()).
			Str("spouse_id", issue.SpouseID.String()).
			Str("reason", issue.Reason).
			Msg("inconsistent marriage")
	}
	log.Info().Int("inconsistent", len(issues)).Msg("marriage integrity scan finished")
	return nil
}
