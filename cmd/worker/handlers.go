package main

import (
	"github.com/hibiken/asynq"

	familyJob "familytree-backend/internal/domains/family/job"
	"familytree-backend/internal/shared"
	"familytree-backend/pkg/container"
)

// HandlerRegistry holds all job handlers
type HandlerRegistry struct {
	groupCommitted *familyJob.GroupCommittedHandler
	integrityScan  *familyJob.MarriageIntegrityScanHandler
}

// initializeHandlers creates all job handlers with their dependencies
func initializeHandlers(c *container.Container) *HandlerRegistry {
	return &HandlerRegistry{
		groupCommitted: familyJob.NewGroupCommittedHandler(c.FamilyService),
		integrityScan:  familyJob.NewMarriageIntegrityScanHandler(c.FamilyService),
	}
}

// RegisterHandlers registers all handlers with the mux
func (h *HandlerRegistry) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(shared.TypeFamilyGroupCommitted, h.groupCommitted.ProcessTask)
	mux.HandleFunc(shared.TypeMarriageIntegrityScan, h.integrityScan.ProcessTask)
}
