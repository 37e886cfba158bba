package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"familytree-backend/internal/domains/family/model"
	"familytree-backend/internal/domains/family/service"
	"familytree-backend/internal/shared/middleware"
	"familytree-backend/internal/shared/response"
)

// Handler - HTTP layer mỏng, mọi logic nằm ở service
type Handler struct {
	service service.ServiceInterface
}

// NewHandler - Constructor with DI
func NewHandler(service service.ServiceInterface) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes gắn routes của family vào group đã qua AuthMiddleware
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, admin gin.HandlerFunc) {
	persons := rg.Group("/persons")
	{
		persons.GET("/:id", h.GetPerson)
		persons.GET("/:id/children", h.GetAggregate)
		persons.GET("/:id/permission", h.GetPermission)
		persons.POST("/:id/batch", h.ExecuteBatch)
		persons.GET("/:id/operation-groups", h.ListGroups)
	}

	groups := rg.Group("/operation-groups")
	{
		groups.GET("/:id", h.GetGroup)
		groups.POST("/:id/undo", h.UndoGroup)
	}

	rg.POST("/marriages", h.CreateMarriage)
	rg.GET("/admin/marriages/inconsistent", admin, h.ListInconsistentMarriages)
}

// GetPerson - GET /persons/:id
func (h *Handler) GetPerson(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	person, err := h.service.GetPerson(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, person)
}

// GetAggregate - GET /persons/:id/children
// Trả về parent + con còn sống, client dùng parent.version làm expected_parent_version
func (h *Handler) GetAggregate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	agg, err := h.service.GetAggregate(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, agg)
}

// GetPermission - GET /persons/:id/permission
func (h *Handler) GetPermission(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}
	level, err := h.service.ResolvePermission(c.Request.Context(), actorID, id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"level":    level,
		"can_edit": level.CanEdit(),
	})
}

// ExecuteBatch - POST /persons/:id/batch
func (h *Handler) ExecuteBatch(c *gin.Context) {
	parentID, ok := parseID(c)
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req model.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	req.ParentID = parentID

	result, err := h.service.ExecuteBatch(c.Request.Context(), actorID, req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// ListGroups - GET /persons/:id/operation-groups?limit=
func (h *Handler) ListGroups(c *gin.Context) {
	parentID, ok := parseID(c)
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	groups, err := h.service.ListGroups(c.Request.Context(), actorID, parentID, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, groups, &response.Meta{Limit: limit, Total: len(groups)})
}

// GetGroup - GET /operation-groups/:id
func (h *Handler) GetGroup(c *gin.Context) {
	groupID, ok := parseID(c)
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}
	detail, err := h.service.GetGroup(c.Request.Context(), actorID, groupID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// UndoGroup - POST /operation-groups/:id/undo
func (h *Handler) UndoGroup(c *gin.Context) {
	groupID, ok := parseID(c)
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}
	result, err := h.service.UndoGroup(c.Request.Context(), actorID, groupID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// CreateMarriage - POST /marriages
func (h *Handler) CreateMarriage(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req model.CreateMarriageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	m, err := h.service.CreateMarriage(c.Request.Context(), actorID, req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, m)
}

// ListInconsistentMarriages - GET /admin/marriages/inconsistent
func (h *Handler) ListInconsistentMarriages(c *gin.Context) {
	issues, err := h.service.ScanInconsistentMarriages(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, issues, &response.Meta{Total: len(issues)})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func actor(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "unauthenticated")
		return uuid.Nil, false
	}
	return id, true
}
