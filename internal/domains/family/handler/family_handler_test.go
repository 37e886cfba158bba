package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familytree-backend/internal/domains/family/model"
	"familytree-backend/internal/domains/family/repository"
	"familytree-backend/internal/domains/family/service"
	"familytree-backend/internal/domains/permission"
	"familytree-backend/internal/shared/middleware"
	"familytree-backend/pkg/jwt"
)

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
	Error     *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

type apiFixture struct {
	router  *gin.Engine
	jwt     *jwt.Manager
	store   *repository.MemoryStore
	parent  uuid.UUID
	child   uuid.UUID
	editor  uuid.UUID
	visitor uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &apiFixture{
		jwt:     jwt.NewManager("test-secret", time.Hour),
		store:   repository.NewMemoryStore(),
		parent:  uuid.New(),
		child:   uuid.New(),
		editor:  uuid.New(),
		visitor: uuid.New(),
	}
	hid, childHID := "1", "1.1"
	f.store.PutPerson(model.Person{ID: f.parent, HID: &hid, Name: "Saleh", Gender: model.GenderMale, Status: model.StatusAlive, Generation: 1})
	f.store.PutPerson(model.Person{ID: f.child, HID: &childHID, Name: "Fahad", Gender: model.GenderMale, Status: model.StatusAlive, Generation: 2, FatherID: &f.parent})
	f.store.PutActor(model.Actor{UserID: f.editor, PersonID: &f.parent, Role: model.RoleUser})
	f.store.PutActor(model.Actor{UserID: f.visitor, Role: model.RoleUser})

	svc := service.NewService(f.store, permission.NewResolver(), nil, nil, service.DefaultConfig())

	r := gin.New()
	r.Use(middleware.RequestID())
	api := r.Group("/api/v1", middleware.AuthMiddleware(f.jwt))
	NewHandler(svc).RegisterRoutes(api, middleware.AdminMiddleware())
	f.router = r
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, user uuid.UUID, role string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != uuid.Nil {
		token, err := f.jwt.GenerateAccessToken(user.String(), role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (f *apiFixture) batchPath() string {
	return fmt.Sprintf("/api/v1/persons/%s/batch", f.parent)
}

func TestExecuteBatchEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	body := map[string]interface{}{
		"expected_parent_version": 1,
		"description":             "add a daughter",
		"operations": []map[string]interface{}{
			{"kind": "create", "fields": map[string]interface{}{"name": "Noura", "gender": "female", "birth_year": 1990}},
			{"kind": "update", "target_id": f.child.String(), "fields": map[string]interface{}{"bio": "engineer"}},
		},
	}
	w, env := f.do(t, http.MethodPost, f.batchPath(), f.editor, model.RoleUser, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)

	var res model.BatchResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 2, res.NewParentVersion)

	// client cầm version cũ
	w, env = f.do(t, http.MethodPost, f.batchPath(), f.editor, model.RoleUser, body)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VERSION_CONFLICT", env.Error.Code)
	assert.Equal(t, errSpecVersion.ar, env.Error.Message)

	w, env = f.do(t, http.MethodPost, f.batchPath(), f.editor, model.RoleUser, body, "Accept-Language", "en-US,en;q=0.9")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errSpecVersion.en, env.Error.Message)
}

func TestExecuteBatchEndpoint_Errors(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("missing token", func(t *testing.T) {
		w, env := f.do(t, http.MethodPost, f.batchPath(), uuid.Nil, "", map[string]interface{}{})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
	})

	t.Run("bad parent id", func(t *testing.T) {
		w, _ := f.do(t, http.MethodPost, "/api/v1/persons/not-a-uuid/batch", f.editor, model.RoleUser, map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("validation error carries the operation index", func(t *testing.T) {
		body := map[string]interface{}{
			"expected_parent_version": 1,
			"operations": []map[string]interface{}{
				{"kind": "create", "fields": map[string]interface{}{"name": "Noura", "gender": "female"}},
				{"kind": "create", "fields": map[string]interface{}{"gender": "female"}},
			},
		}
		w, env := f.do(t, http.MethodPost, f.batchPath(), f.editor, model.RoleUser, body)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

		var details model.ValidationError
		require.NoError(t, json.Unmarshal(env.Error.Details, &details))
		assert.Equal(t, 1, details.Index)
		assert.Equal(t, "name", details.Field)
	})

	t.Run("no permission", func(t *testing.T) {
		body := map[string]interface{}{
			"expected_parent_version": 1,
			"operations":              []map[string]interface{}{{"kind": "delete", "target_id": f.child.String()}},
		}
		w, env := f.do(t, http.MethodPost, f.batchPath(), f.visitor, model.RoleUser, body)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "PERMISSION_DENIED", env.Error.Code)
	})

	t.Run("too many operations", func(t *testing.T) {
		ops := make([]map[string]interface{}, 51)
		for i := range ops {
			ops[i] = map[string]interface{}{"kind": "create", "fields": map[string]interface{}{"name": "x", "gender": "male"}}
		}
		w, env := f.do(t, http.MethodPost, f.batchPath(), f.editor, model.RoleUser,
			map[string]interface{}{"expected_parent_version": 1, "operations": ops})
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, "BATCH_TOO_LARGE", env.Error.Code)
	})
}

func TestUndoEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	body := map[string]interface{}{
		"expected_parent_version": 1,
		"operations":              []map[string]interface{}{{"kind": "delete", "target_id": f.child.String()}},
	}
	w, env := f.do(t, http.MethodPost, f.batchPath(), f.editor, model.RoleUser, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res model.BatchResult
	require.NoError(t, json.Unmarshal(env.Data, &res))

	groupsPath := fmt.Sprintf("/api/v1/persons/%s/operation-groups?limit=10", f.parent)
	w, env = f.do(t, http.MethodGet, groupsPath, f.editor, model.RoleUser, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var groups []model.OperationGroup
	require.NoError(t, json.Unmarshal(env.Data, &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, res.GroupID, groups[0].ID)

	undoPath := fmt.Sprintf("/api/v1/operation-groups/%s/undo", res.GroupID)
	w, env = f.do(t, http.MethodPost, undoPath, f.editor, model.RoleUser, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var undo model.UndoResult
	require.NoError(t, json.Unmarshal(env.Data, &undo))
	assert.Equal(t, 1, undo.Restored)

	w, env = f.do(t, http.MethodPost, undoPath, f.editor, model.RoleUser, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_UNDONE", env.Error.Code)

	w, env = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/operation-groups/%s", uuid.New()), f.editor, model.RoleUser, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "GROUP_NOT_FOUND", env.Error.Code)

	child, err := f.store.GetPerson(context.Background(), f.child)
	require.NoError(t, err)
	assert.False(t, child.IsDeleted())
}

func TestReadEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	w, env := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/persons/%s/children", f.parent), f.visitor, model.RoleUser, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var agg model.Aggregate
	require.NoError(t, json.Unmarshal(env.Data, &agg))
	assert.Equal(t, f.parent, agg.Parent.ID)
	assert.Len(t, agg.Children, 1)

	w, env = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/persons/%s/permission", f.child), f.editor, model.RoleUser, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var perm struct {
		Level   permission.Level `json:"level"`
		CanEdit bool             `json:"can_edit"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &perm))
	assert.Equal(t, permission.LevelInner, perm.Level)
	assert.True(t, perm.CanEdit)

	w, env = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/persons/%s", uuid.New()), f.editor, model.RoleUser, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "PERSON_NOT_FOUND", env.Error.Code)
}

func TestMarriageEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	wife := uuid.New()
	origin := "Al-Dosari"
	f.store.PutPerson(model.Person{ID: wife, Name: "Hessa", Gender: model.GenderFemale, Status: model.StatusAlive, FamilyOrigin: &origin})

	w, _ := f.do(t, http.MethodPost, "/api/v1/marriages", f.editor, model.RoleUser, map[string]interface{}{
		"husband_id":    f.child.String(),
		"wife_id":       wife.String(),
		"family_origin": origin,
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env := f.do(t, http.MethodGet, "/api/v1/admin/marriages/inconsistent", f.editor, model.RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	w, env = f.do(t, http.MethodGet, "/api/v1/admin/marriages/inconsistent", f.editor, model.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var issues []model.MarriageIssue
	require.NoError(t, json.Unmarshal(env.Data, &issues))
	assert.Empty(t, issues)
}

func TestHandleError_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("lock: %w", model.ErrResourceBusy), http.StatusLocked, "RESOURCE_BUSY"},
		{model.ErrVersionConflict, http.StatusConflict, "VERSION_CONFLICT"},
		{model.ErrMarriageNotFound, http.StatusNotFound, "MARRIAGE_NOT_FOUND"},
		{model.NewValidationError(2, "gender", "bad"), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{fmt.Errorf("db: %w", context.DeadlineExceeded), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			handleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var env envelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}
