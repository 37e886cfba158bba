package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"familytree-backend/internal/domains/family/model"
	"familytree-backend/internal/domains/family/repository"
	"familytree-backend/internal/domains/family/service"
	"familytree-backend/internal/domains/permission"
	"familytree-backend/internal/shared"
	"familytree-backend/pkg/optional"
)

// familyFixture:
//
//	grandpa(1) ── parent(1.1, v5) ── c1(1.1.1), c2(1.1.2), c3(1.1.3)
//	          └── sibling(1.2) ── nephew(1.2.1)
//
// editor -> parent (inner), viewer -> nephew (family),
// moderator quản lý nhánh grandpa, admin không gắn person, outsider không có quan hệ.
type familyFixture struct {
	store     *repository.MemoryStore
	svc       *service.FamilyService
	cache     *memCache
	publisher *recordingPublisher

	grandpa, parent, sibling, nephew uuid.UUID
	c1, c2, c3                       uuid.UUID

	editor, viewer, moderator, admin, outsider uuid.UUID
}

func newFamilyFixture(t *testing.T) *familyFixture {
	t.Helper()
	f := &familyFixture{
		store:     repository.NewMemoryStore(),
		cache:     newMemCache(),
		publisher: &recordingPublisher{},
	}
	for _, id := range []*uuid.UUID{&f.grandpa, &f.parent, &f.sibling, &f.nephew, &f.c1, &f.c2, &f.c3,
		&f.editor, &f.viewer, &f.moderator, &f.admin, &f.outsider} {
		*id = uuid.New()
	}

	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	put := func(id uuid.UUID, hid string, father *uuid.UUID, order, version int) {
		h := hid
		f.store.PutPerson(model.Person{
			ID: id, HID: &h, Name: "person " + hid, Gender: model.GenderMale, FatherID: father,
			Generation: len(hid)/2 + 1, SiblingOrder: order, Status: model.StatusAlive,
			Version: version, CreatedAt: created, UpdatedAt: created,
		})
	}
	put(f.grandpa, "1", nil, 0, 1)
	put(f.parent, "1.1", &f.grandpa, 0, 5)
	put(f.sibling, "1.2", &f.grandpa, 1, 1)
	put(f.nephew, "1.2.1", &f.sibling, 0, 1)
	put(f.c1, "1.1.1", &f.parent, 0, 1)
	put(f.c2, "1.1.2", &f.parent, 1, 1)
	put(f.c3, "1.1.3", &f.parent, 2, 1)

	f.store.PutActor(model.Actor{UserID: f.editor, PersonID: &f.parent, Role: model.RoleUser})
	f.store.PutActor(model.Actor{UserID: f.viewer, PersonID: &f.nephew, Role: model.RoleUser})
	f.store.PutActor(model.Actor{UserID: f.moderator, Role: model.RoleModerator})
	f.store.PutBranchModerator(model.BranchModerator{UserID: f.moderator, BranchRootID: f.grandpa})
	f.store.PutActor(model.Actor{UserID: f.admin, Role: model.RoleAdmin})
	f.store.PutActor(model.Actor{UserID: f.outsider, Role: model.RoleUser})

	f.svc = service.NewService(f.store, permission.NewResolver(), f.cache, f.publisher, service.DefaultConfig())
	return f
}

func (f *familyFixture) person(t *testing.T, id uuid.UUID) model.Person {
	t.Helper()
	p, err := f.store.GetPersonIncludingDeleted(context.Background(), id)
	require.NoError(t, err)
	return *p
}

func (f *familyFixture) batch(version int, ops ...model.Operation) model.BatchRequest {
	return model.BatchRequest{ParentID: f.parent, ExpectedParentVersion: version, Operations: ops}
}

func createOp(name, gender string) model.Operation {
	return model.Operation{
		Kind:   model.OpCreate,
		Fields: model.PersonFields{Name: optional.Of(name), Gender: optional.Of(gender)},
	}
}

func updateOp(target uuid.UUID, fields model.PersonFields) model.Operation {
	return model.Operation{Kind: model.OpUpdate, TargetID: &target, Fields: fields}
}

func deleteOp(target uuid.UUID) model.Operation {
	return model.Operation{Kind: model.OpDelete, TargetID: &target}
}

// ========================================
// FAKES
// ========================================

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.GroupCommittedPayload
}

func (p *recordingPublisher) PublishGroupCommitted(_ context.Context, payload shared.GroupCommittedPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload)
	return nil
}

func (p *recordingPublisher) all() []shared.GroupCommittedPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]shared.GroupCommittedPayload(nil), p.events...)
}

// memCache lưu JSON giống RedisCache để round-trip giống thật
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	return nil
}

func (c *memCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *memCache) DeletePattern(context.Context, string) error { return nil }

func (c *memCache) Ping(context.Context) error { return nil }

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}
