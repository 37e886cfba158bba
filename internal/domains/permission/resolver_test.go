package permission_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familytree-backend/internal/domains/family/model"
	"familytree-backend/internal/domains/family/repository"
	"familytree-backend/internal/domains/permission"
)

// tree:
//
//	grandpa(1) ── father(1.1) + mother(munasib) ── me(1.1.1) + wife(munasib)
//	          │                                 └─ brother(1.1.2) ── nephew(1.1.2.1)
//	          └── uncle(1.2) ── cousin(1.2.1)
//	stranger(2)
type fixture struct {
	store *repository.MemoryStore

	grandpa, father, mother, me, wife, brother, nephew, uncle, cousin, stranger uuid.UUID

	meUser, adminUser, modUser, blockedUser uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: repository.NewMemoryStore()}
	ids := []*uuid.UUID{&f.grandpa, &f.father, &f.mother, &f.me, &f.wife, &f.brother, &f.nephew,
		&f.uncle, &f.cousin, &f.stranger, &f.meUser, &f.adminUser, &f.modUser, &f.blockedUser}
	for _, id := range ids {
		*id = uuid.New()
	}

	put := func(id uuid.UUID, hid string, gender string, father, mother *uuid.UUID) {
		p := model.Person{ID: id, Name: "p", Gender: gender, Status: model.StatusAlive, FatherID: father, MotherID: mother}
		if hid != "" {
			h := hid
			p.HID = &h
		}
		f.store.PutPerson(p)
	}
	put(f.grandpa, "1", model.GenderMale, nil, nil)
	put(f.father, "1.1", model.GenderMale, &f.grandpa, nil)
	put(f.mother, "", model.GenderFemale, nil, nil)
	put(f.me, "1.1.1", model.GenderMale, &f.father, &f.mother)
	put(f.wife, "", model.GenderFemale, nil, nil)
	put(f.brother, "1.1.2", model.GenderMale, &f.father, &f.mother)
	put(f.nephew, "1.1.2.1", model.GenderMale, &f.brother, nil)
	put(f.uncle, "1.2", model.GenderMale, &f.grandpa, nil)
	put(f.cousin, "1.2.1", model.GenderFemale, &f.uncle, nil)
	put(f.stranger, "2", model.GenderMale, nil, nil)

	f.store.PutMarriage(model.Marriage{ID: uuid.New(), HusbandID: f.me, WifeID: f.wife, Status: model.MarriageMarried})

	f.store.PutActor(model.Actor{UserID: f.meUser, PersonID: &f.me, Role: model.RoleUser})
	f.store.PutActor(model.Actor{UserID: f.adminUser, Role: model.RoleAdmin})
	f.store.PutActor(model.Actor{UserID: f.modUser, Role: model.RoleModerator})
	f.store.PutBranchModerator(model.BranchModerator{UserID: f.modUser, BranchRootID: f.uncle})
	f.store.PutActor(model.Actor{UserID: f.blockedUser, PersonID: &f.me, Role: model.RoleAdmin})
	f.store.PutBlock(model.Block{UserID: f.blockedUser, Reason: "spam"})
	return f
}

func TestResolver_Resolve(t *testing.T) {
	f := newFixture(t)
	r := permission.NewResolver()

	tests := []struct {
		name   string
		actor  uuid.UUID
		target uuid.UUID
		want   permission.Level
	}{
		{"self", f.meUser, f.me, permission.LevelInner},
		{"father", f.meUser, f.father, permission.LevelInner},
		{"mother", f.meUser, f.mother, permission.LevelInner},
		{"sibling", f.meUser, f.brother, permission.LevelInner},
		{"spouse", f.meUser, f.wife, permission.LevelInner},
		{"grandparent is a direct ancestor", f.meUser, f.grandpa, permission.LevelFamily},
		{"nephew shares an ancestor", f.meUser, f.nephew, permission.LevelFamily},
		{"uncle", f.meUser, f.uncle, permission.LevelFamily},
		{"cousin", f.meUser, f.cousin, permission.LevelFamily},
		{"unrelated", f.meUser, f.stranger, permission.LevelNone},
		{"admin anywhere", f.adminUser, f.stranger, permission.LevelAdmin},
		{"moderator on branch root", f.modUser, f.uncle, permission.LevelModerator},
		{"moderator inside branch", f.modUser, f.cousin, permission.LevelModerator},
		{"moderator outside branch", f.modUser, f.father, permission.LevelNone},
		{"blocked beats admin and self", f.blockedUser, f.me, permission.LevelBlocked},
		{"unknown actor", uuid.New(), f.me, permission.LevelNone},
		{"unknown target", f.meUser, uuid.New(), permission.LevelNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), f.store, tt.actor, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_GrandparentViaAncestorWalk(t *testing.T) {
	// grandpa nằm trong targetLine của me => me là hậu duệ => inner khi actor là grandpa
	f := newFixture(t)
	grandpaUser := uuid.New()
	f.store.PutActor(model.Actor{UserID: grandpaUser, PersonID: &f.grandpa, Role: model.RoleUser})

	got, err := permission.NewResolver().Resolve(context.Background(), f.store, grandpaUser, f.nephew)
	require.NoError(t, err)
	assert.Equal(t, permission.LevelInner, got)
}

func TestResolver_CycleResolvesToNone(t *testing.T) {
	store := repository.NewMemoryStore()
	a, b, user := uuid.New(), uuid.New(), uuid.New()
	store.PutPerson(model.Person{ID: a, Name: "a", Gender: model.GenderMale, FatherID: &b})
	store.PutPerson(model.Person{ID: b, Name: "b", Gender: model.GenderMale, FatherID: &a})
	store.PutActor(model.Actor{UserID: user, Role: model.RoleUser})

	got, err := permission.NewResolver().Resolve(context.Background(), store, user, a)
	require.NoError(t, err)
	assert.Equal(t, permission.LevelNone, got)
}

func TestLevel_Ordering(t *testing.T) {
	assert.True(t, permission.LevelInner.CanEdit())
	assert.True(t, permission.LevelAdmin.CanEdit())
	assert.True(t, permission.LevelModerator.CanEdit())
	assert.False(t, permission.LevelFamily.CanEdit())
	assert.False(t, permission.LevelBlocked.CanEdit())
	assert.False(t, permission.LevelNone.CanEdit())

	assert.True(t, permission.LevelAdmin.AtLeast(permission.LevelFamily))
	assert.False(t, permission.LevelBlocked.AtLeast(permission.LevelFamily))
	assert.False(t, permission.Level("root").AtLeast(permission.LevelNone))
	assert.False(t, permission.Level("root").Valid())
}
