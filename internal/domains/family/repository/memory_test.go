package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familytree-backend/internal/domains/family/model"
)

func seedFamily(t *testing.T) (*MemoryStore, uuid.UUID, uuid.UUID) {
	t.Helper()
	s := NewMemoryStore()
	parent, child := uuid.New(), uuid.New()
	s.PutPerson(model.Person{ID: parent, Name: "parent", Gender: model.GenderMale, Status: model.StatusAlive})
	s.PutPerson(model.Person{ID: child, Name: "child", Gender: model.GenderMale, Status: model.StatusAlive, FatherID: &parent})
	return s, parent, child
}

var errBoom = errors.New("boom")

func TestMemoryStore_RollbackDiscardsWritesAndReleasesLocks(t *testing.T) {
	s, parent, child := seedFamily(t)
	ctx := context.Background()

	err := s.RunInTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.LockAggregate(ctx, parent, nil))
		p, err := tx.GetPerson(ctx, child)
		require.NoError(t, err)
		p.Name = "renamed"
		require.NoError(t, tx.UpdatePerson(ctx, p, 1))

		// tx thấy overlay của chính nó
		seen, err := tx.GetPerson(ctx, child)
		require.NoError(t, err)
		assert.Equal(t, "renamed", seen.Name)

		// store chưa thấy gì
		committed, err := s.GetPerson(ctx, child)
		require.NoError(t, err)
		assert.Equal(t, "child", committed.Name)
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	p, err := s.GetPerson(ctx, child)
	require.NoError(t, err)
	assert.Equal(t, "child", p.Name)
	assert.Equal(t, 1, p.Version)

	// lock đã nhả: tx sau lock được ngay
	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
		return tx.LockAggregate(ctx, parent, nil)
	}))
}

func TestMemoryStore_UpdateRequiresLock(t *testing.T) {
	s, _, child := seedFamily(t)
	ctx := context.Background()

	err := s.RunInTx(ctx, func(tx Tx) error {
		p, err := tx.GetPerson(ctx, child)
		require.NoError(t, err)
		return tx.UpdatePerson(ctx, p, p.Version)
	})
	assert.ErrorIs(t, err, errRowNotLocked)
}

func TestMemoryStore_LockIsAllOrNothing(t *testing.T) {
	s, parent, child := seedFamily(t)
	ctx := context.Background()

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.RunInTx(ctx, func(tx Tx) error {
			if err := tx.LockAggregate(ctx, child, nil); err != nil {
				return err
			}
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	err := s.RunInTx(ctx, func(tx Tx) error {
		return tx.LockAggregate(ctx, parent, nil)
	})
	assert.ErrorIs(t, err, model.ErrResourceBusy)

	// parent không bị claim dở dang
	s.mu.RLock()
	_, parentHeld := s.locks[parent]
	s.mu.RUnlock()
	assert.False(t, parentHeld)

	close(release)
	require.NoError(t, <-done)
}

func TestMemoryStore_LockMissingParent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.RunInTx(ctx, func(tx Tx) error {
		return tx.LockAggregate(ctx, uuid.New(), nil)
	})
	assert.ErrorIs(t, err, model.ErrPersonNotFound)
}

func TestMemoryStore_VersionGuardOnWrite(t *testing.T) {
	s, parent, child := seedFamily(t)
	ctx := context.Background()

	err := s.RunInTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.LockAggregate(ctx, parent, nil))
		p, err := tx.GetPerson(ctx, child)
		require.NoError(t, err)
		return tx.UpdatePerson(ctx, p, 9)
	})
	assert.ErrorIs(t, err, model.ErrVersionConflict)
}

func TestMemoryStore_CommitRechecksBaseVersion(t *testing.T) {
	s, parent, child := seedFamily(t)
	ctx := context.Background()

	err := s.RunInTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.LockAggregate(ctx, parent, nil))
		p, err := tx.GetPerson(ctx, child)
		require.NoError(t, err)
		require.NoError(t, tx.UpdatePerson(ctx, p, 1))

		// ghi thẳng vào state chung, bỏ qua lock
		s.PutPerson(model.Person{ID: child, Name: "sneaky", Gender: model.GenderMale, Version: 4, FatherID: &parent})
		return nil
	})
	assert.ErrorIs(t, err, model.ErrVersionConflict)

	p, err := s.GetPerson(ctx, child)
	require.NoError(t, err)
	assert.Equal(t, "sneaky", p.Name)
}

func TestMemoryStore_AuditGroupLifecycle(t *testing.T) {
	s, parent, child := seedFamily(t)
	ctx := context.Background()
	groupID, actor := uuid.New(), uuid.New()

	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertGroup(ctx, &model.OperationGroup{ID: groupID, ParentID: parent, ActorID: actor, OperationCount: 2}))
		require.NoError(t, tx.InsertAuditEntry(ctx, &model.AuditEntry{ID: uuid.New(), GroupID: groupID, TargetID: child, Action: model.ActionUpdate, Seq: 1}))
		require.NoError(t, tx.InsertAuditEntry(ctx, &model.AuditEntry{ID: uuid.New(), GroupID: groupID, TargetID: child, Action: model.ActionUpdate, Seq: 0}))
		return nil
	}))

	entries, err := s.ListGroupEntries(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Seq)
	assert.Equal(t, 1, entries[1].Seq)

	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
		n, err := tx.MarkGroupUndone(ctx, groupID, actor)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		inTx, err := tx.ListGroupEntries(ctx, groupID)
		require.NoError(t, err)
		assert.True(t, inTx[0].IsUndone())
		return nil
	}))

	entries, err = s.ListGroupEntries(ctx, groupID)
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.IsUndone())
		require.NotNil(t, e.UndoneBy)
		assert.Equal(t, actor, *e.UndoneBy)
	}

	_, err = s.GetGroup(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrGroupNotFound)
}

func TestMemoryStore_CountChildrenIncludesDeleted(t *testing.T) {
	s, parent, child := seedFamily(t)
	ctx := context.Background()

	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.LockAggregate(ctx, parent, nil))
		p, err := tx.GetPerson(ctx, child)
		require.NoError(t, err)
		now := s.now()
		p.DeletedAt = &now
		return tx.UpdatePerson(ctx, p, p.Version)
	}))

	live, err := s.CountChildren(ctx, parent, false)
	require.NoError(t, err)
	assert.Equal(t, 0, live)

	all, err := s.CountChildren(ctx, parent, true)
	require.NoError(t, err)
	assert.Equal(t, 1, all)

	_, err = s.GetPerson(ctx, child)
	assert.ErrorIs(t, err, model.ErrPersonNotFound)
	deleted, err := s.GetPersonIncludingDeleted(ctx, child)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted.Version)
}

func TestMemoryStore_MaxHIDSuffix(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	deletedAt := s.now()
	for _, h := range []string{"4", "4.2", "4.10", "4.3.7", "4.x", "40.99"} {
		hid := h
		s.PutPerson(model.Person{ID: uuid.New(), HID: &hid, Name: "p" + h, Gender: model.GenderMale,
			Status: model.StatusAlive, DeletedAt: &deletedAt})
	}

	n, err := s.MaxHIDSuffix(ctx, "4.")
	require.NoError(t, err)
	assert.Equal(t, 10, n, "deleted rows count, nested and non-numeric hids do not")

	n, err = s.MaxHIDSuffix(ctx, "5.")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// Hai tx trên hai aggregate khác nhau: một tx gán mẹ M cho X, tx kia xóa M.
// Tx commit sau phải thấy conflict, dù thứ tự commit thế nào.
func TestMemoryStore_WriteSkewOnReadRowsIsRejected(t *testing.T) {
	seed := func(t *testing.T) (s *MemoryStore, father, x, grandma, mother uuid.UUID) {
		t.Helper()
		s = NewMemoryStore()
		father, x, grandma, mother = uuid.New(), uuid.New(), uuid.New(), uuid.New()
		s.PutPerson(model.Person{ID: father, Name: "father", Gender: model.GenderMale, Status: model.StatusAlive})
		s.PutPerson(model.Person{ID: x, Name: "x", Gender: model.GenderMale, Status: model.StatusAlive, FatherID: &father})
		s.PutPerson(model.Person{ID: grandma, Name: "grandma", Gender: model.GenderFemale, Status: model.StatusAlive})
		s.PutPerson(model.Person{ID: mother, Name: "mother", Gender: model.GenderFemale, Status: model.StatusAlive, MotherID: &grandma})
		return s, father, x, grandma, mother
	}

	relink := func(ctx context.Context, tx Tx, father, x, mother uuid.UUID, pause func()) error {
		if err := tx.LockAggregate(ctx, father, nil); err != nil {
			return err
		}
		if _, err := tx.GetPerson(ctx, mother); err != nil {
			return err
		}
		pause()
		p, err := tx.GetPerson(ctx, x)
		if err != nil {
			return err
		}
		p.MotherID = &mother
		return tx.UpdatePerson(ctx, p, p.Version)
	}

	remove := func(ctx context.Context, tx Tx, grandma, mother uuid.UUID, pause func()) error {
		if err := tx.LockAggregate(ctx, grandma, nil); err != nil {
			return err
		}
		n, err := tx.CountChildren(ctx, mother, false)
		if err != nil {
			return err
		}
		if n > 0 {
			return errBoom
		}
		pause()
		m, err := tx.GetPerson(ctx, mother)
		if err != nil {
			return err
		}
		now := time.Now()
		m.DeletedAt = &now
		return tx.UpdatePerson(ctx, m, m.Version)
	}

	t.Run("delete commits first", func(t *testing.T) {
		s, father, x, grandma, mother := seed(t)
		ctx := context.Background()
		read, resume := make(chan struct{}), make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- s.RunInTx(ctx, func(tx Tx) error {
				return relink(ctx, tx, father, x, mother, func() { close(read); <-resume })
			})
		}()
		<-read

		require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
			return remove(ctx, tx, grandma, mother, func() {})
		}))
		close(resume)

		assert.ErrorIs(t, <-done, model.ErrVersionConflict)
		got, err := s.GetPerson(ctx, x)
		require.NoError(t, err)
		assert.Nil(t, got.MotherID)
	})

	t.Run("relink commits first", func(t *testing.T) {
		s, father, x, grandma, mother := seed(t)
		ctx := context.Background()
		read, resume := make(chan struct{}), make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- s.RunInTx(ctx, func(tx Tx) error {
				return remove(ctx, tx, grandma, mother, func() { close(read); <-resume })
			})
		}()
		<-read

		require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
			return relink(ctx, tx, father, x, mother, func() {})
		}))
		close(resume)

		assert.ErrorIs(t, <-done, model.ErrVersionConflict)
		_, err := s.GetPerson(ctx, mother)
		assert.NoError(t, err, "mother still alive")
	})
}
