package repository

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"familytree-backend/internal/domains/family/model"
)

var errRowNotLocked = errors.New("memory store: row written without holding its lock")

// MemoryStore là Store in-memory cho test và môi trường local.
// Transaction ghi vào overlay riêng, commit swap vào state chung dưới mutex.
// Profile đã đọc được validate lại lúc commit (optimistic, thay cho snapshot).
// Lock là bảng try-lock theo row id: không bao giờ chờ.
type MemoryStore struct {
	mu        sync.RWMutex
	persons   map[uuid.UUID]model.Person
	actors    map[uuid.UUID]model.Actor
	blocks    map[uuid.UUID]model.Block
	branches  map[uuid.UUID][]uuid.UUID
	marriages map[uuid.UUID]model.Marriage
	groups    map[uuid.UUID]model.OperationGroup
	entries   map[uuid.UUID][]model.AuditEntry
	locks     map[uuid.UUID]*memoryTx
	now       func() time.Time
}

// Compile-time check
var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		persons:   make(map[uuid.UUID]model.Person),
		actors:    make(map[uuid.UUID]model.Actor),
		blocks:    make(map[uuid.UUID]model.Block),
		branches:  make(map[uuid.UUID][]uuid.UUID),
		marriages: make(map[uuid.UUID]model.Marriage),
		groups:    make(map[uuid.UUID]model.OperationGroup),
		entries:   make(map[uuid.UUID][]model.AuditEntry),
		locks:     make(map[uuid.UUID]*memoryTx),
		now:       time.Now,
	}
}

// ========================================
// SEEDING (tests / local dev)
// ========================================

func (s *MemoryStore) PutPerson(p model.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Version == 0 {
		p.Version = 1
	}
	s.persons[p.ID] = p.Clone()
}

func (s *MemoryStore) PutActor(a model.Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actors[a.UserID] = a
}

func (s *MemoryStore) PutBlock(b model.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.UserID] = b
}

func (s *MemoryStore) PutBranchModerator(m model.BranchModerator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branches[m.UserID] = append(s.branches[m.UserID], m.BranchRootID)
}

func (s *MemoryStore) PutMarriage(m model.Marriage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marriages[m.ID] = m
}

// ========================================
// TRANSACTIONS
// ========================================

type stagedPerson struct {
	person      model.Person
	baseVersion int // 0 = insert
}

type undoMark struct {
	actorID uuid.UUID
	at      time.Time
}

type memoryTx struct {
	store     *MemoryStore
	persons   map[uuid.UUID]stagedPerson
	groups    []model.OperationGroup
	entries   []model.AuditEntry
	undone    map[uuid.UUID]undoMark
	marriages []model.Marriage
	held      map[uuid.UUID]struct{}

	// read set: version đã commit lúc tx đọc lần đầu (0 = chưa tồn tại)
	// và tập con của từng parent đã scan. Commit kiểm tra lại cả hai.
	reads map[uuid.UUID]int
	scans map[uuid.UUID]map[uuid.UUID]int
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memoryTx{
		store:   s,
		persons: make(map[uuid.UUID]stagedPerson),
		undone:  make(map[uuid.UUID]undoMark),
		held:    make(map[uuid.UUID]struct{}),
		reads:   make(map[uuid.UUID]int),
		scans:   make(map[uuid.UUID]map[uuid.UUID]int),
	}
	// Lock chỉ nhả ở đây: commit hoặc rollback đều đi qua defer
	defer s.releaseLocks(tx)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	// Client bỏ request trước khi commit => rollback
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) releaseLocks(tx *memoryTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range tx.held {
		if s.locks[id] == tx {
			delete(s.locks, id)
		}
	}
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check version gốc của mọi row đã sửa trước khi ghi
	for id, staged := range tx.persons {
		if staged.baseVersion == 0 {
			if _, exists := s.persons[id]; exists {
				return model.NewValidationError(-1, "id", "duplicate person id")
			}
			continue
		}
		if cur, ok := s.persons[id]; !ok || cur.Version != staged.baseVersion {
			return model.ErrVersionConflict
		}
	}
	if err := s.validateReadsLocked(tx); err != nil {
		return err
	}

	for id, staged := range tx.persons {
		s.persons[id] = staged.person.Clone()
	}
	for _, g := range tx.groups {
		s.groups[g.ID] = g
	}
	for _, e := range tx.entries {
		s.entries[e.GroupID] = append(s.entries[e.GroupID], e)
	}
	for groupID, mark := range tx.undone {
		list := s.entries[groupID]
		for i := range list {
			if list[i].UndoneAt == nil {
				at, by := mark.at, mark.actorID
				list[i].UndoneAt = &at
				list[i].UndoneBy = &by
			}
		}
	}
	for _, m := range tx.marriages {
		s.marriages[m.ID] = m
	}
	return nil
}

// validateReadsLocked: row hoặc tập con tx đã đọc bị tx khác commit đè => conflict,
// tương đương lỗi serialization (40001) của Postgres
func (s *MemoryStore) validateReadsLocked(tx *memoryTx) error {
	for id, seen := range tx.reads {
		if committedVersion(s.persons, id) != seen {
			return model.ErrVersionConflict
		}
	}
	for parentID, seen := range tx.scans {
		cur := committedChildren(s.persons, parentID)
		if len(cur) != len(seen) {
			return model.ErrVersionConflict
		}
		for id, v := range seen {
			if cur[id] != v {
				return model.ErrVersionConflict
			}
		}
	}
	return nil
}

func committedVersion(persons map[uuid.UUID]model.Person, id uuid.UUID) int {
	if p, ok := persons[id]; ok {
		return p.Version
	}
	return 0
}

// committedChildren gồm cả con đã soft delete
func committedChildren(persons map[uuid.UUID]model.Person, parentID uuid.UUID) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int)
	for id, p := range persons {
		if p.IsChildOf(parentID) {
			out[id] = p.Version
		}
	}
	return out
}

// observe* chỉ giữ lần đọc đầu tiên; gọi khi đang giữ store.mu
func (tx *memoryTx) observeRowLocked(id uuid.UUID) {
	if _, ok := tx.reads[id]; !ok {
		tx.reads[id] = committedVersion(tx.store.persons, id)
	}
}

func (tx *memoryTx) observeChildrenLocked(parentID uuid.UUID) {
	if _, ok := tx.scans[parentID]; !ok {
		tx.scans[parentID] = committedChildren(tx.store.persons, parentID)
	}
}

// LockAggregate - try-lock từng row, fail ngay nếu tx khác đang giữ
func (tx *memoryTx) LockAggregate(_ context.Context, parentID uuid.UUID, extraIDs []uuid.UUID) error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := tx.lookupLocked(parentID)
	if !ok || parent.IsDeleted() {
		return model.ErrPersonNotFound
	}

	ids := []uuid.UUID{parentID}
	for _, p := range tx.mergedLocked() {
		if !p.IsDeleted() && p.IsChildOf(parentID) {
			ids = append(ids, p.ID)
		}
	}
	for _, id := range extraIDs {
		if _, ok := tx.lookupLocked(id); ok {
			ids = append(ids, id)
		}
	}

	// all-or-nothing: kiểm tra hết trước khi claim
	for _, id := range ids {
		if owner, held := s.locks[id]; held && owner != tx {
			return model.ErrResourceBusy
		}
	}
	for _, id := range ids {
		s.locks[id] = tx
		tx.held[id] = struct{}{}
	}
	return nil
}

func (tx *memoryTx) InsertPerson(_ context.Context, p *model.Person) error {
	if _, exists := tx.lookup(p.ID); exists {
		return model.NewValidationError(-1, "id", "duplicate person id")
	}
	tx.persons[p.ID] = stagedPerson{person: p.Clone()}
	tx.held[p.ID] = struct{}{}
	return nil
}

func (tx *memoryTx) UpdatePerson(_ context.Context, p *model.Person, expectedVersion int) error {
	if _, held := tx.held[p.ID]; !held {
		return errRowNotLocked
	}
	cur, ok := tx.lookup(p.ID)
	if !ok {
		return model.ErrPersonNotFound
	}
	if cur.Version != expectedVersion {
		return model.ErrVersionConflict
	}

	base := expectedVersion
	if staged, ok := tx.persons[p.ID]; ok {
		base = staged.baseVersion
	}
	p.Version = expectedVersion + 1
	tx.persons[p.ID] = stagedPerson{person: p.Clone(), baseVersion: base}
	return nil
}

func (tx *memoryTx) InsertGroup(_ context.Context, g *model.OperationGroup) error {
	tx.groups = append(tx.groups, *g)
	return nil
}

func (tx *memoryTx) InsertAuditEntry(_ context.Context, e *model.AuditEntry) error {
	entry := *e
	if e.OldData != nil {
		old := e.OldData.Clone()
		entry.OldData = &old
	}
	if e.NewData != nil {
		nw := e.NewData.Clone()
		entry.NewData = &nw
	}
	tx.entries = append(tx.entries, entry)
	return nil
}

func (tx *memoryTx) MarkGroupUndone(ctx context.Context, groupID, actorID uuid.UUID) (int, error) {
	entries, err := tx.ListGroupEntries(ctx, groupID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsUndone() {
			n++
		}
	}
	tx.undone[groupID] = undoMark{actorID: actorID, at: tx.store.now()}
	return n, nil
}

func (tx *memoryTx) InsertMarriage(_ context.Context, m *model.Marriage) error {
	tx.marriages = append(tx.marriages, *m)
	return nil
}

// lookup đọc overlay trước, rồi state đã commit
func (tx *memoryTx) lookup(id uuid.UUID) (model.Person, bool) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.lookupLocked(id)
}

func (tx *memoryTx) lookupLocked(id uuid.UUID) (model.Person, bool) {
	if staged, ok := tx.persons[id]; ok {
		return staged.person.Clone(), true
	}
	p, ok := tx.store.persons[id]
	if !ok {
		return model.Person{}, false
	}
	return p.Clone(), true
}

func (tx *memoryTx) mergedLocked() map[uuid.UUID]model.Person {
	out := make(map[uuid.UUID]model.Person, len(tx.store.persons)+len(tx.persons))
	for id, p := range tx.store.persons {
		out[id] = p
	}
	for id, staged := range tx.persons {
		out[id] = staged.person
	}
	return out
}

// ========================================
// READS - store (committed) và tx (overlay) dùng chung qua view
// ========================================

// memView gom phần đọc; tx == nil nghĩa là chỉ đọc state đã commit
type memView struct {
	s  *MemoryStore
	tx *memoryTx
}

func (s *MemoryStore) view() memView { return memView{s: s} }

func (tx *memoryTx) view() memView { return memView{s: tx.store, tx: tx} }

func (v memView) persons() map[uuid.UUID]model.Person {
	if v.tx != nil {
		return v.tx.mergedLocked()
	}
	return v.s.persons
}

func (v memView) getActor(userID uuid.UUID) (*model.Actor, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	a, ok := v.s.actors[userID]
	if !ok {
		return nil, model.ErrActorNotFound
	}
	if a.PersonID != nil {
		pid := *a.PersonID
		a.PersonID = &pid
	}
	return &a, nil
}

func (v memView) isBlocked(userID uuid.UUID) bool {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	_, ok := v.s.blocks[userID]
	return ok
}

func (v memView) getPerson(id uuid.UUID, includeDeleted bool) (*model.Person, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if v.tx != nil {
		v.tx.observeRowLocked(id)
	}
	p, ok := v.persons()[id]
	if !ok || (!includeDeleted && p.IsDeleted()) {
		return nil, model.ErrPersonNotFound
	}
	out := p.Clone()
	return &out, nil
}

func (v memView) listChildren(parentID uuid.UUID, includeDeleted bool) []model.Person {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if v.tx != nil {
		v.tx.observeChildrenLocked(parentID)
	}
	children := make([]model.Person, 0)
	for _, p := range v.persons() {
		if p.IsChildOf(parentID) && (includeDeleted || !p.IsDeleted()) {
			children = append(children, p.Clone())
		}
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].SiblingOrder != children[j].SiblingOrder {
			return children[i].SiblingOrder < children[j].SiblingOrder
		}
		if !children[i].CreatedAt.Equal(children[j].CreatedAt) {
			return children[i].CreatedAt.Before(children[j].CreatedAt)
		}
		return children[i].ID.String() < children[j].ID.String()
	})
	return children
}

func (v memView) maxHIDSuffix(prefix string) int {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	best := 0
	for _, p := range v.persons() {
		if p.HID == nil || !strings.HasPrefix(*p.HID, prefix) {
			continue
		}
		suffix := strings.TrimPrefix(*p.HID, prefix)
		if suffix == "" || suffix[0] < '0' || suffix[0] > '9' {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n > best {
			best = n
		}
	}
	return best
}

func (v memView) moderatedBranches(userID uuid.UUID) []uuid.UUID {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return append([]uuid.UUID(nil), v.s.branches[userID]...)
}

func (v memView) marriageList() []model.Marriage {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := make([]model.Marriage, 0, len(v.s.marriages))
	for _, m := range v.s.marriages {
		if m.DeletedAt == nil {
			out = append(out, m)
		}
	}
	if v.tx != nil {
		out = append(out, v.tx.marriages...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (v memView) spouseIDs(personID uuid.UUID) []uuid.UUID {
	ids := make([]uuid.UUID, 0)
	for _, m := range v.marriageList() {
		switch personID {
		case m.HusbandID:
			ids = append(ids, m.WifeID)
		case m.WifeID:
			ids = append(ids, m.HusbandID)
		}
	}
	return ids
}

func (v memView) getGroup(id uuid.UUID) (*model.OperationGroup, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if g, ok := v.s.groups[id]; ok {
		return &g, nil
	}
	if v.tx != nil {
		for _, g := range v.tx.groups {
			if g.ID == id {
				out := g
				return &out, nil
			}
		}
	}
	return nil, model.ErrGroupNotFound
}

func (v memView) listGroups(parentID uuid.UUID, limit int) []model.OperationGroup {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := make([]model.OperationGroup, 0)
	for _, g := range v.s.groups {
		if g.ParentID == parentID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (v memView) groupEntries(groupID uuid.UUID) []model.AuditEntry {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := make([]model.AuditEntry, 0)
	for _, e := range v.s.entries[groupID] {
		out = append(out, cloneEntry(e))
	}
	if v.tx != nil {
		for _, e := range v.tx.entries {
			if e.GroupID == groupID {
				out = append(out, cloneEntry(e))
			}
		}
		if mark, ok := v.tx.undone[groupID]; ok {
			for i := range out {
				if out[i].UndoneAt == nil {
					at, by := mark.at, mark.actorID
					out[i].UndoneAt = &at
					out[i].UndoneBy = &by
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (v memView) getMarriage(id uuid.UUID) (*model.Marriage, error) {
	for _, m := range v.marriageList() {
		if m.ID == id {
			out := m
			return &out, nil
		}
	}
	return nil, model.ErrMarriageNotFound
}

func cloneEntry(e model.AuditEntry) model.AuditEntry {
	out := e
	if e.OldData != nil {
		old := e.OldData.Clone()
		out.OldData = &old
	}
	if e.NewData != nil {
		nw := e.NewData.Clone()
		out.NewData = &nw
	}
	if e.UndoneAt != nil {
		at := *e.UndoneAt
		out.UndoneAt = &at
	}
	if e.UndoneBy != nil {
		by := *e.UndoneBy
		out.UndoneBy = &by
	}
	return out
}

// ========================================
// Reader methods: MemoryStore
// ========================================

func (s *MemoryStore) GetActor(_ context.Context, userID uuid.UUID) (*model.Actor, error) {
	return s.view().getActor(userID)
}

func (s *MemoryStore) IsBlocked(_ context.Context, userID uuid.UUID) (bool, error) {
	return s.view().isBlocked(userID), nil
}

func (s *MemoryStore) GetPerson(_ context.Context, id uuid.UUID) (*model.Person, error) {
	return s.view().getPerson(id, false)
}

func (s *MemoryStore) GetPersonIncludingDeleted(_ context.Context, id uuid.UUID) (*model.Person, error) {
	return s.view().getPerson(id, true)
}

func (s *MemoryStore) ListChildren(_ context.Context, parentID uuid.UUID) ([]model.Person, error) {
	return s.view().listChildren(parentID, false), nil
}

func (s *MemoryStore) CountChildren(_ context.Context, parentID uuid.UUID, includeDeleted bool) (int, error) {
	return len(s.view().listChildren(parentID, includeDeleted)), nil
}

func (s *MemoryStore) MaxHIDSuffix(_ context.Context, prefix string) (int, error) {
	return s.view().maxHIDSuffix(prefix), nil
}

func (s *MemoryStore) ListModeratedBranches(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return s.view().moderatedBranches(userID), nil
}

func (s *MemoryStore) ListSpouseIDs(_ context.Context, personID uuid.UUID) ([]uuid.UUID, error) {
	return s.view().spouseIDs(personID), nil
}

func (s *MemoryStore) GetGroup(_ context.Context, id uuid.UUID) (*model.OperationGroup, error) {
	return s.view().getGroup(id)
}

func (s *MemoryStore) ListGroups(_ context.Context, parentID uuid.UUID, limit int) ([]model.OperationGroup, error) {
	return s.view().listGroups(parentID, limit), nil
}

func (s *MemoryStore) ListGroupEntries(_ context.Context, groupID uuid.UUID) ([]model.AuditEntry, error) {
	return s.view().groupEntries(groupID), nil
}

func (s *MemoryStore) GetMarriage(_ context.Context, id uuid.UUID) (*model.Marriage, error) {
	return s.view().getMarriage(id)
}

func (s *MemoryStore) ListMarriages(_ context.Context) ([]model.Marriage, error) {
	return s.view().marriageList(), nil
}

// ========================================
// Reader methods: memoryTx
// ========================================

func (tx *memoryTx) GetActor(_ context.Context, userID uuid.UUID) (*model.Actor, error) {
	return tx.view().getActor(userID)
}

func (tx *memoryTx) IsBlocked(_ context.Context, userID uuid.UUID) (bool, error) {
	return tx.view().isBlocked(userID), nil
}

func (tx *memoryTx) GetPerson(_ context.Context, id uuid.UUID) (*model.Person, error) {
	return tx.view().getPerson(id, false)
}

func (tx *memoryTx) GetPersonIncludingDeleted(_ context.Context, id uuid.UUID) (*model.Person, error) {
	return tx.view().getPerson(id, true)
}

func (tx *memoryTx) ListChildren(_ context.Context, parentID uuid.UUID) ([]model.Person, error) {
	return tx.view().listChildren(parentID, false), nil
}

func (tx *memoryTx) CountChildren(_ context.Context, parentID uuid.UUID, includeDeleted bool) (int, error) {
	return len(tx.view().listChildren(parentID, includeDeleted)), nil
}

func (tx *memoryTx) MaxHIDSuffix(_ context.Context, prefix string) (int, error) {
	return tx.view().maxHIDSuffix(prefix), nil
}

func (tx *memoryTx) ListModeratedBranches(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return tx.view().moderatedBranches(userID), nil
}

func (tx *memoryTx) ListSpouseIDs(_ context.Context, personID uuid.UUID) ([]uuid.UUID, error) {
	return tx.view().spouseIDs(personID), nil
}

func (tx *memoryTx) GetGroup(_ context.Context, id uuid.UUID) (*model.OperationGroup, error) {
	return tx.view().getGroup(id)
}

func (tx *memoryTx) ListGroups(_ context.Context, parentID uuid.UUID, limit int) ([]model.OperationGroup, error) {
	return tx.view().listGroups(parentID, limit), nil
}

func (tx *memoryTx) ListGroupEntries(_ context.Context, groupID uuid.UUID) ([]model.AuditEntry, error) {
	return tx.view().groupEntries(groupID), nil
}

func (tx *memoryTx) GetMarriage(_ context.Context, id uuid.UUID) (*model.Marriage, error) {
	return tx.view().getMarriage(id)
}

func (tx *memoryTx) ListMarriages(_ context.Context) ([]model.Marriage, error) {
	return tx.view().marriageList(), nil
}
